package rover

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverpad/go-rover/pkg/joystick"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dispatch period", func(c *Config) { c.DispatchPeriod = 0 }},
		{"zero queue capacity", func(c *Config) { c.QueueCapacity = 0 }},
		{"zero connect attempts", func(c *Config) { c.MaxConnectAttempts = 0 }},
		{"negative backoff", func(c *Config) { c.ConnectBackoff = -time.Second }},
		{"zero attempt timeout", func(c *Config) { c.AttemptTimeout = 0 }},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }},
		{"initial gear without ceiling", func(c *Config) { c.InitialGear = "7" }},
		{"ceiling without increments", func(c *Config) { delete(c.Increments, "2") }},
		{"bad joystick policy", func(c *Config) { c.Joystick.Policy = "spiral" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	data := `
dispatch_period: 80ms
initial_gear: "2"
speed_ceiling:
  "1": 100
  "2": 160
  "3": 220
  "R": 80
joystick:
  policy: axis-priority
  turn_threshold: 0.6
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 80*time.Millisecond, cfg.DispatchPeriod)
	assert.Equal(t, Gear("2"), cfg.InitialGear)
	assert.Equal(t, 160, cfg.SpeedCeiling["2"])
	assert.Equal(t, joystick.PolicyAxisPriority, cfg.Joystick.Policy)
	assert.InDelta(t, 0.6, cfg.Joystick.TurnThreshold, 1e-9)

	// Untouched knobs keep their defaults.
	assert.Equal(t, 8, cfg.QueueCapacity)
	assert.Equal(t, time.Second, cfg.ConnectBackoff)
	assert.InDelta(t, 0.10, cfg.Joystick.DeadzoneFraction, 1e-9)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dispatch_period: -1s\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestIncrementCount(t *testing.T) {
	cfg := DefaultConfig()

	motion := func(i joystick.Intent, tier joystick.Tier) joystick.Motion {
		return joystick.Motion{Intent: i, Tier: tier}
	}

	// Gear 1: two straight increments, one for turns.
	assert.Equal(t, 2, cfg.incrementCount("1", motion(joystick.IntentForward, joystick.TierHigh)))
	assert.Equal(t, 1, cfg.incrementCount("1", motion(joystick.IntentTurnLeft, joystick.TierHigh)))

	// Gear 3 straight gets the most headroom.
	assert.Equal(t, 4, cfg.incrementCount("3", motion(joystick.IntentForward, joystick.TierHigh)))

	// The low tier backs off by one, floored at a single increment.
	assert.Equal(t, 1, cfg.incrementCount("1", motion(joystick.IntentForward, joystick.TierLow)))
	assert.Equal(t, 1, cfg.incrementCount("1", motion(joystick.IntentTurnLeft, joystick.TierLow)))
	assert.Equal(t, 3, cfg.incrementCount("3", motion(joystick.IntentForward, joystick.TierLow)))

	// Unknown gears fall back to a single increment.
	assert.Equal(t, 1, cfg.incrementCount("9", motion(joystick.IntentForward, joystick.TierHigh)))
}

func TestGearReverse(t *testing.T) {
	assert.True(t, GearReverse.Reverse())
	assert.False(t, Gear("1").Reverse())
}
