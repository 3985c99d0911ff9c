package rover

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roverpad/go-rover/pkg/joystick"
)

// Gear identifies a drive gear as the firmware names it.
type Gear string

// GearReverse is the single reverse gear. Every other gear drives
// forward; reversing is a gear decision, not a joystick pull-back.
const GearReverse Gear = "R"

// Reverse reports whether the gear drives backward.
func (g Gear) Reverse() bool { return g == GearReverse }

// Increments is the speed-increment count for one gear, split by
// whether the motion is a straight move or a turn. Turns get fewer
// increments than straight moves.
type Increments struct {
	Straight int `yaml:"straight" json:"straight"`
	Turn     int `yaml:"turn" json:"turn"`
}

// Config is the full configuration surface of the teleoperation core.
// Every knob is a named option with a default, never a positional magic
// number.
type Config struct {
	// DispatchPeriod is the drain cadence: one command is written per
	// period regardless of how fast input samples arrive.
	DispatchPeriod time.Duration `yaml:"dispatch_period" json:"dispatch_period"`

	// QueueCapacity bounds the pending-command FIFO.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// MaxConnectAttempts bounds the connect retry loop.
	MaxConnectAttempts int `yaml:"max_connect_attempts" json:"max_connect_attempts"`

	// ConnectBackoff is the fixed delay between connect attempts.
	ConnectBackoff time.Duration `yaml:"connect_backoff" json:"connect_backoff"`

	// AttemptTimeout bounds a single connect attempt; expiry counts as
	// one failed attempt. Distinct from ScanDuration.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" json:"attempt_timeout"`

	// WriteTimeout bounds a single session write so a stalled link
	// cannot delay subsequent drain ticks indefinitely.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// ScanDuration is how long a discovery scan runs before it
	// terminates on its own.
	ScanDuration time.Duration `yaml:"scan_duration" json:"scan_duration"`

	// InitialGear is the gear assumed at connect time.
	InitialGear Gear `yaml:"initial_gear" json:"initial_gear"`

	// SpeedCeiling maps each gear to the MAX:<n> value sent on gear
	// change and on connect.
	SpeedCeiling map[Gear]int `yaml:"speed_ceiling" json:"speed_ceiling"`

	// Increments maps each gear to its speed-increment counts.
	Increments map[Gear]Increments `yaml:"increments" json:"increments"`

	// LowTierDecrement is subtracted from the increment count when the
	// intent's magnitude tier is low, floored at one increment.
	LowTierDecrement int `yaml:"low_tier_decrement" json:"low_tier_decrement"`

	// Joystick holds the input translation parameters.
	Joystick joystick.Config `yaml:"joystick" json:"joystick"`
}

// DefaultConfig returns a Config with sensible defaults. The numeric
// values are tuning defaults, not behavioral requirements.
func DefaultConfig() Config {
	return Config{
		DispatchPeriod:     50 * time.Millisecond,
		QueueCapacity:      8,
		MaxConnectAttempts: 3,
		ConnectBackoff:     time.Second,
		AttemptTimeout:     5 * time.Second,
		WriteTimeout:       2 * time.Second,
		ScanDuration:       15 * time.Second,
		InitialGear:        "1",
		SpeedCeiling: map[Gear]int{
			"1": 90, "2": 150, "3": 220, GearReverse: 90,
		},
		Increments: map[Gear]Increments{
			"1":         {Straight: 2, Turn: 1},
			"2":         {Straight: 3, Turn: 2},
			"3":         {Straight: 4, Turn: 2},
			GearReverse: {Straight: 2, Turn: 1},
		},
		LowTierDecrement: 1,
		Joystick:         joystick.DefaultConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DispatchPeriod <= 0 {
		return fmt.Errorf("dispatch_period must be positive, got %v", c.DispatchPeriod)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxConnectAttempts <= 0 {
		return fmt.Errorf("max_connect_attempts must be positive, got %d", c.MaxConnectAttempts)
	}
	if c.ConnectBackoff < 0 {
		return fmt.Errorf("connect_backoff must not be negative, got %v", c.ConnectBackoff)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt_timeout must be positive, got %v", c.AttemptTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout)
	}
	if _, ok := c.SpeedCeiling[c.InitialGear]; !ok {
		return fmt.Errorf("initial_gear %q has no speed ceiling", c.InitialGear)
	}
	for gear := range c.SpeedCeiling {
		if _, ok := c.Increments[gear]; !ok {
			return fmt.Errorf("gear %q has a speed ceiling but no increments", gear)
		}
	}
	return c.Joystick.Validate()
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// incrementCount resolves the table-driven increment count for a
// motion: (gear, turn-vs-straight) picks the base, the low tier
// subtracts LowTierDecrement down to a floor of one.
func (c *Config) incrementCount(gear Gear, motion joystick.Motion) int {
	inc, ok := c.Increments[gear]
	if !ok {
		return 1
	}
	n := inc.Straight
	if motion.Intent.IsTurn() {
		n = inc.Turn
	}
	if motion.Tier == joystick.TierLow {
		n -= c.LowTierDecrement
	}
	if n < 1 {
		n = 1
	}
	return n
}
