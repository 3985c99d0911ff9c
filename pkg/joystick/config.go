package joystick

import "fmt"

// Policy selects the intent classification strategy.
type Policy string

const (
	// PolicyQuadrant partitions the input angle into four sectors
	// centered on the cardinal directions.
	PolicyQuadrant Policy = "quadrant"

	// PolicyAxisPriority classifies on axis displacement, giving
	// horizontal (turn) input priority over vertical (move) input.
	PolicyAxisPriority Policy = "axis-priority"
)

// Config holds the translation parameters. All thresholds are named
// options with defaults; none are hard-coded at call sites.
type Config struct {
	// MaxRadius is the widget radius raw displacement is measured
	// against, in the producer's units (pixels, points).
	MaxRadius float64 `yaml:"max_radius" json:"max_radius"`

	// DeadzoneFraction of MaxRadius below which input is exactly zero.
	DeadzoneFraction float64 `yaml:"deadzone_fraction" json:"deadzone_fraction"`

	// Policy selects the classification strategy.
	Policy Policy `yaml:"policy" json:"policy"`

	// QuadrantHalfWidth is the sector half-width in degrees for the
	// quadrant policy.
	QuadrantHalfWidth float64 `yaml:"quadrant_half_width" json:"quadrant_half_width"`

	// CenterThreshold is the magnitude below which the quadrant policy
	// forces Stop. Independent of the deadzone.
	CenterThreshold float64 `yaml:"center_threshold" json:"center_threshold"`

	// TurnThreshold is the |X| the axis-priority policy requires for a
	// turn; MoveThreshold is the Y it requires for a straight move.
	TurnThreshold float64 `yaml:"turn_threshold" json:"turn_threshold"`
	MoveThreshold float64 `yaml:"move_threshold" json:"move_threshold"`

	// TierBoundary is the magnitude at which an intent is classed as
	// the high tier.
	TierBoundary float64 `yaml:"tier_boundary" json:"tier_boundary"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRadius:         100,
		DeadzoneFraction:  0.10,
		Policy:            PolicyQuadrant,
		QuadrantHalfWidth: 45,
		CenterThreshold:   0.15,
		TurnThreshold:     0.5,
		MoveThreshold:     0.3,
		TierBoundary:      0.6,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxRadius <= 0 {
		return fmt.Errorf("max_radius must be positive, got %v", c.MaxRadius)
	}
	if c.DeadzoneFraction < 0 || c.DeadzoneFraction >= 1 {
		return fmt.Errorf("deadzone_fraction must be in [0,1), got %v", c.DeadzoneFraction)
	}
	if c.Policy != PolicyQuadrant && c.Policy != PolicyAxisPriority {
		return fmt.Errorf("policy must be %q or %q, got %q", PolicyQuadrant, PolicyAxisPriority, c.Policy)
	}
	if c.QuadrantHalfWidth <= 0 || c.QuadrantHalfWidth > 45 {
		return fmt.Errorf("quadrant_half_width must be in (0,45], got %v", c.QuadrantHalfWidth)
	}
	if c.TierBoundary <= 0 || c.TierBoundary > 1 {
		return fmt.Errorf("tier_boundary must be in (0,1], got %v", c.TierBoundary)
	}
	return nil
}
