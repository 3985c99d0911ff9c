// Package joystick turns continuous 2-axis displacement into a stable,
// low-noise discrete motion intent.
//
// The pipeline is Normalize (deadzone + clamping) followed by Classify
// (one of two selectable policies). Both steps are pure: identical
// input and configuration always yield the identical result.
package joystick

import "math"

// Intent is the discrete motion classification derived from a sample.
type Intent int

const (
	IntentStop Intent = iota
	IntentForward
	IntentBackward
	IntentTurnLeft
	IntentTurnRight
)

func (i Intent) String() string {
	switch i {
	case IntentStop:
		return "stop"
	case IntentForward:
		return "forward"
	case IntentBackward:
		return "backward"
	case IntentTurnLeft:
		return "turn_left"
	case IntentTurnRight:
		return "turn_right"
	}
	return "unknown"
}

// IsTurn reports whether the intent is a left or right turn.
func (i Intent) IsTurn() bool {
	return i == IntentTurnLeft || i == IntentTurnRight
}

// Tier is the magnitude class accompanying an intent. The dispatcher
// uses it together with the gear tables to pick speed increments.
type Tier int

const (
	TierLow Tier = iota
	TierHigh
)

// Motion is the classification result: direction plus magnitude tier.
type Motion struct {
	Intent Intent
	Tier   Tier
}

// Sample is a normalized joystick reading. X and Y are in [-1,1] with
// screen-up mapping to positive Y. Angle is in degrees [0,360) on raw
// screen coordinates; Magnitude is in [0,1]. Derived, never mutated;
// recomputed on every raw input sample.
type Sample struct {
	X, Y      float64
	Angle     float64
	Magnitude float64
	RawDX     float64
	RawDY     float64
}

// Zero reports whether the sample is the exact zero sample.
func (s Sample) Zero() bool {
	return s.X == 0 && s.Y == 0 && s.Angle == 0 && s.Magnitude == 0
}

// Normalize converts a raw displacement into a Sample.
//
// Displacement below MaxRadius*DeadzoneFraction yields the exact zero
// sample — a hard cutoff, not a taper. Displacement beyond MaxRadius is
// clamped so Magnitude never exceeds 1. The vertical axis is inverted:
// screen-down input (positive rawDY) maps to negative Y.
func (c Config) Normalize(rawDX, rawDY float64) Sample {
	s := Sample{RawDX: rawDX, RawDY: rawDY}

	dist := math.Hypot(rawDX, rawDY)
	if dist < c.MaxRadius*c.DeadzoneFraction {
		return s
	}

	dx, dy := rawDX, rawDY
	if dist > c.MaxRadius {
		scale := c.MaxRadius / dist
		dx *= scale
		dy *= scale
		dist = c.MaxRadius
	}

	angle := math.Atan2(dy, dx) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}

	s.Angle = angle
	s.Magnitude = dist / c.MaxRadius
	s.X = dx / c.MaxRadius
	s.Y = -dy / c.MaxRadius
	return s
}

// Classify derives the discrete motion for a sample under the
// configured policy. reverse selects the reverse-gear mapping used by
// the axis-priority policy: forward gears map positive Y to Forward,
// reverse maps it to Backward. Negative Y is ignored there — reversing
// is a gear decision, not a joystick pull-back.
func (c Config) Classify(s Sample, reverse bool) Motion {
	var intent Intent
	switch c.Policy {
	case PolicyAxisPriority:
		intent = c.classifyAxis(s, reverse)
	default:
		intent = c.classifyQuadrant(s)
	}

	tier := TierLow
	if intent != IntentStop && s.Magnitude >= c.TierBoundary {
		tier = TierHigh
	}
	return Motion{Intent: intent, Tier: tier}
}

// classifyQuadrant partitions the angle into four sectors of
// ±QuadrantHalfWidth degrees centered on the cardinal directions.
// Sector boundaries are half-open ([center-hw, center+hw)), so every
// boundary angle has exactly one owner. Angles falling outside every
// sector (half-width below 45) classify as Stop.
func (c Config) classifyQuadrant(s Sample) Intent {
	if s.Magnitude < c.CenterThreshold {
		return IntentStop
	}
	hw := c.QuadrantHalfWidth
	switch {
	case inSector(s.Angle, 270, hw): // screen-up
		return IntentForward
	case inSector(s.Angle, 90, hw): // screen-down
		return IntentBackward
	case inSector(s.Angle, 180, hw): // screen-left
		return IntentTurnLeft
	case inSector(s.Angle, 0, hw): // screen-right
		return IntentTurnRight
	}
	return IntentStop
}

// inSector reports whether angle lies in [center-hw, center+hw) mod 360.
func inSector(angle, center, hw float64) bool {
	diff := math.Mod(angle-center+360+hw, 360)
	return diff >= 0 && diff < 2*hw
}

// classifyAxis gives horizontal displacement priority: a dominant X
// beyond the turn threshold is a turn, otherwise a sufficient positive
// Y is a straight move in the gear's direction.
func (c Config) classifyAxis(s Sample, reverse bool) Intent {
	ax, ay := math.Abs(s.X), math.Abs(s.Y)
	if ax > c.TurnThreshold && ax > ay {
		if s.X > 0 {
			return IntentTurnRight
		}
		return IntentTurnLeft
	}
	if s.Y > c.MoveThreshold {
		if reverse {
			return IntentBackward
		}
		return IntentForward
	}
	return IntentStop
}
