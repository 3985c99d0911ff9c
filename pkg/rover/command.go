// Package rover contains the teleoperation core: the connection
// lifecycle over a transport session and the rate-capped command
// dispatch pipeline feeding it.
package rover

import (
	"fmt"
	"time"

	"github.com/roverpad/go-rover/pkg/joystick"
)

// Wire tokens understood by the rover firmware. These must match
// exactly for interoperability.
const (
	TokenForward   = "F"
	TokenBackward  = "B"
	TokenTurnLeft  = "L"
	TokenTurnRight = "R"
	TokenStop      = "S"
	TokenSpeedUp   = "+"
	TokenClawOpen  = "O"
	TokenClawClose = "C"
	TokenReset     = "/" // session reset, sent once right after connect
)

// TokenSpeedMax formats the speed-ceiling token for the given value.
func TokenSpeedMax(speed int) string {
	return fmt.Sprintf("MAX:%d", speed)
}

// Category groups commands for queue coalescing: when the queue is
// full, the newest command replaces the oldest pending one of the same
// category rather than blocking the producer.
type Category int

const (
	CategoryDirection Category = iota
	CategorySpeed
	CategoryControl
)

// Command is the wire-level unit actually transmitted. Write-once,
// fire-and-forget; EnqueuedAt exists for diagnostics only.
type Command struct {
	Token      string
	Category   Category
	EnqueuedAt time.Time
}

// directionToken maps an intent to its wire token. Stop has its own
// dispatch path and is not part of this table.
func directionToken(intent joystick.Intent) (string, bool) {
	switch intent {
	case joystick.IntentForward:
		return TokenForward, true
	case joystick.IntentBackward:
		return TokenBackward, true
	case joystick.IntentTurnLeft:
		return TokenTurnLeft, true
	case joystick.IntentTurnRight:
		return TokenTurnRight, true
	}
	return "", false
}
