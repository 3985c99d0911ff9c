// Package transport defines the narrow radio contract the rover core
// depends on: scan for devices, pair, open a session, write bytes.
//
// The core only ever sees these interfaces. Real links (BlueZ over
// D-Bus) live in subpackages; tests and the commands' mock mode use the
// in-memory Mock implementation.
package transport

import "context"

// DeviceDescriptor identifies a discoverable remote unit.
// A descriptor is immutable once observed; a later scan result carrying
// the same ID supersedes it rather than mutating it.
type DeviceDescriptor struct {
	// ID is the stable address or handle of the device (unique).
	ID string `json:"id"`

	// Name is the advertised display name, if any.
	Name string `json:"name,omitempty"`

	// RSSI is the signal strength in dBm. Informational only.
	RSSI int `json:"rssi"`

	// Bonded reports whether a persistent trust relationship already
	// exists with this device.
	Bonded bool `json:"bonded"`
}

// Session is an open channel to one remote device. It is exclusively
// owned by its creator; writes are fire-and-forget (no response payload).
type Session interface {
	// Write sends data over the session. The context bounds the write
	// so a stalled link cannot block the caller indefinitely.
	Write(ctx context.Context, data []byte) error

	// Close tears down the session. Close errors are advisory and
	// should be logged, not escalated.
	Close() error
}

// Transport provides the primitive radio operations.
type Transport interface {
	// Scan streams discovered devices until the context is cancelled
	// or times out. The returned channel is closed when the scan ends,
	// and no sends happen after cancellation is observed.
	Scan(ctx context.Context) (<-chan DeviceDescriptor, error)

	// Pair establishes a bond with the device. Best effort: callers
	// treat failure as non-fatal, since many peripherals accept
	// connections without formal bonding.
	Pair(ctx context.Context, id string) error

	// Open connects to the device and returns a session. The context
	// bounds a single connect attempt.
	Open(ctx context.Context, id string) (Session, error)
}
