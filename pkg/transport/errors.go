package transport

import (
	"errors"
	"strings"
)

// Sentinel errors returned by Transport implementations. Callers match
// with errors.Is after any amount of wrapping.
var (
	// ErrAdapterUnavailable means the local radio is off or missing.
	// Scan and Open both fail fast with it.
	ErrAdapterUnavailable = errors.New("transport: adapter unavailable")

	// ErrDeviceNotFound means the requested device is not known to the
	// adapter (never discovered, or discovery cache expired).
	ErrDeviceNotFound = errors.New("transport: device not found")

	// ErrConnectRefused means the peer rejected the connection.
	ErrConnectRefused = errors.New("transport: connection refused")

	// ErrPairingFailed means bonding was rejected or timed out.
	ErrPairingFailed = errors.New("transport: pairing failed")

	// ErrPeerDisconnected means the remote side dropped the session.
	// A write failing with it invalidates the whole session, not just
	// the one command.
	ErrPeerDisconnected = errors.New("transport: peer disconnected")

	// ErrSessionClosed means the session was already closed locally.
	ErrSessionClosed = errors.New("transport: session closed")
)

// IsDisconnect reports whether err indicates the peer dropped the
// session. Besides the sentinel, it matches the disconnect phrasing
// used by stacks that only surface string errors (BlueZ among them).
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPeerDisconnected) || errors.Is(err, ErrSessionClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not connected") ||
		strings.Contains(msg, "disconnected") ||
		strings.Contains(msg, "connection reset")
}
