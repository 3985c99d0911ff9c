package rover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roverpad/go-rover/pkg/transport"
)

// State is the connection lifecycle state. Exactly one device is
// associated with the manager once the state leaves Idle/Scanning.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StatePairing
	StateConnected
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StatePairing:
		return "pairing"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrBusy is returned when a scan or connect is requested while
	// another lifecycle operation is in flight. One operation at a
	// time; the caller retries after it settles.
	ErrBusy = errors.New("rover: lifecycle operation already in progress")

	// ErrConnectFailed is the failure reason after the retry budget is
	// exhausted.
	ErrConnectFailed = errors.New("rover: connect failed after retries")

	// ErrNotConnected is returned by operations that need a live
	// session.
	ErrNotConnected = errors.New("rover: not connected")
)

// ConnectionManager drives one device from discovery to a usable
// session and detects loss. It exclusively owns the session; the
// dispatcher only borrows it for the duration of a single write via
// Session().
type ConnectionManager struct {
	tr     transport.Transport
	cfg    Config
	logger *slog.Logger
	clock  Clock

	mu      sync.Mutex
	state   State
	attempt int
	busy    bool
	device  transport.DeviceDescriptor
	session transport.Session
	lastErr error
	seen    map[string]transport.DeviceDescriptor

	listenerMu sync.Mutex
	onState    func(State)
}

// NewConnectionManager creates a manager over the given transport.
// Exactly one instance exists per active session; it is passed by
// reference to the dispatcher rather than held in process-wide state.
func NewConnectionManager(tr transport.Transport, cfg Config, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		tr:     tr,
		cfg:    cfg,
		logger: logger,
		clock:  SystemClock(),
		seen:   make(map[string]transport.DeviceDescriptor),
	}
}

// SetStateListener registers a callback invoked on every state change,
// outside the manager's lock. Used to gate the dispatcher and to feed
// operator-facing notifications.
func (m *ConnectionManager) SetStateListener(fn func(State)) {
	m.listenerMu.Lock()
	m.onState = fn
	m.listenerMu.Unlock()
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns the current connect attempt number (1-based) while
// Connecting, zero otherwise.
func (m *ConnectionManager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Err returns the failure reason once the state is Failed.
func (m *ConnectionManager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Device returns the descriptor the manager is bound to once the state
// has left Idle/Scanning.
func (m *ConnectionManager) Device() transport.DeviceDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device
}

// Scan discovers devices for the configured scan duration or until the
// caller cancels ctx. Results are deduplicated by ID: each device is
// announced once on the returned channel, and later sightings update
// the signal strength visible through Devices(). The channel closes
// when the scan ends, and no sends happen after cancellation.
func (m *ConnectionManager) Scan(ctx context.Context) (<-chan transport.DeviceDescriptor, error) {
	m.mu.Lock()
	if m.busy || m.state != StateIdle && m.state != StateFailed {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.busy = true
	m.seen = make(map[string]transport.DeviceDescriptor)
	m.mu.Unlock()
	m.setState(StateScanning)

	scanCtx, cancel := context.WithTimeout(ctx, m.cfg.ScanDuration)
	in, err := m.tr.Scan(scanCtx)
	if err != nil {
		cancel()
		m.mu.Lock()
		m.busy = false
		m.lastErr = err
		m.mu.Unlock()
		m.setState(StateFailed)
		return nil, fmt.Errorf("scan: %w", err)
	}

	out := make(chan transport.DeviceDescriptor)
	go func() {
		defer cancel()
		defer close(out)
		defer func() {
			m.mu.Lock()
			m.busy = false
			m.mu.Unlock()
			m.setState(StateIdle)
		}()

		for {
			select {
			case <-scanCtx.Done():
				return
			case d, ok := <-in:
				if !ok {
					return
				}
				m.mu.Lock()
				_, known := m.seen[d.ID]
				m.seen[d.ID] = d // latest signal strength wins
				m.mu.Unlock()
				if known {
					continue
				}
				select {
				case out <- d:
				case <-scanCtx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Devices returns a snapshot of everything the last scan saw, strongest
// signal first.
func (m *ConnectionManager) Devices() []transport.DeviceDescriptor {
	m.mu.Lock()
	out := make([]transport.DeviceDescriptor, 0, len(m.seen))
	for _, d := range m.seen {
		out = append(out, d)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RSSI > out[j].RSSI })
	return out
}

// Connect drives the device to a usable session: one best-effort
// pairing pass if the device is not bonded, then up to
// MaxConnectAttempts opens with a fixed backoff between attempts.
//
// A Connect while another operation is in flight is rejected with
// ErrBusy. Cancelling ctx between attempts leaves the state Idle, not
// Failed; exhausting the budget leaves it Failed with the last error.
func (m *ConnectionManager) Connect(ctx context.Context, dev transport.DeviceDescriptor) error {
	m.mu.Lock()
	if m.busy || m.state == StateConnected {
		m.mu.Unlock()
		return ErrBusy
	}
	m.busy = true
	m.device = dev
	m.attempt = 1
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	m.setState(StateConnecting)

	// Pairing is best-effort: some stacks accept connections without a
	// formal bond, so a pairing failure proceeds to connect anyway.
	if !dev.Bonded {
		m.setState(StatePairing)
		pairCtx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
		err := m.tr.Pair(pairCtx, dev.ID)
		cancel()
		if err != nil {
			m.logger.Warn("pairing failed, connecting anyway", "device", dev.ID, "error", err)
		}
		m.setState(StateConnecting)
	}

	var lastErr error
	for {
		m.mu.Lock()
		attempt := m.attempt
		m.mu.Unlock()

		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
		sess, err := m.tr.Open(attemptCtx, dev.ID)
		cancel()

		if err == nil {
			m.mu.Lock()
			m.session = sess
			m.lastErr = nil
			m.mu.Unlock()
			m.setState(StateConnected)
			m.logger.Info("connected", "device", dev.ID, "attempt", attempt)
			return nil
		}
		lastErr = err
		m.logger.Warn("connect attempt failed",
			"device", dev.ID,
			"attempt", attempt,
			"max_attempts", m.cfg.MaxConnectAttempts,
			"error", err,
		)

		// User cancellation between attempts lands in Idle, not Failed.
		if ctx.Err() != nil {
			m.toIdle()
			return ctx.Err()
		}
		// Radio off: retrying cannot help.
		if errors.Is(err, transport.ErrAdapterUnavailable) {
			break
		}
		if attempt >= m.cfg.MaxConnectAttempts {
			break
		}

		select {
		case <-ctx.Done():
			m.toIdle()
			return ctx.Err()
		case <-m.clock.After(m.cfg.ConnectBackoff):
		}

		m.mu.Lock()
		m.attempt++
		m.mu.Unlock()
		m.setState(StateConnecting)
	}

	err := fmt.Errorf("%w: %v", ErrConnectFailed, lastErr)
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.setState(StateFailed)
	return err
}

// Session exposes the active session only while Connected. A nil return
// is the sole gate preventing writes on a dead session.
func (m *ConnectionManager) Session() transport.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.session
}

// Disconnect tears the session down. Idempotent and safe when already
// idle; the session reference is always cleared before returning, even
// if the underlying close reports an error (logged, not escalated).
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	if m.session == nil {
		m.state = StateIdle
		m.attempt = 0
		m.mu.Unlock()
		return
	}
	sess := m.session
	m.session = nil
	m.mu.Unlock()
	m.setState(StateDisconnecting)

	if err := sess.Close(); err != nil {
		m.logger.Warn("session close", "error", err)
	}
	m.toIdle()
}

// ReportWriteFailure classifies a write error observed by the
// dispatcher. A disconnect signal invalidates the whole session and
// lands the manager back in Idle; anything else is a transient failure
// of a single command and is ignored.
func (m *ConnectionManager) ReportWriteFailure(err error) {
	if err == nil || !transport.IsDisconnect(err) {
		return
	}
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	m.logger.Warn("session lost", "device", m.Device().ID, "error", err)
	if sess != nil {
		if cerr := sess.Close(); cerr != nil {
			m.logger.Debug("close after loss", "error", cerr)
		}
	}
	m.toIdle()
}

func (m *ConnectionManager) toIdle() {
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	m.setState(StateIdle)
}

// setState records the state and notifies the listener outside the
// lock, so listeners may call back into the manager.
func (m *ConnectionManager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	m.listenerMu.Lock()
	fn := m.onState
	m.listenerMu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Ensure the manager satisfies the dispatcher's link contract.
var _ Link = (*ConnectionManager)(nil)
