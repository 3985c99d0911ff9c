package transport

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Transport for tests and the commands' -mock mode.
// It records every pair/open/write call and lets callers inject failures.
type Mock struct {
	mu sync.Mutex

	devices    map[string]DeviceDescriptor
	scanOrder  []string
	adapterOff bool

	pairErr    error
	pairCalls  []string
	openErrs   []error // consumed one per Open call, nil entries succeed
	openCalls  int
	writeErr   error // returned by the next writes until cleared
	writes     [][]byte
	sessions   []*MockSession
}

// NewMock creates an empty mock transport.
func NewMock() *Mock {
	return &Mock{devices: make(map[string]DeviceDescriptor)}
}

// AddDevice makes a device discoverable. Re-adding the same ID updates
// the descriptor, and the device is announced again on the next scan.
func (m *Mock) AddDevice(d DeviceDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
	m.scanOrder = append(m.scanOrder, d.ID)
}

// SetAdapterOff makes Scan and Open fail with ErrAdapterUnavailable.
func (m *Mock) SetAdapterOff(off bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapterOff = off
}

// FailPairing makes Pair return the given error.
func (m *Mock) FailPairing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairErr = err
}

// QueueOpenResults sets the outcome of successive Open calls; a nil
// entry succeeds. Once the queue is drained, Open succeeds.
func (m *Mock) QueueOpenResults(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs = append(m.openErrs, errs...)
}

// FailWrites makes session writes return the given error until cleared
// with FailWrites(nil).
func (m *Mock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// PairCalls returns the device IDs Pair was invoked for.
func (m *Mock) PairCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.pairCalls...)
}

// OpenCalls returns how many connect attempts were made.
func (m *Mock) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// Writes returns everything written across all sessions, in order.
func (m *Mock) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	for i, w := range m.writes {
		out[i] = string(w)
	}
	return out
}

// Scan implements Transport. It announces each device in the order it
// was added (duplicates included, so dedup is exercised) and then waits
// for the context to end before closing the channel.
func (m *Mock) Scan(ctx context.Context) (<-chan DeviceDescriptor, error) {
	m.mu.Lock()
	if m.adapterOff {
		m.mu.Unlock()
		return nil, ErrAdapterUnavailable
	}
	order := append([]string(nil), m.scanOrder...)
	devices := make(map[string]DeviceDescriptor, len(m.devices))
	for id, d := range m.devices {
		devices[id] = d
	}
	m.mu.Unlock()

	ch := make(chan DeviceDescriptor)
	go func() {
		defer close(ch)
		for _, id := range order {
			select {
			case ch <- devices[id]:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return ch, nil
}

// Pair implements Transport.
func (m *Mock) Pair(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairCalls = append(m.pairCalls, id)
	return m.pairErr
}

// Open implements Transport.
func (m *Mock) Open(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	if m.adapterOff {
		return nil, ErrAdapterUnavailable
	}
	if _, ok := m.devices[id]; !ok {
		return nil, fmt.Errorf("open %s: %w", id, ErrDeviceNotFound)
	}
	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess := &MockSession{owner: m, deviceID: id}
	m.sessions = append(m.sessions, sess)
	return sess, nil
}

// MockSession is the Session produced by Mock.Open.
type MockSession struct {
	owner    *Mock
	deviceID string

	mu     sync.Mutex
	closed bool
}

// Write implements Session, recording the payload on the parent Mock.
func (s *MockSession) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.owner.writeErr != nil {
		return s.owner.writeErr
	}
	s.owner.writes = append(s.owner.writes, append([]byte(nil), data...))
	return nil
}

// Close implements Session. Idempotent.
func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	_ Transport = (*Mock)(nil)
	_ Session   = (*MockSession)(nil)
)
