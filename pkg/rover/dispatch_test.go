package rover

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/roverpad/go-rover/pkg/joystick"
	"github.com/roverpad/go-rover/pkg/transport"
)

// stubLink hands the dispatcher a fixed session and records reported
// write failures.
type stubLink struct {
	mu       sync.Mutex
	sess     transport.Session
	reported []error
}

func (l *stubLink) Session() transport.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess
}

func (l *stubLink) ReportWriteFailure(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reported = append(l.reported, err)
}

func (l *stubLink) setSession(s transport.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sess = s
}

func (l *stubLink) reportedErrors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.reported...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *stubLink, *transport.Mock) {
	t.Helper()
	mock := transport.NewMock()
	mock.AddDevice(transport.DeviceDescriptor{ID: "AA:BB:CC:DD:EE:01"})
	sess, err := mock.Open(context.Background(), "AA:BB:CC:DD:EE:01")
	if err != nil {
		t.Fatalf("open mock session: %v", err)
	}
	link := &stubLink{sess: sess}
	d := NewDispatcher(link, DefaultConfig(), testLogger())
	d.clock = newFakeClock()
	return d, link, mock
}

// drainAll ticks until the queue is empty.
func drainAll(t *testing.T, d *Dispatcher) {
	t.Helper()
	for i := 0; i < 64; i++ {
		if d.Stats().QueueLen == 0 {
			return
		}
		d.tick(context.Background())
	}
	t.Fatal("queue never drained")
}

func wantWrites(t *testing.T, mock *transport.Mock, want ...string) {
	t.Helper()
	got := mock.Writes()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("writes = %v, want %v", got, want)
		}
	}
}

func high(intent joystick.Intent) joystick.Motion {
	return joystick.Motion{Intent: intent, Tier: joystick.TierHigh}
}

func TestDispatch_EdgeTriggeredDirection(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	// Gear 1 straight: direction token plus two speed increments.
	d.HandleMotion(high(joystick.IntentForward))
	// Held joystick re-delivers the same intent; nothing new goes out.
	d.HandleMotion(high(joystick.IntentForward))
	d.HandleMotion(high(joystick.IntentForward))
	d.HandleStop()
	// A second stop while already stopped is swallowed.
	d.HandleStop()

	drainAll(t, d)
	wantWrites(t, mock, "F", "+", "+", "S")
}

func TestDispatch_TurnGetsFewerIncrements(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	d.HandleMotion(high(joystick.IntentTurnLeft))
	drainAll(t, d)
	wantWrites(t, mock, "L", "+")
}

func TestDispatch_LowTierReducesIncrements(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	d.HandleMotion(joystick.Motion{Intent: joystick.IntentForward, Tier: joystick.TierLow})
	drainAll(t, d)
	wantWrites(t, mock, "F", "+")
}

func TestDispatch_IntentChangeReEmits(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	d.HandleMotion(high(joystick.IntentForward))
	d.HandleMotion(high(joystick.IntentTurnRight))
	d.HandleMotion(high(joystick.IntentForward))

	drainAll(t, d)
	wantWrites(t, mock, "F", "+", "+", "R", "+", "F", "+", "+")
}

func TestDispatch_GearChangeStopsFirst(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	d.HandleMotion(high(joystick.IntentForward))
	drainAll(t, d)

	d.HandleGear("2")
	if d.Gear() != Gear("2") {
		t.Fatalf("gear = %q, want 2", d.Gear())
	}
	// Edge tracking resets: the same intent goes out again, now with
	// gear 2's three increments.
	d.HandleMotion(high(joystick.IntentForward))

	drainAll(t, d)
	wantWrites(t, mock, "F", "+", "+", "S", "MAX:150", "F", "+", "+", "+")
}

func TestDispatch_UnknownGearIgnored(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	d.HandleGear("9")
	if d.Gear() != Gear("1") {
		t.Fatalf("gear = %q, want unchanged 1", d.Gear())
	}
	drainAll(t, d)
	wantWrites(t, mock)
}

func TestDispatch_Claw(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	d.HandleClaw(true)
	d.HandleClaw(false)
	drainAll(t, d)
	wantWrites(t, mock, "O", "C")
}

func TestDispatch_PrimeResetsSessionState(t *testing.T) {
	d, _, mock := newTestDispatcher(t)

	// Stale motion from before the session must not leak out.
	d.HandleMotion(high(joystick.IntentForward))
	d.Prime()

	drainAll(t, d)
	wantWrites(t, mock, "/", "MAX:90")

	// Prime also rearms the direction edge.
	d.HandleMotion(high(joystick.IntentForward))
	drainAll(t, d)
	wantWrites(t, mock, "/", "MAX:90", "F", "+", "+")
}

func TestDispatch_NoSessionLeavesQueueIntact(t *testing.T) {
	d, link, mock := newTestDispatcher(t)
	sess := link.sess
	link.setSession(nil)

	d.HandleMotion(high(joystick.IntentForward))
	before := d.Stats().QueueLen

	d.tick(context.Background())
	d.tick(context.Background())

	stats := d.Stats()
	if stats.QueueLen != before {
		t.Fatalf("queue len = %d, want %d (nothing popped without a session)", stats.QueueLen, before)
	}
	if stats.Ticks != 2 {
		t.Fatalf("ticks = %d, want 2", stats.Ticks)
	}

	// Once a session shows back up the backlog drains in order.
	link.setSession(sess)
	drainAll(t, d)
	wantWrites(t, mock, "F", "+", "+")
}

func TestDispatch_WriteFailureDropsCommandOnce(t *testing.T) {
	d, link, mock := newTestDispatcher(t)
	mock.FailWrites(transport.ErrPeerDisconnected)

	d.HandleMotion(high(joystick.IntentTurnLeft)) // L, +

	d.tick(context.Background())

	stats := d.Stats()
	if stats.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", stats.Dropped)
	}
	if stats.QueueLen != 1 {
		t.Fatalf("queue len = %d, want 1 (failed command not requeued)", stats.QueueLen)
	}
	reported := link.reportedErrors()
	if len(reported) != 1 || !errors.Is(reported[0], transport.ErrPeerDisconnected) {
		t.Fatalf("reported = %v, want the disconnect error", reported)
	}

	// Recovery: the next tick moves on to the next pending command.
	mock.FailWrites(nil)
	drainAll(t, d)
	wantWrites(t, mock, "+")
}

func TestDispatch_RunDrainsOnCadence(t *testing.T) {
	d, _, mock := newTestDispatcher(t)
	clock := d.clock.(*fakeClock)

	d.HandleMotion(high(joystick.IntentForward))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, func() bool {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		return len(clock.tickers) == 1
	}, "run never created its ticker")

	clock.mu.Lock()
	ticker := clock.tickers[0]
	clock.mu.Unlock()

	for i := 0; i < 3; i++ {
		ticker.tick()
	}
	waitFor(t, func() bool { return d.Stats().Sent == 3 }, "ticks never drained the queue")

	// One command per tick, strictly.
	if got := d.Stats().Ticks; got != 3 {
		t.Fatalf("ticks = %d, want 3", got)
	}
	wantWrites(t, mock, "F", "+", "+")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}
}

func TestDispatch_QueueOverflowCoalesces(t *testing.T) {
	d, link, mock := newTestDispatcher(t)
	sess := link.sess
	link.setSession(nil) // hold the queue while we overflow it

	cfg := DefaultConfig()
	// Forward in gear 3 is F plus four increments; alternating intents
	// quickly outruns an 8-slot queue.
	d.HandleGear("3")
	for i := 0; i < 4; i++ {
		d.HandleMotion(high(joystick.IntentForward))
		d.HandleMotion(high(joystick.IntentTurnLeft))
	}

	stats := d.Stats()
	if stats.QueueLen != cfg.QueueCapacity {
		t.Fatalf("queue len = %d, want bounded at %d", stats.QueueLen, cfg.QueueCapacity)
	}
	if stats.QueueDropped == 0 {
		t.Fatal("overflow should have coalesced at least one command")
	}

	// The survivors still drain cleanly once a session returns.
	link.setSession(sess)
	drainAll(t, d)
	if got := len(mock.Writes()); got != cfg.QueueCapacity {
		t.Fatalf("drained %d commands, want %d", got, cfg.QueueCapacity)
	}
}
