package rover

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roverpad/go-rover/pkg/joystick"
	"github.com/roverpad/go-rover/pkg/transport"
)

// Link is what the dispatcher needs from the connection manager: a
// borrowed session for the duration of one write, and somewhere to
// report write failures for disconnect classification. The dispatcher
// never retains the session past a single write.
type Link interface {
	Session() transport.Session
	ReportWriteFailure(err error)
}

// Dispatcher converts motion intents and control events into a bounded
// outbound command stream at a fixed cadence. Producers (the input
// side) and the drain loop only share the command queue.
//
// Direction commands are edge-triggered: an unchanged intent enqueues
// nothing, and each stop event emits exactly one Stop token no matter
// how many ticks elapse while stopped.
type Dispatcher struct {
	link   Link
	cfg    Config
	logger *slog.Logger
	clock  Clock

	queue *commandQueue

	mu         sync.Mutex
	gear       Gear
	lastIntent joystick.Intent
	moving     bool

	ticks   atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher draining through the given link.
func NewDispatcher(link Link, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		link:   link,
		cfg:    cfg,
		logger: logger,
		clock:  SystemClock(),
		queue:  newCommandQueue(cfg.QueueCapacity),
		gear:   cfg.InitialGear,
	}
}

// Gear returns the currently selected gear.
func (d *Dispatcher) Gear() Gear {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gear
}

// HandleMotion consumes a classified joystick motion. A stop intent
// routes to HandleStop; any other intent is compared against the last
// dispatched one and enqueues a direction token plus its table-driven
// speed increments only on change.
func (d *Dispatcher) HandleMotion(mo joystick.Motion) {
	if mo.Intent == joystick.IntentStop {
		d.HandleStop()
		return
	}

	d.mu.Lock()
	if d.moving && mo.Intent == d.lastIntent {
		d.mu.Unlock()
		return
	}
	d.lastIntent = mo.Intent
	d.moving = true
	gear := d.gear
	d.mu.Unlock()

	token, ok := directionToken(mo.Intent)
	if !ok {
		return
	}
	d.enqueue(token, CategoryDirection)
	for i := 0; i < d.cfg.incrementCount(gear, mo); i++ {
		d.enqueue(TokenSpeedUp, CategorySpeed)
	}
}

// HandleStop enqueues a single Stop token and clears edge-tracking
// state. Repeated stop events while already stopped enqueue nothing.
func (d *Dispatcher) HandleStop() {
	d.mu.Lock()
	if !d.moving {
		d.mu.Unlock()
		return
	}
	d.moving = false
	d.lastIntent = joystick.IntentStop
	d.mu.Unlock()

	d.enqueue(TokenStop, CategoryDirection)
}

// HandleGear switches gears: a Stop token first so momentum does not
// carry into the new gear, then the gear's speed ceiling. Edge tracking
// resets, so the next intent re-emits its direction token even if
// unchanged.
func (d *Dispatcher) HandleGear(gear Gear) {
	speed, ok := d.cfg.SpeedCeiling[gear]
	if !ok {
		d.logger.Warn("unknown gear ignored", "gear", string(gear))
		return
	}

	d.mu.Lock()
	d.gear = gear
	d.moving = false
	d.lastIntent = joystick.IntentStop
	d.mu.Unlock()

	d.enqueue(TokenStop, CategoryDirection)
	d.enqueue(TokenSpeedMax(speed), CategoryControl)
}

// HandleClaw enqueues a claw token. Independent of direction and gear
// state.
func (d *Dispatcher) HandleClaw(open bool) {
	token := TokenClawClose
	if open {
		token = TokenClawOpen
	}
	d.enqueue(token, CategoryControl)
}

// Prime arms the dispatcher for a fresh session: the queue is cleared,
// edge tracking resets, and the session-reset token goes out before the
// current gear's speed ceiling.
func (d *Dispatcher) Prime() {
	d.mu.Lock()
	d.moving = false
	d.lastIntent = joystick.IntentStop
	gear := d.gear
	d.mu.Unlock()

	d.queue.clear()
	d.enqueue(TokenReset, CategoryControl)
	if speed, ok := d.cfg.SpeedCeiling[gear]; ok {
		d.enqueue(TokenSpeedMax(speed), CategoryControl)
	}
}

// Reset clears the queue and edge-tracking state. Called when the
// session goes away; stale motion commands are not worth replaying into
// a future session.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.moving = false
	d.lastIntent = joystick.IntentStop
	d.mu.Unlock()
	d.queue.clear()
}

// Run drains the queue at the configured cadence until ctx ends. The
// cadence is driven by the clock, not by input arrival, which decouples
// the UI sampling rate from the link write rate.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.cfg.DispatchPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			d.tick(ctx)
		}
	}
}

// tick performs one drain step: at most one command is written. With no
// session available nothing is popped — the queue stays intact (and
// bounded) for the next tick. A failed write is never retried here; the
// error goes to the link for disconnect classification and the command
// is dropped.
func (d *Dispatcher) tick(ctx context.Context) {
	d.ticks.Add(1)

	sess := d.link.Session()
	if sess == nil {
		return
	}
	cmd, ok := d.queue.pop()
	if !ok {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, d.cfg.WriteTimeout)
	err := sess.Write(wctx, []byte(cmd.Token))
	cancel()

	if err != nil {
		d.dropped.Add(1)
		d.logger.Debug("command dropped", "token", cmd.Token, "error", err)
		d.link.ReportWriteFailure(err)
		return
	}
	d.sent.Add(1)
}

func (d *Dispatcher) enqueue(token string, cat Category) {
	d.queue.push(Command{Token: token, Category: cat, EnqueuedAt: d.clock.Now()})
}

// Stats is a diagnostics snapshot of the dispatcher.
type Stats struct {
	Ticks        uint64 `json:"ticks"`
	Sent         uint64 `json:"sent"`
	Dropped      uint64 `json:"dropped"`
	QueueLen     int    `json:"queue_len"`
	QueueDropped uint64 `json:"queue_dropped"`
}

// Stats returns current dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Ticks:        d.ticks.Load(),
		Sent:         d.sent.Load(),
		Dropped:      d.dropped.Load(),
		QueueLen:     d.queue.len(),
		QueueDropped: d.queue.droppedCount(),
	}
}
