package rover

import (
	"sync"
	"time"
)

// fakeClock makes backoff waits and drain ticks observable without real
// time passing. By default After fires immediately and records the
// requested duration; with block set, After parks until release is
// called.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waits   []time.Duration
	block   bool
	pending []chan time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	if c.block {
		c.pending = append(c.pending, ch)
	} else {
		ch <- c.now
	}
	return ch
}

// release fires every pending After channel.
func (c *fakeClock) release() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	now := c.now
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- now
	}
}

func (c *fakeClock) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *fakeClock) recordedWaits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 16)}
	c.tickers = append(c.tickers, t)
	return t
}

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }

func (t *fakeTicker) tick() { t.ch <- time.Now() }
