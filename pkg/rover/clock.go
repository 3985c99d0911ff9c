package rover

import "time"

// Clock abstracts time so retry backoff and the drain cadence are
// observable in tests without real time passing.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the drain loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// systemClock is the wall-clock implementation used outside tests.
type systemClock struct{}

// SystemClock returns the wall-clock Clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }
