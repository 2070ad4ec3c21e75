package precognition

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// manualClock is a Clock that only moves when Advance is called. Due
// timers fire synchronously inside Advance, in deadline order.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock { return &manualClock{} }

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Now returns the elapsed manual time.
func (c *manualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, firing every timer that becomes due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.dueLocked(target)
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = due.at
		due.fired = true
		c.mu.Unlock()

		due.fn()
	}
}

// AdvanceTo moves the clock to the absolute manual time at.
func (c *manualClock) AdvanceTo(at time.Duration) {
	c.Advance(at - c.Now())
}

func (c *manualClock) dueLocked(target time.Duration) *manualTimer {
	var pending []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= target {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].at < pending[j].at })
	return pending[0]
}

///////////////////////////////////////////////////////////////////////////////
// Shared fixtures
///////////////////////////////////////////////////////////////////////////////

// precognitiveError builds the error a transport returns for a precognitive
// validation failure with the given JSON body.
func precognitiveError(cfg Config, body string) *ResponseError {
	h := http.Header{}
	h.Set(cfg.PrecognitiveHeader, HeaderValueTrue)
	h.Set(contentTypeHeader, ContentTypeApplicationJSON)
	return NewResponseError(cfg.ErrorStatusCode, h, []byte(body))
}

func flatConfig() Config {
	cfg := DefaultConfig()
	cfg.BackendValidation = true
	cfg.EnableFlatClientErrorParser = true
	return cfg
}
