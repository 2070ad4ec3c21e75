package precognition

import (
	"sync"
	"time"
)

///////////////////////////////////////////////////////////////////////////////
// Clock
///////////////////////////////////////////////////////////////////////////////

// Clock schedules deferred work. The real clock is backed by time.AfterFunc;
// tests swap in a manual one.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

///////////////////////////////////////////////////////////////////////////////
// Debouncer
///////////////////////////////////////////////////////////////////////////////

// DebounceOpts configures a Debouncer. When neither edge is enabled the
// trailing edge is used.
type DebounceOpts struct {
	Wait     time.Duration
	Leading  bool  // fire on the first call of a quiet period
	Trailing bool  // fire with the latest arguments once the window elapses
	Clock    Clock // nil means the real clock
}

// Debouncer coalesces bursts of calls into at most one leading and one
// trailing invocation per window. Every call inside a window restarts it,
// and only the arguments of the most recent call survive to the trailing
// edge. Invocations run on their own goroutine; Wait blocks until all of
// them have returned.
//
// It does not cancel work that already started: only scheduling is
// coalesced.
type Debouncer[A any] struct {
	fn   func(A)
	opts DebounceOpts

	mu         sync.Mutex
	timer      Timer
	timerGen   uint64 // bumped whenever the current timer is replaced or dropped
	pending    A
	hasPending bool

	inflight int
	idle     *sync.Cond // signalled on d.mu when inflight drops to zero
}

// NewDebouncer binds fn to a debouncer configured by opts.
func NewDebouncer[A any](fn func(A), opts DebounceOpts) *Debouncer[A] {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if !opts.Leading && !opts.Trailing {
		opts.Trailing = true
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	d := &Debouncer[A]{fn: fn, opts: opts}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Call triggers the debounced function with arg.
func (d *Debouncer[A]) Call(arg A) {
	d.mu.Lock()
	defer d.mu.Unlock()

	quiet := d.timer == nil
	if !quiet {
		d.timer.Stop()
	}
	d.startTimerLocked()

	if quiet && d.opts.Leading {
		d.clearPendingLocked()
		d.invokeLocked(arg)
		return
	}

	d.pending = arg
	d.hasPending = true
}

// Pending reports whether a trailing invocation is scheduled.
func (d *Debouncer[A]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasPending && d.opts.Trailing
}

// Cancel drops the scheduled trailing invocation, if any, and ends the
// current window.
func (d *Debouncer[A]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.clearPendingLocked()
}

// Flush runs the scheduled trailing invocation now instead of waiting for
// the window to elapse.
func (d *Debouncer[A]) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return
	}
	d.stopTimerLocked()

	if d.hasPending && d.opts.Trailing {
		arg := d.pending
		d.clearPendingLocked()
		d.invokeLocked(arg)
	}
}

// Wait blocks until no invocation is running. It may be called
// concurrently with Call.
func (d *Debouncer[A]) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.inflight > 0 {
		d.idle.Wait()
	}
}

func (d *Debouncer[A]) startTimerLocked() {
	d.timerGen++
	gen := d.timerGen
	d.timer = d.opts.Clock.AfterFunc(d.opts.Wait, func() { d.fire(gen) })
}

func (d *Debouncer[A]) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerGen++
}

func (d *Debouncer[A]) clearPendingLocked() {
	var zero A
	d.pending = zero
	d.hasPending = false
}

// fire is the trailing edge. gen guards against a timer that was replaced
// after it had already started firing.
func (d *Debouncer[A]) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.timerGen {
		return
	}
	d.timer = nil

	if d.opts.Trailing && d.hasPending {
		arg := d.pending
		d.clearPendingLocked()
		d.invokeLocked(arg)
	}
}

func (d *Debouncer[A]) invokeLocked(arg A) {
	d.inflight++
	go func() {
		defer d.done()
		d.fn(arg)
	}()
}

func (d *Debouncer[A]) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	if d.inflight == 0 {
		d.idle.Broadcast()
	}
}
