package precognition

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *callRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *callRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

func TestDebouncer_LeadingAndTrailing(t *testing.T) {
	t.Run("Timeline", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{
			Wait:     time.Second,
			Leading:  true,
			Trailing: true,
			Clock:    clock,
		})

		d.Call("a")
		d.Wait()
		assert.Equal(t, "a", rec.last(), "first call of a quiet period fires immediately")

		clock.AdvanceTo(300 * time.Millisecond)
		d.Call("b")
		d.Wait()
		assert.Equal(t, "a", rec.last())

		clock.AdvanceTo(1500 * time.Millisecond)
		d.Wait()
		assert.Equal(t, "b", rec.last(), "trailing edge fires one window after the last call")

		clock.AdvanceTo(1800 * time.Millisecond)
		d.Wait()
		assert.Equal(t, "b", rec.last())

		d.Call("c")
		d.Wait()
		assert.Equal(t, "c", rec.last(), "a call after the trailing edge is leading again")

		clock.AdvanceTo(2100 * time.Millisecond)
		d.Call("d")
		d.Call("e")
		clock.AdvanceTo(2400 * time.Millisecond)
		d.Wait()
		assert.Equal(t, "c", rec.last())

		clock.AdvanceTo(3400 * time.Millisecond)
		d.Wait()
		assert.Equal(t, "e", rec.last())

		assert.Equal(t, []string{"a", "b", "c", "e"}, rec.snapshot())
	})

	t.Run("BurstFiresLeadingThenLatest", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Leading: true, Trailing: true, Clock: clock})

		d.Call("t0")
		clock.AdvanceTo(100 * time.Millisecond)
		d.Call("t100")
		clock.AdvanceTo(150 * time.Millisecond)
		d.Call("t150")

		clock.AdvanceTo(1149 * time.Millisecond)
		d.Wait()
		assert.Equal(t, []string{"t0"}, rec.snapshot(), "each call restarts the window")

		clock.AdvanceTo(1150 * time.Millisecond)
		d.Wait()
		assert.Equal(t, []string{"t0", "t150"}, rec.snapshot())
	})

	t.Run("SingleCallHasNoTrailingEdge", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Leading: true, Trailing: true, Clock: clock})

		d.Call("only")
		clock.Advance(5 * time.Second)
		d.Wait()
		assert.Equal(t, []string{"only"}, rec.snapshot())
		assert.False(t, d.Pending())
	})
}

func TestDebouncer_TrailingOnly(t *testing.T) {
	t.Run("BurstRunsOnceWithLatestArguments", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Trailing: true, Clock: clock})

		d.Call("t0")
		clock.AdvanceTo(100 * time.Millisecond)
		d.Call("t100")
		clock.AdvanceTo(150 * time.Millisecond)
		d.Call("t150")
		d.Wait()
		assert.Empty(t, rec.snapshot())
		assert.True(t, d.Pending())

		clock.AdvanceTo(1150 * time.Millisecond)
		d.Wait()
		assert.Equal(t, []string{"t150"}, rec.snapshot())
		assert.False(t, d.Pending())
	})

	t.Run("NoEdgeMeansTrailing", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Clock: clock})

		d.Call("x")
		d.Wait()
		assert.Empty(t, rec.snapshot())

		clock.Advance(time.Second)
		d.Wait()
		assert.Equal(t, []string{"x"}, rec.snapshot())
	})
}

func TestDebouncer_CancelAndFlush(t *testing.T) {
	t.Run("CancelDropsTrailingCall", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Trailing: true, Clock: clock})

		d.Call("dropped")
		d.Cancel()
		clock.Advance(2 * time.Second)
		d.Wait()

		assert.Empty(t, rec.snapshot())
		assert.False(t, d.Pending())
	})

	t.Run("CancelEndsWindow", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Leading: true, Trailing: true, Clock: clock})

		d.Call("a")
		d.Cancel()
		d.Call("b")
		d.Wait()

		assert.Equal(t, []string{"a", "b"}, rec.snapshot())
	})

	t.Run("FlushRunsPendingNow", func(t *testing.T) {
		clock := newManualClock()
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Trailing: true, Clock: clock})

		d.Call("now")
		d.Flush()
		d.Wait()
		assert.Equal(t, []string{"now"}, rec.snapshot())

		clock.Advance(2 * time.Second)
		d.Wait()
		assert.Equal(t, []string{"now"}, rec.snapshot(), "the flushed timer must not fire again")
	})

	t.Run("FlushWithoutPendingIsNoop", func(t *testing.T) {
		rec := &callRecorder{}
		d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Clock: newManualClock()})

		d.Flush()
		d.Wait()
		assert.Empty(t, rec.snapshot())
	})
}

func TestDebouncer_RealClock(t *testing.T) {
	done := make(chan string, 1)
	d := NewDebouncer(func(v string) { done <- v }, DebounceOpts{Wait: 10 * time.Millisecond, Trailing: true})

	d.Call("late")

	select {
	case v := <-done:
		require.Equal(t, "late", v)
	case <-time.After(2 * time.Second):
		t.Fatal("trailing call never fired")
	}
	d.Wait()
}

func TestDebouncer_WaitConcurrentWithCall(t *testing.T) {
	rec := &callRecorder{}
	d := NewDebouncer(rec.record, DebounceOpts{Wait: time.Second, Leading: true, Clock: newManualClock()})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				d.Wait()
			}
		}
	}()

	var callers sync.WaitGroup
	for i := 0; i < 50; i++ {
		callers.Add(1)
		go func() {
			defer callers.Done()
			d.Call("burst")
			d.Cancel()
		}()
	}
	callers.Wait()
	close(stop)
	wg.Wait()

	d.Wait()
	assert.NotEmpty(t, rec.snapshot())
	assert.LessOrEqual(t, len(rec.snapshot()), 50)
}
