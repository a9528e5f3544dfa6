package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"everstore/internal/clock"
	"everstore/internal/telemetry"
)

// task is one scheduled deferred call.
type task struct {
	id       uint64
	onCancel func()

	mu    sync.Mutex
	timer clock.Timer
	done  bool // fired or cancelled
}

// cancel stops the task if its timer has not fired. onCancel runs at most once.
func (t *task) cancel() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	timer := t.timer
	t.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if t.onCancel != nil {
		t.onCancel()
	}
}

// pendingTable holds at most one live task per mechanism for one direction.
type pendingTable struct {
	op    string
	clk   clock.Clock
	tasks *xsync.MapOf[string, *task]
	seq   *atomic.Uint64

	// running counts fired tasks that have not returned yet.
	running atomic.Int64
}

func newPendingTable(op string, clk clock.Clock, seq *atomic.Uint64) *pendingTable {
	return &pendingTable{
		op:    op,
		clk:   clk,
		tasks: xsync.NewMapOf[string, *task](),
		seq:   seq,
	}
}

// schedule runs fn after delay unless a later schedule or cancel for the
// same mechanism gets there first. onCancel runs if the task is replaced or
// cancelled before it fires.
func (p *pendingTable) schedule(name string, delay time.Duration, fn func(), onCancel func()) {
	t := &task{id: p.seq.Add(1), onCancel: onCancel}

	var replaced *task
	p.tasks.Compute(name, func(old *task, loaded bool) (*task, bool) {
		if loaded {
			replaced = old
		}
		return t, false
	})
	if replaced != nil {
		replaced.cancel()
		telemetry.DeferredCancelledTotal.With(p.op).Inc()
	}

	timer := p.clk.AfterFunc(delay, func() {
		p.running.Add(1)
		defer p.running.Add(-1)
		if !p.claim(name, t) {
			return
		}
		fn()
	})

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		timer.Stop()
		return
	}
	t.timer = timer
	t.mu.Unlock()
}

// claim removes t from the table if it is still the current task for name.
// Only the claimed task may run.
func (p *pendingTable) claim(name string, t *task) bool {
	current := false
	p.tasks.Compute(name, func(old *task, loaded bool) (*task, bool) {
		if loaded && old == t {
			current = true
			return nil, true
		}
		return old, !loaded
	})
	if !current {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// cancel discards the pending task for name, if any.
func (p *pendingTable) cancel(name string) bool {
	var removed *task
	p.tasks.Compute(name, func(old *task, loaded bool) (*task, bool) {
		if loaded {
			removed = old
		}
		return nil, true
	})
	if removed == nil {
		return false
	}
	removed.cancel()
	telemetry.DeferredCancelledTotal.With(p.op).Inc()
	return true
}

// len returns the number of pending tasks.
func (p *pendingTable) len() int {
	return p.tasks.Size()
}

// busy returns the number of tasks that are pending or still running.
// A task is counted as running before it leaves the table, so it is never
// missed in between.
func (p *pendingTable) busy() int {
	return int(p.running.Load()) + p.tasks.Size()
}
