package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"everstore/internal/clock"
	"everstore/internal/mechanism"
	"everstore/internal/quorum"
	"everstore/internal/repair"
	"everstore/internal/telemetry"
)

const (
	opRead  = "read"
	opWrite = "write"
)

// Repairer restores a winning value into stale mechanisms. since is the
// write generation of key when the read started.
type Repairer interface {
	Repair(key, winner string, stale []string, since uint64)
}

// Options configures a Coordinator. Zero durations fall back to defaults.
type Options struct {
	Clock  clock.Clock
	Logger zerolog.Logger

	// DeferDelay is how long a deferred call waits before running.
	DeferDelay time.Duration
	// PollInterval is how often an async read checks for completion.
	PollInterval time.Duration
	// WaitMax bounds how long an async read waits for deferred reads.
	WaitMax time.Duration
	// DeferredTimeout bounds a single deferred call.
	DeferredTimeout time.Duration

	// Repairer, if set, is handed the stale synchronous mechanisms after
	// every read that found a winner.
	Repairer Repairer
	// Versions is bumped by every Write. Share it with the Repairer so
	// repairs never undo a newer write.
	Versions *repair.Versions
}

// Result is what an async read delivers to its callback.
type Result struct {
	Value      string
	Found      bool
	Candidates []quorum.Candidate
	// Sources maps each mechanism that returned a value to that value.
	Sources map[string]string
}

// Callback receives the outcome of an async read.
type Callback func(Result)

// Coordinator drives reads and writes across a mechanism registry.
type Coordinator struct {
	reg    *mechanism.Registry
	clk    clock.Clock
	logger zerolog.Logger
	opts   Options

	seq    atomic.Uint64
	reads  *pendingTable
	writes *pendingTable
}

// New creates a coordinator over reg.
func New(reg *mechanism.Registry, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.DeferDelay <= 0 {
		opts.DeferDelay = time.Millisecond
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Millisecond
	}
	if opts.WaitMax <= 0 {
		opts.WaitMax = time.Second
	}
	if opts.DeferredTimeout <= 0 {
		opts.DeferredTimeout = 2 * time.Second
	}
	if opts.Versions == nil {
		opts.Versions = repair.NewVersions()
	}

	c := &Coordinator{
		reg:    reg,
		clk:    opts.Clock,
		logger: opts.Logger.With().Str("component", "coordinator").Logger(),
		opts:   opts,
	}
	c.reads = newPendingTable(opRead, c.clk, &c.seq)
	c.writes = newPendingTable(opWrite, c.clk, &c.seq)
	return c
}

// outcome is the result of one guarded mechanism call.
type outcome struct {
	value string
	found bool
	err   error
}

// invoke calls one mechanism operation, converting panics into errors and
// recording metrics. It is the only place mechanisms are called from.
func (c *Coordinator) invoke(ctx context.Context, d mechanism.Descriptor, op, key, value string) (out outcome) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			out = outcome{err: fmt.Errorf("mechanism %s panicked: %v", d.Name, p)}
		}

		result := "ok"
		switch {
		case out.err != nil:
			result = "error"
			c.logger.Error().Err(out.err).
				Str("mechanism", d.Name).
				Str("op", op).
				Str("key", key).
				Msg("Mechanism call failed")
		case op == opRead && !out.found:
			result = "miss"
		}
		telemetry.MechanismOpsTotal.With(d.Name, op, result).Inc()
		telemetry.MechanismOpSeconds.With(d.Name, op).Observe(time.Since(start).Seconds())
	}()

	switch op {
	case opRead:
		v, found, err := d.Mechanism.Read(ctx, key)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{value: v, found: found}
	default:
		return outcome{err: d.Mechanism.Write(ctx, key, value)}
	}
}

// deferredContext returns a detached context bounded by DeferredTimeout.
func (c *Coordinator) deferredContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opts.DeferredTimeout)
}

// Write stores value under key in every active mechanism. Synchronous
// mechanisms are written before Write returns; deferred ones are scheduled
// unless realtimeOnly is set, in which case they are skipped and any write
// still pending for them is dropped. Failures are logged and never returned.
func (c *Coordinator) Write(ctx context.Context, key, value string, realtimeOnly bool) {
	c.logger.Debug().Str("key", key).Bool("realtime", realtimeOnly).Msg("set")
	c.opts.Versions.Bump(key, value)

	for _, d := range c.reg.Active() {
		c.writes.cancel(d.Name)

		if !d.Synchronous && realtimeOnly {
			continue
		}

		if !d.Usable() {
			c.logger.Debug().Str("mechanism", d.Name).Msg("Mechanism not available, skipping write")
			continue
		}

		if d.Synchronous {
			if out := c.invoke(ctx, d, opWrite, key, value); out.err == nil {
				c.logger.Debug().Str("mechanism", d.Name).Str("key", key).Msg("Wrote value")
			}
			continue
		}

		c.writes.schedule(d.Name, c.opts.DeferDelay, func() {
			dctx, cancel := c.deferredContext()
			defer cancel()
			if out := c.invoke(dctx, d, opWrite, key, value); out.err == nil {
				c.logger.Debug().Str("mechanism", d.Name).Str("key", key).Msg("Wrote value (deferred)")
			}
		}, nil)
	}
}

// Read collects key from every active mechanism.
//
// With realtimeOnly, only synchronous mechanisms are consulted and the vote
// over their values is returned. Otherwise Read returns ("", false) at once
// and, if cb is non-nil, delivers the vote over synchronous and deferred
// values to cb exactly once.
func (c *Coordinator) Read(ctx context.Context, key string, cb Callback, realtimeOnly bool) (string, bool) {
	c.logger.Debug().Str("key", key).Bool("realtime", realtimeOnly).Msg("get")
	since, _ := c.opts.Versions.Latest(key)

	active := c.reg.Active()
	values := make([]string, 0, len(active))
	observed := make([]repair.Observation, 0, len(active))
	sources := make(map[string]string, len(active))
	var deferred []mechanism.Descriptor

	for _, d := range active {
		c.reads.cancel(d.Name)

		if !d.Usable() {
			c.logger.Debug().Str("mechanism", d.Name).Msg("Mechanism not available, skipping read")
			continue
		}

		if !d.Synchronous {
			if !realtimeOnly {
				deferred = append(deferred, d)
			}
			continue
		}

		out := c.invoke(ctx, d, opRead, key, "")
		if out.err != nil {
			continue
		}
		observed = append(observed, repair.Observation{Mechanism: d.Name, Value: out.value, Found: out.found})
		if out.found {
			c.logger.Debug().Str("mechanism", d.Name).Str("key", key).Msg("Read value")
			values = append(values, out.value)
			sources[d.Name] = out.value
		}
	}

	if realtimeOnly {
		vote := quorum.Count(values)
		telemetry.TallyCandidates.Observe(float64(len(vote.Candidates)))
		c.respawn(key, since, vote, observed)
		return vote.Winner, vote.Found
	}

	var coll *collection
	if cb != nil {
		coll = c.openCollection(key, since, cb, values, sources, observed, len(deferred))
	}

	for _, d := range deferred {
		var onCancel func()
		if coll != nil {
			onCancel = func() { coll.resolve(d.Name, outcome{}) }
		}
		c.reads.schedule(d.Name, c.opts.DeferDelay, func() {
			dctx, cancel := c.deferredContext()
			defer cancel()
			out := c.invoke(dctx, d, opRead, key, "")
			if out.found {
				c.logger.Debug().Str("mechanism", d.Name).Str("key", key).Msg("Read value (deferred)")
			}
			if coll != nil {
				coll.resolve(d.Name, out)
			}
		}, onCancel)
	}

	if coll != nil {
		coll.startPolling()
	}

	return "", false
}

// respawn hands stale synchronous mechanisms to the repairer.
func (c *Coordinator) respawn(key string, since uint64, vote quorum.Vote, observed []repair.Observation) {
	if c.opts.Repairer == nil || !vote.Found {
		return
	}
	stale := repair.Reconcile(vote.Winner, observed)
	if len(stale) == 0 {
		return
	}
	c.opts.Repairer.Repair(key, vote.Winner, stale, since)
}

// PendingReads returns the number of deferred reads not yet fired.
func (c *Coordinator) PendingReads() int {
	return c.reads.len()
}

// PendingWrites returns the number of deferred writes not yet fired.
func (c *Coordinator) PendingWrites() int {
	return c.writes.len()
}

// FlushWrites blocks until no deferred write is pending or running, polling
// every interval, or until ctx is done.
func (c *Coordinator) FlushWrites(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for c.writes.busy() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush deferred writes: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Cancel discards every pending deferred call.
func (c *Coordinator) Cancel() {
	for _, name := range c.reg.Names() {
		c.reads.cancel(name)
		c.writes.cancel(name)
	}
}
