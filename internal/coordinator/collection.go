package coordinator

import (
	"sync"
	"time"

	"everstore/internal/quorum"
	"everstore/internal/repair"
	"everstore/internal/telemetry"
)

// collection gathers the values of one async read until it is delivered.
type collection struct {
	c        *Coordinator
	key      string
	since    uint64
	cb       Callback
	started  time.Time
	observed []repair.Observation

	mu        sync.Mutex
	values    []string
	sources   map[string]string
	waiting   int
	delivered bool
}

func (c *Coordinator) openCollection(key string, since uint64, cb Callback, values []string, sources map[string]string, observed []repair.Observation, waiting int) *collection {
	return &collection{
		c:        c,
		key:      key,
		since:    since,
		cb:       cb,
		started:  c.clk.Now(),
		observed: observed,
		values:   append([]string(nil), values...),
		sources:  sources,
		waiting:  waiting,
	}
}

// resolve records the outcome of one deferred read. A failed or cancelled
// read resolves without contributing a value.
func (col *collection) resolve(name string, out outcome) {
	col.mu.Lock()
	defer col.mu.Unlock()

	if col.delivered {
		return
	}
	if col.waiting > 0 {
		col.waiting--
	}
	if out.err == nil && out.found {
		col.values = append(col.values, out.value)
		col.sources[name] = out.value
	}
}

func (col *collection) startPolling() {
	col.mu.Lock()
	defer col.mu.Unlock()
	col.c.clk.AfterFunc(col.c.opts.PollInterval, col.tick)
}

// tick delivers when complete or out of time, otherwise polls again.
func (col *collection) tick() {
	col.mu.Lock()
	if col.delivered {
		col.mu.Unlock()
		return
	}

	trigger := ""
	switch {
	case col.waiting == 0:
		trigger = "complete"
	case col.c.clk.Now().Sub(col.started) >= col.c.opts.WaitMax:
		trigger = "timeout"
	}

	if trigger == "" {
		col.c.clk.AfterFunc(col.c.opts.PollInterval, col.tick)
		col.mu.Unlock()
		return
	}

	col.delivered = true
	vote := quorum.Count(col.values)
	sources := make(map[string]string, len(col.sources))
	for k, v := range col.sources {
		sources[k] = v
	}
	col.mu.Unlock()

	telemetry.CallbackDeliveriesTotal.With(trigger).Inc()
	telemetry.TallyCandidates.Observe(float64(len(vote.Candidates)))
	col.c.logger.Debug().
		Str("key", col.key).
		Str("trigger", trigger).
		Int("values", vote.Total()).
		Bool("found", vote.Found).
		Msg("Delivering read")

	col.c.respawn(col.key, col.since, vote, col.observed)
	col.cb(Result{
		Value:      vote.Winner,
		Found:      vote.Found,
		Candidates: vote.Candidates,
		Sources:    sources,
	})
}
