package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"everstore/internal/mechanism"
	"everstore/internal/telemetry"
)

// Repairer rewrites a winning value into stale mechanisms.
//
// A repair never outlives a newer write of the same key: it is skipped when
// versions shows a write since the read it was planned from, and a write
// that landed while the repair was in flight is written again on top of it.
type Repairer struct {
	// lookup returns the mechanism registered under name
	lookup   func(name string) (mechanism.Mechanism, bool)
	versions *Versions
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewRepairer creates a new repairer. versions must be the table the
// writer bumps; nil disables the superseded-write checks.
func NewRepairer(lookup func(name string) (mechanism.Mechanism, bool), versions *Versions, timeout time.Duration, logger zerolog.Logger) *Repairer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Repairer{
		lookup:   lookup,
		versions: versions,
		timeout:  timeout,
		logger:   logger.With().Str("component", "repair").Logger(),
	}
}

// RegistryLookup adapts a registry to the lookup function NewRepairer takes.
// Unusable descriptors are reported as missing.
func RegistryLookup(reg *mechanism.Registry) func(name string) (mechanism.Mechanism, bool) {
	return func(name string) (mechanism.Mechanism, bool) {
		d, ok := reg.Get(name)
		if !ok || !d.Usable() {
			return nil, false
		}
		return d.Mechanism, true
	}
}

// Repair asynchronously writes winner under key into every stale mechanism.
// since is the generation of key when the read started.
// This is fire-and-forget: it logs errors but does not block or retry.
func (r *Repairer) Repair(key, winner string, stale []string, since uint64) {
	if len(stale) == 0 {
		return
	}

	go func() {
		defer func() {
			if err := recover(); err != nil {
				r.logger.Error().Str("key", key).Interface("panic", err).Msg("Respawn panic")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		r.logger.Debug().Str("key", key).Strs("stale", stale).Msg("Respawn triggered")

		repaired, failed, skipped := 0, 0, 0
		for _, name := range stale {
			if _, _, newer := r.newerWrite(key, since); newer {
				telemetry.RespawnTotal.With("superseded").Inc()
				skipped++
				continue
			}
			if err := r.repairOne(ctx, name, key, winner, since); err != nil {
				r.logger.Warn().Err(err).Str("mechanism", name).Str("key", key).Msg("Respawn failed")
				telemetry.RespawnTotal.With("error").Inc()
				failed++
				continue
			}
			telemetry.RespawnTotal.With("ok").Inc()
			repaired++
		}

		r.logger.Debug().
			Str("key", key).
			Int("repaired", repaired).
			Int("failed", failed).
			Int("superseded", skipped).
			Msg("Respawn completed")
	}()
}

// repairOne writes winner into a single mechanism, containing panics. If a
// newer write of key happened while the mechanism was being written, the
// newest value is written again until no write overlaps.
func (r *Repairer) repairOne(ctx context.Context, name, key, winner string, since uint64) (err error) {
	m, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("mechanism %s not available", name)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mechanism %s panicked: %v", name, p)
		}
	}()

	value, baseline := winner, since
	for {
		if err := m.Write(ctx, key, value); err != nil {
			return err
		}
		gen, latest, newer := r.newerWrite(key, baseline)
		if !newer {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("restore newer value: %w", err)
		}
		r.logger.Debug().Str("mechanism", name).Str("key", key).Msg("Respawn overlapped a write, restoring newest value")
		value, baseline = latest, gen
	}
}

// newerWrite reports whether key was written after generation since, and
// the generation and value of the newest write.
func (r *Repairer) newerWrite(key string, since uint64) (uint64, string, bool) {
	if r.versions == nil {
		return since, "", false
	}
	gen, value := r.versions.Latest(key)
	return gen, value, gen != since
}
