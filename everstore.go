// Package everstore persists one key/value pair redundantly across many
// independent storage mechanisms and recovers it by majority vote across
// whichever mechanisms still hold it.
//
//	s, err := everstore.New(cfg)
//	if err != nil { ... }
//	defer s.Close()
//
//	_ = s.Set(ctx, "uid", "12345")
//	v, ok, _ := s.GetRealtime(ctx, "uid")
package everstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"everstore/internal/clock"
	"everstore/internal/config"
	"everstore/internal/coordinator"
	"everstore/internal/mechanism"
	"everstore/internal/node"
	"everstore/internal/repair"
	"everstore/internal/telemetry"
)

// ErrInvalidKey is returned for an empty key.
var ErrInvalidKey = errors.New("everstore: key must not be empty")

const flushInterval = 5 * time.Millisecond

// Result is what Get delivers to its callback.
type Result = coordinator.Result

// Mechanism is the adapter interface every storage mechanism implements.
type Mechanism = mechanism.Mechanism

// MechanismInfo describes one registered mechanism.
type MechanismInfo struct {
	Name        string
	Active      bool
	Synchronous bool
	// Available is false when the backend is not configured or failed to open.
	Available bool
}

type customMechanism struct {
	name        string
	synchronous bool
	active      bool
	mech        mechanism.Mechanism
}

type options struct {
	logger     zerolog.Logger
	clock      clock.Clock
	custom     []customMechanism
	noDefaults bool
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock replaces the clock used for deferred calls.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithMechanism registers a custom mechanism. A custom mechanism named like
// a built-in one replaces it.
func WithMechanism(name string, synchronous, active bool, m Mechanism) Option {
	return func(o *options) {
		o.custom = append(o.custom, customMechanism{name: name, synchronous: synchronous, active: active, mech: m})
	}
}

// WithoutDefaultMechanisms registers only mechanisms given via WithMechanism.
func WithoutDefaultMechanisms() Option {
	return func(o *options) { o.noDefaults = true }
}

// Store is the caller-facing handle. It is safe for concurrent use.
type Store struct {
	cfg       config.Config
	logger    zerolog.Logger
	reg       *mechanism.Registry
	coord     *coordinator.Coordinator
	clientMgr *node.ClientManager
	closers   []namedCloser
}

// New builds a store from cfg: it opens every configured backend, registers
// the mechanisms in their fixed order and applies cfg.Enable/cfg.Disable.
func New(cfg config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{logger: zerolog.Nop(), clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Prometheus.Enabled {
		telemetry.InitializeTelemetry()
	}

	s := &Store{
		cfg:       cfg,
		logger:    o.logger,
		reg:       mechanism.NewRegistry(),
		clientMgr: node.NewClientManager(),
	}
	versions := repair.NewVersions()

	custom := make(map[string]customMechanism, len(o.custom))
	for _, c := range o.custom {
		if _, dup := custom[c.name]; dup {
			return nil, fmt.Errorf("%w: %s", mechanism.ErrDuplicateMechanism, c.name)
		}
		custom[c.name] = c
	}

	if !o.noDefaults {
		for _, d := range mechanism.Defaults {
			desc := mechanism.Descriptor{Name: d.Name, Active: d.Active, Synchronous: d.Synchronous}
			if c, ok := custom[d.Name]; ok {
				desc = mechanism.Descriptor{Name: c.name, Active: c.active, Synchronous: c.synchronous, Mechanism: c.mech}
				delete(custom, d.Name)
			} else {
				desc.Mechanism = s.openMechanism(d.Name, o.clock)
			}
			if err := s.reg.Register(desc); err != nil {
				s.Close()
				return nil, err
			}
		}
	}

	for _, c := range o.custom {
		if _, pending := custom[c.name]; !pending {
			continue
		}
		delete(custom, c.name)
		desc := mechanism.Descriptor{Name: c.name, Active: c.active, Synchronous: c.synchronous, Mechanism: c.mech}
		if err := s.reg.Register(desc); err != nil {
			s.Close()
			return nil, err
		}
	}

	var repairer coordinator.Repairer
	if cfg.Respawn {
		repairer = repair.NewRepairer(repair.RegistryLookup(s.reg), versions, cfg.DeferredTimeout, o.logger)
	}

	s.coord = coordinator.New(s.reg, coordinator.Options{
		Clock:           o.clock,
		Logger:          o.logger,
		DeferDelay:      cfg.DeferDelay,
		PollInterval:    cfg.PollInterval,
		WaitMax:         cfg.WaitMax,
		DeferredTimeout: cfg.DeferredTimeout,
		Repairer:        repairer,
		Versions:        versions,
	})

	s.Configure(cfg.Enable, cfg.Disable)
	return s, nil
}

// Set writes value under key into every active mechanism. Mechanism
// failures are logged, never returned.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.coord.Write(ctx, key, value, false)
	return nil
}

// SetRealtime writes value under key into the synchronous mechanisms only.
// Deferred writes still pending from an earlier Set are dropped.
func (s *Store) SetRealtime(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.coord.Write(ctx, key, value, true)
	return nil
}

// Flush waits until every deferred write has been made, or ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	return s.coord.FlushWrites(ctx, flushInterval)
}

// Get reads key from every active mechanism, including deferred ones, and
// delivers the vote to cb once all have answered or WaitMax has passed.
// A nil cb still warms the deferred mechanisms.
func (s *Store) Get(ctx context.Context, key string, cb func(Result)) error {
	if key == "" {
		return ErrInvalidKey
	}
	var callback coordinator.Callback
	if cb != nil {
		callback = cb
	}
	s.coord.Read(ctx, key, callback, false)
	return nil
}

// GetRealtime reads key from the synchronous mechanisms only and returns
// the majority value.
func (s *Store) GetRealtime(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrInvalidKey
	}
	v, ok := s.coord.Read(ctx, key, nil, true)
	return v, ok, nil
}

// Configure activates the mechanisms matching enable, then deactivates the
// ones matching disable. Entries may be glob patterns; unknown names are
// ignored.
func (s *Store) Configure(enable, disable []string) {
	for _, ignored := range s.reg.Configure(enable, disable) {
		s.logger.Debug().Str("entry", ignored).Msg("Ignoring unknown mechanism")
	}
}

// Mechanisms returns the registered mechanism names in iteration order.
func (s *Store) Mechanisms() []string {
	return s.reg.Names()
}

// Describe returns every registered mechanism with its state.
func (s *Store) Describe() []MechanismInfo {
	all := s.reg.All()
	out := make([]MechanismInfo, 0, len(all))
	for _, d := range all {
		out = append(out, MechanismInfo{
			Name:        d.Name,
			Active:      d.Active,
			Synchronous: d.Synchronous,
			Available:   d.Usable(),
		})
	}
	return out
}

// Close cancels pending deferred calls and releases every backend.
func (s *Store) Close() error {
	if s.coord != nil {
		s.coord.Cancel()
	}

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	s.closers = nil

	if err := s.clientMgr.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
