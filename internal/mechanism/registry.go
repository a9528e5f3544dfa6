package mechanism

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

var (
	// ErrDuplicateMechanism is returned when a name is registered twice.
	ErrDuplicateMechanism = errors.New("mechanism already registered")
	// ErrEmptyName is returned when registering a descriptor without a name.
	ErrEmptyName = errors.New("mechanism name cannot be empty")
)

// Registry is an insertion-ordered table of mechanisms keyed by name.
// Only the Active flag changes after registration.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Descriptor),
	}
}

// Register appends a descriptor.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMechanism, d.Name)
	}

	entry := d
	r.byName[d.Name] = &entry
	r.order = append(r.order, d.Name)
	return nil
}

// Get returns a snapshot of the named descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// Names returns all mechanism names in registry order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// All returns snapshots of every descriptor in registry order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, *r.byName[name])
	}
	return all
}

// Active returns snapshots of the active descriptors in registry order.
func (r *Registry) Active() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if d := r.byName[name]; d.Active {
			active = append(active, *d)
		}
	}
	return active
}

// SetActive toggles a single mechanism. It reports false for unknown names.
func (r *Registry) SetActive(name string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byName[name]
	if !ok {
		return false
	}
	d.Active = active
	return true
}

// Configure activates every mechanism matched by enable, then deactivates
// every mechanism matched by disable, so disable wins on conflict.
// Entries are names or glob patterns. Entries that match nothing (or do not
// compile) are ignored and returned to the caller.
func (r *Registry) Configure(enable, disable []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ignored []string
	apply := func(entries []string, active bool) {
		for _, entry := range entries {
			matched := 0
			if d, ok := r.byName[entry]; ok {
				d.Active = active
				matched++
			} else if g, err := glob.Compile(entry); err == nil {
				for _, name := range r.order {
					if g.Match(name) {
						r.byName[name].Active = active
						matched++
					}
				}
			}
			if matched == 0 {
				ignored = append(ignored, entry)
			}
		}
	}

	apply(enable, true)
	apply(disable, false)
	return ignored
}
