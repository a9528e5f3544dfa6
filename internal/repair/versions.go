package repair

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

type version struct {
	gen   uint64
	value string
}

// Versions tracks the newest write to each key. Generations come from one
// counter, so they only grow and never repeat across keys.
type Versions struct {
	seq     atomic.Uint64
	entries *xsync.MapOf[string, version]
}

// NewVersions creates an empty version table.
func NewVersions() *Versions {
	return &Versions{entries: xsync.NewMapOf[string, version]()}
}

// Bump records a write of value under key and returns its generation.
func (v *Versions) Bump(key, value string) uint64 {
	gen := v.seq.Add(1)
	v.entries.Compute(key, func(old version, loaded bool) (version, bool) {
		if loaded && old.gen > gen {
			return old, false
		}
		return version{gen: gen, value: value}, false
	})
	return gen
}

// Latest returns the generation of the newest write to key and its value.
// A key never written reports generation 0. A nil table reports 0 for all.
func (v *Versions) Latest(key string) (uint64, string) {
	if v == nil {
		return 0, ""
	}
	cur, ok := v.entries.Load(key)
	if !ok {
		return 0, ""
	}
	return cur.gen, cur.value
}
