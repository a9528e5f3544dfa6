package storage

import (
	"context"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// globalMap backs every GlobalStore in the process.
var globalMap = xsync.NewMapOf[string, string]()

// GlobalStore keeps values in a process-wide map shared by every Store.
type GlobalStore struct {
	m *xsync.MapOf[string, string]
}

// NewGlobalStore returns a view of the process-wide map.
func NewGlobalStore() *GlobalStore {
	return &GlobalStore{m: globalMap}
}

// newIsolatedGlobalStore returns a store over a private map.
func newIsolatedGlobalStore() *GlobalStore {
	return &GlobalStore{m: xsync.NewMapOf[string, string]()}
}

func (g *GlobalStore) Read(ctx context.Context, key string) (string, bool, error) {
	v, ok := g.m.Load(key)
	return v, ok, nil
}

func (g *GlobalStore) Write(ctx context.Context, key, value string) error {
	g.m.Store(key, value)
	return nil
}

// Delete removes key.
func (g *GlobalStore) Delete(key string) {
	g.m.Delete(key)
}

// SessionStore keeps the most recently used values in a bounded LRU cache.
type SessionStore struct {
	cache *lru.Cache[string, string]
}

// NewSessionStore creates a session store holding at most size keys.
func NewSessionStore(size int) (*SessionStore, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &SessionStore{cache: cache}, nil
}

func (s *SessionStore) Read(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	return v, ok, nil
}

func (s *SessionStore) Write(ctx context.Context, key, value string) error {
	s.cache.Add(key, value)
	return nil
}

// Purge drops every entry.
func (s *SessionStore) Purge() {
	s.cache.Purge()
}
