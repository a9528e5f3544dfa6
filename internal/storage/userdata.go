package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// UserDataStore keeps every key in one msgpack document on disk, rewritten
// whole on each write.
type UserDataStore struct {
	path string

	mu sync.Mutex
}

// OpenUserDataStore checks that path is readable, creating its directory.
// A missing file is an empty store.
func OpenUserDataStore(path string) (*UserDataStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user data dir: %w", err)
	}
	s := &UserDataStore{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *UserDataStore) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user data: %w", err)
	}

	doc := map[string]Record{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode user data: %w", err)
	}
	return doc, nil
}

func (s *UserDataStore) Read(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", false, err
	}
	rec, ok := doc[key]
	if !ok {
		return "", false, nil
	}
	return rec.Value, true, nil
}

func (s *UserDataStore) Write(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[key] = NewRecord(value)
	return s.save(doc)
}

// save replaces the file with doc. Caller must hold s.mu.
func (s *UserDataStore) save(doc map[string]Record) error {
	data, err := msgpack.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write user data: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename user data: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *UserDataStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.save(doc)
}
