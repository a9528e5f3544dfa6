package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const localKeyPrefix = "everstore/v/"

// LocalStore persists records in an embedded Pebble database.
type LocalStore struct {
	db *pebble.DB
}

// OpenLocalStore opens (or creates) a Pebble database at dir.
// A nil fs uses the real filesystem.
func OpenLocalStore(dir string, fs vfs.FS) (*LocalStore, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dir, err)
	}
	return &LocalStore{db: db}, nil
}

func localKey(key string) []byte {
	return []byte(localKeyPrefix + key)
}

// Get returns the record stored under key.
func (s *LocalStore) Get(key string) (Record, bool, error) {
	data, closer, err := s.db.Get(localKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	rec, err := DecodeRecord(data)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Put stores rec under key.
func (s *LocalStore) Put(key string, rec Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.db.Set(localKey(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *LocalStore) Delete(key string) error {
	if err := s.db.Delete(localKey(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (s *LocalStore) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	rec, ok, err := s.Get(key)
	return rec.Value, ok, err
}

func (s *LocalStore) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Put(key, NewRecord(value))
}

// Close closes the database.
func (s *LocalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
