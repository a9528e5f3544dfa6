package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"

	"everstore/internal/clock"
	"everstore/internal/mechanism"
)

func openMechanisms(t *testing.T) map[string]mechanism.Mechanism {
	t.Helper()
	dir := t.TempDir()

	local, err := OpenLocalStore("local", vfs.NewMem())
	if err != nil {
		t.Fatalf("OpenLocalStore() error = %v", err)
	}
	t.Cleanup(func() { local.Close() })

	db, err := OpenDBStore(filepath.Join(dir, "everstore.db"))
	if err != nil {
		t.Fatalf("OpenDBStore() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pngStore, err := NewPNGStore(filepath.Join(dir, "png"))
	if err != nil {
		t.Fatalf("NewPNGStore() error = %v", err)
	}

	session, err := NewSessionStore(16)
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	userData, err := OpenUserDataStore(filepath.Join(dir, "user", "user_data.msgpack"))
	if err != nil {
		t.Fatalf("OpenUserDataStore() error = %v", err)
	}

	return map[string]mechanism.Mechanism{
		mechanism.Cookie:       NewCookieJar(".example.com", time.Hour, clock.NewManual()),
		mechanism.DBStore:      db,
		mechanism.GlobalStore:  newIsolatedGlobalStore(),
		mechanism.LocalStore:   local,
		mechanism.PNG:          pngStore,
		mechanism.SessionStore: session,
		mechanism.UserData:     userData,
		mechanism.WebCache:     NewWebCache(16, time.Hour),
		mechanism.WindowName:   NewWindowName(),
	}
}

func TestMechanisms_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, m := range openMechanisms(t) {
		t.Run(name, func(t *testing.T) {
			if _, found, err := m.Read(ctx, "uid"); err != nil || found {
				t.Fatalf("Read() before write = (found=%v, err=%v), want not found", found, err)
			}

			if err := m.Write(ctx, "uid", "first"); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if err := m.Write(ctx, "other", "x"); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if err := m.Write(ctx, "uid", "second value & more"); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			got, found, err := m.Read(ctx, "uid")
			if err != nil || !found {
				t.Fatalf("Read() = (found=%v, err=%v), want found", found, err)
			}
			if got != "second value & more" {
				t.Errorf("Read() = %q, want %q", got, "second value & more")
			}

			other, found, _ := m.Read(ctx, "other")
			if !found || other != "x" {
				t.Errorf("Read(other) = (%q, %v), want (x, true)", other, found)
			}
		})
	}
}

func TestRecord_Encoding(t *testing.T) {
	rec := Record{Value: "v", WrittenAt: 1_700_000_000_123}

	data, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if got != rec {
		t.Errorf("DecodeRecord() = %+v, want %+v", got, rec)
	}
	if got.Time().UnixMilli() != rec.WrittenAt {
		t.Errorf("Time() = %v", got.Time())
	}

	if _, err := DecodeRecord([]byte{0xc1}); err == nil {
		t.Error("expected error for malformed record")
	}
}

func TestLocalStore_PersistsAcrossReopen(t *testing.T) {
	fs := vfs.NewMem()
	ctx := context.Background()

	s, err := OpenLocalStore("data", fs)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "uid", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenLocalStore("data", fs)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, found, err := s.Read(ctx, "uid")
	if err != nil || !found || got != "v1" {
		t.Errorf("Read() after reopen = (%q, %v, %v), want (v1, true, nil)", got, found, err)
	}

	if err := s.Delete("uid"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.Read(ctx, "uid"); found {
		t.Error("expected key deleted")
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	s, err := OpenLocalStore("data", vfs.NewMem())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Write(ctx, "uid", "v"); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestDBStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, err := OpenDBStore(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Write(ctx, "uid", "v"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "uid"); err != nil {
		t.Fatal(err)
	}
	if _, found, err := s.Read(ctx, "uid"); err != nil || found {
		t.Errorf("Read() after delete = (found=%v, err=%v)", found, err)
	}
}

func TestOpenDBStore_EmptyPath(t *testing.T) {
	if _, err := OpenDBStore("  "); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSessionStore_Evicts(t *testing.T) {
	ctx := context.Background()
	s, err := NewSessionStore(2)
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Write(ctx, "a", "1")
	_ = s.Write(ctx, "b", "2")
	_, _, _ = s.Read(ctx, "a") // a is now most recent
	_ = s.Write(ctx, "c", "3")

	if _, found, _ := s.Read(ctx, "b"); found {
		t.Error("expected least recently used key evicted")
	}
	if v, found, _ := s.Read(ctx, "a"); !found || v != "1" {
		t.Errorf("Read(a) = (%q, %v), want (1, true)", v, found)
	}
}

func TestGlobalStore_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	a, b := NewGlobalStore(), NewGlobalStore()
	t.Cleanup(func() { a.Delete("shared-key") })

	if err := a.Write(ctx, "shared-key", "v"); err != nil {
		t.Fatal(err)
	}
	if v, found, _ := b.Read(ctx, "shared-key"); !found || v != "v" {
		t.Errorf("Read() = (%q, %v), want (v, true)", v, found)
	}
}

func TestUserDataStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.msgpack")
	ctx := context.Background()

	s, err := OpenUserDataStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "uid", "v1"); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenUserDataStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, found, err := reopened.Read(ctx, "uid"); err != nil || !found || v != "v1" {
		t.Errorf("Read() after reopen = (%q, %v, %v), want (v1, true, nil)", v, found, err)
	}

	if err := reopened.Delete("uid"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := s.Read(ctx, "uid"); found {
		t.Error("deleted key still visible through the first handle")
	}
}

func TestUserDataStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.msgpack")
	if err := os.WriteFile(path, []byte{0xc1}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenUserDataStore(path); err == nil {
		t.Error("expected error for corrupt user data")
	}
}

func TestWebCache_Expires(t *testing.T) {
	c := NewWebCache(4, 20*time.Millisecond)
	ctx := context.Background()

	if err := c.Write(ctx, "uid", "v"); err != nil {
		t.Fatal(err)
	}
	if v, found, _ := c.Read(ctx, "uid"); !found || v != "v" {
		t.Fatalf("Read() = (%q, %v), want (v, true)", v, found)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, found, _ := c.Read(ctx, "uid"); !found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("entry did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
