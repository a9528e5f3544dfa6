package mechanism

import (
	"context"
)

// Built-in mechanism names.
const (
	Cookie       = "cookie"
	DBStore      = "db_store"
	ETag         = "etag"
	GlobalStore  = "global_store"
	LocalStore   = "local_store"
	PNG          = "png"
	SessionStore = "session_store"
	UserData     = "user_data"
	WebCache     = "web_cache"
	WindowName   = "window_name"
	NATSKV       = "nats_kv"
	Kafka        = "kafka"
	Remote       = "remote"
)

// Default describes a built-in mechanism and its default flags.
type Default struct {
	Name        string
	Synchronous bool
	Active      bool
}

// Defaults lists the built-in mechanisms in registry order.
var Defaults = []Default{
	{Name: Cookie, Synchronous: true, Active: true},
	{Name: DBStore, Synchronous: true, Active: true},
	{Name: ETag, Synchronous: false, Active: true},
	{Name: GlobalStore, Synchronous: true, Active: true},
	{Name: LocalStore, Synchronous: true, Active: true},
	{Name: PNG, Synchronous: false, Active: true},
	{Name: SessionStore, Synchronous: true, Active: true},
	{Name: UserData, Synchronous: true, Active: true},
	{Name: WebCache, Synchronous: true, Active: true},
	{Name: WindowName, Synchronous: true, Active: true},
	{Name: NATSKV, Synchronous: false, Active: false},
	{Name: Kafka, Synchronous: false, Active: false},
	{Name: Remote, Synchronous: false, Active: false},
}

// Mechanism is one independent place a key/value pair can be persisted.
type Mechanism interface {
	// Read returns the stored value for key. found is false when the
	// mechanism holds nothing for key.
	Read(ctx context.Context, key string) (value string, found bool, err error)
	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key, value string) error
}

// Funcs adapts a pair of functions to Mechanism.
// A Funcs with either function nil is not usable.
type Funcs struct {
	ReadFn  func(ctx context.Context, key string) (string, bool, error)
	WriteFn func(ctx context.Context, key, value string) error
}

// Read calls ReadFn.
func (f Funcs) Read(ctx context.Context, key string) (string, bool, error) {
	return f.ReadFn(ctx, key)
}

// Write calls WriteFn.
func (f Funcs) Write(ctx context.Context, key, value string) error {
	return f.WriteFn(ctx, key, value)
}

// Descriptor is a registry entry.
type Descriptor struct {
	Name        string
	Active      bool
	Synchronous bool
	Mechanism   Mechanism
}

// Usable reports whether the descriptor has both operations. A descriptor
// that is not usable is treated as holding nothing for every key.
func (d Descriptor) Usable() bool {
	if d.Mechanism == nil {
		return false
	}
	if f, ok := d.Mechanism.(Funcs); ok {
		return f.ReadFn != nil && f.WriteFn != nil
	}
	return true
}

// Mode returns "sync" or "deferred".
func (d Descriptor) Mode() string {
	if d.Synchronous {
		return "sync"
	}
	return "deferred"
}
