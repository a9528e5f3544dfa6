package storage

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"everstore/internal/clock"
)

// CookieJar keeps cookies for one domain and renders them the way a
// browser exposes them: "k=v; k2=v2". Expired cookies are dropped.
type CookieJar struct {
	mu      sync.Mutex
	domain  string
	ttl     time.Duration
	clk     clock.Clock
	cookies []*http.Cookie
}

// NewCookieJar creates an empty jar scoped to domain.
func NewCookieJar(domain string, ttl time.Duration, clk clock.Clock) *CookieJar {
	if clk == nil {
		clk = clock.Real()
	}
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &CookieJar{domain: domain, ttl: ttl, clk: clk}
}

// Read returns the cookie named key.
func (j *CookieJar) Read(ctx context.Context, key string) (string, bool, error) {
	v, ok := ParamGet(j.String(), key)
	return v, ok, nil
}

// Write sets cookie key to value, expiring after the jar's TTL.
func (j *CookieJar) Write(ctx context.Context, key, value string) error {
	c := &http.Cookie{
		Name:    url.QueryEscape(key),
		Value:   url.QueryEscape(value),
		Domain:  strings.TrimPrefix(j.domain, "."),
		Path:    "/",
		Expires: j.clk.Now().Add(j.ttl),
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for i, existing := range j.cookies {
		if existing.Name == c.Name {
			j.cookies[i] = c
			return nil
		}
	}
	j.cookies = append(j.cookies, c)
	return nil
}

// String renders the live cookies as "k=v; k2=v2".
func (j *CookieJar) String() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.clk.Now()
	live := j.cookies[:0]
	parts := make([]string, 0, len(j.cookies))
	for _, c := range j.cookies {
		if !c.Expires.After(now) {
			continue
		}
		live = append(live, c)
		parts = append(parts, c.Name+"="+c.Value)
	}
	j.cookies = live

	return strings.Join(parts, "; ")
}

// Cookies returns copies of the live cookies, e.g. for Set-Cookie headers.
func (j *CookieJar) Cookies() []*http.Cookie {
	_ = j.String() // prunes expired cookies

	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*http.Cookie, len(j.cookies))
	for i, c := range j.cookies {
		cp := *c
		out[i] = &cp
	}
	return out
}

// Clear drops every cookie.
func (j *CookieJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = nil
}

// WindowName emulates a single long-lived name string holding "k=v&k2=v2".
type WindowName struct {
	mu   sync.Mutex
	name string
}

// NewWindowName creates an empty name.
func NewWindowName() *WindowName {
	return &WindowName{}
}

// Read returns the value stored under key.
func (w *WindowName) Read(ctx context.Context, key string) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := ParamGet(w.name, key)
	return v, ok, nil
}

// Write stores value under key.
func (w *WindowName) Write(ctx context.Context, key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = ParamSet(w.name, key, value)
	return nil
}

// Name returns the raw name string.
func (w *WindowName) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name
}

// Clear resets the name.
func (w *WindowName) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = ""
}
