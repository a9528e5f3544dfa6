package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ETagHashHeader carries the xxhash64 of the stored value.
const ETagHashHeader = "X-Everstore-Hash"

// ETagHash returns the ETagHashHeader value for value.
func ETagHash(value string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(value))
}

// ETagStore keeps values in a peer node's HTTP ETag side channel. The node
// echoes the stored value back as the ETag of GET /etag/{key}.
type ETagStore struct {
	base   string
	client *http.Client
}

// NewETagStore creates a client for the node at baseURL.
func NewETagStore(baseURL string, client *http.Client) (*ETagStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid etag url %q", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ETagStore{base: strings.TrimSuffix(baseURL, "/"), client: client}, nil
}

func (s *ETagStore) url(key string) string {
	return s.base + "/etag/" + url.PathEscape(key)
}

func (s *ETagStore) Read(ctx context.Context, key string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(key), nil)
	if err != nil {
		return "", false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("etag get: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("etag get: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotModified:
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("etag get: unexpected status %d", resp.StatusCode)
	}

	tag := resp.Header.Get("ETag")
	if tag == "" {
		return "", false, nil
	}
	value, err := strconv.Unquote(tag)
	if err != nil {
		return "", false, fmt.Errorf("etag get: malformed etag %q", tag)
	}
	if resp.StatusCode == http.StatusOK && string(body) != value {
		return "", false, fmt.Errorf("etag get: body does not match etag")
	}
	if sum := resp.Header.Get(ETagHashHeader); sum != "" && sum != ETagHash(value) {
		return "", false, fmt.Errorf("etag get: hash mismatch")
	}
	return value, true, nil
}

func (s *ETagStore) Write(ctx context.Context, key, value string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url(key), strings.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("etag put: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("etag put: unexpected status %d", resp.StatusCode)
	}
	return nil
}
