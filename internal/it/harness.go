// Package it holds end-to-end tests that run a peer node and several
// everstore clients in one process.
package it

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"everstore"
	"everstore/internal/config"
	"everstore/internal/node"
	"everstore/internal/storage"
)

// Cluster is a peer node plus the clients attached to it.
type Cluster struct {
	mu      sync.Mutex
	baseDir string
	store   *storage.LocalStore
	node    *node.Node
	cancel  context.CancelFunc
	done    chan error
	clients []*everstore.Store
}

// StartCluster starts a node on loopback ports with an in-memory store.
func StartCluster(baseDir string) (*Cluster, error) {
	store, err := storage.OpenLocalStore("node", vfs.NewMem())
	if err != nil {
		return nil, err
	}

	n := node.NewNode("it-node", "127.0.0.1:0", "127.0.0.1:0", store, zerolog.Nop())
	if err := n.Listen(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cluster{
		baseDir: baseDir,
		store:   store,
		node:    n,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { c.done <- n.Serve(ctx) }()

	return c, nil
}

// ClientConfig returns a config for a client named name with every network
// mechanism pointed at the cluster's node and enabled.
func (c *Cluster) ClientConfig(name string) config.Config {
	cfg := config.Default()
	cfg.Domain = ".it.local"
	cfg.DataDir = filepath.Join(c.baseDir, name)
	cfg.WaitMax = 2 * time.Second
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ETag.URL = "http://" + c.node.HTTPAddr()
	cfg.Remote.Addr = c.node.GRPCAddr()
	cfg.Enable = []string{"remote"}
	return cfg
}

// NewClient opens a store with cfg and tracks it for Stop.
func (c *Cluster) NewClient(cfg config.Config, opts ...everstore.Option) (*everstore.Store, error) {
	s, err := everstore.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.clients = append(c.clients, s)
	c.mu.Unlock()
	return s, nil
}

// Get runs an async read and waits for its delivery.
func Get(ctx context.Context, s *everstore.Store, key string) (everstore.Result, error) {
	done := make(chan everstore.Result, 1)
	if err := s.Get(ctx, key, func(r everstore.Result) { done <- r }); err != nil {
		return everstore.Result{}, err
	}
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return everstore.Result{}, ctx.Err()
	}
}

// Stop closes every client and shuts the node down.
func (c *Cluster) Stop() {
	c.mu.Lock()
	clients := c.clients
	c.clients = nil
	c.mu.Unlock()

	for _, s := range clients {
		_ = s.Close()
	}

	c.cancel()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
	}
	_ = c.store.Close()
}
