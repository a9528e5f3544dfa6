package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"everstore/internal/api"
	"everstore/internal/storage"
)

// Node serves a local store to other everstore processes: the Store gRPC
// service for the remote mechanism and the HTTP ETag side channel.
type Node struct {
	nodeID   string
	grpcAddr string
	httpAddr string
	store    *storage.LocalStore
	logger   zerolog.Logger

	mu         sync.Mutex
	grpcServer *grpc.Server
	httpServer *http.Server
	grpcLis    net.Listener
	httpLis    net.Listener
}

// NewNode creates a new node instance over store.
func NewNode(nodeID, grpcAddr, httpAddr string, store *storage.LocalStore, logger zerolog.Logger) *Node {
	return &Node{
		nodeID:   nodeID,
		grpcAddr: grpcAddr,
		httpAddr: httpAddr,
		store:    store,
		logger:   logger.With().Str("node", nodeID).Logger(),
	}
}

// Listen binds both listeners. Addresses are resolved, so ":0" works.
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	grpcLis, err := net.Listen("tcp", n.grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.grpcAddr, err)
	}
	httpLis, err := net.Listen("tcp", n.httpAddr)
	if err != nil {
		grpcLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", n.httpAddr, err)
	}

	n.grpcLis = grpcLis
	n.httpLis = httpLis
	n.grpcServer = grpc.NewServer()
	api.RegisterStoreServer(n.grpcServer, NewServer(n.store, n.nodeID, n.logger))
	n.httpServer = &http.Server{
		Handler:           NewRouter(n.store, n.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// GRPCAddr returns the bound gRPC address.
func (n *Node) GRPCAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.grpcLis == nil {
		return n.grpcAddr
	}
	return n.grpcLis.Addr().String()
}

// HTTPAddr returns the bound HTTP address.
func (n *Node) HTTPAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.httpLis == nil {
		return n.httpAddr
	}
	return n.httpLis.Addr().String()
}

// Serve runs both servers until ctx is cancelled or one of them fails.
func (n *Node) Serve(ctx context.Context) error {
	n.mu.Lock()
	if n.grpcServer == nil {
		n.mu.Unlock()
		return fmt.Errorf("node is not listening")
	}
	grpcServer, httpServer := n.grpcServer, n.httpServer
	grpcLis, httpLis := n.grpcLis, n.httpLis
	n.mu.Unlock()

	errCh := make(chan error, 2)
	go func() {
		n.logger.Info().Str("addr", grpcLis.Addr().String()).Msg("Starting gRPC server")
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		n.logger.Info().Str("addr", httpLis.Addr().String()).Msg("Starting HTTP server")
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	n.Stop()
	if err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the node.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = n.httpServer.Shutdown(ctx)
		cancel()
		n.httpServer = nil
	}
	if n.grpcServer != nil {
		n.logger.Info().Msg("Stopping node")
		n.grpcServer.GracefulStop()
		n.grpcServer = nil
	}
}
