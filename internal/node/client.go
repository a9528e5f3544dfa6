package node

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"everstore/internal/api"
	"everstore/internal/ring"
)

// ClientManager manages gRPC clients to peer nodes, one connection per address.
type ClientManager struct {
	mu       sync.RWMutex
	conns    map[string]*grpc.ClientConn
	clients  map[string]api.StoreClient
	dialOpts []grpc.DialOption
}

// NewClientManager creates a new client manager. Extra dial options are
// appended to the insecure transport credentials.
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	return &ClientManager{
		conns:    make(map[string]*grpc.ClientConn),
		clients:  make(map[string]api.StoreClient),
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
	}
}

// GetClient returns a Store client for the given node address.
// Creates a new connection if one doesn't exist.
func (cm *ClientManager) GetClient(addr string) (api.StoreClient, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	conn, err := grpc.NewClient(addr, cm.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client = api.NewStoreClient(conn)
	cm.conns[addr] = conn
	cm.clients[addr] = client
	return client, nil
}

// Provider returns a client provider that sends every key to addr.
func (cm *ClientManager) Provider(addr string) func(key string) (api.StoreClient, error) {
	return func(string) (api.StoreClient, error) {
		return cm.GetClient(addr)
	}
}

// RingProvider returns a client provider that sends each key to the peer
// owning it on r.
func (cm *ClientManager) RingProvider(r *ring.Ring) func(key string) (api.StoreClient, error) {
	return func(key string) (api.StoreClient, error) {
		addr, ok := r.Owner(key)
		if !ok {
			return nil, fmt.Errorf("no peers on ring")
		}
		return cm.GetClient(addr)
	}
}

// Len returns the number of cached connections.
func (cm *ClientManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// Close closes all client connections.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var firstErr error
	for addr, conn := range cm.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", addr, err)
		}
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.clients = make(map[string]api.StoreClient)
	return firstErr
}
