package storage

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"everstore/internal/api"
)

// RemoteStore keeps values on a peer node through the Store gRPC service.
type RemoteStore struct {
	// clientProvider returns a client for the peer owning key, typically
	// from a connection cache
	clientProvider func(key string) (api.StoreClient, error)
}

// NewRemoteStore creates a remote mechanism.
func NewRemoteStore(clientProvider func(key string) (api.StoreClient, error)) *RemoteStore {
	return &RemoteStore{clientProvider: clientProvider}
}

func (s *RemoteStore) Read(ctx context.Context, key string) (string, bool, error) {
	client, err := s.clientProvider(key)
	if err != nil {
		return "", false, fmt.Errorf("failed to get client: %w", err)
	}

	resp, err := client.Read(ctx, wrapperspb.String(key))
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("remote read: %w", err)
	}
	return resp.GetValue(), true, nil
}

func (s *RemoteStore) Write(ctx context.Context, key, value string) error {
	client, err := s.clientProvider(key)
	if err != nil {
		return fmt.Errorf("failed to get client: %w", err)
	}

	if _, err := client.Write(ctx, api.NewWriteRequest(key, value)); err != nil {
		return fmt.Errorf("remote write: %w", err)
	}
	return nil
}
