package node

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"everstore/internal/api"
	"everstore/internal/storage"
)

const grpcKeyPrefix = "grpc/"

// Server implements the Store gRPC service over a local store.
type Server struct {
	store  *storage.LocalStore
	nodeID string
	logger zerolog.Logger
}

// NewServer creates a new gRPC server instance.
func NewServer(store *storage.LocalStore, nodeID string, logger zerolog.Logger) *Server {
	return &Server{
		store:  store,
		nodeID: nodeID,
		logger: logger.With().Str("component", "grpc").Logger(),
	}
}

// Read handles Read requests.
func (s *Server) Read(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	key := req.GetValue()
	s.logger.Debug().Str("node", s.nodeID).Str("key", key).Msg("Read request")

	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	rec, found, err := s.store.Get(grpcKeyPrefix + key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Read failed")
		return nil, status.Error(codes.Internal, err.Error())
	}
	if !found {
		return nil, status.Error(codes.NotFound, "key not found")
	}
	return wrapperspb.String(rec.Value), nil
}

// Write handles Write requests.
func (s *Server) Write(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	key, value, err := api.ParseWriteRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug().Str("node", s.nodeID).Str("key", key).Msg("Write request")

	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	if err := s.store.Put(grpcKeyPrefix+key, storage.NewRecord(value)); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Write failed")
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}
