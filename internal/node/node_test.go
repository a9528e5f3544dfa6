package node

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"everstore/internal/api"
	"everstore/internal/ring"
	"everstore/internal/storage"
)

const bufSize = 1 << 20

func openStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	s, err := storage.OpenLocalStore("node", vfs.NewMem())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// startBufconn serves the Store service over an in-memory listener.
func startBufconn(t *testing.T, store *storage.LocalStore) *ClientManager {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	api.RegisterStoreServer(srv, NewServer(store, "test-node", zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cm := NewClientManager(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	t.Cleanup(func() { cm.Close() })
	return cm
}

func TestRingProvider_RoutesKeysToOwner(t *testing.T) {
	listeners := map[string]*bufconn.Listener{}
	for _, name := range []string{"peer-a", "peer-b"} {
		lis := bufconn.Listen(bufSize)
		srv := grpc.NewServer()
		api.RegisterStoreServer(srv, NewServer(openStore(t), name, zerolog.Nop()))
		go func() { _ = srv.Serve(lis) }()
		t.Cleanup(srv.Stop)
		listeners[name] = lis
	}

	cm := NewClientManager(grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		return listeners[addr].DialContext(ctx)
	}))
	t.Cleanup(func() { cm.Close() })

	r := ring.New(16, "passthrough:///peer-a", "passthrough:///peer-b")
	remote := storage.NewRemoteStore(cm.RingProvider(r))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		key := "uid-" + strconv.Itoa(i)
		require.NoError(t, remote.Write(ctx, key, "v"+strconv.Itoa(i)))

		v, found, err := remote.Read(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "v"+strconv.Itoa(i), v)

		owner, _ := r.Owner(key)
		for _, peer := range r.Peers() {
			_, found, err := storage.NewRemoteStore(cm.Provider(peer)).Read(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, peer == owner, found, "key %s on %s", key, peer)
		}
	}
	assert.Equal(t, 2, cm.Len())

	_, _, err := storage.NewRemoteStore(cm.RingProvider(ring.New(0))).Read(ctx, "uid")
	assert.Error(t, err)
}

func TestRemoteMechanism_OverGRPC(t *testing.T) {
	cm := startBufconn(t, openStore(t))
	remote := storage.NewRemoteStore(cm.Provider("passthrough:///bufnet"))
	ctx := context.Background()

	_, found, err := remote.Read(ctx, "uid")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, remote.Write(ctx, "uid", "v1"))
	require.NoError(t, remote.Write(ctx, "uid", "v2"))

	v, found, err := remote.Read(ctx, "uid")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", v)

	assert.Equal(t, 1, cm.Len(), "one cached connection per address")
}

func TestServer_RejectsInvalidRequests(t *testing.T) {
	cm := startBufconn(t, openStore(t))
	client, err := cm.GetClient("passthrough:///bufnet")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Read(ctx, wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Write(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Write(ctx, api.NewWriteRequest("", "v"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClientManager_CachesAndCloses(t *testing.T) {
	cm := NewClientManager()

	a, err := cm.GetClient("127.0.0.1:1")
	require.NoError(t, err)
	b, err := cm.GetClient("127.0.0.1:1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = cm.GetClient("127.0.0.1:2")
	require.NoError(t, err)
	assert.Equal(t, 2, cm.Len())

	require.NoError(t, cm.Close())
	assert.Equal(t, 0, cm.Len())
}

func TestETagMechanism_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(NewRouter(openStore(t), zerolog.Nop()))
	defer srv.Close()

	etag, err := storage.NewETagStore(srv.URL, srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := etag.Read(ctx, "uid")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, etag.Write(ctx, "uid", `a "quoted" value`))
	require.NoError(t, etag.Write(ctx, "a/b c", "escaped key"))

	v, found, err := etag.Read(ctx, "uid")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `a "quoted" value`, v)

	v, found, err = etag.Read(ctx, "a/b c")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "escaped key", v)
}

func TestETag_IfNoneMatch(t *testing.T) {
	srv := httptest.NewServer(NewRouter(openStore(t), zerolog.Nop()))
	defer srv.Close()

	etag, err := storage.NewETagStore(srv.URL, srv.Client())
	require.NoError(t, err)
	require.NoError(t, etag.Write(context.Background(), "uid", "v1"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/etag/uid", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", strconv.Quote("v1"))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
	assert.Equal(t, storage.ETagHash("v1"), resp.Header.Get(storage.ETagHashHeader))
}

func TestETag_SeparateFromGRPCNamespace(t *testing.T) {
	store := openStore(t)
	cm := startBufconn(t, store)
	remote := storage.NewRemoteStore(cm.Provider("passthrough:///bufnet"))
	srv := httptest.NewServer(NewRouter(store, zerolog.Nop()))
	defer srv.Close()
	etag, err := storage.NewETagStore(srv.URL, srv.Client())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, remote.Write(ctx, "uid", "via-grpc"))

	_, found, err := etag.Read(ctx, "uid")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNode_ServeAndStop(t *testing.T) {
	n := NewNode("n1", "127.0.0.1:0", "127.0.0.1:0", openStore(t), zerolog.Nop())
	require.NoError(t, n.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx) }()

	etag, err := storage.NewETagStore("http://"+n.HTTPAddr(), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return etag.Write(context.Background(), "uid", "v") == nil
	}, 2*time.Second, 20*time.Millisecond)

	cm := NewClientManager()
	defer cm.Close()
	remote := storage.NewRemoteStore(cm.Provider(n.GRPCAddr()))
	require.NoError(t, remote.Write(context.Background(), "uid", "v"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
}

func TestNode_ServeWithoutListen(t *testing.T) {
	n := NewNode("n1", "127.0.0.1:0", "127.0.0.1:0", openStore(t), zerolog.Nop())
	assert.Error(t, n.Serve(context.Background()))
}
