package everstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"everstore/internal/clock"
	"everstore/internal/mechanism"
	"everstore/internal/ring"
	"everstore/internal/storage"
)

const brokerConnectTimeout = 5 * time.Second

type namedCloser struct {
	name  string
	close func() error
}

// openMechanism builds the backend for a built-in mechanism. It returns nil
// when the backend is not configured or fails to open; the mechanism is then
// treated as holding nothing.
func (s *Store) openMechanism(name string, clk clock.Clock) mechanism.Mechanism {
	m, err := s.buildMechanism(name, clk)
	if err != nil {
		s.logger.Warn().Err(err).Str("mechanism", name).Msg("Mechanism unavailable")
		return nil
	}
	if m == nil {
		return nil
	}
	if st, ok := m.(storage.Store); ok {
		s.closers = append(s.closers, namedCloser{name: name, close: st.Close})
	}
	return m
}

func (s *Store) dataPath(elem ...string) (string, error) {
	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	return filepath.Join(append([]string{s.cfg.DataDir}, elem...)...), nil
}

func (s *Store) buildMechanism(name string, clk clock.Clock) (mechanism.Mechanism, error) {
	cfg := s.cfg

	switch name {
	case mechanism.Cookie:
		return storage.NewCookieJar(cfg.Domain, cfg.CookieTTL, clk), nil

	case mechanism.DBStore:
		path, err := s.dataPath("everstore.db")
		if err != nil {
			return nil, err
		}
		return storage.OpenDBStore(path)

	case mechanism.ETag:
		if cfg.ETag.URL == "" {
			return nil, fmt.Errorf("etag.url is not set")
		}
		return storage.NewETagStore(cfg.ETag.URL, nil)

	case mechanism.GlobalStore:
		return storage.NewGlobalStore(), nil

	case mechanism.LocalStore:
		path, err := s.dataPath("local")
		if err != nil {
			return nil, err
		}
		return storage.OpenLocalStore(path, nil)

	case mechanism.PNG:
		path, err := s.dataPath("png")
		if err != nil {
			return nil, err
		}
		return storage.NewPNGStore(path)

	case mechanism.SessionStore:
		return storage.NewSessionStore(cfg.SessionSize)

	case mechanism.UserData:
		path := cfg.UserDataPath
		if path == "" {
			var err error
			if path, err = s.dataPath("user_data.msgpack"); err != nil {
				return nil, err
			}
		}
		return storage.OpenUserDataStore(path)

	case mechanism.WebCache:
		return storage.NewWebCache(cfg.SessionSize, cfg.WebCacheTTL), nil

	case mechanism.WindowName:
		return storage.NewWindowName(), nil

	case mechanism.NATSKV:
		if cfg.NATS.URL == "" {
			return nil, fmt.Errorf("nats.url is not set")
		}
		ctx, cancel := context.WithTimeout(context.Background(), brokerConnectTimeout)
		defer cancel()
		return storage.OpenNATSKVStore(ctx, cfg.NATS.URL, cfg.NATS.Bucket)

	case mechanism.Kafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka.brokers is not set")
		}
		st, err := storage.NewKafkaStore(storage.KafkaConfig{
			Brokers:          cfg.Kafka.Brokers,
			Topic:            cfg.Kafka.Topic,
			AutoCreateTopics: true,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), brokerConnectTimeout)
		defer cancel()
		if err := st.EnsureTopic(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil

	case mechanism.Remote:
		addrs := cfg.Remote.PeerAddrs()
		if len(addrs) == 0 {
			return nil, fmt.Errorf("remote.addr is not set")
		}
		return storage.NewRemoteStore(s.clientMgr.RingProvider(ring.New(cfg.Remote.VNodes, addrs...))), nil
	}

	return nil, fmt.Errorf("unknown mechanism %s", name)
}
