package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKVStore keeps records in a JetStream key/value bucket.
type NATSKVStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// OpenNATSKVStore connects to url and creates the bucket if needed.
func OpenNATSKVStore(ctx context.Context, url, bucket string) (*NATSKVStore, error) {
	if url == "" {
		return nil, fmt.Errorf("nats_kv requires nats.url")
	}
	if bucket == "" {
		return nil, fmt.Errorf("nats_kv requires a bucket name")
	}

	nc, err := nats.Connect(url,
		nats.Name("everstore"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "everstore values",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
	}

	return &NATSKVStore{nc: nc, kv: kv}, nil
}

func (s *NATSKVStore) Read(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.kv.Get(ctx, natsKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get: %w", err)
	}

	rec, err := DecodeRecord(entry.Value())
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

func (s *NATSKVStore) Write(ctx context.Context, key, value string) error {
	data, err := EncodeRecord(NewRecord(value))
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, natsKey(key), data); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// Close releases the NATS connection.
func (s *NATSKVStore) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// natsKey maps an arbitrary key onto the KV key alphabet
// ([-/_=.a-zA-Z0-9]) by hex-escaping every other byte as "=XX".
func natsKey(key string) string {
	const hexDigits = "0123456789ABCDEF"

	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '/':
			out = append(out, c)
		default:
			out = append(out, '=', hexDigits[c>>4], hexDigits[c&0x0f])
		}
	}
	if len(out) == 0 {
		return "="
	}
	return string(out)
}
