package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
	kafkaReadMaxWait       = 250 * time.Millisecond

	// kafkaPartition is the only partition records are written to and read from.
	kafkaPartition = 0
)

// KafkaConfig holds configuration for KafkaStore
type KafkaConfig struct {
	Brokers          []string // Kafka broker addresses
	Topic            string   // Single-partition, compacted topic
	AutoCreateTopics bool     // EnsureTopic creates the topic if it doesn't exist
}

// pinPartition sends every message to kafkaPartition, whatever the topic's
// partition count.
func pinPartition(kafka.Message, ...int) int {
	return kafkaPartition
}

// compactTopicConfig describes the topic EnsureTopic creates: one partition,
// log compaction so only the latest record per key is retained.
func compactTopicConfig(topic string) kafka.TopicConfig {
	return kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: -1,
		ConfigEntries: []kafka.ConfigEntry{
			{ConfigName: "cleanup.policy", ConfigValue: "compact"},
		},
	}
}

// KafkaStore appends records keyed by everstore key to partition 0 of a
// topic. A read scans that partition and keeps the last record for the key.
type KafkaStore struct {
	config KafkaConfig
	writer *kafka.Writer
}

// NewKafkaStore creates a store for the configured topic.
func NewKafkaStore(config KafkaConfig) (*KafkaStore, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka requires at least one broker address")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka requires a topic")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     kafka.BalancerFunc(pinPartition),
		BatchSize:    1,
		BatchBytes:   DefaultKafkaBatchBytes,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}

	return &KafkaStore{config: config, writer: writer}, nil
}

// EnsureTopic creates the compacted topic through the cluster controller
// when AutoCreateTopics is set. An existing topic is left as it is.
func (s *KafkaStore) EnsureTopic(ctx context.Context) error {
	if !s.config.AutoCreateTopics {
		return nil
	}

	conn, err := kafka.DialContext(ctx, "tcp", s.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}

	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka dial controller: %w", err)
	}
	defer ctrl.Close()

	if err := ctrl.CreateTopics(compactTopicConfig(s.config.Topic)); err != nil {
		return fmt.Errorf("kafka create topic %s: %w", s.config.Topic, err)
	}
	return nil
}

func (s *KafkaStore) Write(ctx context.Context, key, value string) error {
	data, err := EncodeRecord(NewRecord(value))
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *KafkaStore) Read(ctx context.Context, key string) (string, bool, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", s.config.Brokers[0], s.config.Topic, kafkaPartition)
	if err != nil {
		return "", false, fmt.Errorf("kafka dial: %w", err)
	}
	first, last, err := conn.ReadOffsets()
	conn.Close()
	if err != nil {
		return "", false, fmt.Errorf("kafka offsets: %w", err)
	}
	if last <= first {
		return "", false, nil
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.config.Brokers,
		Topic:     s.config.Topic,
		Partition: kafkaPartition,
		MaxWait:   kafkaReadMaxWait,
	})
	defer reader.Close()

	if err := reader.SetOffset(first); err != nil {
		return "", false, fmt.Errorf("kafka seek: %w", err)
	}

	msgs := make([]kafka.Message, 0)
	for {
		msg, err := reader.ReadMessage(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("kafka read: %w", err)
		}
		msgs = append(msgs, msg)
		if msg.Offset >= last-1 {
			break
		}
	}

	return latestFor(msgs, key)
}

// latestFor returns the value of the last record for key in msgs. A message
// with a nil value is a tombstone and hides earlier records.
func latestFor(msgs []kafka.Message, key string) (string, bool, error) {
	var latest []byte
	found := false
	for _, msg := range msgs {
		if string(msg.Key) != key {
			continue
		}
		latest = msg.Value
		found = msg.Value != nil
	}
	if !found {
		return "", false, nil
	}

	rec, err := DecodeRecord(latest)
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

// Close releases resources held by the KafkaStore
func (s *KafkaStore) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
