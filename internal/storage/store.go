package storage

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"everstore/internal/mechanism"
)

// Store is a mechanism that holds a resource to release on shutdown.
type Store interface {
	mechanism.Mechanism
	Close() error
}

// Record is the encoded form of a value in byte-oriented backends.
type Record struct {
	Value     string `msgpack:"value"`
	WrittenAt int64  `msgpack:"written_at_unix_ms"`
}

// NewRecord stamps value with the current time.
func NewRecord(value string) Record {
	return Record{Value: value, WrittenAt: time.Now().UnixMilli()}
}

// Time returns when the record was written.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.WrittenAt)
}

// EncodeRecord serializes a record with msgpack.
func EncodeRecord(r Record) ([]byte, error) {
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a record written by EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}
