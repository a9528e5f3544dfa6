// Package storage provides the concrete mechanisms a value is persisted
// into: in-process stores (cookie jar, window name, global map, session
// cache), embedded stores (Pebble, SQLite, PNG files) and network stores
// (HTTP ETag channel, NATS KV, Kafka, gRPC peer).
//
// Every mechanism reports a missing key as found=false rather than an error.
package storage
