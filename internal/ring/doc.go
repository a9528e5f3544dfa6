// Package ring maps keys onto peer node addresses with consistent hashing,
// so the remote mechanism sends each key to the same peer and only a small
// share of keys moves when a peer is added or removed.
package ring
