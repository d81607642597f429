// Package storage provides the pluggable key-value store backing the
// conversation registry. Keys are composite ids; partial-key lookup
// walks the keyspace with a caller-supplied match, so the caller decides
// how a partial id anchors inside the composite key.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Scan when no entry matches.
var ErrNotFound = errors.New("storage: not found")

// ErrUnavailable wraps backend failures so callers can distinguish a
// missing entry from a store that could not be reached.
var ErrUnavailable = errors.New("storage: unavailable")

// Store is the persistence boundary. Upsert is idempotent on identical
// key and value.
type Store interface {
	// Get returns the value stored under exactly key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Scan returns the first entry whose key satisfies match. At most
	// one entry can match when keys are composite conversation ids and
	// match anchors exactly one half of the pair.
	Scan(ctx context.Context, match func(key string) bool) (key string, value []byte, err error)
	Upsert(ctx context.Context, key string, value []byte) error
	Close() error
}
