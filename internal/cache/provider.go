// Package cache persists computed baselines and indicator tables between runs.
//
// A Provider is a plain byte store keyed by cache name. Store layers a
// versioned, fingerprinted envelope on top so a cached artifact is only
// reused when it was built from the same input and parameters.
package cache

import (
	"context"
	"errors"
)

// Provider defines the byte-level operations a cache backend must support.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Close() error
}

var (
	// ErrCacheMiss signals that a key is absent or unusable for the current
	// input. Callers recompute.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCorrupt signals a stored entry that cannot be decoded. The run aborts.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value.
func (NoopProvider) Set(context.Context, string, []byte) error { return nil }

// Del is a no-op.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
