package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// envelopeVersion is bumped whenever the payload layout changes. Entries
// written with another version are treated as misses and dropped.
const envelopeVersion = 1

// Policy decides when a stored entry may be reused.
type Policy string

const (
	// PolicyTrust reuses any decodable entry regardless of its fingerprint.
	PolicyTrust Policy = "trust"
	// PolicyVerify reuses an entry only when its fingerprint matches.
	PolicyVerify Policy = "verify"
	// PolicyRefresh never reuses entries; results are recomputed and overwritten.
	PolicyRefresh Policy = "refresh"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyTrust, PolicyVerify, PolicyRefresh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cache policy %q (expected trust, verify or refresh)", s)
	}
}

type envelope struct {
	Version     int             `json:"version"`
	Fingerprint string          `json:"fingerprint"`
	CreatedAt   time.Time       `json:"created_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Store reads and writes engine artifacts through a Provider.
type Store struct {
	provider Provider
	policy   Policy
	logger   *slog.Logger
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

// NewStore wraps provider. The store owns the provider and closes it.
func NewStore(provider Provider, policy Policy, logger *slog.Logger) (*Store, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{
		provider: provider,
		policy:   policy,
		logger:   logger,
		encoder:  enc,
		decoder:  dec,
	}, nil
}

// Policy returns the store's reuse policy.
func (s *Store) Policy() Policy { return s.policy }

// Close releases the codecs and the underlying provider.
func (s *Store) Close() error {
	s.decoder.Close()
	return errors.Join(s.encoder.Close(), s.provider.Close())
}

// SaveThresholds stores baseline curves under name.
func (s *Store) SaveThresholds(ctx context.Context, name, fingerprint string, thresholds domain.ThresholdMap) error {
	return s.save(ctx, name, fingerprint, thresholds)
}

// LoadThresholds returns the curves stored under name, or ErrCacheMiss.
func (s *Store) LoadThresholds(ctx context.Context, name, fingerprint string) (domain.ThresholdMap, error) {
	var thresholds domain.ThresholdMap
	if err := s.load(ctx, name, fingerprint, &thresholds); err != nil {
		return nil, err
	}
	return thresholds, nil
}

// SaveIndicators stores a processed indicator table under name.
func (s *Store) SaveIndicators(ctx context.Context, name, fingerprint string, table *domain.Table) error {
	return s.save(ctx, name, fingerprint, newIndicatorColumns(table))
}

// LoadIndicators returns the table stored under name, or ErrCacheMiss.
func (s *Store) LoadIndicators(ctx context.Context, name, fingerprint string) (*domain.Table, error) {
	var cols indicatorColumns
	if err := s.load(ctx, name, fingerprint, &cols); err != nil {
		return nil, err
	}
	table, err := cols.table()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", name, ErrCorrupt, err)
	}
	return table, nil
}

func (s *Store) save(ctx context.Context, name, fingerprint string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data, err := json.Marshal(envelope{
		Version:     envelopeVersion,
		Fingerprint: fingerprint,
		CreatedAt:   domain.Now().UTC(),
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", name, err)
	}
	if err := s.provider.Set(ctx, name, s.encoder.EncodeAll(data, nil)); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, name, fingerprint string, v any) error {
	if s.policy == PolicyRefresh {
		return ErrCacheMiss
	}

	raw, err := s.provider.Get(ctx, name)
	if err != nil {
		return err
	}
	data, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return fmt.Errorf("load %s: %w: %w", name, ErrCorrupt, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("load %s: %w: %w", name, ErrCorrupt, err)
	}

	if env.Version != envelopeVersion {
		s.logger.Info("cache entry has another version, recomputing",
			"name", name, "version", env.Version)
		if err := s.provider.Del(ctx, name); err != nil {
			s.logger.Warn("drop outdated cache entry", "name", name, "error", err)
		}
		return ErrCacheMiss
	}
	if s.policy == PolicyVerify && env.Fingerprint != fingerprint {
		s.logger.Info("cache entry is stale, recomputing",
			"name", name, "created_at", env.CreatedAt)
		return ErrCacheMiss
	}

	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("load %s payload: %w: %w", name, ErrCorrupt, err)
	}
	return nil
}
