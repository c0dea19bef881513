package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, p Provider, policy Policy) *Store {
	t.Helper()
	s, err := NewStore(p, policy, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTable() *domain.Table {
	start := time.Date(2004, time.February, 28, 0, 0, 0, 0, time.UTC)
	records := []domain.DailyRecord{
		{Lon: 3, Lat: 7, Date: start, Value: 30, Delta: 0, Severity: 0},
		{Lon: 3, Lat: 7, Date: start.AddDate(0, 0, 1), Value: 40, Delta: 9.5, Extreme: true, Severity: 1, Ranking: 1, SPI: -0.4},
		{Lon: 3.5, Lat: 7, Date: start, Value: 31, Delta: 1, SPI: 1.2},
	}
	domain.ExtractTimescales(records)
	for i := range records {
		records[i].Scored = true
	}
	table := domain.NewTable("precipitation", records)
	table.HasSPI = true
	return table
}

func TestStore_Thresholds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryProvider(0), PolicyVerify)
	thresholds := domain.ThresholdMap{"3-7": {1.5, 2, 3}, "3.5-7": {0}}

	_, err := s.LoadThresholds(ctx, "daily_averaging_precipitation_thresholds", "fp")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.SaveThresholds(ctx, "daily_averaging_precipitation_thresholds", "fp", thresholds))
	got, err := s.LoadThresholds(ctx, "daily_averaging_precipitation_thresholds", "fp")
	require.NoError(t, err)
	assert.Equal(t, thresholds, got)
}

func TestStore_Indicators(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryProvider(0), PolicyVerify)
	table := sampleTable()

	require.NoError(t, s.SaveIndicators(ctx, "all_precipitation_indicators", "fp", table))
	got, err := s.LoadIndicators(ctx, "all_precipitation_indicators", "fp")
	require.NoError(t, err)

	assert.Equal(t, table.Event, got.Event)
	assert.True(t, got.HasSPI)
	require.Len(t, got.Records, len(table.Records))
	for i := range table.Records {
		assert.Equal(t, table.Records[i], got.Records[i], "record %d", i)
	}
}

func TestStore_Policies(t *testing.T) {
	ctx := context.Background()
	thresholds := domain.ThresholdMap{"3-7": {1}}

	tests := []struct {
		name        string
		policy      Policy
		fingerprint string
		wantMiss    bool
	}{
		{"verify with matching fingerprint", PolicyVerify, "fp", false},
		{"verify with changed input", PolicyVerify, "other", true},
		{"trust ignores fingerprint", PolicyTrust, "other", false},
		{"refresh always misses", PolicyRefresh, "fp", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMemoryProvider(0)
			writer := newTestStore(t, p, PolicyVerify)
			require.NoError(t, writer.SaveThresholds(ctx, "thresholds", "fp", thresholds))

			reader := newTestStore(t, p, tt.policy)
			got, err := reader.LoadThresholds(ctx, "thresholds", tt.fingerprint)
			if tt.wantMiss {
				assert.ErrorIs(t, err, ErrCacheMiss)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, thresholds, got)
		})
	}
}

func TestStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(0)
	s := newTestStore(t, p, PolicyTrust)

	require.NoError(t, p.Set(ctx, "thresholds", []byte("not zstd")))
	_, err := s.LoadThresholds(ctx, "thresholds", "fp")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestStore_VersionMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(0)
	s := newTestStore(t, p, PolicyTrust)

	data := s.encoder.EncodeAll([]byte(`{"version":0,"fingerprint":"fp","payload":{}}`), nil)
	require.NoError(t, p.Set(ctx, "thresholds", data))

	_, err := s.LoadThresholds(ctx, "thresholds", "fp")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = p.Get(ctx, "thresholds")
	assert.ErrorIs(t, err, ErrCacheMiss, "outdated entry is dropped")
}

func TestStore_CreatedAtUsesClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	p := NewMemoryProvider(0)
	s := newTestStore(t, p, PolicyVerify)
	require.NoError(t, s.SaveThresholds(ctx, "thresholds", "fp", domain.ThresholdMap{}))

	raw, err := p.Get(ctx, "thresholds")
	require.NoError(t, err)
	data, err := s.decoder.DecodeAll(raw, nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"created_at":"2026-01-02T03:04:05Z"`)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("refresh")
	require.NoError(t, err)
	assert.Equal(t, PolicyRefresh, p)
	assert.Equal(t, PolicyRefresh, newTestStore(t, NewMemoryProvider(0), p).Policy())

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)

	_, err = NewStore(NewMemoryProvider(0), Policy("bogus"), testLogger())
	assert.Error(t, err)
}

func TestFingerprints(t *testing.T) {
	table := sampleTable()
	profile := domain.DefaultProfiles()[1]

	base := IndicatorFingerprint(table.Records, profile)
	assert.Equal(t, base, IndicatorFingerprint(table.Records, profile), "deterministic")
	assert.Len(t, base, 64)

	changed := profile
	changed.DeltaParam = 20
	assert.NotEqual(t, base, IndicatorFingerprint(table.Records, changed))

	edited := append([]domain.DailyRecord(nil), table.Records...)
	edited[0].Value++
	assert.NotEqual(t, base, IndicatorFingerprint(edited, profile))

	assert.NotEqual(t, ThresholdFingerprint(table.Records, 3), ThresholdFingerprint(table.Records, 5))
	assert.NotEqual(t, ThresholdFingerprint(table.Records, 3), ThresholdFingerprint(table.Records[:2], 3))
}
