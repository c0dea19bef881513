package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/weather-indicator-etl/internal/cache"
	"github.com/couchcryptid/weather-indicator-etl/internal/domain"
)

// Cache backends.
const (
	CacheFile   = "file"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Export formats.
const (
	ExportIndicators = "indicators"
	ExportExposure   = "exposure"
)

// Columns names the geo and date columns of the input CSV files.
type Columns struct {
	Lon  string
	Lat  string
	Date string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	Serve           bool

	Events        []domain.EventProfile
	Columns       Columns
	YearBatchSize int

	CacheBackend    string
	CacheDir        string
	CachePolicy     cache.Policy
	MemoryCacheSize int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	AggregationLevels  []domain.Level
	AggregationColumns []domain.Column
	SeasonScheme       domain.SeasonScheme

	OutputDir    string
	ExportFormat string

	// Optional sinks; empty disables them.
	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	serve, err := parseBool("SERVE", false)
	if err != nil {
		return nil, err
	}
	yearBatchSize, err := parsePositiveInt("YEAR_BATCH_SIZE", 3)
	if err != nil {
		return nil, err
	}
	memoryCacheSize, err := parsePositiveInt("MEMORY_CACHE_SIZE", 16)
	if err != nil {
		return nil, err
	}
	redisDB, err := parseNonNegativeInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	policy, err := cache.ParsePolicy(sharedcfg.EnvOrDefault("CACHE_POLICY", string(cache.PolicyVerify)))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_POLICY: %w", err)
	}
	scheme, err := domain.ParseSeasonScheme(sharedcfg.EnvOrDefault("SEASON_SCHEME", string(domain.SeasonsNigeria)))
	if err != nil {
		return nil, fmt.Errorf("invalid SEASON_SCHEME: %w", err)
	}
	levels, err := parseList("AGGREGATION_LEVELS", "month,season,year", domain.ParseLevel)
	if err != nil {
		return nil, err
	}
	columns, err := parseList("AGGREGATION_COLUMNS", "value,delta,severity", domain.ParseColumn)
	if err != nil {
		return nil, err
	}

	events, err := loadEvents()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Serve:           serve,

		Events: events,
		Columns: Columns{
			Lon:  sharedcfg.EnvOrDefault("LON_COLUMN", "lon"),
			Lat:  sharedcfg.EnvOrDefault("LAT_COLUMN", "lat"),
			Date: sharedcfg.EnvOrDefault("DATE_COLUMN", "date"),
		},
		YearBatchSize: yearBatchSize,

		CacheBackend:    sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheFile),
		CacheDir:        sharedcfg.EnvOrDefault("CACHE_DIR", "data/cache"),
		CachePolicy:     policy,
		MemoryCacheSize: memoryCacheSize,
		RedisAddr:       sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,

		AggregationLevels:  levels,
		AggregationColumns: columns,
		SeasonScheme:       scheme,

		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/output"),
		ExportFormat: sharedcfg.EnvOrDefault("EXPORT_FORMAT", ExportIndicators),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		KafkaTopic:  sharedcfg.EnvOrDefault("KAFKA_TOPIC", "weather-indicator-aggregates"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case CacheFile, CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q (expected file, memory, redis or none)", c.CacheBackend)
	}
	if c.CacheBackend == CacheFile && c.CacheDir == "" {
		return errors.New("CACHE_DIR is required for the file cache")
	}
	if c.CacheBackend == CacheRedis && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the redis cache")
	}
	switch c.ExportFormat {
	case ExportIndicators, ExportExposure:
	default:
		return fmt.Errorf("invalid EXPORT_FORMAT %q (expected indicators or exposure)", c.ExportFormat)
	}
	if c.Columns.Lon == "" || c.Columns.Lat == "" || c.Columns.Date == "" {
		return errors.New("LON_COLUMN, LAT_COLUMN and DATE_COLUMN must not be empty")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

type eventsFile struct {
	Events []domain.EventProfile `yaml:"events"`
}

// loadEvents reads EVENTS_FILE when set; otherwise the default profiles are
// used with their inputs taken from TEMPERATURE_INPUT and PRECIPITATION_INPUT.
func loadEvents() ([]domain.EventProfile, error) {
	path := os.Getenv("EVENTS_FILE")
	if path == "" {
		events := domain.DefaultProfiles()
		events[0].Input = sharedcfg.EnvOrDefault("TEMPERATURE_INPUT", events[0].Input)
		events[1].Input = sharedcfg.EnvOrDefault("PRECIPITATION_INPUT", events[1].Input)
		return events, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read EVENTS_FILE: %w", err)
	}
	var f eventsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse EVENTS_FILE: %w", err)
	}
	if len(f.Events) == 0 {
		return nil, fmt.Errorf("EVENTS_FILE %s defines no events", path)
	}

	seen := make(map[string]bool, len(f.Events))
	cacheOwner := make(map[string]string, 2*len(f.Events))
	for i := range f.Events {
		p := &f.Events[i]
		if p.Column == "" {
			p.Column = p.Name
		}
		if p.DaysParam == 0 {
			p.DaysParam = 3
		}
		if p.RollingWindow == 0 {
			p.RollingWindow = 3
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("EVENTS_FILE event %d: %w", i, err)
		}
		if p.Input == "" {
			return nil, fmt.Errorf("EVENTS_FILE event %q has no input", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("EVENTS_FILE defines event %q twice", p.Name)
		}
		seen[p.Name] = true

		for _, name := range []string{p.ThresholdCacheName(), p.IndicatorCacheName()} {
			if owner, ok := cacheOwner[name]; ok {
				return nil, fmt.Errorf("EVENTS_FILE events %q and %q share cache name %q", owner, p.Name, name)
			}
			cacheOwner[name] = p.Name
		}
	}
	return f.Events, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

func parseNonNegativeInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", name)
	}
	return n, nil
}

func parseList[T any](name, def string, parse func(string) (T, error)) ([]T, error) {
	var out []T
	for _, part := range strings.Split(sharedcfg.EnvOrDefault(name, def), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s must list at least one value", name)
	}
	return out, nil
}
