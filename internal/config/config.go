package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Gazetteer configuration.
	GazetteerSource  string
	GazetteerTimeout time.Duration
	LocatorCacheSize int

	// Estimation thresholds.
	AffectedThreshold float64
	WarningIntensity  float64
	DangerIntensity   float64
	RecentAssessments int
	QuakeLogSize      int

	// CWA open-data feed configuration. The collector requires the key; the
	// service enables the weather routes only when it is set.
	CWAAPIKey         string
	CWABaseURL        string
	CWATimeout        time.Duration
	CWARatePerSecond  float64
	CWAIncludeLocal   bool
	CWAMockFallback   bool
	CollectorSchedule string
	WeatherCacheTTL   time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first when present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	gazetteerTimeout, err := parsePositiveDuration("GAZETTEER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cwaTimeout, err := parsePositiveDuration("CWA_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	weatherTTL, err := parsePositiveDuration("WEATHER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	affected, err := parseNonNegativeFloat("AFFECTED_THRESHOLD", 3)
	if err != nil {
		return nil, err
	}
	warning, err := parseNonNegativeFloat("WARNING_INTENSITY", 2)
	if err != nil {
		return nil, err
	}
	danger, err := parseNonNegativeFloat("DANGER_INTENSITY", 4)
	if err != nil {
		return nil, err
	}
	cwaRate, err := parseNonNegativeFloat("CWA_RATE_PER_SECOND", 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "quake-reports"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "intensity-assessments"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "quake-intensity"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		GazetteerSource:  sharedcfg.EnvOrDefault("GAZETTEER_SOURCE", "builtin"),
		GazetteerTimeout: gazetteerTimeout,
		LocatorCacheSize: parsePositiveInt("LOCATOR_CACHE_SIZE", 1000),

		AffectedThreshold: affected,
		WarningIntensity:  warning,
		DangerIntensity:   danger,
		RecentAssessments: parsePositiveInt("RECENT_ASSESSMENTS", 50),
		QuakeLogSize:      parsePositiveInt("QUAKE_LOG_SIZE", 500),

		CWAAPIKey:         os.Getenv("CWA_API_KEY"),
		CWABaseURL:        sharedcfg.EnvOrDefault("CWA_BASE_URL", "https://opendata.cwa.gov.tw/api/v1/rest/datastore"),
		CWATimeout:        cwaTimeout,
		CWARatePerSecond:  cwaRate,
		CWAIncludeLocal:   sharedcfg.EnvOrDefault("CWA_INCLUDE_LOCAL", "false") == "true",
		CWAMockFallback:   sharedcfg.EnvOrDefault("CWA_MOCK_FALLBACK", "false") == "true",
		CollectorSchedule: sharedcfg.EnvOrDefault("COLLECTOR_SCHEDULE", "@every 1m"),
		WeatherCacheTTL:   weatherTTL,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.WarningIntensity > cfg.DangerIntensity {
		return nil, errors.New("WARNING_INTENSITY must not exceed DANGER_INTENSITY")
	}

	return cfg, nil
}

// LogSettings implements observability.LogConfig.
func (c *Config) LogSettings() (level, format string) {
	return c.LogLevel, c.LogFormat
}

// RequireCWA reports whether the collector can reach the CWA feed.
func (c *Config) RequireCWA() error {
	if c.CWAAPIKey == "" {
		return errors.New("CWA_API_KEY is required")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
