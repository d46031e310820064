package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Pipeline
	Pipeline PipelineConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration. Redis carries the training-run
// lease; when disabled the trainer falls back to an in-process lock.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// PipelineConfig holds the tunables of the prediction pipeline.
// Label thresholds in particular were chosen from historical inspection and
// are deployment configuration, not a contract.
type PipelineConfig struct {
	// BucketInterval discretizes prediction timestamps for deduplication.
	// At most one prediction per (symbol, bucket) is ever stored.
	BucketInterval time.Duration

	// BackdateTolerance is the maximum allowed gap between a prediction's
	// creation time and its feature-collection timestamp.
	BackdateTolerance time.Duration

	// MinEvalDelay is the minimum real time that must elapse before a
	// prediction may be evaluated against realized prices.
	MinEvalDelay time.Duration

	// Horizons are the return horizons evaluated per prediction.
	Horizons []time.Duration

	// MaxPendingAge is how long a pending prediction is kept before it is
	// expired when market data never shows up.
	MaxPendingAge time.Duration

	// Evaluator I/O controls.
	EvaluatorWorkers int
	PerSymbolTimeout time.Duration
	MarketDataRate   float64 // lookups per second
	MarketDataBurst  int
	RetryMaxElapsed  time.Duration

	// Trainer controls.
	TrainingWindow     time.Duration // how far back training rows reach
	HoldoutWindow      time.Duration
	MinSamplesPerClass int
	HoldoutFloorRatio  float64 // new action accuracy must be >= ratio * current
	TrainEpochs        int
	LearnRate          float64

	// Label thresholds (signed return pct) for training-time labeling.
	LabelStrongPct float64
	LabelWeakPct   float64
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Pipeline: PipelineConfig{
			BucketInterval:    getEnvAsDuration("BUCKET_INTERVAL", "24h"),
			BackdateTolerance: getEnvAsDuration("BACKDATE_TOLERANCE", "5s"),
			MinEvalDelay:      getEnvAsDuration("MIN_EVAL_DELAY", "1h"),
			Horizons:          getEnvAsDurations("EVAL_HORIZONS", "1h,4h,24h"),
			MaxPendingAge:     getEnvAsDuration("MAX_PENDING_AGE", "168h"),

			EvaluatorWorkers: getEnvAsInt("EVALUATOR_WORKERS", 4),
			PerSymbolTimeout: getEnvAsDuration("PER_SYMBOL_TIMEOUT", "30s"),
			MarketDataRate:   getEnvAsFloat("MARKET_DATA_RATE", 10),
			MarketDataBurst:  getEnvAsInt("MARKET_DATA_BURST", 5),
			RetryMaxElapsed:  getEnvAsDuration("RETRY_MAX_ELAPSED", "20s"),

			TrainingWindow:     getEnvAsDuration("TRAINING_WINDOW", "2160h"),
			HoldoutWindow:      getEnvAsDuration("HOLDOUT_WINDOW", "168h"),
			MinSamplesPerClass: getEnvAsInt("MIN_SAMPLES_PER_CLASS", 20),
			HoldoutFloorRatio:  getEnvAsFloat("HOLDOUT_FLOOR_RATIO", 0.9),
			TrainEpochs:        getEnvAsInt("TRAIN_EPOCHS", 200),
			LearnRate:          getEnvAsFloat("LEARN_RATE", 0.05),

			LabelStrongPct: getEnvAsFloat("LABEL_STRONG_PCT", 1.5),
			LabelWeakPct:   getEnvAsFloat("LABEL_WEAK_PCT", 0.5),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that required configuration values are set and coherent.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	p := c.Pipeline
	if p.MinEvalDelay <= 0 {
		return fmt.Errorf("MIN_EVAL_DELAY must be positive")
	}
	if p.BucketInterval <= 0 {
		return fmt.Errorf("BUCKET_INTERVAL must be positive")
	}
	if len(p.Horizons) == 0 {
		return fmt.Errorf("EVAL_HORIZONS must contain at least one horizon")
	}
	if p.HoldoutWindow <= 0 {
		return fmt.Errorf("HOLDOUT_WINDOW must be positive")
	}
	if p.TrainingWindow <= p.HoldoutWindow {
		return fmt.Errorf("TRAINING_WINDOW must exceed HOLDOUT_WINDOW")
	}
	if p.LabelWeakPct <= 0 || p.LabelStrongPct <= p.LabelWeakPct {
		return fmt.Errorf("label thresholds must satisfy 0 < LABEL_WEAK_PCT < LABEL_STRONG_PCT")
	}
	if p.HoldoutFloorRatio <= 0 || p.HoldoutFloorRatio > 1 {
		return fmt.Errorf("HOLDOUT_FLOOR_RATIO must be in (0, 1]")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsDurations parses a comma-separated list of durations, falling back
// to the default list when no entry parses.
func getEnvAsDurations(key string, defaultValue string) []time.Duration {
	parse := func(s string) []time.Duration {
		var out []time.Duration
		for _, part := range strings.Split(s, ",") {
			d, err := time.ParseDuration(strings.TrimSpace(part))
			if err != nil || d <= 0 {
				continue
			}
			out = append(out, d)
		}
		return out
	}

	if valueStr := os.Getenv(key); valueStr != "" {
		if out := parse(valueStr); len(out) > 0 {
			return out
		}
	}
	return parse(defaultValue)
}
