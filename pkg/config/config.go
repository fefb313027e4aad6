// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Indexer, Reindex, Search, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Reindex  ReindexConfig  `yaml:"reindex"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the reindex
// audit trail. An empty Host disables the audit trail.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a PostgreSQL host has been configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ChatEvents      string `yaml:"chatEvents"`
	ReindexComplete string `yaml:"reindexComplete"`
	SearchAnalytics string `yaml:"searchAnalytics"`
}

// RedisConfig holds Redis connection parameters. The message log and the
// phonetic index share one Redis database.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// IndexerConfig controls word extraction and phonetic encoding.
type IndexerConfig struct {
	MinWordLength    int      `yaml:"minWordLength"`
	StopWords        []string `yaml:"stopWords"`
	PunctuationChars string   `yaml:"punctuationChars"`
	EncoderCacheSize int      `yaml:"encoderCacheSize"`
}

// ReindexConfig controls the whole-channel rebuild and the reindex-all driver.
type ReindexConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	RatePerSecond  float64       `yaml:"ratePerSecond"`
	Burst          int           `yaml:"burst"`
	ChannelTimeout time.Duration `yaml:"channelTimeout"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	SkipMalformed  bool          `yaml:"skipMalformed"`
}

// SearchConfig controls query result limits and the Redis result cache.
// A zero CacheTTL disables caching.
type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxResults   int           `yaml:"maxResults"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultStopWords are the words never indexed.
var DefaultStopWords = []string{"the", "of", "to", "and", "a", "in", "is", "it", "you", "that"}

// DefaultPunctuationChars are replaced with spaces before word extraction.
const DefaultPunctuationChars = ".,;:!?@$%^&*()-<>[]{}\\|/`~'\""

// DefaultMinWordLength is the shortest word that is indexed.
const DefaultMinWordLength = 3

// Load reads a YAML config file (if provided), then a .env file in the working
// directory (if present), and applies environment-variable overrides. Missing
// values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	_ = godotenv.Load(".env")
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "chatlog",
			User:            "chatlog",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "chatlog-indexer",
			Topics: KafkaTopics{
				ChatEvents:      "chat-events",
				ReindexComplete: "reindex.complete",
				SearchAnalytics: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Indexer: IndexerConfig{
			MinWordLength:    DefaultMinWordLength,
			StopWords:        append([]string(nil), DefaultStopWords...),
			PunctuationChars: DefaultPunctuationChars,
			EncoderCacheSize: 10000,
		},
		Reindex: ReindexConfig{
			Concurrency:    4,
			RatePerSecond:  10,
			Burst:          1,
			ChannelTimeout: 10 * time.Minute,
			MaxAttempts:    1,
		},
		Search: SearchConfig{
			DefaultLimit: 50,
			MaxResults:   500,
			CacheTTL:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Indexer.MinWordLength < 1:
		return errors.New("indexer.minWordLength must be at least 1")
	case c.Indexer.EncoderCacheSize < 0:
		return errors.New("indexer.encoderCacheSize must not be negative")
	case c.Reindex.Concurrency < 1:
		return errors.New("reindex.concurrency must be at least 1")
	case c.Reindex.RatePerSecond < 0:
		return errors.New("reindex.ratePerSecond must not be negative")
	case c.Reindex.MaxAttempts < 1:
		return errors.New("reindex.maxAttempts must be at least 1")
	case c.Search.CacheTTL < 0:
		return errors.New("search.cacheTTL must not be negative")
	case c.Search.DefaultLimit < 1 || c.Search.MaxResults < c.Search.DefaultLimit:
		return fmt.Errorf("search limits out of range (default=%d max=%d)", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	return nil
}

// applyEnvOverrides reads CLS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CLS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CLS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CLS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CLS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CLS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CLS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CLS_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("CLS_INDEXER_MIN_WORD_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MinWordLength = n
		}
	}
	if v := os.Getenv("CLS_INDEXER_STOP_WORDS"); v != "" {
		cfg.Indexer.StopWords = strings.Split(v, ",")
	}
	if v := os.Getenv("CLS_REINDEX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reindex.Concurrency = n
		}
	}
	if v := os.Getenv("CLS_REINDEX_SKIP_MALFORMED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reindex.SkipMalformed = b
		}
	}
	if v := os.Getenv("CLS_SEARCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.CacheTTL = d
		}
	}
	if v := os.Getenv("CLS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CLS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CLS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
