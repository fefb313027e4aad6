package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Indexer.MinWordLength)
	assert.Equal(t, DefaultStopWords, cfg.Indexer.StopWords)
	assert.Equal(t, DefaultPunctuationChars, cfg.Indexer.PunctuationChars)
	assert.Equal(t, "chat-events", cfg.Kafka.Topics.ChatEvents)
	assert.False(t, cfg.Postgres.Enabled())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
redis:
  addr: redis.internal:6380
indexer:
  minWordLength: 4
  stopWords: [foo, bar]
reindex:
  concurrency: 2
  channelTimeout: 30s
  skipMalformed: true
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 4, cfg.Indexer.MinWordLength)
	assert.Equal(t, []string{"foo", "bar"}, cfg.Indexer.StopWords)
	assert.Equal(t, 2, cfg.Reindex.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Reindex.ChannelTimeout)
	assert.True(t, cfg.Reindex.SkipMalformed)
	// untouched sections keep defaults
	assert.Equal(t, 50, cfg.Search.DefaultLimit)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CLS_REDIS_ADDR", "10.0.0.1:6379")
	t.Setenv("CLS_INDEXER_MIN_WORD_LENGTH", "5")
	t.Setenv("CLS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CLS_REINDEX_SKIP_MALFORMED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Indexer.MinWordLength)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Reindex.SkipMalformed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min word length", func(c *Config) { c.Indexer.MinWordLength = 0 }},
		{"negative cache", func(c *Config) { c.Indexer.EncoderCacheSize = -1 }},
		{"zero concurrency", func(c *Config) { c.Reindex.Concurrency = 0 }},
		{"zero attempts", func(c *Config) { c.Reindex.MaxAttempts = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxResults = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.Postgres.Enabled())
	assert.Equal(t, "search-analytics", cfg.Kafka.Topics.SearchAnalytics)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, DefaultPunctuationChars, cfg.Indexer.PunctuationChars, "unset keys keep defaults")
	assert.Equal(t, DefaultStopWords, cfg.Indexer.StopWords)
}
