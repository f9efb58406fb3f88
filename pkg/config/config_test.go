package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "SEARCH_PROVIDER", "CONCURRENCY_LIMIT", "RUN_TIMEOUT", "SEARCH_RATE_LIMIT", "BREADTH_POLICY", "MAX_DEPTH", "MAX_BREADTH", "DB_MAX_CONNS", "DB_MIN_CONNS", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "google", cfg.LLMProvider)
	assert.Equal(t, "arxiv", cfg.SearchProvider)
	assert.Equal(t, research.DefaultConcurrency, cfg.ConcurrencyLimit)
	assert.Equal(t, 30*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 1.0, cfg.SearchRateLimit)
	assert.Equal(t, "halve", cfg.BreadthPolicy)
	assert.Equal(t, research.DefaultMaxDepth, cfg.MaxDepth)
	assert.Equal(t, research.DefaultMaxBreadth, cfg.MaxBreadth)
	assert.Equal(t, 25, cfg.DBMaxConns)
	assert.Equal(t, 2, cfg.DBMinConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONCURRENCY_LIMIT", "8")
	t.Setenv("SEARCH_RATE_LIMIT", "2.5")
	t.Setenv("SEARCH_TIMEOUT", "5s")
	t.Setenv("ARXIV_FULL_TEXT", "true")
	t.Setenv("SEARCH_PROVIDER", "Tavily")
	t.Setenv("MAX_FOLLOW_UPS", "not-a-number")
	t.Setenv("MAX_DEPTH", "3")
	t.Setenv("DB_MAX_CONNS", "10")
	t.Setenv("DB_MAX_CONN_LIFETIME", "15m")

	cfg := Load()
	assert.Equal(t, 8, cfg.ConcurrencyLimit)
	assert.Equal(t, 2.5, cfg.SearchRateLimit)
	assert.Equal(t, 5*time.Second, cfg.SearchTimeout)
	assert.True(t, cfg.ArxivFullText)
	assert.Equal(t, "tavily", cfg.SearchProvider)
	assert.Equal(t, research.DefaultMaxFollowUps, cfg.MaxFollowUps, "malformed values fall back to the default")
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, 10, cfg.DBMaxConns)
	assert.Equal(t, 15*time.Minute, cfg.DBMaxConnLifetime)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LLMProvider:       "google",
			GoogleApiKey:      "key",
			SearchProvider:    "arxiv",
			BreadthPolicy:     "halve",
			ConcurrencyLimit:  2,
			MaxConcurrentRuns: 2,
			MaxDepth:          5,
			MaxBreadth:        5,
			DBMaxConns:        25,
			DBMinConns:        2,
			MaxLearnings:      3,
			MaxFollowUps:      3,
			SearchRateLimit:   1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing google key", func(c *Config) { c.GoogleApiKey = "" }, "GOOGLE_API_KEY"},
		{"anthropic without key", func(c *Config) { c.LLMProvider = "anthropic" }, "ANTHROPIC_API_KEY"},
		{"unknown llm", func(c *Config) { c.LLMProvider = "llama" }, "LLM_PROVIDER"},
		{"tavily without key", func(c *Config) { c.SearchProvider = "tavily" }, "TAVILY_API_KEY"},
		{"unknown search", func(c *Config) { c.SearchProvider = "bing" }, "SEARCH_PROVIDER"},
		{"full text without mistral", func(c *Config) { c.ArxivFullText = true }, "MISTRAL_API_KEY"},
		{"bad policy", func(c *Config) { c.BreadthPolicy = "random" }, "breadth policy"},
		{"zero concurrency", func(c *Config) { c.ConcurrencyLimit = 0 }, "CONCURRENCY_LIMIT"},
		{"zero runs", func(c *Config) { c.MaxConcurrentRuns = 0 }, "MAX_CONCURRENT_RUNS"},
		{"zero max depth", func(c *Config) { c.MaxDepth = 0 }, "MAX_DEPTH"},
		{"min conns above max", func(c *Config) { c.DBMinConns = 30 }, "DB_MIN_CONNS"},
		{"zero max conns", func(c *Config) { c.DBMaxConns = 0 }, "DB_MAX_CONNS"},
		{"zero rate", func(c *Config) { c.SearchRateLimit = 0 }, "SEARCH_RATE_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, research.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
