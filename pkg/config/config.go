package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/froth-ops/froth/pkg/pricing"
)

// Config holds all Froth configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	DBPath     string           `yaml:"db_path"`
	Provider   ProviderConfig   `yaml:"provider"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Quota      QuotaConfig      `yaml:"quota"`
	Audit      AuditConfig      `yaml:"audit"`
	Pricing    pricing.Table    `yaml:"pricing"`
}

// ProviderConfig defines the generative/embedding provider endpoint.
type ProviderConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	EmbedModel string        `yaml:"embed_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SimilarityConfig controls the semantic-match stage.
type SimilarityConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
	TopK      int     `yaml:"top_k"`
}

// QuotaConfig defines default per-user token ceilings plus per-user overrides.
type QuotaConfig struct {
	DailyLimit   int64                 `yaml:"daily_limit"`
	MonthlyLimit int64                 `yaml:"monthly_limit"`
	Users        map[string]UserLimits `yaml:"users"`
}

// UserLimits overrides the default ceilings for a single user.
// A zero field falls back to the default.
type UserLimits struct {
	DailyLimit   int64 `yaml:"daily_limit"`
	MonthlyLimit int64 `yaml:"monthly_limit"`
}

// AuditConfig controls the audit log subsystem.
type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
	Buffer        int `yaml:"buffer"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "froth.db",
		Provider: ProviderConfig{
			URL:        "https://api.openai.com",
			APIKey:     "${OPENAI_API_KEY}",
			Model:      "gpt-3.5-turbo",
			EmbedModel: "text-embedding-3-small",
			Timeout:    60 * time.Second,
		},
		Similarity: SimilarityConfig{
			Enabled:   true,
			Threshold: 0.75,
			TopK:      5,
		},
		Quota: QuotaConfig{
			DailyLimit:   10000,
			MonthlyLimit: 300000,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			Buffer:        256,
		},
		Pricing: pricing.Default(),
	}
}

// Load reads a YAML config file and expands environment variables.
// Pricing entries in the file overlay the built-in table.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	builtin := cfg.Pricing
	cfg.Pricing = nil
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Pricing = builtin.Merge(cfg.Pricing)

	return cfg, nil
}

// LoadOrDefault loads the config at path, falling back to Default when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
		return cfg, nil
	}
	return Load(path)
}

// Limits returns the effective daily and monthly ceilings for a user.
func (q QuotaConfig) Limits(userID string) (daily, monthly int64) {
	daily, monthly = q.DailyLimit, q.MonthlyLimit
	if u, ok := q.Users[userID]; ok {
		if u.DailyLimit > 0 {
			daily = u.DailyLimit
		}
		if u.MonthlyLimit > 0 {
			monthly = u.MonthlyLimit
		}
	}
	return daily, monthly
}
