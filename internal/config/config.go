// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the voicecore server.
// It handles loading and parsing the YAML configuration file and provides
// structured access to server settings, cache and store backends, resolver
// thresholds, and the Tier-3 LLM budget knobs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	Host string `yaml:"host"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`

	// LoggingToFile controls whether logs go to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// LogsDir is the directory for rotating log files when LoggingToFile is set.
	LogsDir string `yaml:"logs-dir"`

	// DataDir is the root directory for local state (scenario packs, session
	// archives, the sqlite learning store).
	DataDir string `yaml:"data-dir"`

	// ManagementKey is the bcrypt hash of the key required by the admin
	// endpoints (rule invalidation, test-match). Plaintext values are hashed
	// on load and kept only as a hash.
	ManagementKey string `yaml:"management-key"`

	// RedisURL is the cache backend. Empty disables the shared cache; the
	// pipeline then always recompiles/resolves from the source of truth.
	RedisURL string `yaml:"redis-url"`

	// Store configures the SQL store holding triage rules and learning records.
	Store StoreConfig `yaml:"store"`

	// Triage configures rule compilation and matching.
	Triage TriageConfig `yaml:"triage"`

	// Resolver configures the three-tier knowledge resolver.
	Resolver ResolverConfig `yaml:"resolver"`

	// Gate configures the optimization gate thresholds.
	Gate GateConfig `yaml:"gate"`

	// LLM configures the Tier-3 provider.
	LLM LLMConfig `yaml:"llm"`

	// Assembler configures response assembly behavior.
	Assembler AssemblerConfig `yaml:"assembler"`

	// Cache configures the cache service failure alerting.
	Cache CacheConfig `yaml:"cache"`
}

// StoreConfig selects the SQL driver and DSN for rules and learning records.
// Driver "sqlite3" is the single-instance default; "pgx" points at a shared
// Postgres for multi-instance deployments.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// TriageConfig holds rule compilation knobs.
type TriageConfig struct {
	// RuleSetTTL is how long a compiled rule set stays cached.
	RuleSetTTL time.Duration `yaml:"ruleset-ttl"`
}

// ResolverConfig holds per-tier confidence minimums and the Tier-3 timeout.
type ResolverConfig struct {
	// Tier1MinConfidence is the minimum score for a deterministic trigger match.
	Tier1MinConfidence float64 `yaml:"tier1-min-confidence"`
	// Tier2MinConfidence is the minimum similarity for a fuzzy match.
	Tier2MinConfidence float64 `yaml:"tier2-min-confidence"`
	// Tier3MinConfidence is the minimum confidence accepted from the LLM.
	Tier3MinConfidence float64 `yaml:"tier3-min-confidence"`
	// Tier3Timeout is the hard per-call timeout for the LLM tier.
	Tier3Timeout time.Duration `yaml:"tier3-timeout"`
}

// GateConfig holds the optimization gate thresholds.
type GateConfig struct {
	// MinPathSamples is the sample size a resolution path needs before it can
	// be forced without the expensive tier.
	MinPathSamples int `yaml:"min-path-samples"`
	// MinPathSuccessRate is the success rate a resolution path needs.
	MinPathSuccessRate float64 `yaml:"min-path-success-rate"`
	// KnownCallerHits is how many prior successful resolutions of the same
	// intent mark a caller as known.
	KnownCallerHits int `yaml:"known-caller-hits"`
}

// LLMConfig holds the Tier-3 provider settings and the rolling budget.
type LLMConfig struct {
	// BaseURL overrides the OpenAI-compatible endpoint. Empty uses the default.
	BaseURL string `yaml:"base-url"`
	// APIKey authenticates against the provider. Env var LLM_API_KEY wins.
	APIKey string `yaml:"api-key"`
	// Model is the model identifier used for scenario classification.
	Model string `yaml:"model"`
	// BudgetTokensPerWindow caps total tokens spent per tenant per window.
	BudgetTokensPerWindow int64 `yaml:"budget-tokens-per-window"`
	// BudgetWindow is the rolling budget window.
	BudgetWindow time.Duration `yaml:"budget-window"`
	// BreakerFailureThreshold trips the circuit breaker after this many
	// consecutive failures.
	BreakerFailureThreshold int `yaml:"breaker-failure-threshold"`
	// BreakerCooldown is how long the breaker stays open once tripped.
	BreakerCooldown time.Duration `yaml:"breaker-cooldown"`
}

// AssemblerConfig holds response assembly knobs.
type AssemblerConfig struct {
	// DefaultVariantWeight is the weight assigned to variants without one.
	DefaultVariantWeight int `yaml:"default-variant-weight"`
	// VoiceFillerProbability is the chance a voice reply gets a filler
	// acknowledgment prepended (0.0-1.0).
	VoiceFillerProbability float64 `yaml:"voice-filler-probability"`
}

// CacheConfig holds cache service alerting knobs.
type CacheConfig struct {
	// AlertFailureThreshold is the consecutive-failure count that raises an
	// operator alert.
	AlertFailureThreshold int `yaml:"alert-failure-threshold"`
	// AlertCooldown suppresses repeat alerts for this duration.
	AlertCooldown time.Duration `yaml:"alert-cooldown"`
}

// Load reads and parses the configuration file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Sanitize()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file input.
func Default() *Config {
	cfg := &Config{}
	cfg.Sanitize()
	return cfg
}

// Sanitize normalizes the configuration and applies defaults for unset fields.
func (c *Config) Sanitize() {
	if c.Port == 0 {
		c.Port = 8317
	}
	if c.LogsDir == "" {
		c.LogsDir = "logs"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if key := os.Getenv("VOICECORE_MANAGEMENT_KEY"); key != "" {
		c.ManagementKey = key
	}
	c.hashManagementKey()

	c.Store.Driver = strings.TrimSpace(c.Store.Driver)
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite3"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite3" {
		c.Store.DSN = c.DataDir + "/voicecore.db"
	}

	if c.Triage.RuleSetTTL <= 0 {
		c.Triage.RuleSetTTL = time.Hour
	}

	if c.Resolver.Tier1MinConfidence <= 0 {
		c.Resolver.Tier1MinConfidence = 0.90
	}
	if c.Resolver.Tier2MinConfidence <= 0 {
		c.Resolver.Tier2MinConfidence = 0.72
	}
	if c.Resolver.Tier3MinConfidence <= 0 {
		c.Resolver.Tier3MinConfidence = 0.60
	}
	if c.Resolver.Tier3Timeout <= 0 {
		c.Resolver.Tier3Timeout = 400 * time.Millisecond
	}

	if c.Gate.MinPathSamples <= 0 {
		c.Gate.MinPathSamples = 5
	}
	if c.Gate.MinPathSuccessRate <= 0 {
		c.Gate.MinPathSuccessRate = 0.85
	}
	if c.Gate.KnownCallerHits <= 0 {
		c.Gate.KnownCallerHits = 3
	}

	if key := os.Getenv("LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.BudgetTokensPerWindow <= 0 {
		c.LLM.BudgetTokensPerWindow = 200000
	}
	if c.LLM.BudgetWindow <= 0 {
		c.LLM.BudgetWindow = time.Hour
	}
	if c.LLM.BreakerFailureThreshold <= 0 {
		c.LLM.BreakerFailureThreshold = 5
	}
	if c.LLM.BreakerCooldown <= 0 {
		c.LLM.BreakerCooldown = time.Minute
	}

	if c.Assembler.DefaultVariantWeight <= 0 {
		c.Assembler.DefaultVariantWeight = 3
	}
	if c.Assembler.VoiceFillerProbability <= 0 || c.Assembler.VoiceFillerProbability > 1 {
		c.Assembler.VoiceFillerProbability = 0.25
	}

	if c.Cache.AlertFailureThreshold <= 0 {
		c.Cache.AlertFailureThreshold = 10
	}
	if c.Cache.AlertCooldown <= 0 {
		c.Cache.AlertCooldown = 5 * time.Minute
	}
}

// hashManagementKey converts a plaintext management key into a bcrypt hash so
// the plaintext never stays resident. Already-hashed values pass through.
func (c *Config) hashManagementKey() {
	key := strings.TrimSpace(c.ManagementKey)
	if key == "" || strings.HasPrefix(key, "$2a$") || strings.HasPrefix(key, "$2b$") {
		c.ManagementKey = key
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return
	}
	c.ManagementKey = string(hash)
}

// CheckManagementKey reports whether the presented key matches the configured
// management key. An empty configured key rejects everything.
func (c *Config) CheckManagementKey(presented string) bool {
	if c.ManagementKey == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ManagementKey), []byte(presented)) == nil
}
