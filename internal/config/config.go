// Package config provides configuration management for cairn.
// It loads settings from environment variables with the CAIRN_ prefix and
// provides sensible defaults for all configuration options. There are no
// ambient globals: Load returns a Config that callers pass to constructors.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the cairn backend.
type Config struct {
	Storage  StorageConfig
	Search   SearchConfig
	Workflow WorkflowConfig
	Advisor  AdvisorConfig
	Linker   LinkerConfig
	Semantic SemanticConfig
	Patterns PatternsConfig
	Watcher  WatcherConfig
}

// StorageConfig locates the record root.
type StorageConfig struct {
	DataPath string // Root directory for record files (default: ./data)
}

// SearchConfig tunes the Query Engine. All values here are passed through to
// the engine; nothing is hard-coded at the call sites.
type SearchConfig struct {
	FuzzyFloor       int // Result count below which the fuzzy pass runs (default: 3)
	FuzzyMaxDistance int // Maximum edit distance for fuzzy matches (default: 2)

	RecentWindowHours int     // Full-freshness window (default: 24)
	RecentBoost       float64 // Multiplier inside the recent window (default: 5)
	MediumWindowDays  int     // Medium-freshness window (default: 7)
	MediumBoost       float64 // Multiplier inside the medium window (default: 3)

	SemanticK      int // Candidates requested from the semantic backend (default: 20)
	MaxSuggestions int // Suggestions returned on empty results (default: 5)
}

// WorkflowConfig tunes the Task Workflow Engine.
type WorkflowConfig struct {
	WIPLimit int // in_progress tasks per project before warning (default: 3, 0 disables)
}

// AdvisorConfig tunes the Automation Advisor.
type AdvisorConfig struct {
	AutomationEnabled  bool    // Opt-in for auto-applied suggestions (default: false)
	AutoApplyThreshold float64 // Minimum confidence for auto-apply (default: 0.8)
	StaleAfterDays     int     // Idle days before a stale-review advisory (default: 14)
}

// LinkerConfig tunes the Memory-Task Linker.
type LinkerConfig struct {
	RelevanceThreshold float64 // Minimum score for an automatic link (default: 0.3)
	MaxCandidates      int     // Records scanned per linking pass (default: 200)
}

// SemanticConfig configures the optional similarity backend and the guard
// rails around it. An empty DSN disables semantic search entirely.
type SemanticConfig struct {
	PostgresDSN    string  // pgvector sidecar DSN; empty disables the backend
	OllamaURL      string  // Embedding endpoint (default: http://localhost:11434)
	EmbedModel     string  // Embedding model name (default: nomic-embed-text)
	TimeoutMS      int     // Per-call deadline in milliseconds (default: 2000)
	MaxFailures    int     // Consecutive failures that open the breaker (default: 3)
	CooldownSec    int     // Seconds the breaker stays open (default: 30)
	CallsPerSecond float64 // Request rate cap (default: 5)
}

// Timeout returns the per-call deadline as a duration.
func (s SemanticConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Cooldown returns the breaker cooldown as a duration.
func (s SemanticConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownSec) * time.Second
}

// PatternsConfig tunes the Work Pattern Detector.
type PatternsConfig struct {
	Enabled            bool   // Record external actions and detect episodes (default: true)
	LogPath            string // SQLite action log path (default: <DataPath>/actions.db)
	EpisodeGapMinutes  int    // Idle gap that closes a work episode (default: 15)
	HousekeepingMinute int    // Housekeeping ticker interval in minutes (default: 30)
}

// WatcherConfig tunes the external-edit watcher.
type WatcherConfig struct {
	Enabled bool // Watch the record root for external edits (default: true)
}

// Load builds a Config from CAIRN_* environment variables with defaults.
func Load() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			DataPath: getEnv("CAIRN_DATA_PATH", "./data"),
		},
		Search: SearchConfig{
			FuzzyFloor:        getEnvInt("CAIRN_SEARCH_FUZZY_FLOOR", 3),
			FuzzyMaxDistance:  getEnvInt("CAIRN_SEARCH_FUZZY_MAX_DISTANCE", 2),
			RecentWindowHours: getEnvInt("CAIRN_SEARCH_RECENT_WINDOW_HOURS", 24),
			RecentBoost:       getEnvFloat("CAIRN_SEARCH_RECENT_BOOST", 5),
			MediumWindowDays:  getEnvInt("CAIRN_SEARCH_MEDIUM_WINDOW_DAYS", 7),
			MediumBoost:       getEnvFloat("CAIRN_SEARCH_MEDIUM_BOOST", 3),
			SemanticK:         getEnvInt("CAIRN_SEARCH_SEMANTIC_K", 20),
			MaxSuggestions:    getEnvInt("CAIRN_SEARCH_MAX_SUGGESTIONS", 5),
		},
		Workflow: WorkflowConfig{
			WIPLimit: getEnvInt("CAIRN_WORKFLOW_WIP_LIMIT", 3),
		},
		Advisor: AdvisorConfig{
			AutomationEnabled:  getEnvBool("CAIRN_ADVISOR_AUTOMATION", false),
			AutoApplyThreshold: getEnvFloat("CAIRN_ADVISOR_AUTO_THRESHOLD", 0.8),
			StaleAfterDays:     getEnvInt("CAIRN_ADVISOR_STALE_DAYS", 14),
		},
		Linker: LinkerConfig{
			RelevanceThreshold: getEnvFloat("CAIRN_LINKER_THRESHOLD", 0.3),
			MaxCandidates:      getEnvInt("CAIRN_LINKER_MAX_CANDIDATES", 200),
		},
		Semantic: SemanticConfig{
			PostgresDSN:    getEnv("CAIRN_SEMANTIC_POSTGRES_DSN", ""),
			OllamaURL:      getEnv("CAIRN_SEMANTIC_OLLAMA_URL", "http://localhost:11434"),
			EmbedModel:     getEnv("CAIRN_SEMANTIC_EMBED_MODEL", "nomic-embed-text"),
			TimeoutMS:      getEnvInt("CAIRN_SEMANTIC_TIMEOUT_MS", 2000),
			MaxFailures:    getEnvInt("CAIRN_SEMANTIC_MAX_FAILURES", 3),
			CooldownSec:    getEnvInt("CAIRN_SEMANTIC_COOLDOWN_SEC", 30),
			CallsPerSecond: getEnvFloat("CAIRN_SEMANTIC_CALLS_PER_SEC", 5),
		},
		Patterns: PatternsConfig{
			Enabled:            getEnvBool("CAIRN_PATTERNS_ENABLED", true),
			LogPath:            getEnv("CAIRN_PATTERNS_LOG_PATH", ""),
			EpisodeGapMinutes:  getEnvInt("CAIRN_PATTERNS_EPISODE_GAP_MIN", 15),
			HousekeepingMinute: getEnvInt("CAIRN_PATTERNS_HOUSEKEEPING_MIN", 30),
		},
		Watcher: WatcherConfig{
			Enabled: getEnvBool("CAIRN_WATCH_RECORDS", true),
		},
	}
	if cfg.Patterns.LogPath == "" {
		cfg.Patterns.LogPath = cfg.Storage.DataPath + "/actions.db"
	}
	return cfg
}

// Reload re-reads the environment and replaces the receiver's contents.
func (c *Config) Reload() {
	*c = *Load()
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
