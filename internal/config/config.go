// Package config loads and validates memory-loop's daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all memory-loop daemon configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// VaultsRoot is the parent directory under which vaults are discovered.
	VaultsRoot string `yaml:"vaults_root"`

	// StateDir is the per-process config/state directory, holding logs
	// (e.g. "$HOME/.memory-loop"). Processing ledgers are not kept here;
	// each vault's ledger lives under that vault's metadata subtree.
	StateDir string `yaml:"state_dir"`

	// MemoryFilePath is the absolute path to the global memory file.
	MemoryFilePath string `yaml:"memory_file_path"`

	// SandboxDir is the writable staging area for extraction. A relative
	// path is resolved against each vault's Root, not against VaultsRoot.
	SandboxDir string `yaml:"sandbox_dir"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sync      SyncConfig      `yaml:"sync"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Cards     CardsConfig     `yaml:"cards"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SchedulerConfig configures the cron-like scheduler (C4).
type SchedulerConfig struct {
	// DailyCron is a standard 5-field cron expression for the daily trigger.
	// Default corresponds to "0 3 * * *" (3 AM).
	DailyCron string `yaml:"daily_cron"`

	// WeeklyCron is a cron expression for a weekly trigger. Default
	// corresponds to "0 3 * * 0" (Sunday 3 AM). serve does not read it: the
	// Card Discovery weekly trigger is built from Cards.Hour.
	WeeklyCron string `yaml:"weekly_cron"`

	// Timezone is the IANA timezone name used to evaluate cron expressions.
	Timezone string `yaml:"timezone"`

	// CatchupHours is the threshold (hours) past which a missed run
	// triggers an immediate catch-up run on startup.
	CatchupHours int `yaml:"catchup_hours"`
}

// SyncConfig configures the Sync Engine (C7).
type SyncConfig struct {
	// IncrementalThresholdHours is the default incremental freshness window.
	IncrementalThresholdHours int `yaml:"incremental_threshold_hours"`
}

// ExtractionConfig configures the Sandboxed Extraction Driver (C9).
type ExtractionConfig struct {
	// MemoryByteLimit is the hard cap for the global memory file (C8).
	MemoryByteLimit int `yaml:"memory_byte_limit"`

	// MemoryWarnBytes is a warning threshold below the hard cap. No
	// component reads it; nothing warns when the memory file passes it.
	MemoryWarnBytes int `yaml:"memory_warn_bytes"`

	// DuplicateSimilarityThreshold is a Levenshtein-similarity floor for
	// duplicate facts. The memory store does not read it; it always uses
	// its own fixed 0.9 threshold.
	DuplicateSimilarityThreshold float64 `yaml:"duplicate_similarity_threshold"`
}

// CardsConfig configures the Card Discovery Engine (C10).
type CardsConfig struct {
	// Hour is the hour-of-day (0-23) at which the daily and weekly
	// triggers fire, overridable by CARD_DISCOVERY_HOUR.
	Hour int `yaml:"hour"`

	// WeeklyByteBudget caps bytes of vault note content processed per
	// ISO week during the weekly catch-up pass.
	WeeklyByteBudget int `yaml:"weekly_byte_budget"`

	// RecentWindowHours is a recency window for the daily pass. The card
	// engine does not read it; its daily pass always uses a fixed 24-hour
	// window.
	RecentWindowHours int `yaml:"recent_window_hours"`
}

// LLMConfig configures the LLM gateway used by C6, C9, and C10.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "genai" or "stub"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Name:           "memory-loop",
		Version:        "0.1.0",
		VaultsRoot:     filepath.Join(home, "vaults"),
		StateDir:       filepath.Join(home, ".memory-loop"),
		MemoryFilePath: filepath.Join(home, ".claude", "rules", "memory.md"),
		SandboxDir:     ".memory-loop-sandbox",

		Scheduler: SchedulerConfig{
			DailyCron:    "0 3 * * *",
			WeeklyCron:   "0 3 * * 0",
			Timezone:     "Local",
			CatchupHours: 24,
		},

		Sync: SyncConfig{
			IncrementalThresholdHours: 24,
		},

		Extraction: ExtractionConfig{
			MemoryByteLimit:              50 * 1024,
			MemoryWarnBytes:              45 * 1024,
			DuplicateSimilarityThreshold: 0.9,
		},

		Cards: CardsConfig{
			Hour:              3,
			WeeklyByteBudget:  500 * 1024,
			RecentWindowHours: 24,
		},

		LLM: LLMConfig{
			Provider: "stub",
			Timeout:  "120s",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults for
// a missing file and always applying environment overrides afterward.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration back to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies the environment variables named in spec.md §6.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EXTRACTION_SCHEDULE"); v != "" {
		c.Scheduler.DailyCron = v
	}
	if v := os.Getenv("EXTRACTION_CATCHUP_HOURS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.Scheduler.CatchupHours = n
		}
	}
	if v := os.Getenv("CARD_DISCOVERY_HOUR"); v != "" {
		if n, err := parsePositiveInt(v); err == nil && n >= 0 && n <= 23 {
			c.Cards.Hour = n
		}
	}
	if v := os.Getenv("MEMORY_LOOP_MEMORY_FILE"); v != "" {
		c.MemoryFilePath = v
	}
	if v := os.Getenv("MEMORY_LOOP_VAULTS_ROOT"); v != "" {
		c.VaultsRoot = v
	}
	if v := os.Getenv("MEMORY_LOOP_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
		c.LLM.Provider = "genai"
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value: %s", s)
	}
	return n, nil
}

// GetLLMTimeout returns the LLM gateway timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetCatchupThreshold returns the catch-up threshold as a duration.
func (c *SchedulerConfig) GetCatchupThreshold() time.Duration {
	if c.CatchupHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.CatchupHours) * time.Hour
}
