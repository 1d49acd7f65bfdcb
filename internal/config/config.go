// SPDX-License-Identifier: MIT

// Package config loads and validates the daemon configuration from an
// optional YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Listen     string        `yaml:"listen"`
	DataDir    string        `yaml:"data_dir"`
	FFmpegPath string        `yaml:"ffmpeg_path"`
	Log        LogConfig     `yaml:"log"`
	Limits     LimitsConfig  `yaml:"limits"`
	Circuit    CircuitConfig `yaml:"circuit"`
	Retry      RetryConfig   `yaml:"retry"`
	Cache      CacheConfig   `yaml:"cache"`
	Job        JobConfig     `yaml:"job"`
	Upload     UploadConfig  `yaml:"upload"`
	LLM        LLMConfig     `yaml:"llm"`
	TTS        TTSConfig     `yaml:"tts"`
	Visual     VisualConfig  `yaml:"visual"`
	Tracing    TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OTLP trace export. Disabled by default.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // collector host:port, no scheme
	Insecure bool   `yaml:"insecure"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LimitsConfig bounds process-wide concurrency and load.
type LimitsConfig struct {
	MaxConcurrentJobs    int     `yaml:"max_concurrent_jobs"`
	MaxConcurrentTTS     int     `yaml:"max_concurrent_tts"`
	MaxConcurrentVisual  int     `yaml:"max_concurrent_visual"`
	CPUSoftCeiling       float64 `yaml:"cpu_soft_ceiling"`
	MemorySoftCeiling    float64 `yaml:"memory_soft_ceiling"`
	MemoryCleanupCeiling float64 `yaml:"memory_cleanup_ceiling"`
	MaxQueueSize         int     `yaml:"max_queue_size"`
}

type CircuitConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
}

type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	ScriptTTL     time.Duration `yaml:"script_ttl"`
	AudioTTL      time.Duration `yaml:"audio_ttl"`
	VisualTTL     time.Duration `yaml:"visual_ttl"`
}

type JobConfig struct {
	RetentionHours   int           `yaml:"retention_hours"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

type UploadConfig struct {
	MaxSizeMB    int      `yaml:"max_size_mb"`
	AllowedTypes []string `yaml:"allowed_types"`
}

type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// TemplateVersion participates in the script cache key so prompt
	// changes invalidate cached scripts.
	TemplateVersion string `yaml:"template_version"`
}

type TTSConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Voice          string        `yaml:"voice"`
	Format         string        `yaml:"format"`
	Speed          float64       `yaml:"speed"`
	Exaggeration   float64       `yaml:"exaggeration"`
	CfgWeight      float64       `yaml:"cfg_weight"`
	Temperature    float64       `yaml:"temperature"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// VisualConfig holds one endpoint per renderer kind.
type VisualConfig struct {
	SlideURL   string        `yaml:"slide_url"`
	DiagramURL string        `yaml:"diagram_url"`
	ChartURL   string        `yaml:"chart_url"`
	FormulaURL string        `yaml:"formula_url"`
	CodeURL    string        `yaml:"code_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Default returns the configuration defaults documented in the README.
func Default() Config {
	return Config{
		Listen:     ":8080",
		DataDir:    "data",
		FFmpegPath: "ffmpeg",
		Log:        LogConfig{Level: "info"},
		Limits: LimitsConfig{
			MaxConcurrentJobs:    3,
			MaxConcurrentTTS:     2,
			MaxConcurrentVisual:  4,
			CPUSoftCeiling:       80,
			MemorySoftCeiling:    85,
			MemoryCleanupCeiling: 70,
			MaxQueueSize:         100,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2,
			Jitter:       0.1,
		},
		Cache: CacheConfig{
			ScriptTTL: 24 * time.Hour,
			AudioTTL:  24 * time.Hour,
			VisualTTL: 24 * time.Hour,
		},
		Job: JobConfig{
			RetentionHours:   24,
			SnapshotInterval: 60 * time.Second,
		},
		Upload: UploadConfig{
			MaxSizeMB:    50,
			AllowedTypes: []string{"txt", "md", "pdf"},
		},
		LLM: LLMConfig{
			Model:           "gpt-4o-mini",
			Timeout:         60 * time.Second,
			TemplateVersion: "v1",
		},
		TTS: TTSConfig{
			BaseURL:        "http://localhost:4123",
			Voice:          "alloy",
			Format:         "wav",
			Speed:          1,
			Exaggeration:   0.2,
			CfgWeight:      0.4,
			Temperature:    0.2,
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    60 * time.Second,
		},
		Visual: VisualConfig{
			Timeout: 60 * time.Second,
		},
	}
}

// Load reads the config file at path (if non-empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Limits.MaxConcurrentJobs < 1 {
		return fmt.Errorf("limits.max_concurrent_jobs must be >= 1, got %d", c.Limits.MaxConcurrentJobs)
	}
	if c.Limits.MaxConcurrentTTS < 1 {
		return fmt.Errorf("limits.max_concurrent_tts must be >= 1, got %d", c.Limits.MaxConcurrentTTS)
	}
	if c.Limits.MaxConcurrentVisual < 1 {
		return fmt.Errorf("limits.max_concurrent_visual must be >= 1, got %d", c.Limits.MaxConcurrentVisual)
	}
	if c.Circuit.FailureThreshold < 1 {
		return fmt.Errorf("circuit.failure_threshold must be >= 1, got %d", c.Circuit.FailureThreshold)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %g", c.Retry.Multiplier)
	}
	if c.Upload.MaxSizeMB < 1 {
		return fmt.Errorf("upload.max_size_mb must be >= 1, got %d", c.Upload.MaxSizeMB)
	}
	if c.Job.RetentionHours < 1 {
		return fmt.Errorf("job.retention_hours must be >= 1, got %d", c.Job.RetentionHours)
	}
	return nil
}

// MaxUploadBytes is the upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) * 1024 * 1024
}

// TypeAllowed reports whether the upload extension is accepted.
func (c *Config) TypeAllowed(ext string) bool {
	for _, t := range c.Upload.AllowedTypes {
		if t == ext {
			return true
		}
	}
	return false
}
