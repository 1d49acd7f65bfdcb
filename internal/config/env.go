// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnv overlays T2V_* environment variables onto cfg. Unset or
// malformed values leave the existing setting untouched.
func applyEnv(cfg *Config) {
	envStr("T2V_LISTEN", &cfg.Listen)
	envStr("T2V_DATA_DIR", &cfg.DataDir)
	envStr("T2V_FFMPEG_PATH", &cfg.FFmpegPath)
	envStr("T2V_LOG_LEVEL", &cfg.Log.Level)

	envInt("T2V_MAX_CONCURRENT_JOBS", &cfg.Limits.MaxConcurrentJobs)
	envInt("T2V_MAX_CONCURRENT_TTS", &cfg.Limits.MaxConcurrentTTS)
	envInt("T2V_MAX_CONCURRENT_VISUAL", &cfg.Limits.MaxConcurrentVisual)
	envFloat("T2V_CPU_SOFT_CEILING", &cfg.Limits.CPUSoftCeiling)
	envFloat("T2V_MEMORY_SOFT_CEILING", &cfg.Limits.MemorySoftCeiling)
	envFloat("T2V_MEMORY_CLEANUP_CEILING", &cfg.Limits.MemoryCleanupCeiling)

	envInt("T2V_CIRCUIT_FAILURE_THRESHOLD", &cfg.Circuit.FailureThreshold)
	envDur("T2V_CIRCUIT_COOLDOWN", &cfg.Circuit.Cooldown)

	envInt("T2V_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	envDur("T2V_RETRY_INITIAL_DELAY", &cfg.Retry.InitialDelay)
	envFloat("T2V_RETRY_MULTIPLIER", &cfg.Retry.Multiplier)

	envStr("T2V_REDIS_ADDR", &cfg.Cache.RedisAddr)
	envStr("T2V_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	envInt("T2V_REDIS_DB", &cfg.Cache.RedisDB)

	envInt("T2V_JOB_RETENTION_HOURS", &cfg.Job.RetentionHours)
	envInt("T2V_MAX_UPLOAD_SIZE_MB", &cfg.Upload.MaxSizeMB)

	envStr("T2V_LLM_BASE_URL", &cfg.LLM.BaseURL)
	envStr("T2V_LLM_API_KEY", &cfg.LLM.APIKey)
	envStr("T2V_LLM_MODEL", &cfg.LLM.Model)

	envStr("T2V_TTS_BASE_URL", &cfg.TTS.BaseURL)
	envStr("T2V_TTS_VOICE", &cfg.TTS.Voice)

	envStr("T2V_VISUAL_SLIDE_URL", &cfg.Visual.SlideURL)
	envStr("T2V_VISUAL_DIAGRAM_URL", &cfg.Visual.DiagramURL)
	envStr("T2V_VISUAL_CHART_URL", &cfg.Visual.ChartURL)
	envStr("T2V_VISUAL_FORMULA_URL", &cfg.Visual.FormulaURL)
	envStr("T2V_VISUAL_CODE_URL", &cfg.Visual.CodeURL)

	envBool("T2V_TRACING_ENABLED", &cfg.Tracing.Enabled)
	envStr("T2V_TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func envDur(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
