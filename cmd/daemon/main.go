// SPDX-License-Identifier: MIT

// Command daemon runs the text-to-video orchestration service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hoangtv090103/text-to-video/internal/api"
	"github.com/hoangtv090103/text-to-video/internal/assets"
	"github.com/hoangtv090103/text-to-video/internal/cache"
	"github.com/hoangtv090103/text-to-video/internal/composer"
	"github.com/hoangtv090103/text-to-video/internal/config"
	"github.com/hoangtv090103/text-to-video/internal/health"
	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/model"
	"github.com/hoangtv090103/text-to-video/internal/orchestrator"
	"github.com/hoangtv090103/text-to-video/internal/queue"
	"github.com/hoangtv090103/text-to-video/internal/resilience"
	"github.com/hoangtv090103/text-to-video/internal/resource"
	"github.com/hoangtv090103/text-to-video/internal/script"
	"github.com/hoangtv090103/text-to-video/internal/store"
	"github.com/hoangtv090103/text-to-video/internal/telemetry"
	"github.com/hoangtv090103/text-to-video/internal/tts"
)

// version is set by the build.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Service: "text-to-video",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "text-to-video",
		Version:     version,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Cache: Redis when configured and reachable, in-memory otherwise.
	var backend cache.Backend
	var redisBackend *cache.RedisBackend
	if cfg.Cache.RedisAddr != "" {
		redisBackend, err = cache.NewRedisBackend(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, log.WithComponent("cache"))
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-memory cache")
		} else {
			backend = redisBackend
			defer redisBackend.Close()
		}
	}
	if backend == nil {
		backend = cache.NewMemoryBackend(5 * time.Minute)
	}
	cacheLayer := cache.NewLayer(backend, cache.TTLs{
		Script: cfg.Cache.ScriptTTL,
		Audio:  cfg.Cache.AudioTTL,
		Visual: cfg.Cache.VisualTTL,
	})

	governor := resource.NewGovernor(resource.Limits{
		MaxConcurrentJobs:    cfg.Limits.MaxConcurrentJobs,
		MaxConcurrentTTS:     cfg.Limits.MaxConcurrentTTS,
		MaxConcurrentVisual:  cfg.Limits.MaxConcurrentVisual,
		CPUSoftCeiling:       cfg.Limits.CPUSoftCeiling,
		MemorySoftCeiling:    cfg.Limits.MemorySoftCeiling,
		MemoryCleanupCeiling: cfg.Limits.MemoryCleanupCeiling,
	})
	governor.SetCleanupFunc(func(ctx context.Context) { cacheLayer.EvictPass(ctx) })

	retryPolicy := resilience.RetryPolicy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter,
	}
	var breakers []*resilience.CircuitBreaker
	newBreaker := func(name string) *resilience.CircuitBreaker {
		cb := resilience.NewCircuitBreaker(name, cfg.Circuit.FailureThreshold, cfg.Circuit.Cooldown)
		breakers = append(breakers, cb)
		return cb
	}

	jobStore, err := store.New(cfg.DataDir, time.Duration(cfg.Job.RetentionHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("init job store: %w", err)
	}

	llmClient := script.NewOpenAIChatter(script.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	scriptSvc := script.NewService(script.Config{
		LLM:             llmClient,
		Model:           cfg.LLM.Model,
		TemplateVersion: cfg.LLM.TemplateVersion,
		Cache:           cacheLayer,
		Breaker:         newBreaker("llm"),
		Retry:           retryPolicy,
		Timeout:         cfg.LLM.Timeout,
	})

	ttsSvc, err := tts.NewService(tts.Config{
		BaseURL: cfg.TTS.BaseURL,
		Params: tts.VoiceParams{
			Voice:        cfg.TTS.Voice,
			Format:       cfg.TTS.Format,
			Speed:        cfg.TTS.Speed,
			Exaggeration: cfg.TTS.Exaggeration,
			CfgWeight:    cfg.TTS.CfgWeight,
			Temperature:  cfg.TTS.Temperature,
		},
		AudioDir:       filepath.Join(cfg.DataDir, "audio"),
		ConnectTimeout: cfg.TTS.ConnectTimeout,
		ReadTimeout:    cfg.TTS.ReadTimeout,
		Cache:          cacheLayer,
		Breaker:        newBreaker("tts"),
		Retry:          retryPolicy,
		Governor:       governor,
	})
	if err != nil {
		return fmt.Errorf("init tts: %w", err)
	}

	visualSvc, err := assets.NewService(assets.Config{
		Endpoints: assets.Endpoints{
			Slide:   cfg.Visual.SlideURL,
			Diagram: cfg.Visual.DiagramURL,
			Graph:   cfg.Visual.ChartURL,
			Formula: cfg.Visual.FormulaURL,
			Code:    cfg.Visual.CodeURL,
			Timeout: cfg.Visual.Timeout,
		},
		VisualDir: filepath.Join(cfg.DataDir, "visuals"),
		Cache:     cacheLayer,
		Breakers: map[model.VisualType]*resilience.CircuitBreaker{
			model.VisualSlide:   newBreaker("visual_slide"),
			model.VisualDiagram: newBreaker("visual_diagram"),
			model.VisualGraph:   newBreaker("visual_graph"),
			model.VisualFormula: newBreaker("visual_formula"),
			model.VisualCode:    newBreaker("visual_code"),
		},
		Retry:    retryPolicy,
		Governor: governor,
	})
	if err != nil {
		return fmt.Errorf("init visual service: %w", err)
	}

	comp, err := composer.New(composer.Config{
		FFmpegPath: cfg.FFmpegPath,
		VideoDir:   filepath.Join(cfg.DataDir, "videos"),
		WorkDir:    filepath.Join(cfg.DataDir, "work"),
	})
	if err != nil {
		return fmt.Errorf("init composer: %w", err)
	}

	jobQueue := queue.New(cfg.Limits.MaxQueueSize)
	orch := orchestrator.New(orchestrator.Deps{
		Store:    jobStore,
		Queue:    jobQueue,
		Governor: governor,
		Script:   scriptSvc,
		TTS:      ttsSvc,
		Visual:   visualSvc,
		Composer: comp,
		Workers:  cfg.Limits.MaxConcurrentJobs,
	})

	var redisPinger health.Pinger
	if redisBackend != nil {
		redisPinger = redisBackend
	}
	checker := health.New(health.Config{
		Governor:   governor,
		Cache:      cacheLayer,
		Redis:      redisPinger,
		Breakers:   breakers,
		Providers:  map[string]health.Pinger{"tts": ttsSvc, "llm": llmClient},
		QueueLen:   jobQueue.Len,
		ActiveJobs: jobStore.CountActive,
	})

	uploadDir := filepath.Join(cfg.DataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	server := api.NewServer(&cfg, orch, checker, uploadDir)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		orch.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		jobStore.RunSweeper(ctx, cfg.Job.SnapshotInterval)
	}()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			logger.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	logger.Info().Str("listen", cfg.Listen).Str("version", version).Msg("daemon started")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		wg.Wait()
		return err
	}

	wg.Wait()
	logger.Info().Msg("daemon stopped")
	return nil
}
