// SPDX-License-Identifier: MIT

// Package script generates the scene-by-scene video script from extracted
// document text via an LLM, with a deterministic fallback.
package script

import (
	"context"
	"fmt"
	"time"

	"github.com/hoangtv090103/text-to-video/internal/cache"
	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
	"github.com/hoangtv090103/text-to-video/internal/model"
	"github.com/hoangtv090103/text-to-video/internal/resilience"
)

// Chatter is the minimal LLM surface the service needs.
type Chatter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service produces validated scripts. LLM calls are wrapped
// cache -> circuit breaker -> retry; total failure falls back to a
// deterministic slide script so the job can proceed.
type Service struct {
	llm             Chatter
	model           string
	templateVersion string
	cacheLayer      *cache.Layer
	breaker         *resilience.CircuitBreaker
	retry           resilience.RetryPolicy
	timeout         time.Duration
}

// Config wires a Service.
type Config struct {
	LLM             Chatter
	Model           string
	TemplateVersion string
	Cache           *cache.Layer
	Breaker         *resilience.CircuitBreaker
	Retry           resilience.RetryPolicy
	Timeout         time.Duration
}

// NewService creates a script service.
func NewService(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.TemplateVersion == "" {
		cfg.TemplateVersion = "v1"
	}
	return &Service{
		llm:             cfg.LLM,
		model:           cfg.Model,
		templateVersion: cfg.TemplateVersion,
		cacheLayer:      cfg.Cache,
		breaker:         cfg.Breaker,
		retry:           cfg.Retry,
		timeout:         cfg.Timeout,
	}
}

// Generate returns a script for the given source text. The result always
// satisfies the 3-7 scene bound; scenes violating per-scene content bounds
// are kept but marked failed so the pipeline can skip them.
func (s *Service) Generate(ctx context.Context, sourceText, filename string) (*model.Script, error) {
	logger := log.WithComponentFromContext(ctx, "script")

	key := cache.Fingerprint(cache.NormalizeText(sourceText), s.model, s.templateVersion)

	script, err := cache.GetOrComputeJSON(ctx, s.cacheLayer, cache.NamespaceScript, key,
		func(ctx context.Context) (*model.Script, error) {
			return s.generateUncached(ctx, sourceText, filename)
		})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn().Err(err).Msg("LLM script generation failed, using fallback script")
		script = Fallback(sourceText)
	}

	markInvalidScenes(script)
	return script, nil
}

func (s *Service) generateUncached(ctx context.Context, sourceText, filename string) (*model.Script, error) {
	logger := log.WithComponentFromContext(ctx, "script")

	var script *model.Script
	err := s.breaker.Execute(func() error {
		return resilience.Retry(ctx, "llm_script", s.retry, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			raw, err := s.llm.Complete(callCtx, systemPrompt, userPrompt(sourceText, filename))
			if err != nil {
				metrics.RecordExternalCall("llm", "error")
				return fmt.Errorf("llm completion: %w", err)
			}
			metrics.RecordExternalCall("llm", "success")

			parsed, err := ParseResponse(raw)
			if err != nil {
				// Malformed output gets one reparse with the relaxed
				// patterns before counting as a failed attempt.
				parsed, err = reparseLenient(raw)
				if err != nil {
					return fmt.Errorf("parse llm response: %w", err)
				}
			}

			script = repairSceneCount(parsed)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("scenes", len(script.Scenes)).
		Msg("script generated")
	return script, nil
}

// repairSceneCount pads short scripts with filler slide scenes and truncates
// long ones, so every persisted script satisfies the 3-7 bound.
func repairSceneCount(sc *model.Script) *model.Script {
	if len(sc.Scenes) > model.MaxScenes {
		sc.Scenes = sc.Scenes[:model.MaxScenes]
	}
	for len(sc.Scenes) < model.MinScenes {
		filler := fallbackScene(len(sc.Scenes)+1, len(sc.Scenes)+1 == 1, false)
		sc.Scenes = append(sc.Scenes, filler)
	}
	// Re-number so IDs stay unique and ordered after repair.
	for i := range sc.Scenes {
		sc.Scenes[i].ID = i + 1
	}
	return sc
}

// markInvalidScenes flags scenes whose content violates the per-scene
// bounds. They stay in the script but are skipped by the asset fan-out.
func markInvalidScenes(sc *model.Script) {
	for i := range sc.Scenes {
		scene := &sc.Scenes[i]
		if scene.Status != "" && scene.Status != model.SceneStatusPending {
			continue
		}
		scene.Status = model.SceneStatusPending
		if err := scene.Validate(); err != nil {
			scene.Status = model.SceneStatusFailed
			scene.Error = err.Error()
		}
	}
}
