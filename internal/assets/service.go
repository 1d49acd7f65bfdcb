// SPDX-License-Identifier: MIT

package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hoangtv090103/text-to-video/internal/cache"
	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
	"github.com/hoangtv090103/text-to-video/internal/model"
	"github.com/hoangtv090103/text-to-video/internal/resilience"
	"github.com/hoangtv090103/text-to-video/internal/resource"
)

// Endpoints maps each visual type to its renderer base URL.
type Endpoints struct {
	Slide   string
	Diagram string
	Graph   string
	Formula string
	Code    string
	Timeout time.Duration
}

// Config wires a Service.
type Config struct {
	Endpoints Endpoints
	VisualDir string

	Cache    *cache.Layer
	Breakers map[model.VisualType]*resilience.CircuitBreaker
	Retry    resilience.RetryPolicy
	Governor *resource.Governor
}

// Service renders scene visuals. Each visual type has its own renderer and
// circuit breaker, so one failing provider does not blind the others.
// Calls are wrapped cache -> breaker -> retry -> visual slot; when every
// attempt fails a placeholder SVG is produced instead of an error.
type Service struct {
	renderers map[model.VisualType]Renderer
	breakers  map[model.VisualType]*resilience.CircuitBreaker
	visualDir string

	cacheLayer *cache.Layer
	retry      resilience.RetryPolicy
	governor   *resource.Governor
}

// NewService creates the visual service and its output directory.
func NewService(cfg Config) (*Service, error) {
	if err := os.MkdirAll(cfg.VisualDir, 0o750); err != nil {
		return nil, fmt.Errorf("create visual dir: %w", err)
	}

	renderers := map[model.VisualType]Renderer{
		model.VisualSlide:   NewHTTPRenderer(cfg.Endpoints.Slide, model.VisualSlide, cfg.Endpoints.Timeout),
		model.VisualDiagram: NewHTTPRenderer(cfg.Endpoints.Diagram, model.VisualDiagram, cfg.Endpoints.Timeout),
		model.VisualGraph:   NewHTTPRenderer(cfg.Endpoints.Graph, model.VisualGraph, cfg.Endpoints.Timeout),
		model.VisualFormula: NewHTTPRenderer(cfg.Endpoints.Formula, model.VisualFormula, cfg.Endpoints.Timeout),
		model.VisualCode:    NewHTTPRenderer(cfg.Endpoints.Code, model.VisualCode, cfg.Endpoints.Timeout),
	}

	return &Service{
		renderers:  renderers,
		breakers:   cfg.Breakers,
		visualDir:  cfg.VisualDir,
		cacheLayer: cfg.Cache,
		retry:      cfg.Retry,
		governor:   cfg.Governor,
	}, nil
}

// SetRenderer overrides one renderer (tests).
func (s *Service) SetRenderer(kind model.VisualType, r Renderer) {
	s.renderers[kind] = r
}

// Render produces the visual asset for a scene. It never returns an error
// for render failures; those degrade to a placeholder with the error
// recorded on the asset. Only context cancellation propagates.
func (s *Service) Render(ctx context.Context, scene *model.Scene) (*model.VisualAsset, error) {
	logger := log.WithComponentFromContext(ctx, "assets")

	kind := model.NormalizeVisualType(string(scene.VisualType))
	key := cache.Fingerprint(string(kind), cache.NormalizeText(scene.VisualPrompt))

	asset, err := s.cachedRender(ctx, scene, kind, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn().
			Err(err).
			Int(log.FieldSceneID, scene.ID).
			Str(log.FieldVisualType, string(kind)).
			Msg("visual render failed, writing placeholder")
		metrics.RecordSceneAsset("visual", "degraded")

		placeholder, perr := WritePlaceholder(s.visualDir, scene.ID, err)
		if perr != nil {
			return nil, fmt.Errorf("render failed (%w) and placeholder failed: %v", err, perr)
		}
		return placeholder, nil
	}

	metrics.RecordSceneAsset("visual", "success")
	out := *asset
	out.SceneID = scene.ID
	return &out, nil
}

func (s *Service) cachedRender(ctx context.Context, scene *model.Scene, kind model.VisualType, key string) (*model.VisualAsset, error) {
	asset, err := cache.GetOrComputeJSON(ctx, s.cacheLayer, cache.NamespaceVisual, key,
		func(ctx context.Context) (*model.VisualAsset, error) {
			return s.renderUncached(ctx, scene, kind, key)
		})
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(asset.Path); statErr != nil {
		s.cacheLayer.Invalidate(ctx, cache.NamespaceVisual, key)
		asset, err = cache.GetOrComputeJSON(ctx, s.cacheLayer, cache.NamespaceVisual, key,
			func(ctx context.Context) (*model.VisualAsset, error) {
				return s.renderUncached(ctx, scene, kind, key)
			})
		if err != nil {
			return nil, err
		}
	}
	return asset, nil
}

func (s *Service) renderUncached(ctx context.Context, scene *model.Scene, kind model.VisualType, key string) (*model.VisualAsset, error) {
	renderer, ok := s.renderers[kind]
	if !ok {
		renderer = s.renderers[model.VisualSlide]
	}
	breaker := s.breakers[kind]
	outPath := filepath.Join(s.visualDir, key+".png")

	var asset *model.VisualAsset
	err := breaker.Execute(func() error {
		return resilience.Retry(ctx, "visual_render_"+string(kind), s.retry, func(ctx context.Context) error {
			permit, err := s.governor.Acquire(ctx, resource.SlotVisual)
			if err != nil {
				return err
			}
			defer permit.Release()

			a, err := renderer.Render(ctx, scene.VisualPrompt, outPath)
			if err != nil {
				metrics.RecordExternalCall("visual_"+string(kind), "error")
				return err
			}
			metrics.RecordExternalCall("visual_"+string(kind), "success")
			asset = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	asset.Fingerprint = key
	return asset, nil
}
