// SPDX-License-Identifier: MIT

// Package tts synthesizes scene narration into WAV files through an
// OpenAI-compatible speech endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/hoangtv090103/text-to-video/internal/cache"
	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
	"github.com/hoangtv090103/text-to-video/internal/model"
	"github.com/hoangtv090103/text-to-video/internal/resilience"
	"github.com/hoangtv090103/text-to-video/internal/resource"
)

// VoiceParams are the synthesis knobs sent with every request.
type VoiceParams struct {
	Voice        string  `json:"voice"`
	Format       string  `json:"response_format"`
	Speed        float64 `json:"speed"`
	Exaggeration float64 `json:"exaggeration"`
	CfgWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
}

// DefaultVoiceParams returns the documented synthesis defaults.
func DefaultVoiceParams() VoiceParams {
	return VoiceParams{
		Voice:        "alloy",
		Format:       "wav",
		Speed:        1,
		Exaggeration: 0.2,
		CfgWeight:    0.4,
		Temperature:  0.2,
	}
}

// Config wires a Service.
type Config struct {
	BaseURL        string
	Params         VoiceParams
	AudioDir       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	Cache    *cache.Layer
	Breaker  *resilience.CircuitBreaker
	Retry    resilience.RetryPolicy
	Governor *resource.Governor
}

// Service turns narration text into audio assets. Calls are wrapped
// cache -> circuit breaker -> retry -> tts slot, so a cache hit consumes
// neither a permit nor a provider call.
type Service struct {
	baseURL  string
	params   VoiceParams
	audioDir string
	client   *http.Client

	cacheLayer *cache.Layer
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryPolicy
	governor   *resource.Governor
}

// NewService creates the TTS service and its audio directory.
func NewService(cfg Config) (*Service, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o750); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.ConnectTimeout

	return &Service{
		baseURL:    cfg.BaseURL,
		params:     cfg.Params,
		audioDir:   cfg.AudioDir,
		client:     &http.Client{Transport: transport, Timeout: cfg.ReadTimeout},
		cacheLayer: cfg.Cache,
		breaker:    cfg.Breaker,
		retry:      cfg.Retry,
		governor:   cfg.Governor,
	}, nil
}

// HealthCheck probes the provider's health endpoint.
func (s *Service) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("tts health request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts health: status %d", resp.StatusCode)
	}
	return nil
}

// Synthesize returns an audio asset for the scene's narration, reusing a
// cached file when the same text and voice settings were synthesized before.
func (s *Service) Synthesize(ctx context.Context, scene *model.Scene) (*model.AudioAsset, error) {
	key := s.fingerprint(scene.NarrationText)

	asset, err := cache.GetOrComputeJSON(ctx, s.cacheLayer, cache.NamespaceAudio, key,
		func(ctx context.Context) (*model.AudioAsset, error) {
			return s.synthesizeUncached(ctx, scene, key)
		})
	if err != nil {
		return nil, err
	}

	// A cached entry can outlive its file after a cleanup pass.
	if _, statErr := os.Stat(asset.Path); statErr != nil {
		s.cacheLayer.Invalidate(ctx, cache.NamespaceAudio, key)
		asset, err = cache.GetOrComputeJSON(ctx, s.cacheLayer, cache.NamespaceAudio, key,
			func(ctx context.Context) (*model.AudioAsset, error) {
				return s.synthesizeUncached(ctx, scene, key)
			})
		if err != nil {
			return nil, err
		}
	}

	out := *asset
	out.SceneID = scene.ID
	return &out, nil
}

func (s *Service) fingerprint(narration string) string {
	return cache.Fingerprint(
		cache.NormalizeText(narration),
		s.params.Voice,
		s.params.Format,
		fmt.Sprintf("%g:%g:%g:%g", s.params.Speed, s.params.Exaggeration, s.params.CfgWeight, s.params.Temperature),
	)
}

func (s *Service) synthesizeUncached(ctx context.Context, scene *model.Scene, key string) (*model.AudioAsset, error) {
	logger := log.WithComponentFromContext(ctx, "tts")

	var asset *model.AudioAsset
	err := s.breaker.Execute(func() error {
		return resilience.Retry(ctx, "tts_synthesize", s.retry, func(ctx context.Context) error {
			permit, err := s.governor.Acquire(ctx, resource.SlotTTS)
			if err != nil {
				return err
			}
			defer permit.Release()

			a, err := s.call(ctx, scene.NarrationText, key)
			if err != nil {
				metrics.RecordExternalCall("tts", "error")
				return err
			}
			metrics.RecordExternalCall("tts", "success")
			asset = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int(log.FieldSceneID, scene.ID).
		Float64("duration_sec", asset.DurationSec).
		Str(log.FieldPath, asset.Path).
		Msg("narration synthesized")
	return asset, nil
}

type speechRequest struct {
	Input string `json:"input"`
	VoiceParams
}

// call performs one POST /v1/audio/speech and streams the body to a
// content-addressed file under the audio directory.
func (s *Service) call(ctx context.Context, narration, key string) (*model.AudioAsset, error) {
	body, err := json.Marshal(speechRequest{Input: narration, VoiceParams: s.params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts returned %d: %s", resp.StatusCode, snippet)
	}

	path := filepath.Join(s.audioDir, key+"."+s.params.Format)
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	defer pf.Cleanup()

	if _, err := io.Copy(pf, resp.Body); err != nil {
		return nil, fmt.Errorf("stream audio: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("finalize audio file: %w", err)
	}

	duration, err := wavDuration(path)
	if err != nil {
		// The provider answered 200 with something that is not playable
		// audio. Treat it like any other failed attempt.
		_ = os.Remove(path)
		return nil, fmt.Errorf("invalid audio payload: %w", err)
	}

	return &model.AudioAsset{
		Path:        path,
		DurationSec: duration,
		Fingerprint: key,
	}, nil
}
