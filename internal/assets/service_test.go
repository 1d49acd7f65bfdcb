// SPDX-License-Identifier: MIT

package assets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoangtv090103/text-to-video/internal/cache"
	"github.com/hoangtv090103/text-to-video/internal/model"
	"github.com/hoangtv090103/text-to-video/internal/resilience"
	"github.com/hoangtv090103/text-to-video/internal/resource"
)

func testGovernor() *resource.Governor {
	return resource.NewGovernor(resource.Limits{
		MaxConcurrentJobs:   3,
		MaxConcurrentTTS:    2,
		MaxConcurrentVisual: 4,
	})
}

func testBreakers() map[model.VisualType]*resilience.CircuitBreaker {
	out := make(map[model.VisualType]*resilience.CircuitBreaker)
	for _, vt := range []model.VisualType{model.VisualSlide, model.VisualDiagram, model.VisualGraph, model.VisualFormula, model.VisualCode} {
		out[vt] = resilience.NewCircuitBreaker("visual-test-"+string(vt), 3, time.Second)
	}
	return out
}

func newTestService(t *testing.T, endpoints Endpoints) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Endpoints: endpoints,
		VisualDir: t.TempDir(),
		Cache:     cache.NewLayer(cache.NewMemoryBackend(0), cache.DefaultTTLs()),
		Breakers:  testBreakers(),
		Retry:     resilience.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2},
		Governor:  testGovernor(),
	})
	require.NoError(t, err)
	return svc
}

func allEndpoints(url string) Endpoints {
	return Endpoints{Slide: url, Diagram: url, Graph: url, Formula: url, Code: url, Timeout: time.Second}
}

func TestRenderWritesVisualAsset(t *testing.T) {
	var gotReq renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/render", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	svc := newTestService(t, allEndpoints(srv.URL))
	scene := &model.Scene{ID: 3, VisualType: model.VisualDiagram, VisualPrompt: "a pipeline diagram"}

	asset, err := svc.Render(context.Background(), scene)
	require.NoError(t, err)
	assert.Equal(t, 3, asset.SceneID)
	assert.Empty(t, asset.Error)
	assert.Equal(t, "png", asset.Format)
	assert.FileExists(t, asset.Path)

	assert.Equal(t, "diagram", gotReq.Type)
	assert.Equal(t, "a pipeline diagram", gotReq.Prompt)
	assert.Equal(t, FrameWidth, gotReq.Width)
}

func TestRenderCachesByTypeAndPrompt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	svc := newTestService(t, allEndpoints(srv.URL))
	ctx := context.Background()

	_, err := svc.Render(ctx, &model.Scene{ID: 1, VisualType: model.VisualGraph, VisualPrompt: "same prompt"})
	require.NoError(t, err)
	_, err = svc.Render(ctx, &model.Scene{ID: 2, VisualType: model.VisualGraph, VisualPrompt: "same  prompt"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "same type and prompt share one render")

	// Same prompt under another type is a distinct visual.
	_, err = svc.Render(ctx, &model.Scene{ID: 3, VisualType: model.VisualCode, VisualPrompt: "same prompt"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRenderDegradesToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "renderer down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := newTestService(t, allEndpoints(srv.URL))
	scene := &model.Scene{ID: 4, VisualType: model.VisualFormula, VisualPrompt: "an integral"}

	asset, err := svc.Render(context.Background(), scene)
	require.NoError(t, err, "render failure degrades, it does not error")
	assert.Equal(t, 4, asset.SceneID)
	assert.Equal(t, "svg", asset.Format)
	assert.NotEmpty(t, asset.Error, "the render error is preserved for diagnostics")
	assert.FileExists(t, asset.Path)

	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestRenderUnknownTypeFallsBackToSlide(t *testing.T) {
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req renderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotType = req.Type
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	svc := newTestService(t, allEndpoints(srv.URL))
	_, err := svc.Render(context.Background(), &model.Scene{ID: 1, VisualType: "hologram", VisualPrompt: "whatever"})
	require.NoError(t, err)
	assert.Equal(t, "slide", gotType)
}

func TestRenderCancelledPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	svc := newTestService(t, allEndpoints(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Render(ctx, &model.Scene{ID: 1, VisualType: model.VisualSlide, VisualPrompt: "p"})
	assert.ErrorIs(t, err, context.Canceled, "cancellation must not degrade to a placeholder")
}

func TestBreakerIsolationPerType(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer down.Close()
	var upCalls atomic.Int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upCalls.Add(1)
		_, _ = w.Write([]byte("png"))
	}))
	defer up.Close()

	endpoints := allEndpoints(up.URL)
	endpoints.Diagram = down.URL
	svc := newTestService(t, endpoints)
	ctx := context.Background()

	// Trip the diagram breaker.
	for i := 0; i < 3; i++ {
		asset, err := svc.Render(ctx, &model.Scene{ID: i, VisualType: model.VisualDiagram, VisualPrompt: "p" + string(rune('a'+i))})
		require.NoError(t, err)
		assert.NotEmpty(t, asset.Error)
	}

	// Slides still render; the diagram breaker does not blind them.
	asset, err := svc.Render(ctx, &model.Scene{ID: 9, VisualType: model.VisualSlide, VisualPrompt: "fine"})
	require.NoError(t, err)
	assert.Empty(t, asset.Error)
	assert.Equal(t, int32(1), upCalls.Load())
}
