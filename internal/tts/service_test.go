// SPDX-License-Identifier: MIT

package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
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

// makeWAV builds a minimal PCM WAV: 16kHz mono 16-bit, so byte rate is
// 32000 and seconds of audio map to 32000 data bytes each.
func makeWAV(seconds float64) []byte {
	const byteRate = 32000
	dataSize := uint32(seconds * byteRate)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(buf[24:28], 16000)
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataSize)
	return buf
}

func testGovernor() *resource.Governor {
	return resource.NewGovernor(resource.Limits{
		MaxConcurrentJobs:   3,
		MaxConcurrentTTS:    2,
		MaxConcurrentVisual: 4,
		// Zero ceilings disable load gating in tests.
	})
}

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	svc, err := NewService(Config{
		BaseURL:  baseURL,
		Params:   DefaultVoiceParams(),
		AudioDir: t.TempDir(),
		Cache:    cache.NewLayer(cache.NewMemoryBackend(0), cache.DefaultTTLs()),
		Breaker:  resilience.NewCircuitBreaker("tts-test", 3, time.Second),
		Retry:    resilience.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2},
		Governor: testGovernor(),
	})
	require.NoError(t, err)
	return svc
}

func TestWavDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, makeWAV(2.5), 0o600))

	d, err := wavDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 0.01)
}

func TestWavDurationRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav at all"), 0o600))

	_, err := wavDuration(path)
	assert.Error(t, err)
}

func TestSynthesizeWritesAudioAsset(t *testing.T) {
	var gotReq speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write(makeWAV(1.5))
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL)
	scene := &model.Scene{ID: 2, NarrationText: "Narration to synthesize."}

	asset, err := svc.Synthesize(context.Background(), scene)
	require.NoError(t, err)
	assert.Equal(t, 2, asset.SceneID)
	assert.InDelta(t, 1.5, asset.DurationSec, 0.01)
	assert.FileExists(t, asset.Path)

	// The payload carries every synthesis knob.
	assert.Equal(t, "Narration to synthesize.", gotReq.Input)
	assert.Equal(t, "alloy", gotReq.Voice)
	assert.Equal(t, "wav", gotReq.Format)
	assert.Equal(t, 1.0, gotReq.Speed)
	assert.Equal(t, 0.2, gotReq.Exaggeration)
	assert.Equal(t, 0.4, gotReq.CfgWeight)
	assert.Equal(t, 0.2, gotReq.Temperature)
}

func TestSynthesizeCachesByNarration(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(makeWAV(1))
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL)
	ctx := context.Background()

	a1, err := svc.Synthesize(ctx, &model.Scene{ID: 1, NarrationText: "Shared narration text."})
	require.NoError(t, err)
	a2, err := svc.Synthesize(ctx, &model.Scene{ID: 5, NarrationText: "Shared  narration\ntext."})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "identical narration reuses the cached audio")
	assert.Equal(t, a1.Path, a2.Path)
	assert.Equal(t, 1, a1.SceneID)
	assert.Equal(t, 5, a2.SceneID, "scene id is stamped per caller")
}

func TestSynthesizeRecomputesWhenFileGone(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(makeWAV(1))
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL)
	ctx := context.Background()
	scene := &model.Scene{ID: 1, NarrationText: "Narration whose file vanishes."}

	a1, err := svc.Synthesize(ctx, scene)
	require.NoError(t, err)
	require.NoError(t, os.Remove(a1.Path))

	a2, err := svc.Synthesize(ctx, scene)
	require.NoError(t, err)
	assert.FileExists(t, a2.Path)
	assert.Equal(t, int32(2), calls.Load(), "stale cache entry invalidated and recomputed")
}

func TestSynthesizeProviderError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL)
	_, err := svc.Synthesize(context.Background(), &model.Scene{ID: 1, NarrationText: "Doomed narration."})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "retry budget consumed")
}

func TestSynthesizeRejectsUnplayableAudio(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("this is not audio"))
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL)
	_, err := svc.Synthesize(context.Background(), &model.Scene{ID: 1, NarrationText: "Narration with broken audio."})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid audio payload")
	assert.Equal(t, int32(2), calls.Load(), "a 200 with garbage still burns the retry budget")

	// The malformed file is not left behind to satisfy later stat checks.
	files, globErr := filepath.Glob(filepath.Join(svc.audioDir, "*"))
	require.NoError(t, globErr)
	assert.Empty(t, files)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL)
	ctx := context.Background()

	// Breaker threshold is 3; each Synthesize counts one breaker failure.
	for i := 0; i < 3; i++ {
		_, err := svc.Synthesize(ctx, &model.Scene{ID: i, NarrationText: "Different narration " + string(rune('a'+i)) + " text."})
		require.Error(t, err)
	}

	_, err := svc.Synthesize(ctx, &model.Scene{ID: 9, NarrationText: "Blocked by the open breaker."})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
