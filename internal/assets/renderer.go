// SPDX-License-Identifier: MIT

// Package assets renders per-scene visuals by routing each scene to the
// renderer service matching its visual type.
package assets

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

	"github.com/hoangtv090103/text-to-video/internal/model"
)

// Renderer produces one visual image for a scene prompt.
type Renderer interface {
	Render(ctx context.Context, prompt, outPath string) (*model.VisualAsset, error)
}

// httpRenderer calls a renderer microservice that accepts a JSON prompt and
// returns PNG bytes.
type httpRenderer struct {
	baseURL string
	kind    model.VisualType
	client  *http.Client
}

// NewHTTPRenderer builds a renderer client for one visual type endpoint.
func NewHTTPRenderer(baseURL string, kind model.VisualType, timeout time.Duration) Renderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpRenderer{
		baseURL: baseURL,
		kind:    kind,
		client:  &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	Prompt string `json:"prompt"`
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Frame dimensions for every rendered visual.
const (
	FrameWidth  = 1280
	FrameHeight = 720
)

func (r *httpRenderer) Render(ctx context.Context, prompt, outPath string) (*model.VisualAsset, error) {
	body, err := json.Marshal(renderRequest{
		Prompt: prompt,
		Type:   string(r.kind),
		Width:  FrameWidth,
		Height: FrameHeight,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request (%s): %w", r.kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("renderer %s returned %d: %s", r.kind, resp.StatusCode, snippet)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return nil, err
	}
	pf, err := renameio.NewPendingFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("create visual file: %w", err)
	}
	defer pf.Cleanup()

	if _, err := io.Copy(pf, resp.Body); err != nil {
		return nil, fmt.Errorf("stream visual: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("finalize visual file: %w", err)
	}

	return &model.VisualAsset{
		Path:   outPath,
		Width:  FrameWidth,
		Height: FrameHeight,
		Format: "png",
	}, nil
}
