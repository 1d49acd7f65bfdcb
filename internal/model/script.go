// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
)

// Scene count bounds for a valid script.
const (
	MinScenes = 3
	MaxScenes = 7
)

// Per-scene content bounds.
const (
	MinNarrationLen = 10
	MaxNarrationLen = 1000
	MinPromptLen    = 5
	MaxPromptLen    = 500
)

// VisualType enumerates the renderers a scene can dispatch to.
type VisualType string

const (
	VisualSlide   VisualType = "slide"
	VisualDiagram VisualType = "diagram"
	VisualGraph   VisualType = "graph"
	VisualFormula VisualType = "formula"
	VisualCode    VisualType = "code"
)

// NormalizeVisualType maps LLM output variants onto the supported set.
// Unknown types fall back to slide, which every provider can render.
func NormalizeVisualType(raw string) VisualType {
	switch raw {
	case "slide", "image", "animation", "presentation", "slides", "picture":
		return VisualSlide
	case "diagram", "flowchart":
		return VisualDiagram
	case "graph", "chart", "plot":
		return VisualGraph
	case "formula", "equation", "math":
		return VisualFormula
	case "code", "programming", "algorithm":
		return VisualCode
	default:
		return VisualSlide
	}
}

// SceneStatus is the per-scene processing state.
type SceneStatus string

const (
	SceneStatusPending    SceneStatus = "pending"
	SceneStatusProcessing SceneStatus = "processing"
	SceneStatusCompleted  SceneStatus = "completed"
	SceneStatusFailed     SceneStatus = "failed"
)

// Scene is one atomic unit of the video: narration paired with one visual.
type Scene struct {
	ID            int          `json:"id"`
	NarrationText string       `json:"narration_text"`
	VisualType    VisualType   `json:"visual_type"`
	VisualPrompt  string       `json:"visual_prompt"`
	Status        SceneStatus  `json:"status"`
	Error         string       `json:"error,omitempty"`
	Audio         *AudioAsset  `json:"audio,omitempty"`
	Visual        *VisualAsset `json:"visual,omitempty"`
}

// Validate checks the per-scene content bounds.
func (s *Scene) Validate() error {
	if n := len(s.NarrationText); n < MinNarrationLen || n > MaxNarrationLen {
		return fmt.Errorf("scene %d: narration length %d outside [%d,%d]", s.ID, n, MinNarrationLen, MaxNarrationLen)
	}
	if n := len(s.VisualPrompt); n < MinPromptLen || n > MaxPromptLen {
		return fmt.Errorf("scene %d: visual prompt length %d outside [%d,%d]", s.ID, n, MinPromptLen, MaxPromptLen)
	}
	return nil
}

// Complete reports whether both assets exist and are non-empty.
func (s *Scene) Complete() bool {
	return s.Audio != nil && s.Audio.Path != "" && s.Visual != nil && s.Visual.Path != ""
}

// Script is the ordered scene list produced from the source document.
// It is created exactly once per job and immutable thereafter; only the
// embedded scene statuses and assets are updated by scene workers.
type Script struct {
	Scenes   []Scene `json:"scenes"`
	Language string  `json:"language,omitempty"`
}

// Validate checks the script-level scene count bound.
func (sc *Script) Validate() error {
	if n := len(sc.Scenes); n < MinScenes || n > MaxScenes {
		return fmt.Errorf("script has %d scenes, want %d-%d", n, MinScenes, MaxScenes)
	}
	return nil
}

// Clone deep-copies the script.
func (sc *Script) Clone() *Script {
	cp := &Script{Language: sc.Language, Scenes: make([]Scene, len(sc.Scenes))}
	for i, s := range sc.Scenes {
		cs := s
		if s.Audio != nil {
			a := *s.Audio
			cs.Audio = &a
		}
		if s.Visual != nil {
			v := *s.Visual
			cs.Visual = &v
		}
		cp.Scenes[i] = cs
	}
	return cp
}
