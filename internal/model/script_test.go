// SPDX-License-Identifier: MIT

package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVisualType(t *testing.T) {
	tests := []struct {
		raw  string
		want VisualType
	}{
		{"slide", VisualSlide},
		{"image", VisualSlide},
		{"animation", VisualSlide},
		{"presentation", VisualSlide},
		{"diagram", VisualDiagram},
		{"flowchart", VisualDiagram},
		{"graph", VisualGraph},
		{"chart", VisualGraph},
		{"plot", VisualGraph},
		{"formula", VisualFormula},
		{"equation", VisualFormula},
		{"math", VisualFormula},
		{"code", VisualCode},
		{"programming", VisualCode},
		{"algorithm", VisualCode},
		{"", VisualSlide},
		{"hologram", VisualSlide},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVisualType(tt.raw))
		})
	}
}

func TestSceneValidateNarrationBounds(t *testing.T) {
	valid := Scene{ID: 1, NarrationText: strings.Repeat("a", 10), VisualPrompt: "prompt"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name      string
		narration string
		prompt    string
		wantErr   bool
	}{
		{"narration at min", strings.Repeat("a", 10), "valid prompt", false},
		{"narration below min", strings.Repeat("a", 9), "valid prompt", true},
		{"narration at max", strings.Repeat("a", 1000), "valid prompt", false},
		{"narration above max", strings.Repeat("a", 1001), "valid prompt", true},
		{"prompt at min", strings.Repeat("a", 50), strings.Repeat("p", 5), false},
		{"prompt below min", strings.Repeat("a", 50), strings.Repeat("p", 4), true},
		{"prompt at max", strings.Repeat("a", 50), strings.Repeat("p", 500), false},
		{"prompt above max", strings.Repeat("a", 50), strings.Repeat("p", 501), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Scene{ID: 1, NarrationText: tt.narration, VisualPrompt: tt.prompt}
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSceneComplete(t *testing.T) {
	s := Scene{ID: 1}
	assert.False(t, s.Complete())

	s.Audio = &AudioAsset{Path: "a.wav"}
	assert.False(t, s.Complete())

	s.Visual = &VisualAsset{Path: "v.png"}
	assert.True(t, s.Complete())

	s.Audio.Path = ""
	assert.False(t, s.Complete())
}

func TestScriptValidateSceneCount(t *testing.T) {
	mk := func(n int) *Script {
		sc := &Script{}
		for i := 0; i < n; i++ {
			sc.Scenes = append(sc.Scenes, Scene{ID: i + 1})
		}
		return sc
	}

	assert.Error(t, mk(2).Validate())
	assert.NoError(t, mk(3).Validate())
	assert.NoError(t, mk(7).Validate())
	assert.Error(t, mk(8).Validate())
}
