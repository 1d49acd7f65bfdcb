// SPDX-License-Identifier: MIT

package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hoangtv090103/text-to-video/internal/model"
)

// rawScene tolerates the field name variants models actually emit.
type rawScene struct {
	ID            int    `json:"id"`
	NarrationText string `json:"narration_text"`
	Narration     string `json:"narration"`
	Text          string `json:"text"`
	VisualType    string `json:"visual_type"`
	Type          string `json:"type"`
	VisualPrompt  string `json:"visual_prompt"`
	Prompt        string `json:"prompt"`
	Description   string `json:"description"`
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```\\s*(.*?)```")
	bareArrayRe  = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
)

// ErrNoScenes is returned when a response parses but yields no usable scenes.
var ErrNoScenes = errors.New("llm response contains no usable scenes")

// ParseResponse extracts a script from an LLM response. Models wrap JSON in
// markdown fences or prose often enough that several extraction patterns
// are tried in order of specificity.
func ParseResponse(raw string) (*model.Script, error) {
	for _, candidate := range extractCandidates(raw) {
		scenes, err := decodeScenes(candidate)
		if err != nil {
			continue
		}
		if len(scenes) > 0 {
			return &model.Script{Scenes: scenes}, nil
		}
	}
	return nil, ErrNoScenes
}

// reparseLenient is the second pass: strip everything before the first '['
// and after the last ']' and try once more.
func reparseLenient(raw string) (*model.Script, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, ErrNoScenes
	}
	scenes, err := decodeScenes(raw[start : end+1])
	if err != nil {
		return nil, fmt.Errorf("lenient reparse: %w", err)
	}
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	return &model.Script{Scenes: scenes}, nil
}

func extractCandidates(raw string) []string {
	var out []string
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if m := fencedAnyRe.FindStringSubmatch(raw); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if m := bareArrayRe.FindString(raw); m != "" {
		out = append(out, m)
	}
	out = append(out, strings.TrimSpace(raw))
	return out
}

// decodeScenes accepts a bare array or an object wrapping one under a
// "scenes" or "script" key.
func decodeScenes(s string) ([]model.Scene, error) {
	var raws []rawScene
	if err := json.Unmarshal([]byte(s), &raws); err != nil {
		var wrapper struct {
			Scenes []rawScene `json:"scenes"`
			Script []rawScene `json:"script"`
		}
		if werr := json.Unmarshal([]byte(s), &wrapper); werr != nil {
			return nil, err
		}
		raws = wrapper.Scenes
		if len(raws) == 0 {
			raws = wrapper.Script
		}
	}

	scenes := make([]model.Scene, 0, len(raws))
	for i, r := range raws {
		narration := firstNonEmpty(r.NarrationText, r.Narration, r.Text)
		prompt := firstNonEmpty(r.VisualPrompt, r.Prompt, r.Description)
		if narration == "" {
			continue
		}
		if prompt == "" {
			prompt = summarize(narration)
		}
		id := r.ID
		if id <= 0 {
			id = i + 1
		}
		scenes = append(scenes, model.Scene{
			ID:            id,
			NarrationText: strings.TrimSpace(narration),
			VisualType:    model.NormalizeVisualType(strings.ToLower(strings.TrimSpace(firstNonEmpty(r.VisualType, r.Type)))),
			VisualPrompt:  strings.TrimSpace(prompt),
			Status:        model.SceneStatusPending,
		})
	}
	return scenes, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// summarize derives a short visual prompt from narration when the model
// omitted one.
func summarize(narration string) string {
	words := strings.Fields(narration)
	if len(words) > 12 {
		words = words[:12]
	}
	s := strings.Join(words, " ")
	if len(s) > model.MaxPromptLen {
		s = s[:model.MaxPromptLen]
	}
	return s
}
