// SPDX-License-Identifier: MIT

package script

import (
	"fmt"
	"strings"

	"github.com/hoangtv090103/text-to-video/internal/model"
)

// wordsPerScene sizes the fallback script to the document length.
const wordsPerScene = 50

// interiorTypes rotate through the non-slide renderers so a fallback video
// is not a wall of identical slides.
var interiorTypes = []model.VisualType{
	model.VisualDiagram,
	model.VisualGraph,
	model.VisualCode,
	model.VisualFormula,
}

// Fallback builds a deterministic script straight from the source text.
// It is used when the LLM is unavailable or keeps returning garbage, and
// always yields a valid 3-7 scene script.
func Fallback(sourceText string) *model.Script {
	words := strings.Fields(sourceText)

	count := len(words) / wordsPerScene
	if count < model.MinScenes {
		count = model.MinScenes
	}
	if count > model.MaxScenes {
		count = model.MaxScenes
	}

	scenes := make([]model.Scene, 0, count)
	for i := 1; i <= count; i++ {
		scenes = append(scenes, fallbackScene(i, i == 1, i == count))
	}

	// Interior scenes carry an excerpt of the document as narration when
	// enough text exists.
	interior := scenes[1 : len(scenes)-1]
	if len(words) > 0 && len(interior) > 0 {
		chunk := len(words) / len(interior)
		for i := range interior {
			lo := i * chunk
			hi := lo + chunk
			if i == len(interior)-1 || hi > len(words) {
				hi = len(words)
			}
			if excerpt := excerptNarration(words[lo:hi]); excerpt != "" {
				interior[i].NarrationText = excerpt
			}
		}
	}

	return &model.Script{Scenes: scenes}
}

func fallbackScene(id int, intro, outro bool) model.Scene {
	switch {
	case intro:
		return model.Scene{
			ID:            id,
			NarrationText: "Welcome. In this video we walk through the key points of the document.",
			VisualType:    model.VisualSlide,
			VisualPrompt:  "Title slide introducing the document overview",
			Status:        model.SceneStatusPending,
		}
	case outro:
		return model.Scene{
			ID:            id,
			NarrationText: "That concludes our overview. Thank you for watching.",
			VisualType:    model.VisualSlide,
			VisualPrompt:  "Closing slide summarizing the key takeaways",
			Status:        model.SceneStatusPending,
		}
	default:
		vt := interiorTypes[(id-2)%len(interiorTypes)]
		return model.Scene{
			ID:            id,
			NarrationText: fmt.Sprintf("Section %d covers the next part of the document in detail.", id-1),
			VisualType:    vt,
			VisualPrompt:  fmt.Sprintf("A %s illustrating section %d of the document", vt, id-1),
			Status:        model.SceneStatusPending,
		}
	}
}

// excerptNarration joins words into a narration clamped to the per-scene
// bounds. Returns "" when the chunk is too short to make a valid narration.
func excerptNarration(words []string) string {
	s := strings.Join(words, " ")
	if len(s) < model.MinNarrationLen {
		return ""
	}
	if len(s) > model.MaxNarrationLen {
		cut := strings.LastIndex(s[:model.MaxNarrationLen], " ")
		if cut < model.MinNarrationLen {
			cut = model.MaxNarrationLen
		}
		s = s[:cut]
	}
	return s
}
