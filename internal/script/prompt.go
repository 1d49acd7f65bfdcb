// SPDX-License-Identifier: MIT

package script

import "fmt"

const systemPrompt = `You are a video script writer. You turn technical documents into short educational video scripts.

Respond with a JSON array of scene objects only. Each scene object has:
  "id": integer, 1-based scene number
  "narration_text": string, 10-1000 characters of spoken narration
  "visual_type": one of "slide", "diagram", "graph", "formula", "code"
  "visual_prompt": string, 5-500 characters describing the visual

Rules:
- Produce between 3 and 7 scenes.
- The first scene introduces the topic, the last scene concludes it.
- Narration is plain spoken prose, no markup.
- Do not wrap the JSON in prose or markdown fences.`

func userPrompt(sourceText, filename string) string {
	return fmt.Sprintf("Create a video script from the following document (%s):\n\n%s", filename, sourceText)
}
