// SPDX-License-Identifier: MIT

package assets

import (
	"fmt"
	"html"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/hoangtv090103/text-to-video/internal/model"
)

// placeholderSVG is the degraded visual used when every render attempt for
// a scene failed. The job continues with this instead of aborting.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
  <rect width="100%%" height="100%%" fill="#1e293b"/>
  <text x="50%%" y="45%%" text-anchor="middle" fill="#e2e8f0" font-family="sans-serif" font-size="36">Scene %d</text>
  <text x="50%%" y="55%%" text-anchor="middle" fill="#94a3b8" font-family="sans-serif" font-size="20">%s</text>
</svg>
`

// WritePlaceholder writes the fallback SVG for a failed scene render and
// returns an asset carrying the render error for diagnostics.
func WritePlaceholder(dir string, sceneID int, renderErr error) (*model.VisualAsset, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("scene_%d_placeholder.svg", sceneID))

	svg := fmt.Sprintf(placeholderSVG,
		FrameWidth, FrameHeight, FrameWidth, FrameHeight,
		sceneID, html.EscapeString("visual unavailable"))

	if err := renameio.WriteFile(path, []byte(svg), 0o640); err != nil {
		return nil, fmt.Errorf("write placeholder: %w", err)
	}

	asset := &model.VisualAsset{
		SceneID: sceneID,
		Path:    path,
		Width:   FrameWidth,
		Height:  FrameHeight,
		Format:  "svg",
	}
	if renderErr != nil {
		asset.Error = renderErr.Error()
	}
	return asset, nil
}
