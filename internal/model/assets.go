// SPDX-License-Identifier: MIT

package model

// AudioAsset is a persisted narration waveform for one scene.
type AudioAsset struct {
	SceneID     int     `json:"scene_id"`
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_s"`
	Fingerprint string  `json:"fingerprint"`
}

// VisualAsset is a persisted rendered image for one scene.
type VisualAsset struct {
	SceneID     int    `json:"scene_id"`
	Path        string `json:"path"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Format      string `json:"format"` // png | jpeg | svg
	Fingerprint string `json:"fingerprint"`
	Error       string `json:"error,omitempty"`
}

// Video is the final muxed output.
type Video struct {
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_s"`
	SizeBytes   int64   `json:"size_bytes"`
	Status      string  `json:"status"`
}
