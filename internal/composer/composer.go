// SPDX-License-Identifier: MIT

// Package composer assembles the final video from per-scene stills and
// narration audio using ffmpeg.
package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/model"
)

// ErrNoCompleteScenes is returned when no scene has both assets; there is
// nothing to compose and the job fails.
var ErrNoCompleteScenes = errors.New("no scene has both audio and visual assets")

// Composer shells out to ffmpeg. Scene segments are rendered one at a time,
// then joined with the concat demuxer.
type Composer struct {
	ffmpegPath string
	videoDir   string
	workDir    string
}

// Config wires a Composer.
type Config struct {
	FFmpegPath string // defaults to "ffmpeg" on PATH
	VideoDir   string
	WorkDir    string
}

// New creates a composer and its directories.
func New(cfg Config) (*Composer, error) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	for _, dir := range []string{cfg.VideoDir, cfg.WorkDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create composer dir: %w", err)
		}
	}
	return &Composer{
		ffmpegPath: cfg.FFmpegPath,
		videoDir:   cfg.VideoDir,
		workDir:    cfg.WorkDir,
	}, nil
}

// Compose renders the job's video from its complete scenes, in scene order.
// Scenes missing either asset are skipped; zero complete scenes is an error.
func (c *Composer) Compose(ctx context.Context, job *model.Job) (*model.Video, error) {
	logger := log.WithComponentFromContext(ctx, "composer")

	var complete []*model.Scene
	for i := range job.Script.Scenes {
		s := &job.Script.Scenes[i]
		if s.Complete() {
			complete = append(complete, s)
		}
	}
	if len(complete) == 0 {
		return nil, ErrNoCompleteScenes
	}

	jobWork := filepath.Join(c.workDir, job.ID)
	if err := os.MkdirAll(jobWork, 0o750); err != nil {
		return nil, err
	}
	defer os.RemoveAll(jobWork)

	var segments []string
	var totalDuration float64
	for _, scene := range complete {
		seg := filepath.Join(jobWork, fmt.Sprintf("scene_%03d.mp4", scene.ID))
		if err := c.renderSegment(ctx, scene, seg); err != nil {
			return nil, fmt.Errorf("scene %d segment: %w", scene.ID, err)
		}
		segments = append(segments, seg)
		totalDuration += scene.Audio.DurationSec
	}

	outPath := filepath.Join(c.videoDir, job.ID+".mp4")
	if err := c.concat(ctx, segments, jobWork, outPath); err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	logger.Info().
		Int("scenes", len(complete)).
		Float64("duration_sec", totalDuration).
		Int64("size_bytes", info.Size()).
		Msg("video composed")

	return &model.Video{
		Path:        outPath,
		DurationSec: totalDuration,
		SizeBytes:   info.Size(),
		Status:      "ready",
	}, nil
}

// renderSegment loops the scene still over its narration audio.
func (c *Composer) renderSegment(ctx context.Context, scene *model.Scene, outPath string) error {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", scene.Visual.Path,
		"-i", scene.Audio.Path,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outPath,
	}
	return c.run(ctx, args)
}

// concat joins segments losslessly with the concat demuxer.
func (c *Composer) concat(ctx context.Context, segments []string, workDir, outPath string) error {
	var list strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&list, "file '%s'\n", seg)
	}
	listPath := filepath.Join(workDir, "segments.txt")
	if err := renameio.WriteFile(listPath, []byte(list.String()), 0o640); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
	return c.run(ctx, args)
}

func (c *Composer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...) // #nosec G204 - fixed binary, generated args
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
