// SPDX-License-Identifier: MIT

package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/model"
)

const snapshotFile = "job_store.json"

func snapshotPath(dataDir string) string {
	return filepath.Join(dataDir, snapshotFile)
}

// snapshot is the persisted store shape.
type snapshot struct {
	SavedAt time.Time    `json:"saved_at"`
	Jobs    []*model.Job `json:"jobs"`
}

// Snapshot writes the full job map atomically. A crash mid-write leaves the
// previous snapshot intact.
func (s *Store) Snapshot() error {
	s.mu.RLock()
	snap := snapshot{SavedAt: time.Now().UTC(), Jobs: make([]*model.Job, 0, len(s.jobs))}
	for _, job := range s.jobs {
		snap.Jobs = append(snap.Jobs, job.Clone())
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := renameio.WriteFile(s.snapshotPath, data, 0o640); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// loadSnapshot restores jobs from disk. Jobs that were in flight when the
// process died cannot be resumed and are marked failed.
func (s *Store) loadSnapshot() error {
	data, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot must not brick the daemon; start empty.
		s.logger.Error().Err(err).Str(log.FieldPath, s.snapshotPath).Msg("snapshot unreadable, starting empty")
		return nil
	}

	recovered, interrupted := 0, 0
	now := time.Now().UTC()
	for _, job := range snap.Jobs {
		if job == nil || job.ID == "" {
			continue
		}
		if !job.Status.IsTerminal() {
			job.Status = model.StatusFailed
			job.Errors = append(job.Errors, "interrupted by daemon restart")
			job.Message = "interrupted by daemon restart"
			job.UpdatedAt = now
			job.CompletedAt = &now
			interrupted++
		}
		s.jobs[job.ID] = job
		recovered++
	}

	s.logger.Info().
		Int("jobs", recovered).
		Int("interrupted", interrupted).
		Time("saved_at", snap.SavedAt).
		Msg("job store recovered from snapshot")
	return nil
}
