// SPDX-License-Identifier: MIT

// Package store keeps all job state in memory behind a mutex and persists
// periodic JSON snapshots for crash recovery.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
	"github.com/hoangtv090103/text-to-video/internal/model"
)

// ErrNotFound is returned for unknown job IDs.
var ErrNotFound = errors.New("job not found")

// Store owns the authoritative job map. All mutation goes through Update so
// concurrent writers to the same job are serialized and every status change
// passes the transition check.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*model.Job
	retention time.Duration
	logger    zerolog.Logger

	snapshotPath string
}

// New creates a store, recovering jobs from the snapshot file when one
// exists.
func New(dataDir string, retention time.Duration) (*Store, error) {
	s := &Store{
		jobs:         make(map[string]*model.Job),
		retention:    retention,
		logger:       log.WithComponent("store"),
		snapshotPath: snapshotPath(dataDir),
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create registers a new job. The ID must be unused.
func (s *Store) Create(job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.StatusPending
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Update applies mutate to the job under the store lock. Status changes made
// by mutate are validated against the transition graph; an invalid change
// rolls the mutation back.
func (s *Store) Update(id string, mutate func(*model.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}

	before := job.Clone()
	if err := mutate(job); err != nil {
		s.jobs[id] = before
		return err
	}

	if job.Status != before.Status {
		if !model.CanTransition(before.Status, job.Status) {
			s.jobs[id] = before
			return &model.ErrInvalidTransition{From: before.Status, To: job.Status}
		}
		s.logger.Info().
			Str(log.FieldJobID, id).
			Str(log.FieldOldStatus, string(before.Status)).
			Str(log.FieldNewStatus, string(job.Status)).
			Msg("job status changed")
		if job.Status.IsTerminal() {
			now := time.Now().UTC()
			job.CompletedAt = &now
			metrics.RecordJobDone(string(job.Status))
		}
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a deep copy of the job.
func (s *Store) Get(id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// List returns views of all jobs, newest first, optionally filtered by
// status.
func (s *Store) List(status model.Status) []model.JobView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.JobView, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job.View())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// CountActive returns the number of non-terminal jobs.
func (s *Store) CountActive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Delete removes a job record. Callers remove its files first.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// CleanupExpired removes terminal jobs whose completion is older than the
// retention window, along with their per-job files (source upload and
// composed video). Shared content-addressed assets stay; the cache layer
// owns their eviction.
func (s *Store) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	var expired []*model.Job
	for id, job := range s.jobs {
		if !job.Status.IsTerminal() {
			continue
		}
		ref := job.UpdatedAt
		if job.CompletedAt != nil {
			ref = *job.CompletedAt
		}
		if now.Sub(ref) > s.retention {
			expired = append(expired, job)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	for _, job := range expired {
		s.removeJobFiles(job)
		s.logger.Info().
			Str(log.FieldJobID, job.ID).
			Str("status", string(job.Status)).
			Msg("expired job removed")
	}
	return len(expired)
}

func (s *Store) removeJobFiles(job *model.Job) {
	if job.Source.Path != "" {
		if err := os.Remove(job.Source.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str(log.FieldPath, job.Source.Path).Msg("failed to remove source file")
		}
	}
	if job.Video != nil && job.Video.Path != "" {
		if err := os.Remove(job.Video.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str(log.FieldPath, job.Video.Path).Msg("failed to remove video file")
		}
	}
}

// RunSweeper snapshots the store and evicts expired jobs every interval
// until ctx is cancelled. A final snapshot runs on shutdown.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Snapshot(); err != nil {
				s.logger.Error().Err(err).Msg("final snapshot failed")
			}
			return
		case <-ticker.C:
			if n := s.CleanupExpired(time.Now().UTC()); n > 0 {
				s.logger.Info().Int("removed", n).Msg("retention sweep")
			}
			if err := s.Snapshot(); err != nil {
				s.logger.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}
