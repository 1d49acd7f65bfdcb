// SPDX-License-Identifier: MIT

// Package orchestrator drives jobs through the pipeline: admission,
// script generation, per-scene asset fan-out, composition and terminal
// bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hoangtv090103/text-to-video/internal/extract"
	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
	"github.com/hoangtv090103/text-to-video/internal/model"
	"github.com/hoangtv090103/text-to-video/internal/queue"
	"github.com/hoangtv090103/text-to-video/internal/resource"
	"github.com/hoangtv090103/text-to-video/internal/store"
)

// ErrJobTerminal is returned when cancelling a job that already finished.
var ErrJobTerminal = errors.New("job already in a terminal state")

// ScriptGenerator produces the scene script for a document.
type ScriptGenerator interface {
	Generate(ctx context.Context, sourceText, filename string) (*model.Script, error)
}

// Synthesizer produces narration audio for one scene.
type Synthesizer interface {
	Synthesize(ctx context.Context, scene *model.Scene) (*model.AudioAsset, error)
}

// VisualRenderer produces the visual for one scene.
type VisualRenderer interface {
	Render(ctx context.Context, scene *model.Scene) (*model.VisualAsset, error)
}

// VideoComposer assembles the final video from a job's complete scenes.
type VideoComposer interface {
	Compose(ctx context.Context, job *model.Job) (*model.Video, error)
}

// Deps are the services the orchestrator coordinates.
type Deps struct {
	Store    *store.Store
	Queue    *queue.Queue
	Governor *resource.Governor
	Script   ScriptGenerator
	TTS      Synthesizer
	Visual   VisualRenderer
	Composer VideoComposer
	Workers  int
}

// Orchestrator owns job lifecycle. One worker goroutine per job slot pulls
// admissions off the queue; all mutation of a running job happens on its
// worker.
type Orchestrator struct {
	deps   Deps
	logger zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Workers <= 0 {
		deps.Workers = 3
	}
	return &Orchestrator{
		deps:    deps,
		logger:  log.WithComponent("orchestrator"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit validates and enqueues a new job for an already uploaded document.
// The job is visible as pending immediately; rejection leaves no trace.
func (o *Orchestrator) Submit(ctx context.Context, source model.SourceDoc, priority model.Priority) (string, error) {
	job := &model.Job{
		ID:       uuid.NewString(),
		Status:   model.StatusPending,
		Phase:    model.PhaseUpload,
		Priority: priority,
		Source:   source,
		Message:  "queued",
	}
	if err := o.deps.Store.Create(job); err != nil {
		return "", err
	}
	if err := o.deps.Queue.Push(job.ID, priority); err != nil {
		o.deps.Store.Delete(job.ID)
		return "", err
	}

	o.logger.Info().
		Str(log.FieldJobID, job.ID).
		Str("priority", priority.String()).
		Str("filename", source.Filename).
		Msg("job submitted")
	return job.ID, nil
}

// Status returns the job's external view.
func (o *Orchestrator) Status(id string) (model.JobView, error) {
	job, err := o.deps.Store.Get(id)
	if err != nil {
		return model.JobView{}, err
	}
	return job.View(), nil
}

// Job returns the full job record.
func (o *Orchestrator) Job(id string) (*model.Job, error) {
	return o.deps.Store.Get(id)
}

// List returns job views, optionally filtered by status.
func (o *Orchestrator) List(status model.Status) []model.JobView {
	return o.deps.Store.List(status)
}

// Cancel stops a job. Pending jobs are pulled from the queue and finalized
// directly; processing jobs get their context cancelled and the owning
// worker finalizes. Cancelling a terminal job is an error.
func (o *Orchestrator) Cancel(id string) error {
	job, err := o.deps.Store.Get(id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrJobTerminal
	}

	if job.Status == model.StatusPending {
		o.deps.Queue.Remove(id)
		// The worker may have popped the item concurrently; the
		// transition check below is what decides the race.
		err := o.deps.Store.Update(id, func(j *model.Job) error {
			if j.Status != model.StatusPending {
				return fmt.Errorf("job %s no longer pending", id)
			}
			j.Status = model.StatusCancelled
			j.Message = "cancelled before processing"
			return nil
		})
		if err == nil {
			return nil
		}
		// Fall through: it started processing while we raced.
	}

	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if ok {
		cancel()
		return nil
	}
	return nil
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers drain.
func (o *Orchestrator) Run(ctx context.Context) {
	for i := 0; i < o.deps.Workers; i++ {
		o.wg.Add(1)
		go func(worker int) {
			defer o.wg.Done()
			o.workerLoop(ctx, worker)
		}(i)
	}
	o.wg.Wait()
}

func (o *Orchestrator) workerLoop(ctx context.Context, worker int) {
	logger := o.logger.With().Int("worker", worker).Logger()
	for {
		item, err := o.deps.Queue.Pop(ctx)
		if err != nil {
			return
		}

		// Cancelled while queued but after Remove lost the race.
		job, err := o.deps.Store.Get(item.JobID)
		if err != nil || job.Status != model.StatusPending {
			continue
		}

		permit, err := o.deps.Governor.Acquire(ctx, resource.SlotJob)
		if err != nil {
			return
		}
		o.processJob(ctx, item.JobID, logger)
		permit.Release()
	}
}

// processJob runs one job end to end under its own cancellable context.
func (o *Orchestrator) processJob(parent context.Context, jobID string, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	ctx = log.ContextWithJobID(ctx, jobID)

	o.mu.Lock()
	o.cancels[jobID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, jobID)
		o.mu.Unlock()
	}()

	if err := o.transition(jobID, model.StatusProcessing, "processing started"); err != nil {
		// Lost a cancel race; nothing to do.
		logger.Debug().Err(err).Str(log.FieldJobID, jobID).Msg("job not started")
		return
	}
	metrics.SetJobsProcessing(o.deps.Store.CountActive())
	defer func() { metrics.SetJobsProcessing(o.deps.Store.CountActive()) }()

	err := o.runPipeline(ctx, jobID)
	switch {
	case err == nil:
		// Terminal status already set by the compose step.
	case errors.Is(err, context.Canceled):
		o.finalize(jobID, model.StatusCancelled, "cancelled", nil)
	default:
		o.finalize(jobID, model.StatusFailed, "failed: "+err.Error(), err)
	}
}

// runPipeline executes script -> asset fan-out -> compose.
func (o *Orchestrator) runPipeline(ctx context.Context, jobID string) error {
	job, err := o.deps.Store.Get(jobID)
	if err != nil {
		return err
	}

	// Script phase.
	o.setPhase(jobID, model.PhaseScript, 5, "generating script")
	text, err := extract.Text(job.Source.Path, job.Source.Type)
	if err != nil {
		return fmt.Errorf("extract document: %w", err)
	}
	sc, err := o.deps.Script.Generate(ctx, text, job.Source.Filename)
	if err != nil {
		return fmt.Errorf("generate script: %w", err)
	}
	if err := o.deps.Store.Update(jobID, func(j *model.Job) error {
		j.Script = sc
		return nil
	}); err != nil {
		return err
	}
	o.setPhase(jobID, model.PhaseAssets, 10, "producing scene assets")

	// Asset fan-out.
	if err := o.produceAssets(ctx, jobID, sc); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Compose phase.
	job, err = o.deps.Store.Get(jobID)
	if err != nil {
		return err
	}
	complete, failed := sceneOutcomes(job.Script)
	if complete == 0 {
		return fmt.Errorf("all %d scenes failed", len(job.Script.Scenes))
	}

	o.setPhase(jobID, model.PhaseCompose, 90, "composing video")
	video, err := o.deps.Composer.Compose(ctx, job)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	status := model.StatusCompleted
	message := "completed"
	if failed > 0 {
		status = model.StatusCompletedWithErrors
		message = fmt.Sprintf("completed with %d failed scenes", failed)
	}
	return o.deps.Store.Update(jobID, func(j *model.Job) error {
		j.Status = status
		j.Phase = model.PhaseDone
		j.Progress = 100
		j.Message = message
		j.Video = video
		return nil
	})
}

// produceAssets runs audio and visual generation for every valid scene
// concurrently. Scene failures are recorded, not propagated; only
// cancellation aborts the fan-out.
func (o *Orchestrator) produceAssets(ctx context.Context, jobID string, sc *model.Script) error {
	type task struct {
		sceneIdx int
		scene    model.Scene
	}

	var tasks []task
	for i, scene := range sc.Scenes {
		if scene.Status == model.SceneStatusFailed {
			continue
		}
		tasks = append(tasks, task{sceneIdx: i, scene: scene})
	}
	if len(tasks) == 0 {
		return nil
	}

	totalUnits := len(tasks) * 2
	var mu sync.Mutex
	doneUnits := 0
	progressUnit := func() {
		mu.Lock()
		doneUnits++
		// Assets account for the 10-90 band of the progress bar.
		progress := 10 + doneUnits*80/totalUnits
		mu.Unlock()
		_ = o.deps.Store.Update(jobID, func(j *model.Job) error {
			if progress > j.Progress {
				j.Progress = progress
			}
			return nil
		})
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			sctx := log.ContextWithSceneID(ctx, strconv.Itoa(t.scene.ID))

			_ = o.deps.Store.Update(jobID, func(j *model.Job) error {
				j.Script.Scenes[t.sceneIdx].Status = model.SceneStatusProcessing
				return nil
			})

			var innerWG sync.WaitGroup
			var audio *model.AudioAsset
			var visual *model.VisualAsset
			var audioErr, visualErr error

			innerWG.Add(2)
			go func() {
				defer innerWG.Done()
				audio, audioErr = o.deps.TTS.Synthesize(sctx, &t.scene)
				if audioErr == nil {
					metrics.RecordSceneAsset("audio", "success")
				} else if sctx.Err() == nil {
					metrics.RecordSceneAsset("audio", "failed")
				}
				progressUnit()
			}()
			go func() {
				defer innerWG.Done()
				visual, visualErr = o.deps.Visual.Render(sctx, &t.scene)
				progressUnit()
			}()
			innerWG.Wait()

			_ = o.deps.Store.Update(jobID, func(j *model.Job) error {
				scene := &j.Script.Scenes[t.sceneIdx]
				scene.Audio = audio
				scene.Visual = visual
				switch {
				case audioErr == nil && visualErr == nil:
					scene.Status = model.SceneStatusCompleted
				default:
					scene.Status = model.SceneStatusFailed
					scene.Error = sceneError(audioErr, visualErr)
					j.Errors = append(j.Errors, fmt.Sprintf("scene %d: %s", scene.ID, scene.Error))
				}
				return nil
			})
		}(t)
	}
	wg.Wait()

	// Refresh the caller's script copy with the recorded outcomes.
	job, err := o.deps.Store.Get(jobID)
	if err != nil {
		return err
	}
	*sc = *job.Script
	return ctx.Err()
}

func sceneError(audioErr, visualErr error) string {
	switch {
	case audioErr != nil && visualErr != nil:
		return fmt.Sprintf("audio: %v; visual: %v", audioErr, visualErr)
	case audioErr != nil:
		return "audio: " + audioErr.Error()
	default:
		return "visual: " + visualErr.Error()
	}
}

func sceneOutcomes(sc *model.Script) (complete, failed int) {
	for i := range sc.Scenes {
		if sc.Scenes[i].Complete() {
			complete++
		} else {
			failed++
		}
	}
	return complete, failed
}

func (o *Orchestrator) setPhase(jobID string, phase model.Phase, progress int, message string) {
	metrics.RecordPhase(string(phase))
	_ = o.deps.Store.Update(jobID, func(j *model.Job) error {
		j.Phase = phase
		if progress > j.Progress {
			j.Progress = progress
		}
		j.Message = message
		return nil
	})
}

func (o *Orchestrator) transition(jobID string, to model.Status, message string) error {
	return o.deps.Store.Update(jobID, func(j *model.Job) error {
		j.Status = to
		j.Message = message
		return nil
	})
}

func (o *Orchestrator) finalize(jobID string, status model.Status, message string, cause error) {
	err := o.deps.Store.Update(jobID, func(j *model.Job) error {
		j.Status = status
		j.Message = message
		if cause != nil {
			j.Errors = append(j.Errors, cause.Error())
		}
		return nil
	})
	if err != nil {
		o.logger.Error().Err(err).Str(log.FieldJobID, jobID).Msg("finalize failed")
	}
}
