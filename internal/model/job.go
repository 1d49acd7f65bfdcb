// SPDX-License-Identifier: MIT

// Package model defines the job, script and asset types shared by the
// orchestration pipeline.
package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending             Status = "pending"
	StatusProcessing          Status = "processing"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
	StatusCancelled           Status = "cancelled"
)

// IsTerminal reports whether the status is absorbing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// validTransitions is the directed graph of allowed status changes.
// Terminal states have no outgoing edges.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when a status change violates the graph.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}

// Phase is the pipeline stage a processing job is in.
type Phase string

const (
	PhaseUpload  Phase = "upload"
	PhaseScript  Phase = "script"
	PhaseAudio   Phase = "audio"
	PhaseVisual  Phase = "visual"
	PhaseAssets  Phase = "assets"
	PhaseCompose Phase = "compose"
	PhaseDone    Phase = "done"
)

// Priority orders jobs in the admission queue.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// ParsePriority maps the wire representation to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// SourceDoc references the uploaded document a job was created from.
type SourceDoc struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Type     string `json:"type"` // txt | md | pdf
	Size     int64  `json:"size"`
}

// Job is one user submission and its full processing state. It is mutated
// only by the orchestrator worker that owns it; the store serves read-only
// projections to status queries.
type Job struct {
	ID          string     `json:"job_id"`
	Status      Status     `json:"status"`
	Phase       Phase      `json:"phase"`
	Priority    Priority   `json:"priority"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Source      SourceDoc  `json:"source"`
	Script      *Script    `json:"script,omitempty"`
	Video       *Video     `json:"video,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out as a read-only view.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Script != nil {
		cp.Script = j.Script.Clone()
	}
	if j.Video != nil {
		v := *j.Video
		cp.Video = &v
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Errors = append([]string(nil), j.Errors...)
	return &cp
}

// JobView is the read-only projection returned by status queries.
type JobView struct {
	JobID       string     `json:"job_id"`
	Status      Status     `json:"status"`
	Phase       Phase      `json:"phase"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Video       *Video     `json:"result,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
}

// View projects a job into its externally visible shape.
func (j *Job) View() JobView {
	v := JobView{
		JobID:     j.ID,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  j.Progress,
		Message:   j.Message,
		UpdatedAt: j.UpdatedAt,
		Errors:    append([]string(nil), j.Errors...),
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		v.CompletedAt = &t
	}
	if j.Video != nil {
		vid := *j.Video
		v.Video = &vid
	}
	return v
}
