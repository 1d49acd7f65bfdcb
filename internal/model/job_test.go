// SPDX-License-Identifier: MIT

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"pending to failed", StatusPending, StatusFailed, false},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to completed_with_errors", StatusProcessing, StatusCompletedWithErrors, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to cancelled", StatusProcessing, StatusCancelled, true},
		{"processing to pending", StatusProcessing, StatusPending, false},
		{"completed is absorbing", StatusCompleted, StatusProcessing, false},
		{"failed is absorbing", StatusFailed, StatusPending, false},
		{"cancelled is absorbing", StatusCancelled, StatusProcessing, false},
		{"completed_with_errors is absorbing", StatusCompletedWithErrors, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCompletedWithErrors.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityNormal, ParsePriority("normal"))
	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityUrgent, ParsePriority("urgent"))
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityNormal, ParsePriority("bogus"))
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, PriorityUrgent > PriorityHigh)
	assert.True(t, PriorityHigh > PriorityNormal)
	assert.True(t, PriorityNormal > PriorityLow)
}

func TestJobCloneIsDeep(t *testing.T) {
	now := time.Now()
	job := &Job{
		ID:     "j1",
		Status: StatusProcessing,
		Script: &Script{Scenes: []Scene{{
			ID:            1,
			NarrationText: "original narration text",
			Audio:         &AudioAsset{Path: "a.wav"},
		}}},
		Video:       &Video{Path: "v.mp4"},
		Errors:      []string{"e1"},
		CompletedAt: &now,
	}

	cp := job.Clone()
	require.NotNil(t, cp.Script)

	cp.Script.Scenes[0].NarrationText = "mutated"
	cp.Script.Scenes[0].Audio.Path = "mutated.wav"
	cp.Video.Path = "mutated.mp4"
	cp.Errors[0] = "mutated"

	assert.Equal(t, "original narration text", job.Script.Scenes[0].NarrationText)
	assert.Equal(t, "a.wav", job.Script.Scenes[0].Audio.Path)
	assert.Equal(t, "v.mp4", job.Video.Path)
	assert.Equal(t, "e1", job.Errors[0])
}

func TestJobView(t *testing.T) {
	job := &Job{
		ID:       "j1",
		Status:   StatusCompleted,
		Phase:    PhaseDone,
		Progress: 100,
		Video:    &Video{Path: "v.mp4", Status: "ready"},
	}
	v := job.View()
	assert.Equal(t, "j1", v.JobID)
	assert.Equal(t, StatusCompleted, v.Status)
	assert.Equal(t, 100, v.Progress)
	require.NotNil(t, v.Video)

	v.Video.Path = "mutated"
	assert.Equal(t, "v.mp4", job.Video.Path)
}
