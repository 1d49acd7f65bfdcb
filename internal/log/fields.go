// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldSceneID   = "scene_id"
	FieldRequestID = "request_id"

	// Pipeline fields
	FieldComponent = "component"
	FieldPhase     = "phase"
	FieldAttempt   = "attempt"
	FieldProvider  = "provider"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Asset fields
	FieldPath       = "path"
	FieldVisualType = "visual_type"
	FieldDuration   = "duration_s"
)
