package log

// Canonical field name constants for structured logging.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldEvent     = "event"

	// Media fields
	FieldPath     = "path"
	FieldMimeType = "mime_type"
	FieldFPS      = "fps"
	FieldWidth    = "width"
	FieldHeight   = "height"
	FieldDuration = "duration_s"
	FieldBytes    = "bytes"
	FieldChunks   = "chunks"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Analysis fields
	FieldExercise = "exercise"
	FieldRep      = "rep"
)
