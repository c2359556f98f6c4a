package model

import "github.com/google/uuid"

// StatusEventKind identifies a launch pipeline stage or terminal outcome.
// A stage's event is emitted when the stage completes, so the per-job
// stream reads as the sequence of state transitions.
type StatusEventKind string

const (
	StatusCreatingRepository StatusEventKind = "CREATING_REPOSITORY"
	StatusRegisteringHook    StatusEventKind = "REGISTERING_HOOK"
	StatusDeploying          StatusEventKind = "DEPLOYING"
	StatusLaunched           StatusEventKind = "LAUNCHED"
	StatusFailed             StatusEventKind = "FAILED"
)

// StatusEventKinds returns every event kind a caller may observe for a
// job, in pipeline order. Included verbatim in the launch acknowledgment.
func StatusEventKinds() []StatusEventKind {
	return []StatusEventKind{
		StatusCreatingRepository,
		StatusRegisteringHook,
		StatusDeploying,
		StatusLaunched,
		StatusFailed,
	}
}

// IsTerminal reports whether the kind ends a job's event stream
func (k StatusEventKind) IsTerminal() bool {
	return k == StatusLaunched || k == StatusFailed
}

// StatusMessageEvent is one entry in a job's ordered lifecycle stream.
// Immutable once constructed. Ordering matters only relative to other
// events sharing the same job ID.
type StatusMessageEvent struct {
	ID    uuid.UUID         `json:"uuid"`
	Kind  StatusEventKind   `json:"statusMessage"`
	Data  map[string]string `json:"data,omitempty"`
	Error string            `json:"error,omitempty"`
}

// NewStatusEvent builds a non-terminal or success event for a job
func NewStatusEvent(id uuid.UUID, kind StatusEventKind, data map[string]string) StatusMessageEvent {
	return StatusMessageEvent{ID: id, Kind: kind, Data: data}
}

// NewFailureEvent builds the terminal FAILED event carrying the cause
func NewFailureEvent(id uuid.UUID, err error) StatusMessageEvent {
	ev := StatusMessageEvent{ID: id, Kind: StatusFailed}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
