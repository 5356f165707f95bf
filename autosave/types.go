// Package autosave keeps editor content persisted: it debounces changes,
// bounds staleness with a ceiling timer and talks to the persistence
// collaborator using optimistic versioning.
package autosave

import (
	"context"
	"fmt"
	"time"
)

// Status is the single save indicator of an editor instance.
type Status string

const (
	StatusSaved   Status = "saved"
	StatusUnsaved Status = "unsaved"
	StatusSaving  Status = "saving"
	StatusError   Status = "error"
)

// Snapshot is immutable serialized state of the editor.
type Snapshot struct {
	Markup    string
	Title     string
	Date      string
	Timezone  string
	Reference string
}

// Equal compares snapshots field by field.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Markup == o.Markup &&
		s.Title == o.Title &&
		s.Date == o.Date &&
		s.Timezone == o.Timezone &&
		s.Reference == o.Reference
}

// Source produces snapshots, implemented by the editor.
type Source interface {
	// Capture serializes current state without touching the live document.
	Capture() Snapshot
	// Prepare normalizes live document, restores cursor and serializes.
	Prepare() Snapshot
}

// Request is a single save attempt.
type Request struct {
	Snapshot
	// Version is the last version acknowledged by the server.
	Version int64
}

// Response is a successful save acknowledgment.
type Response struct {
	Version  int64
	Modified time.Time
}

// Persister sends snapshots to the persistence collaborator.
type Persister interface {
	Save(ctx context.Context, req Request) (*Response, error)
}

// ConflictError reports optimistic concurrency failure. Markup is renderable
// conflict resolution payload.
type ConflictError struct {
	Markup  string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict, server has version %d", e.Version)
}

// TransientError is a failure worth retrying: server side errors and
// network problems.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Conflict is pending conflict exposed to the host for resolution.
type Conflict struct {
	Markup  string
	Version int64
}
