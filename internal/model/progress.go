package model

import (
	"errors"
	"fmt"
)

// EventType discriminates the progress event variants emitted by the clip
// extraction pipeline.
type EventType string

const (
	EventPlaylistExtracted EventType = "playlist_extracted"
	EventProcessingStart   EventType = "processing_start"
	EventProgress          EventType = "progress"
	EventParallelProgress  EventType = "parallel_progress"
	EventCompletion        EventType = "completion"
	EventError             EventType = "error"
)

// ErrMissingJobID is returned when an operation that is keyed by job id
// receives an empty one.
var ErrMissingJobID = errors.New("job id is required")

// MalformedEventError reports a progress event whose shape does not match
// its declared type. Malformed events are rejected at ingestion and never
// stored or broadcast.
type MalformedEventError struct {
	Type   EventType
	Reason string
}

func (e *MalformedEventError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("malformed progress event: %s", e.Reason)
	}
	return fmt.Sprintf("malformed %q event: %s", e.Type, e.Reason)
}

// ProgressEvent is a single update from the pipeline about one job. Events
// are immutable once stored; the next event for the same job supersedes the
// previous one, it is never merged into it.
type ProgressEvent struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp,omitempty"`
	Message   string    `json:"message,omitempty"`

	// progress
	Current    *int     `json:"current,omitempty"`
	Total      *int     `json:"total,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`

	// parallel_progress
	Completed  *int `json:"completed,omitempty"`
	Successful *int `json:"successful,omitempty"`
	Failed     *int `json:"failed,omitempty"`

	// completion
	TotalProcessed *int     `json:"total_processed,omitempty"`
	TotalFailed    *int     `json:"total_failed,omitempty"`
	ProcessingTime *float64 `json:"processing_time,omitempty"`
}

// Terminal reports whether the event ends its job's run.
func (e *ProgressEvent) Terminal() bool {
	return e.Type == EventCompletion || e.Type == EventError
}

// Validate checks the tagged fields required for the event's type plus the
// shared range invariants. The switch is exhaustive over EventType: a new
// variant must be given its own case before it can pass ingestion.
func (e *ProgressEvent) Validate() error {
	if err := e.validateRanges(); err != nil {
		return err
	}

	switch e.Type {
	case EventPlaylistExtracted:
		if e.Total == nil {
			return &MalformedEventError{Type: e.Type, Reason: "total is required"}
		}
	case EventProcessingStart:
		// No required variant fields; message and total are optional.
	case EventProgress:
		switch {
		case e.Current == nil:
			return &MalformedEventError{Type: e.Type, Reason: "current is required"}
		case e.Total == nil:
			return &MalformedEventError{Type: e.Type, Reason: "total is required"}
		case e.Percentage == nil:
			return &MalformedEventError{Type: e.Type, Reason: "percentage is required"}
		}
	case EventParallelProgress:
		switch {
		case e.Completed == nil:
			return &MalformedEventError{Type: e.Type, Reason: "completed is required"}
		case e.Successful == nil:
			return &MalformedEventError{Type: e.Type, Reason: "successful is required"}
		case e.Failed == nil:
			return &MalformedEventError{Type: e.Type, Reason: "failed is required"}
		}
	case EventCompletion:
		switch {
		case e.TotalProcessed == nil:
			return &MalformedEventError{Type: e.Type, Reason: "total_processed is required"}
		case e.TotalFailed == nil:
			return &MalformedEventError{Type: e.Type, Reason: "total_failed is required"}
		}
	case EventError:
		if e.Message == "" {
			return &MalformedEventError{Type: e.Type, Reason: "message is required"}
		}
	case "":
		return &MalformedEventError{Reason: "type is required"}
	default:
		return &MalformedEventError{Type: e.Type, Reason: "unknown event type"}
	}

	return nil
}

// validateRanges enforces the invariants that hold whenever a field is
// present, regardless of variant.
func (e *ProgressEvent) validateRanges() error {
	if e.Total != nil && *e.Total <= 0 {
		return &MalformedEventError{Type: e.Type, Reason: "total must be positive"}
	}
	if e.Percentage != nil && (*e.Percentage < 0 || *e.Percentage > 100) {
		return &MalformedEventError{Type: e.Type, Reason: "percentage must be within [0, 100]"}
	}
	if e.Current != nil {
		if *e.Current < 0 {
			return &MalformedEventError{Type: e.Type, Reason: "current must not be negative"}
		}
		if e.Total != nil && *e.Current > *e.Total {
			return &MalformedEventError{Type: e.Type, Reason: "current must not exceed total"}
		}
	}
	for name, v := range map[string]*int{
		"completed":       e.Completed,
		"successful":      e.Successful,
		"failed":          e.Failed,
		"total_processed": e.TotalProcessed,
		"total_failed":    e.TotalFailed,
	} {
		if v != nil && *v < 0 {
			return &MalformedEventError{Type: e.Type, Reason: name + " must not be negative"}
		}
	}
	if e.ProcessingTime != nil && *e.ProcessingTime < 0 {
		return &MalformedEventError{Type: e.Type, Reason: "processing_time must not be negative"}
	}
	return nil
}

// ProgressIngestRequest is the ingress body the pipeline posts per event.
type ProgressIngestRequest struct {
	JobID        string        `json:"jobId"`
	ProgressData ProgressEvent `json:"progressData"`
}

// ProgressIngestResponse acknowledges one accepted event.
type ProgressIngestResponse struct {
	Success          bool `json:"success"`
	Delivered        int  `json:"delivered"`
	ConnectedClients int  `json:"connectedClients"`
}
