package model

import (
	"errors"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestProgressEventValidate_Success(t *testing.T) {
	cases := []struct {
		name string
		ev   ProgressEvent
	}{
		{
			name: "playlist_extracted",
			ev:   ProgressEvent{Type: EventPlaylistExtracted, Total: intPtr(12)},
		},
		{
			name: "processing_start",
			ev:   ProgressEvent{Type: EventProcessingStart, Message: "starting"},
		},
		{
			name: "progress",
			ev: ProgressEvent{
				Type:       EventProgress,
				Current:    intPtr(3),
				Total:      intPtr(12),
				Percentage: floatPtr(25),
			},
		},
		{
			name: "parallel_progress",
			ev: ProgressEvent{
				Type:       EventParallelProgress,
				Completed:  intPtr(5),
				Successful: intPtr(4),
				Failed:     intPtr(1),
			},
		},
		{
			name: "completion",
			ev: ProgressEvent{
				Type:           EventCompletion,
				TotalProcessed: intPtr(10),
				TotalFailed:    intPtr(2),
				ProcessingTime: floatPtr(31.5),
			},
		},
		{
			name: "error",
			ev:   ProgressEvent{Type: EventError, Message: "yt-dlp exited 1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.ev.Validate(); err != nil {
				t.Errorf("expected valid event, got %v", err)
			}
		})
	}
}

func TestProgressEventValidate_Malformed(t *testing.T) {
	cases := []struct {
		name string
		ev   ProgressEvent
	}{
		{"missing type", ProgressEvent{}},
		{"unknown type", ProgressEvent{Type: "telemetry"}},
		{"playlist_extracted without total", ProgressEvent{Type: EventPlaylistExtracted}},
		{"playlist_extracted zero total", ProgressEvent{Type: EventPlaylistExtracted, Total: intPtr(0)}},
		{
			"progress without percentage",
			ProgressEvent{Type: EventProgress, Current: intPtr(1), Total: intPtr(10)},
		},
		{
			"progress percentage out of range",
			ProgressEvent{Type: EventProgress, Current: intPtr(1), Total: intPtr(10), Percentage: floatPtr(101)},
		},
		{
			"progress current beyond total",
			ProgressEvent{Type: EventProgress, Current: intPtr(11), Total: intPtr(10), Percentage: floatPtr(50)},
		},
		{
			"progress negative current",
			ProgressEvent{Type: EventProgress, Current: intPtr(-1), Total: intPtr(10), Percentage: floatPtr(50)},
		},
		{
			"parallel_progress missing counters",
			ProgressEvent{Type: EventParallelProgress, Completed: intPtr(5)},
		},
		{
			"parallel_progress negative counter",
			ProgressEvent{Type: EventParallelProgress, Completed: intPtr(5), Successful: intPtr(-1), Failed: intPtr(1)},
		},
		{
			"completion missing totals",
			ProgressEvent{Type: EventCompletion, TotalProcessed: intPtr(10)},
		},
		{
			"completion negative processing time",
			ProgressEvent{Type: EventCompletion, TotalProcessed: intPtr(10), TotalFailed: intPtr(0), ProcessingTime: floatPtr(-1)},
		},
		{"error without message", ProgressEvent{Type: EventError}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var malformed *MalformedEventError
			if !errors.As(err, &malformed) {
				t.Errorf("expected MalformedEventError, got %T", err)
			}
		})
	}
}

func TestProgressEventTerminal(t *testing.T) {
	terminal := []EventType{EventCompletion, EventError}
	for _, typ := range terminal {
		ev := ProgressEvent{Type: typ}
		if !ev.Terminal() {
			t.Errorf("expected %s to be terminal", typ)
		}
	}

	live := []EventType{EventPlaylistExtracted, EventProcessingStart, EventProgress, EventParallelProgress}
	for _, typ := range live {
		ev := ProgressEvent{Type: typ}
		if ev.Terminal() {
			t.Errorf("expected %s to be non-terminal", typ)
		}
	}
}
