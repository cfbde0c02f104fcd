package model

import "time"

// WebSocket message types
const (
	WSMessageTypeConnectionEstablished = "connection_established"
	WSMessageTypeProgressUpdate        = "progress_update"
	WSMessageTypeRedirect              = "redirect"
	WSMessageTypePing                  = "ping"
	WSMessageTypePong                  = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSConnectionEstablished is sent to a client right after it registers.
type WSConnectionEstablished struct {
	Type      string    `json:"type"`
	JobID     string    `json:"jobId"`
	Timestamp time.Time `json:"timestamp"`
}

// WSProgressUpdate wraps a progress event for delivery to observers.
type WSProgressUpdate struct {
	Type      string        `json:"type"`
	Data      ProgressEvent `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
}

// Link is a labeled navigation target offered to the client.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// WSRedirect tells observers where the client should navigate after a run
// finishes. Links carries manual fallbacks for when automatic navigation is
// declined.
type WSRedirect struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	URL       string    `json:"url"`
	Links     []Link    `json:"links,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
