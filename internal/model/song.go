package model

import "time"

// SongInsert is the payload for persisting one extracted clip as a song row.
type SongInsert struct {
	Title     string  `json:"title" validate:"required"`
	Artist    string  `json:"artist,omitempty"`
	VideoID   string  `json:"video_id" validate:"required"`
	SourceURL string  `json:"source_url,omitempty"`
	ClipKey   string  `json:"clip_key,omitempty"`
	ClipURL   string  `json:"clip_url,omitempty"`
	Duration  float64 `json:"duration" validate:"gte=0"`
	ClipStart float64 `json:"clip_start" validate:"gte=0"`
	UserID    string  `json:"user_id,omitempty"`
}

// SongRecord is a song row as returned by the managed store.
type SongRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	VideoID   string    `json:"video_id"`
	SourceURL string    `json:"source_url,omitempty"`
	ClipKey   string    `json:"clip_key,omitempty"`
	ClipURL   string    `json:"clip_url,omitempty"`
	Duration  float64   `json:"duration"`
	ClipStart float64   `json:"clip_start"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SongListResponse wraps the song listing endpoint.
type SongListResponse struct {
	Songs []SongRecord `json:"songs"`
	Count int          `json:"count"`
}

// URLStatusUpdate marks a submitted source URL's place in the pipeline.
type URLStatusUpdate struct {
	URL    string    `json:"url" validate:"required"`
	Status URLStatus `json:"status" validate:"required,oneof=pending processing done failed"`
	Detail string    `json:"detail,omitempty"`
}
