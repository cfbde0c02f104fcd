package model

import "time"

// ProcessingJob tracks one run of the clip extraction pipeline.
type ProcessingJob struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	RunID       string     `json:"runId,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	Result      []byte     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// ProcessJobPayload carries the pipeline run parameters through the task queue.
type ProcessJobPayload struct {
	URL           string `json:"url"`
	QuickPlay     bool   `json:"quickPlay"`
	ClipDuration  int    `json:"clipDuration"`
	QuestionCount int    `json:"questionCount"`
	UserID        string `json:"userId,omitempty"`
}

// ProcessStartRequest asks the server to turn a YouTube URL (video or
// playlist) into quiz clips.
type ProcessStartRequest struct {
	URL           string `json:"url" validate:"required,url"`
	QuickPlay     bool   `json:"quickPlay"`
	ClipDuration  int    `json:"clipDuration" validate:"omitempty,min=3,max=60"`
	QuestionCount int    `json:"questionCount" validate:"omitempty,min=1,max=50"`
}

// ProcessStartResponse acknowledges a queued pipeline run.
type ProcessStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProcessStatusResponse reports the current state of a pipeline run.
type ProcessStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	RetryCount  int        `json:"retryCount"`
}

// ProcessCancelResponse acknowledges a cancellation.
type ProcessCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// PipelineRunResult is the terminal output of one pipeline run, fetched from
// the pipeline service once it reports completion.
type PipelineRunResult struct {
	Success        bool         `json:"success"`
	Songs          []SongInsert `json:"songs"`
	TotalProcessed int          `json:"total_processed"`
	TotalFailed    int          `json:"total_failed"`
	ProcessingTime float64      `json:"processing_time"`
	Error          string       `json:"error,omitempty"`
}

// CompletionResult condenses a pipeline run plus its write-back outcome into
// the shape consumed by completion routing. Produced once per run.
type CompletionResult struct {
	Success      bool   `json:"success"`
	QuickPlay    bool   `json:"quickPlay,omitempty"`
	GameID       string `json:"gameId,omitempty"`
	SongsCreated int    `json:"songsCreated"`
	Error        string `json:"error,omitempty"`
}
