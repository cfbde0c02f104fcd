package model

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Job types
const (
	JobTypeProcess = "process"
)

// OperationKind identifies a write-back operation against the managed store.
type OperationKind string

const (
	OpInsertSong      OperationKind = "insert_song"
	OpInsertGame      OperationKind = "insert_game"
	OpInsertQuestions OperationKind = "insert_questions"
	OpUpdateURLStatus OperationKind = "update_url_status"
)

// URLStatus tracks a submitted source URL through the pipeline.
type URLStatus string

const (
	URLStatusPending    URLStatus = "pending"
	URLStatusProcessing URLStatus = "processing"
	URLStatusDone       URLStatus = "done"
	URLStatusFailed     URLStatus = "failed"
)
