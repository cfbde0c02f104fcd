package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

const (
	TaskTypeProcess = "process:run"
)

// ErrJobNotFound is returned when no job record exists for the given ID.
var ErrJobNotFound = errors.New("job not found")

// ErrJobCompleted is returned when a terminal job is asked to cancel.
var ErrJobCompleted = errors.New("job already completed")

// ErrJobNotCompleted is returned when a result is requested before the job
// succeeded.
var ErrJobNotCompleted = errors.New("job not completed")

// ProcessService handles processing job management
type ProcessService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	extractor   client.ClipExtractor
	log         *logger.Logger
}

func NewProcessService(redisClient *redis.Client, asynqClient *asynq.Client, extractor client.ClipExtractor, log *logger.Logger) *ProcessService {
	return &ProcessService{
		redis:       redisClient,
		asynqClient: asynqClient,
		extractor:   extractor,
		log:         log,
	}
}

// StartProcess queues a new processing job for a submitted URL.
func (s *ProcessService) StartProcess(ctx context.Context, req *model.ProcessStartRequest, userID string) (*model.ProcessStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.ProcessingJob{
		ID:        jobID,
		Type:      model.JobTypeProcess,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
	}

	payload := &model.ProcessJobPayload{
		URL:           req.URL,
		QuickPlay:     req.QuickPlay,
		ClipDuration:  req.ClipDuration,
		QuestionCount: req.QuestionCount,
		UserID:        userID,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job.Payload = payloadBytes

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newProcessTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("process"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ProcessStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a processing job
func (s *ProcessService) GetStatus(ctx context.Context, jobID string) (*model.ProcessStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.ProcessStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		RetryCount:  job.RetryCount,
	}, nil
}

// GetResult returns the completion result of a succeeded processing job.
func (s *ProcessService) GetResult(ctx context.Context, jobID string) (*model.CompletionResult, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded {
		return nil, ErrJobNotCompleted
	}

	var result model.CompletionResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// CancelProcess cancels a processing job. If the job already reached the
// extraction pipeline, the run is canceled there too, best effort.
func (s *ProcessService) CancelProcess(ctx context.Context, jobID string) (*model.ProcessCancelResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == model.JobStatusSucceeded || job.Status == model.JobStatusFailed {
		return nil, ErrJobCompleted
	}

	// Canceling twice is a no-op.
	if job.Status != model.JobStatusCanceled {
		job.Status = model.JobStatusCanceled
		now := time.Now()
		job.CompletedAt = &now

		if err := s.saveJob(ctx, job); err != nil {
			return nil, err
		}

		if job.RunID != "" && s.extractor != nil {
			if err := s.extractor.CancelRun(ctx, job.RunID); err != nil {
				s.log.Warn("failed to cancel pipeline run", "jobId", jobID, "runId", job.RunID, "error", err)
			}
		}
	}

	return &model.ProcessCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}

// SetRunID records the pipeline run handle on the job (called by worker).
func (s *ProcessService) SetRunID(ctx context.Context, jobID, runID string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.RunID = runID

	return s.saveJob(ctx, job)
}

// IsCanceled reports whether the job was canceled (checked by worker between steps).
func (s *ProcessService) IsCanceled(ctx context.Context, jobID string) (bool, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == model.JobStatusCanceled, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *ProcessService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks job as completed (called by worker)
func (s *ProcessService) CompleteJob(ctx context.Context, jobID string, result interface{}) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *ProcessService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *ProcessService) saveJob(ctx context.Context, job *model.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, 24*time.Hour).Err()
}

func (s *ProcessService) getJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func newProcessTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProcess, data), nil
}
