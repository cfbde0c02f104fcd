package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/service"
	"github.com/clipquiz/api/pkg/logger"
)

const (
	pipelinePollInterval = 2 * time.Second
	pipelinePollMaxWait  = 30 * time.Minute
	mockStepDelay        = 400 * time.Millisecond
)

// JobTracker is the slice of the process service the worker drives.
type JobTracker interface {
	IsCanceled(ctx context.Context, jobID string) (bool, error)
	SetRunID(ctx context.Context, jobID, runID string) error
	UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, result interface{}) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

// EventSink accepts progress events on the same path the ingress uses.
type EventSink interface {
	Ingest(jobID string, event model.ProgressEvent) (*service.IngestResult, error)
}

// CompletionHandler settles a finished run.
type CompletionHandler interface {
	HandleCompletion(ctx context.Context, jobID string, payload *model.ProcessJobPayload, run *model.PipelineRunResult) *model.CompletionResult
}

// ProcessWorker consumes processing tasks. With a configured pipeline it
// submits the run and waits for it; the pipeline posts progress events to the
// ingress callback on its own. Without one it simulates a full run locally,
// feeding the same event sequence through the ingress path.
type ProcessWorker struct {
	processService  JobTracker
	progressService EventSink
	resultService   CompletionHandler
	pipeline        *client.PipelineClient
	log             *logger.Logger

	stepDelay time.Duration
}

// NewProcessWorker creates a new process worker
func NewProcessWorker(processService JobTracker, progressService EventSink, resultService CompletionHandler, pipeline *client.PipelineClient, log *logger.Logger) *ProcessWorker {
	return &ProcessWorker{
		processService:  processService,
		progressService: progressService,
		resultService:   resultService,
		pipeline:        pipeline,
		log:             log,
		stepDelay:       mockStepDelay,
	}
}

// ProcessTask handles one queued processing job.
func (w *ProcessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	w.log.Info("starting processing job", "jobId", jobID)

	var payload model.ProcessJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal process payload: %w", err)
	}

	if canceled, err := w.processService.IsCanceled(ctx, jobID); err == nil && canceled {
		w.log.Info("processing job canceled before start", "jobId", jobID)
		return nil
	}

	if w.pipeline == nil || !w.pipeline.IsConfigured() {
		return w.processWithMock(ctx, jobID, &payload)
	}

	return w.processWithPipeline(ctx, jobID, &payload)
}

// processWithPipeline drives a real extraction run.
func (w *ProcessWorker) processWithPipeline(ctx context.Context, jobID string, payload *model.ProcessJobPayload) error {
	w.updateProgress(ctx, jobID, 5, "Submitting URL to the extraction pipeline...")

	startResp, err := w.pipeline.StartRun(ctx, &client.StartRunRequest{
		URL:          payload.URL,
		JobID:        jobID,
		ClipDuration: payload.ClipDuration,
	})
	if err != nil {
		w.failRun(ctx, jobID, payload, fmt.Sprintf("Pipeline submission failed: %v", err))
		return err
	}

	if err := w.processService.SetRunID(ctx, jobID, startResp.RunID); err != nil {
		w.log.Warn("failed to record run id", "jobId", jobID, "runId", startResp.RunID, "error", err)
	}

	w.updateProgress(ctx, jobID, 10, "Extracting clips...")

	status, err := w.pipeline.PollRunStatus(ctx, startResp.RunID, pipelinePollInterval, pipelinePollMaxWait)
	if err != nil {
		w.failRun(ctx, jobID, payload, fmt.Sprintf("Pipeline run failed: %v", err))
		return err
	}

	if status.Status == client.RunStatusCanceled {
		w.log.Info("pipeline run canceled", "jobId", jobID, "runId", startResp.RunID)
		return nil
	}

	w.updateProgress(ctx, jobID, 90, "Saving extracted clips...")

	runResult, err := w.pipeline.GetRunResult(ctx, startResp.RunID)
	if err != nil {
		w.failRun(ctx, jobID, payload, fmt.Sprintf("Failed to fetch run result: %v", err))
		return err
	}

	return w.finish(ctx, jobID, payload, runResult)
}

// processWithMock simulates a pipeline run for development, emitting the
// event sequence a real run produces.
func (w *ProcessWorker) processWithMock(ctx context.Context, jobID string, payload *model.ProcessJobPayload) error {
	started := time.Now()
	songs := mockSongs(payload)
	total := len(songs)

	w.updateProgress(ctx, jobID, 5, "Fetching playlist...")
	w.emitEvent(jobID, model.ProgressEvent{
		Type:    model.EventPlaylistExtracted,
		Total:   intPtr(total),
		Message: fmt.Sprintf("Found %d videos", total),
	})

	w.emitEvent(jobID, model.ProgressEvent{
		Type:    model.EventProcessingStart,
		Total:   intPtr(total),
		Message: "Starting clip extraction",
	})

	for i, song := range songs {
		select {
		case <-ctx.Done():
			w.log.Info("processing job canceled", "jobId", jobID)
			return ctx.Err()
		default:
		}
		if canceled, err := w.processService.IsCanceled(ctx, jobID); err == nil && canceled {
			w.log.Info("processing job canceled", "jobId", jobID)
			return nil
		}

		current := i + 1
		pct := float64(current) / float64(total) * 100
		step := fmt.Sprintf("Extracting clip from %q", song.Title)

		w.updateProgress(ctx, jobID, 10+current*80/total, step)
		w.emitEvent(jobID, model.ProgressEvent{
			Type:       model.EventProgress,
			Current:    intPtr(current),
			Total:      intPtr(total),
			Percentage: floatPtr(pct),
			Message:    step,
		})

		time.Sleep(w.stepDelay)
	}

	w.emitEvent(jobID, model.ProgressEvent{
		Type:       model.EventParallelProgress,
		Completed:  intPtr(total),
		Successful: intPtr(total),
		Failed:     intPtr(0),
	})

	runResult := &model.PipelineRunResult{
		Success:        true,
		Songs:          songs,
		TotalProcessed: total,
		TotalFailed:    0,
		ProcessingTime: time.Since(started).Seconds(),
	}

	w.emitEvent(jobID, model.ProgressEvent{
		Type:           model.EventCompletion,
		TotalProcessed: intPtr(total),
		TotalFailed:    intPtr(0),
		ProcessingTime: floatPtr(runResult.ProcessingTime),
		Message:        fmt.Sprintf("Extracted %d clips", total),
	})

	return w.finish(ctx, jobID, payload, runResult)
}

// finish persists the run output and settles the job record.
func (w *ProcessWorker) finish(ctx context.Context, jobID string, payload *model.ProcessJobPayload, runResult *model.PipelineRunResult) error {
	completion := w.resultService.HandleCompletion(ctx, jobID, payload, runResult)

	if !completion.Success {
		if err := w.processService.FailJob(ctx, jobID, completion.Error); err != nil {
			w.log.Error("failed to mark job failed", "jobId", jobID, "error", err)
		}
		return nil
	}

	if err := w.processService.CompleteJob(ctx, jobID, completion); err != nil {
		w.log.Error("failed to save job result", "jobId", jobID, "error", err)
		return err
	}

	w.log.Info("processing job completed",
		"jobId", jobID,
		"songsCreated", completion.SongsCreated,
		"gameId", completion.GameID,
	)
	return nil
}

// failRun emits the error event, records the failed run outcome, and marks
// the job failed.
func (w *ProcessWorker) failRun(ctx context.Context, jobID string, payload *model.ProcessJobPayload, msg string) {
	w.emitEvent(jobID, model.ProgressEvent{Type: model.EventError, Message: msg})
	w.resultService.HandleCompletion(ctx, jobID, payload, &model.PipelineRunResult{Success: false, Error: msg})
	if err := w.processService.FailJob(ctx, jobID, msg); err != nil {
		w.log.Error("failed to mark job failed", "jobId", jobID, "error", err)
	}
}

// failJob marks the job failed without a run outcome (pre-run failures).
func (w *ProcessWorker) failJob(ctx context.Context, jobID, msg string) {
	w.emitEvent(jobID, model.ProgressEvent{Type: model.EventError, Message: msg})
	if err := w.processService.FailJob(ctx, jobID, msg); err != nil {
		w.log.Error("failed to mark job failed", "jobId", jobID, "error", err)
	}
}

func (w *ProcessWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.processService.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		w.log.Warn("failed to update job progress", "jobId", jobID, "error", err)
	}
}

func (w *ProcessWorker) emitEvent(jobID string, event model.ProgressEvent) {
	if _, err := w.progressService.Ingest(jobID, event); err != nil {
		w.log.Warn("failed to ingest progress event", "jobId", jobID, "type", event.Type, "error", err)
	}
}

// mockSongs fabricates one extracted clip per mock playlist entry.
func mockSongs(payload *model.ProcessJobPayload) []model.SongInsert {
	entries := []struct {
		title  string
		artist string
	}{
		{"Midnight Drive", "The Neon Owls"},
		{"Paper Planes Home", "Ada Voss"},
		{"Glass River", "Cobalt Parade"},
		{"Second Summer", "June & The Fields"},
		{"Static Hearts", "Monochrome City"},
	}

	clipDuration := payload.ClipDuration
	if clipDuration == 0 {
		clipDuration = 10
	}

	songs := make([]model.SongInsert, 0, len(entries))
	for i, e := range entries {
		videoID := fmt.Sprintf("mock%07d", i+1)
		clipStart := float64(30 + i*5)
		songs = append(songs, model.SongInsert{
			Title:     e.title,
			Artist:    e.artist,
			VideoID:   videoID,
			SourceURL: payload.URL,
			ClipURL:   fmt.Sprintf("https://cdn.clipquiz.app/%s", client.ClipObjectKey(videoID, clipStart)),
			Duration:  float64(clipDuration),
			ClipStart: clipStart,
		})
	}
	return songs
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
