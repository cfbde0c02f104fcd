package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// ClipExtractor defines the interface for the clip extraction pipeline.
type ClipExtractor interface {
	StartRun(ctx context.Context, req *StartRunRequest) (*StartRunResponse, error)
	GetRunStatus(ctx context.Context, runID string) (*RunStatus, error)
	GetRunResult(ctx context.Context, runID string) (*model.PipelineRunResult, error)
	CancelRun(ctx context.Context, runID string) error
}

// StartRunRequest asks the pipeline to extract quiz clips from a YouTube
// URL. Progress callbacks are posted to CallbackURL keyed by JobID.
type StartRunRequest struct {
	URL          string `json:"url"`
	JobID        string `json:"job_id"`
	ClipDuration int    `json:"clip_duration,omitempty"`
	CallbackURL  string `json:"callback_url"`
}

// StartRunResponse acknowledges an accepted pipeline run.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunStatus reports the pipeline's view of a run.
type RunStatus struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Pipeline run statuses
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// PipelineClient implements ClipExtractor for the extraction service.
type PipelineClient struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	callbackURL string
	log         *logger.Logger
}

// NewPipelineClient creates a new pipeline client
func NewPipelineClient(cfg *config.PipelineConfig, log *logger.Logger) *PipelineClient {
	return &PipelineClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		callbackURL: cfg.CallbackURL,
		log:         log,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *PipelineClient) IsConfigured() bool {
	return c.token != ""
}

// CallbackURL returns the progress ingress URL handed to the pipeline.
func (c *PipelineClient) CallbackURL() string {
	return c.callbackURL
}

// StartRun initiates clip extraction for a URL.
func (c *PipelineClient) StartRun(ctx context.Context, req *StartRunRequest) (*StartRunResponse, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}

	var result StartRunResponse
	if err := c.post(ctx, "/v1/runs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRunStatus retrieves the status of a pipeline run.
func (c *PipelineClient) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	var result RunStatus
	if err := c.get(ctx, fmt.Sprintf("/v1/runs/%s", runID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRunResult fetches the terminal output of a completed run.
func (c *PipelineClient) GetRunResult(ctx context.Context, runID string) (*model.PipelineRunResult, error) {
	var result model.PipelineRunResult
	if err := c.get(ctx, fmt.Sprintf("/v1/runs/%s/result", runID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelRun asks the pipeline to stop a run.
func (c *PipelineClient) CancelRun(ctx context.Context, runID string) error {
	return c.post(ctx, fmt.Sprintf("/v1/runs/%s/cancel", runID), struct{}{}, nil)
}

// PollRunStatus polls until the run reaches a terminal status.
func (c *PipelineClient) PollRunStatus(ctx context.Context, runID string, interval, maxWait time.Duration) (*RunStatus, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		result, err := c.GetRunStatus(ctx, runID)
		if err != nil {
			c.log.Warn("pipeline status poll failed", "runId", runID, "attempt", attempt, "error", err)
			return nil, err
		}

		switch result.Status {
		case RunStatusCompleted, RunStatusCanceled:
			return result, nil
		case RunStatusFailed:
			return result, fmt.Errorf("pipeline run failed: %s", result.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
			continue
		}
	}

	return nil, fmt.Errorf("pipeline run timed out after %v", maxWait)
}

// post sends a POST request with JSON body
func (c *PipelineClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *PipelineClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *PipelineClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.Debug("pipeline request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pipeline API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
