package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// QuizStore defines the interface for the durable quiz data store.
type QuizStore interface {
	InsertSong(ctx context.Context, song *model.SongInsert) (*model.SongRecord, error)
	InsertGame(ctx context.Context, game *model.GameInsert) (*model.GameRecord, error)
	InsertQuestions(ctx context.Context, questions []model.QuestionInsert) ([]model.QuestionRecord, error)
	UpdateURLStatus(ctx context.Context, upd *model.URLStatusUpdate) error
	DeleteSong(ctx context.Context, songID string) error
	DeleteGame(ctx context.Context, gameID string) error
	GetSong(ctx context.Context, songID string) (*model.SongRecord, error)
	ListSongs(ctx context.Context, userID string, limit int) ([]model.SongRecord, error)
	GetGame(ctx context.Context, gameID string) (*model.GameRecord, error)
	ListGameQuestions(ctx context.Context, gameID string) ([]model.QuestionRecord, error)
}

// StoreError is a non-2xx reply from the quiz store.
type StoreError struct {
	StatusCode int
	Op         string
	Body       string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// HTTPStatusCode exposes the status for retry classification.
func (e *StoreError) HTTPStatusCode() int {
	return e.StatusCode
}

// ErrNotFound is returned when the store has no row for the given key.
var ErrNotFound = errors.New("record not found")

// IsRetryableStatus reports whether an HTTP status is worth retrying.
// 409 is included: the store surfaces constraint races as conflicts, and the
// losing writer may succeed on a later attempt.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// IsTransient classifies an operation error as retryable. Timeouts, dial and
// connection failures, and 408/409/425/429/5xx store replies are transient.
// Context cancellation is an abort signal, never retried. Everything else
// (4xx, validation) is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var se *StoreError
	if errors.As(err, &se) {
		return IsRetryableStatus(se.StatusCode)
	}
	return false
}

// StoreClient implements QuizStore against the store's REST API.
type StoreClient struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
	log        *logger.Logger
}

// NewStoreClient creates a new quiz store client
func NewStoreClient(cfg *config.StoreConfig, log *logger.Logger) *StoreClient {
	return &StoreClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    cfg.BaseURL,
		serviceKey: cfg.ServiceKey,
		log:        log,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *StoreClient) IsConfigured() bool {
	return c.baseURL != "" && c.serviceKey != ""
}

// InsertSong persists one extracted song row.
func (c *StoreClient) InsertSong(ctx context.Context, song *model.SongInsert) (*model.SongRecord, error) {
	var record model.SongRecord
	if err := c.post(ctx, "/songs", song, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// InsertGame persists one game row.
func (c *StoreClient) InsertGame(ctx context.Context, game *model.GameInsert) (*model.GameRecord, error) {
	var record model.GameRecord
	if err := c.post(ctx, "/games", game, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// InsertQuestions persists a game's question rows in one batch.
func (c *StoreClient) InsertQuestions(ctx context.Context, questions []model.QuestionInsert) ([]model.QuestionRecord, error) {
	var records []model.QuestionRecord
	if err := c.post(ctx, "/questions", questions, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateURLStatus marks a source URL's processing state, keyed by URL.
func (c *StoreClient) UpdateURLStatus(ctx context.Context, upd *model.URLStatusUpdate) error {
	return c.patch(ctx, "/url-status", upd, nil)
}

// DeleteSong removes a song row. Used to roll back partial game creation.
func (c *StoreClient) DeleteSong(ctx context.Context, songID string) error {
	return c.delete(ctx, "/songs/"+songID)
}

// DeleteGame removes a game row and its questions.
func (c *StoreClient) DeleteGame(ctx context.Context, gameID string) error {
	return c.delete(ctx, "/games/"+gameID)
}

// GetSong fetches one song row.
func (c *StoreClient) GetSong(ctx context.Context, songID string) (*model.SongRecord, error) {
	var record model.SongRecord
	if err := c.get(ctx, "/songs/"+songID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListSongs returns a user's songs, newest first.
func (c *StoreClient) ListSongs(ctx context.Context, userID string, limit int) ([]model.SongRecord, error) {
	endpoint := fmt.Sprintf("/songs?userId=%s&limit=%d", url.QueryEscape(userID), limit)
	var records []model.SongRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetGame fetches one game row.
func (c *StoreClient) GetGame(ctx context.Context, gameID string) (*model.GameRecord, error) {
	var record model.GameRecord
	if err := c.get(ctx, "/games/"+gameID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListGameQuestions fetches a game's questions ordered by position.
func (c *StoreClient) ListGameQuestions(ctx context.Context, gameID string) ([]model.QuestionRecord, error) {
	var records []model.QuestionRecord
	if err := c.get(ctx, "/games/"+gameID+"/questions", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// post sends a POST request with JSON body
func (c *StoreClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	return c.send(ctx, http.MethodPost, endpoint, body, result)
}

// patch sends a PATCH request with JSON body
func (c *StoreClient) patch(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	return c.send(ctx, http.MethodPatch, endpoint, body, result)
}

// get sends a GET request and parses JSON response
func (c *StoreClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

// delete sends a DELETE request
func (c *StoreClient) delete(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, nil)
}

func (c *StoreClient) send(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *StoreClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	c.log.Debug("store request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("store request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StoreError{
			StatusCode: resp.StatusCode,
			Op:         req.Method + " " + req.URL.Path,
			Body:       string(respBody),
		}
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
