package service

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/redirect"
	"github.com/clipquiz/api/internal/writeback"
	"github.com/clipquiz/api/pkg/logger"
)

// scriptedStore is the in-memory store with per-operation error scripts in
// front of it. Each scripted error is consumed by one call.
type scriptedStore struct {
	*client.MemoryStore
	mu           sync.Mutex
	songErrs     []error
	gameErrs     []error
	questionErrs []error
	urlErrs      []error
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{MemoryStore: client.NewMemoryStore()}
}

func (s *scriptedStore) pop(list *[]error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(*list) == 0 {
		return nil
	}
	err := (*list)[0]
	*list = (*list)[1:]
	return err
}

func (s *scriptedStore) InsertSong(ctx context.Context, song *model.SongInsert) (*model.SongRecord, error) {
	if err := s.pop(&s.songErrs); err != nil {
		return nil, err
	}
	return s.MemoryStore.InsertSong(ctx, song)
}

func (s *scriptedStore) InsertGame(ctx context.Context, game *model.GameInsert) (*model.GameRecord, error) {
	if err := s.pop(&s.gameErrs); err != nil {
		return nil, err
	}
	return s.MemoryStore.InsertGame(ctx, game)
}

func (s *scriptedStore) InsertQuestions(ctx context.Context, questions []model.QuestionInsert) ([]model.QuestionRecord, error) {
	if err := s.pop(&s.questionErrs); err != nil {
		return nil, err
	}
	return s.MemoryStore.InsertQuestions(ctx, questions)
}

func (s *scriptedStore) UpdateURLStatus(ctx context.Context, upd *model.URLStatusUpdate) error {
	if err := s.pop(&s.urlErrs); err != nil {
		return err
	}
	return s.MemoryStore.UpdateURLStatus(ctx, upd)
}

func transientErr() error {
	return &client.StoreError{StatusCode: http.StatusServiceUnavailable, Op: "POST /songs", Body: "down"}
}

func permanentErr() error {
	return &client.StoreError{StatusCode: http.StatusUnprocessableEntity, Op: "POST /songs", Body: "bad row"}
}

// fakeStorage records deletions and resolves keys to a fixed URL prefix.
type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	return "https://clips.test/" + key, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) ResolveClipURL(ctx context.Context, key string) (string, error) {
	return "https://clips.test/" + key, nil
}

func (f *fakeStorage) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// redirectRecorder implements redirect.Broadcaster and records every fired
// redirect.
type redirectRecorder struct {
	mu    sync.Mutex
	calls []redirectCall
}

type redirectCall struct {
	jobID  string
	action string
	url    string
	links  []model.Link
}

func (r *redirectRecorder) BroadcastRedirect(jobID, action, url string, links []model.Link) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, redirectCall{jobID: jobID, action: action, url: url, links: links})
	return 1, nil
}

func (r *redirectRecorder) recorded() []redirectCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]redirectCall(nil), r.calls...)
}

func newTestSaver(store client.QuizStore) (*writeback.Saver, *writeback.Queue) {
	log := logger.NewNop()
	queue := writeback.NewQueue(&config.QueueConfig{
		SweepInterval: time.Hour,
		MaxAttempts:   5,
		MaxAge:        time.Hour,
		MaxSize:       100,
	}, log)
	saver := writeback.NewSaver(store, queue, validator.New(), &config.RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  4 * time.Millisecond,
	}, log)
	return saver, queue
}

func newTestPlanner(rec *redirectRecorder) *redirect.Planner {
	return redirect.NewPlanner(rec, &config.RedirectConfig{Delay: 5 * time.Millisecond}, logger.NewNop())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func songRecords(titles ...string) []model.SongRecord {
	records := make([]model.SongRecord, 0, len(titles))
	for i, title := range titles {
		records = append(records, model.SongRecord{
			ID:      "song-" + title,
			Title:   title,
			VideoID: "vid-" + title,
			UserID:  "u1",
			CreatedAt: time.Now().Add(
				-time.Duration(len(titles)-i) * time.Minute,
			),
		})
	}
	return records
}
