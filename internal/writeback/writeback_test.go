package writeback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// fakeStore scripts per-call errors for each operation kind. A nil entry
// (or an exhausted script) means the call succeeds.
type fakeStore struct {
	mu           sync.Mutex
	songErrs     []error
	gameErrs     []error
	questionErrs []error
	urlErrs      []error

	songCalls     int
	gameCalls     int
	questionCalls int
	urlCalls      int

	deletedGames []string
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeStore) InsertSong(ctx context.Context, song *model.SongInsert) (*model.SongRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.songCalls++
	if err := popErr(&f.songErrs); err != nil {
		return nil, err
	}
	return &model.SongRecord{ID: "song-1", Title: song.Title, VideoID: song.VideoID}, nil
}

func (f *fakeStore) InsertGame(ctx context.Context, game *model.GameInsert) (*model.GameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameCalls++
	if err := popErr(&f.gameErrs); err != nil {
		return nil, err
	}
	return &model.GameRecord{ID: "game-1", Name: game.Name, QuestionCount: game.QuestionCount}, nil
}

func (f *fakeStore) InsertQuestions(ctx context.Context, questions []model.QuestionInsert) ([]model.QuestionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	if err := popErr(&f.questionErrs); err != nil {
		return nil, err
	}
	records := make([]model.QuestionRecord, len(questions))
	for i, q := range questions {
		records[i] = model.QuestionRecord{ID: "q", GameID: q.GameID, SongID: q.SongID}
	}
	return records, nil
}

func (f *fakeStore) UpdateURLStatus(ctx context.Context, upd *model.URLStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urlCalls++
	return popErr(&f.urlErrs)
}

func (f *fakeStore) DeleteSong(ctx context.Context, songID string) error { return nil }

func (f *fakeStore) DeleteGame(ctx context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedGames = append(f.deletedGames, gameID)
	return nil
}

func (f *fakeStore) GetSong(ctx context.Context, songID string) (*model.SongRecord, error) {
	return nil, client.ErrNotFound
}

func (f *fakeStore) ListSongs(ctx context.Context, userID string, limit int) ([]model.SongRecord, error) {
	return nil, nil
}

func (f *fakeStore) GetGame(ctx context.Context, gameID string) (*model.GameRecord, error) {
	return nil, client.ErrNotFound
}

func (f *fakeStore) ListGameQuestions(ctx context.Context, gameID string) ([]model.QuestionRecord, error) {
	return nil, nil
}

func transientErr() error {
	return &client.StoreError{StatusCode: 503, Op: "POST /songs", Body: "unavailable"}
}

func permanentErr() error {
	return &client.StoreError{StatusCode: 422, Op: "POST /songs", Body: "duplicate"}
}

func testRetryConfig() *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  4 * time.Millisecond,
	}
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		SweepInterval: 10 * time.Millisecond,
		MaxAttempts:   5,
		MaxAge:        30 * time.Minute,
		MaxSize:       100,
	}
}

func newTestSaver(store client.QuizStore) (*Saver, *Queue) {
	log := logger.NewNop()
	queue := NewQueue(testQueueConfig(), log)
	saver := NewSaver(store, queue, validator.New(), testRetryConfig(), log)
	return saver, queue
}

func validSong() *model.SongInsert {
	return &model.SongInsert{
		Title:    "Bohemian Rhapsody",
		Artist:   "Queen",
		VideoID:  "fJ9rUzIMcZQ",
		Duration: 20,
	}
}

func validGame() *model.GameInsert {
	return &model.GameInsert{Name: "Friday Quiz", QuestionCount: 5}
}

func validQuestions(n int) []model.QuestionInsert {
	questions := make([]model.QuestionInsert, n)
	for i := range questions {
		questions[i] = model.QuestionInsert{
			SongID:   "song-1",
			Options:  []string{"Queen", "ABBA"},
			Answer:   "Queen",
			Position: i,
		}
	}
	return questions
}

func TestSaveSong_Success(t *testing.T) {
	store := &fakeStore{}
	saver, queue := newTestSaver(store)

	record, err := saver.SaveSong(context.Background(), validSong())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if record.ID == "" {
		t.Error("expected a record with an ID")
	}
	if store.songCalls != 1 {
		t.Errorf("expected 1 store call, got %d", store.songCalls)
	}
	if queue.Len() != 0 {
		t.Errorf("expected empty queue, got %d", queue.Len())
	}
}

func TestSaveSong_ValidationNeverReachesStore(t *testing.T) {
	store := &fakeStore{}
	saver, queue := newTestSaver(store)

	_, err := saver.SaveSong(context.Background(), &model.SongInsert{Artist: "Queen"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if vErr.Kind != model.OpInsertSong {
		t.Errorf("expected kind %s, got %s", model.OpInsertSong, vErr.Kind)
	}
	if _, ok := vErr.Fields["Title"]; !ok {
		t.Errorf("expected Title flagged, got %v", vErr.Fields)
	}
	if store.songCalls != 0 {
		t.Errorf("expected no store call for invalid payload, got %d", store.songCalls)
	}
	if queue.Len() != 0 {
		t.Error("validation failures must never be queued")
	}
}

func TestSaveSong_RetriesTransientThenSucceeds(t *testing.T) {
	store := &fakeStore{songErrs: []error{transientErr(), transientErr()}}
	saver, queue := newTestSaver(store)

	record, err := saver.SaveSong(context.Background(), validSong())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if record == nil {
		t.Fatal("expected a record")
	}
	if store.songCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", store.songCalls)
	}
	if queue.Len() != 0 {
		t.Errorf("expected empty queue after eventual success, got %d", queue.Len())
	}
}

func TestSaveSong_PermanentErrorNoRetryNoQueue(t *testing.T) {
	store := &fakeStore{songErrs: []error{permanentErr()}}
	saver, queue := newTestSaver(store)

	_, err := saver.SaveSong(context.Background(), validSong())
	if err == nil {
		t.Fatal("expected error")
	}
	var se *client.StoreError
	if !errors.As(err, &se) || se.StatusCode != 422 {
		t.Fatalf("expected the 422 store error, got %v", err)
	}
	if errors.Is(err, ErrQueued) {
		t.Error("permanent failures must not be reported as queued")
	}
	if store.songCalls != 1 {
		t.Errorf("expected a single attempt for a permanent error, got %d", store.songCalls)
	}
	if queue.Len() != 0 {
		t.Error("permanent failures must never be queued")
	}
}

func TestSaveSong_ExhaustionQueues(t *testing.T) {
	store := &fakeStore{songErrs: []error{transientErr(), transientErr(), transientErr()}}
	saver, queue := newTestSaver(store)

	_, err := saver.SaveSong(context.Background(), validSong())
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued after exhaustion, got %v", err)
	}
	if store.songCalls != 3 {
		t.Errorf("expected MaxAttempts=3 attempts, got %d", store.songCalls)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected 1 queued operation, got %d", queue.Len())
	}
}

func TestSaveSong_ContextCanceledAborts(t *testing.T) {
	store := &fakeStore{songErrs: []error{transientErr(), transientErr(), transientErr()}}
	saver, queue := newTestSaver(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := saver.SaveSong(ctx, validSong())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if queue.Len() != 0 {
		t.Error("canceled operations must not be queued")
	}
}

func TestUpdateURLStatus_InvalidStatus(t *testing.T) {
	store := &fakeStore{}
	saver, _ := newTestSaver(store)

	err := saver.UpdateURLStatus(context.Background(), &model.URLStatusUpdate{
		URL:    "https://youtube.com/watch?v=x",
		Status: "exploded",
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
	if store.urlCalls != 0 {
		t.Error("expected no store call")
	}
}

func TestUpdateURLStatus_QueuedOnExhaustion(t *testing.T) {
	store := &fakeStore{urlErrs: []error{transientErr(), transientErr(), transientErr()}}
	saver, queue := newTestSaver(store)

	err := saver.UpdateURLStatus(context.Background(), &model.URLStatusUpdate{
		URL:    "https://youtube.com/watch?v=x",
		Status: model.URLStatusDone,
	})
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued, got %v", err)
	}
	if queue.Len() != 1 {
		t.Errorf("expected 1 queued operation, got %d", queue.Len())
	}
}

func TestSaveQuestions_EmptyBatchRejected(t *testing.T) {
	store := &fakeStore{}
	saver, _ := newTestSaver(store)

	_, err := saver.SaveQuestions(context.Background(), nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty batch, got %v", err)
	}
}

func TestSaveQuestions_BadElementRejected(t *testing.T) {
	store := &fakeStore{}
	saver, _ := newTestSaver(store)

	questions := validQuestions(2)
	questions[1].Options = []string{"only one"}

	_, err := saver.SaveQuestions(context.Background(), questions)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for bad element, got %v", err)
	}
	if store.questionCalls != 0 {
		t.Error("expected no store call")
	}
}

func TestSaveGameWithQuestions_StampsGameID(t *testing.T) {
	store := &fakeStore{}
	saver, _ := newTestSaver(store)

	questions := validQuestions(2)
	game, records, err := saver.SaveGameWithQuestions(context.Background(), validGame(), questions)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if game == nil || game.ID == "" {
		t.Fatal("expected a game record")
	}
	for _, r := range records {
		if r.GameID != game.ID {
			t.Errorf("expected question bound to game %s, got %s", game.ID, r.GameID)
		}
	}
}

func TestSaveGameWithQuestions_QuestionsQueuedKeepsGame(t *testing.T) {
	store := &fakeStore{questionErrs: []error{transientErr(), transientErr(), transientErr()}}
	saver, queue := newTestSaver(store)

	game, _, err := saver.SaveGameWithQuestions(context.Background(), validGame(), validQuestions(2))
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued, got %v", err)
	}
	if game == nil {
		t.Fatal("expected the saved game record alongside ErrQueued")
	}
	if len(store.deletedGames) != 0 {
		t.Error("queued questions must not roll back the game")
	}
	if queue.Len() != 1 {
		t.Errorf("expected queued question batch, got %d", queue.Len())
	}
}

func TestSaveGameWithQuestions_PermanentFailureRollsBack(t *testing.T) {
	store := &fakeStore{questionErrs: []error{permanentErr()}}
	saver, queue := newTestSaver(store)

	game, _, err := saver.SaveGameWithQuestions(context.Background(), validGame(), validQuestions(2))
	if err == nil || errors.Is(err, ErrQueued) {
		t.Fatalf("expected a permanent error, got %v", err)
	}
	if game != nil {
		t.Error("expected no game record after rollback")
	}
	if len(store.deletedGames) != 1 || store.deletedGames[0] != "game-1" {
		t.Errorf("expected game-1 rolled back, got %v", store.deletedGames)
	}
	if queue.Len() != 0 {
		t.Errorf("expected nothing queued, got %d", queue.Len())
	}
}

func TestSaveGameWithQuestions_GameFailureSkipsQuestions(t *testing.T) {
	store := &fakeStore{gameErrs: []error{permanentErr()}}
	saver, _ := newTestSaver(store)

	_, _, err := saver.SaveGameWithQuestions(context.Background(), validGame(), validQuestions(2))
	if err == nil {
		t.Fatal("expected error")
	}
	if store.questionCalls != 0 {
		t.Error("questions must not be attempted without a game row")
	}
}

func TestExecuteQueued_DispatchesByKind(t *testing.T) {
	store := &fakeStore{}
	saver, _ := newTestSaver(store)
	ctx := context.Background()

	ops := []*QueuedOperation{
		{Kind: model.OpInsertSong, Song: validSong()},
		{Kind: model.OpInsertGame, Game: validGame()},
		{Kind: model.OpInsertQuestions, Questions: validQuestions(1)},
		{Kind: model.OpUpdateURLStatus, URLStatus: &model.URLStatusUpdate{URL: "u", Status: model.URLStatusFailed}},
	}
	for _, op := range ops {
		if err := saver.ExecuteQueued(ctx, op); err != nil {
			t.Errorf("ExecuteQueued(%s) failed: %v", op.Kind, err)
		}
	}
	if store.songCalls != 1 || store.gameCalls != 1 || store.questionCalls != 1 || store.urlCalls != 1 {
		t.Errorf("expected one call per kind, got %d/%d/%d/%d",
			store.songCalls, store.gameCalls, store.questionCalls, store.urlCalls)
	}

	err := saver.ExecuteQueued(ctx, &QueuedOperation{Kind: "mystery"})
	if err == nil {
		t.Error("expected error for unknown kind")
	}
}
