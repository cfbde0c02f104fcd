package writeback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// ErrQueued reports that an operation could not be written now and was
// parked in the failed-operation queue for background retry. The write is
// expected to land eventually; callers treat this as soft success.
var ErrQueued = errors.New("operation queued for retry")

// ValidationError is a permanently rejected payload. It is returned before
// any store attempt and is never queued.
type ValidationError struct {
	Kind   model.OperationKind
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+":"+tag)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, strings.Join(parts, ", "))
}

// Saver writes quiz data to the store with validation, bounded retry and a
// failed-operation queue behind it. One Saver is shared by all services.
type Saver struct {
	store    client.QuizStore
	queue    *Queue
	validate *validator.Validate
	cfg      *config.RetryConfig
	log      *logger.Logger
}

// NewSaver creates a new write-back saver
func NewSaver(store client.QuizStore, queue *Queue, validate *validator.Validate, cfg *config.RetryConfig, log *logger.Logger) *Saver {
	return &Saver{
		store:    store,
		queue:    queue,
		validate: validate,
		cfg:      cfg,
		log:      log,
	}
}

// SaveSong validates and persists one song. On retry exhaustion the insert
// is queued and ErrQueued returned.
func (s *Saver) SaveSong(ctx context.Context, song *model.SongInsert) (*model.SongRecord, error) {
	if err := s.validateStruct(model.OpInsertSong, song); err != nil {
		return nil, err
	}

	var record *model.SongRecord
	err := s.withRetry(ctx, string(model.OpInsertSong), func(ctx context.Context) error {
		r, err := s.store.InsertSong(ctx, song)
		if err == nil {
			record = r
		}
		return err
	})
	if err == nil {
		return record, nil
	}
	return nil, s.queueOrFail(err, &QueuedOperation{Kind: model.OpInsertSong, Song: song})
}

// SaveGame validates and persists one game row.
func (s *Saver) SaveGame(ctx context.Context, game *model.GameInsert) (*model.GameRecord, error) {
	if err := s.validateStruct(model.OpInsertGame, game); err != nil {
		return nil, err
	}

	var record *model.GameRecord
	err := s.withRetry(ctx, string(model.OpInsertGame), func(ctx context.Context) error {
		r, err := s.store.InsertGame(ctx, game)
		if err == nil {
			record = r
		}
		return err
	})
	if err == nil {
		return record, nil
	}
	return nil, s.queueOrFail(err, &QueuedOperation{Kind: model.OpInsertGame, Game: game})
}

// SaveQuestions validates and persists a batch of questions. The batch is
// written atomically by the store; on exhaustion the whole batch is queued.
func (s *Saver) SaveQuestions(ctx context.Context, questions []model.QuestionInsert) ([]model.QuestionRecord, error) {
	if err := s.validateQuestions(questions); err != nil {
		return nil, err
	}

	var records []model.QuestionRecord
	err := s.withRetry(ctx, string(model.OpInsertQuestions), func(ctx context.Context) error {
		r, err := s.store.InsertQuestions(ctx, questions)
		if err == nil {
			records = r
		}
		return err
	})
	if err == nil {
		return records, nil
	}
	return nil, s.queueOrFail(err, &QueuedOperation{Kind: model.OpInsertQuestions, Questions: questions})
}

// UpdateURLStatus validates and writes a source URL's processing state.
func (s *Saver) UpdateURLStatus(ctx context.Context, upd *model.URLStatusUpdate) error {
	if err := s.validateStruct(model.OpUpdateURLStatus, upd); err != nil {
		return err
	}

	err := s.withRetry(ctx, string(model.OpUpdateURLStatus), func(ctx context.Context) error {
		return s.store.UpdateURLStatus(ctx, upd)
	})
	if err == nil {
		return nil
	}
	return s.queueOrFail(err, &QueuedOperation{Kind: model.OpUpdateURLStatus, URLStatus: upd})
}

// SaveGameWithQuestions persists a game and its questions as one logical
// unit. The game row must land synchronously since the questions reference
// its ID. Questions that exhaust their retries are queued with the game ID
// stamped, so the game is playable once the sweeper lands them; a
// permanently rejected question batch rolls the game row back instead.
func (s *Saver) SaveGameWithQuestions(ctx context.Context, game *model.GameInsert, questions []model.QuestionInsert) (*model.GameRecord, []model.QuestionRecord, error) {
	record, err := s.SaveGame(ctx, game)
	if err != nil {
		return nil, nil, err
	}

	for i := range questions {
		questions[i].GameID = record.ID
	}

	qRecords, err := s.SaveQuestions(ctx, questions)
	if err == nil {
		return record, qRecords, nil
	}
	if errors.Is(err, ErrQueued) {
		return record, nil, err
	}

	// The batch was rejected outright. A game without questions is not
	// playable, so undo the game row.
	if delErr := s.store.DeleteGame(ctx, record.ID); delErr != nil && !errors.Is(delErr, client.ErrNotFound) {
		s.log.Error("failed to roll back game after question insert failure",
			"gameId", record.ID, "error", delErr)
	}
	return nil, nil, err
}

// ExecuteQueued runs a single attempt for a queued operation. The sweep
// cadence provides the retry spacing, so there is no inner retry loop.
func (s *Saver) ExecuteQueued(ctx context.Context, op *QueuedOperation) error {
	switch op.Kind {
	case model.OpInsertSong:
		_, err := s.store.InsertSong(ctx, op.Song)
		return err
	case model.OpInsertGame:
		_, err := s.store.InsertGame(ctx, op.Game)
		return err
	case model.OpInsertQuestions:
		_, err := s.store.InsertQuestions(ctx, op.Questions)
		return err
	case model.OpUpdateURLStatus:
		return s.store.UpdateURLStatus(ctx, op.URLStatus)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// withRetry runs fn with doubling backoff until it succeeds, fails
// permanently, exhausts the attempt ceiling, or ctx is canceled.
func (s *Saver) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := s.cfg.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !client.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}

		s.log.Warn("store write failed, retrying",
			"op", op, "attempt", attempt, "backoff", backoff.String(), "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}

	return lastErr
}

// queueOrFail parks a transiently failed operation in the queue. Permanent
// errors and context cancellation pass through unchanged.
func (s *Saver) queueOrFail(err error, op *QueuedOperation) error {
	if !client.IsTransient(err) || s.queue == nil {
		return err
	}

	op.LastError = err.Error()
	s.queue.Enqueue(op)
	s.log.Warn("operation queued after retry exhaustion", "kind", op.Kind, "id", op.ID, "error", err)
	return fmt.Errorf("%s: %w", op.Kind, ErrQueued)
}

func (s *Saver) validateStruct(kind model.OperationKind, payload interface{}) error {
	if err := s.validate.Struct(payload); err != nil {
		return &ValidationError{Kind: kind, Fields: formatValidationErrors(err)}
	}
	return nil
}

func (s *Saver) validateQuestions(questions []model.QuestionInsert) error {
	if len(questions) == 0 {
		return &ValidationError{
			Kind:   model.OpInsertQuestions,
			Fields: map[string]string{"questions": "required"},
		}
	}
	for i := range questions {
		if err := s.validate.Struct(&questions[i]); err != nil {
			fields := formatValidationErrors(err)
			prefixed := make(map[string]string, len(fields))
			for field, tag := range fields {
				prefixed[fmt.Sprintf("questions[%d].%s", i, field)] = tag
			}
			return &ValidationError{Kind: model.OpInsertQuestions, Fields: prefixed}
		}
	}
	return nil
}

// formatValidationErrors converts validator errors to a field:tag map.
func formatValidationErrors(err error) map[string]string {
	fields := make(map[string]string)
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fieldErr := range validationErrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
	} else {
		fields["_"] = err.Error()
	}
	return fields
}
