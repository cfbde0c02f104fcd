package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/redirect"
	"github.com/clipquiz/api/internal/writeback"
	"github.com/clipquiz/api/pkg/logger"
)

const (
	defaultOptionCount   = 4
	defaultQuestionText  = "Which song is this clip from?"
	quickPlayNamePattern = "Quick Play %s"
)

// ResultService turns a finished pipeline run into persisted rows and a
// scheduled routing action. Write failures degrade the outcome instead of
// aborting it: a song that cannot be saved right now is queued for retry and
// still counts toward the run's total, and a quick-play game that fails to
// materialize downgrades the redirect to manual game creation.
type ResultService struct {
	saver   *writeback.Saver
	storage client.StorageClient
	planner *redirect.Planner
	log     *logger.Logger
}

func NewResultService(saver *writeback.Saver, storage client.StorageClient, planner *redirect.Planner, log *logger.Logger) *ResultService {
	return &ResultService{
		saver:   saver,
		storage: storage,
		planner: planner,
		log:     log,
	}
}

// HandleCompletion persists the run's songs, assembles the quick-play game
// when requested, marks the source URL terminal, and schedules the redirect.
// It always produces a CompletionResult, even for failed runs.
func (s *ResultService) HandleCompletion(ctx context.Context, jobID string, payload *model.ProcessJobPayload, run *model.PipelineRunResult) *model.CompletionResult {
	completion := &model.CompletionResult{
		Success:   run.Success,
		QuickPlay: payload.QuickPlay,
		Error:     run.Error,
	}

	var saved []model.SongRecord
	if run.Success {
		saved, completion.SongsCreated = s.persistSongs(ctx, jobID, payload, run.Songs)

		if payload.QuickPlay {
			if gameID := s.assembleQuickPlayGame(ctx, jobID, payload, saved); gameID != "" {
				completion.GameID = gameID
			}
		}
	}

	s.markSourceURL(ctx, jobID, payload.URL, run, completion.SongsCreated)

	action := redirect.Decide(*completion)
	s.planner.Schedule(jobID, action)

	s.log.Info("pipeline run completed",
		"jobId", jobID,
		"success", completion.Success,
		"songsCreated", completion.SongsCreated,
		"gameId", completion.GameID,
		"action", action.Kind,
	)

	return completion
}

// persistSongs writes every extracted clip, returning the records that landed
// synchronously and the count of songs considered created. Queued writes
// count as created; validation failures and permanent errors are logged and
// skipped so the rest of the batch still lands.
func (s *ResultService) persistSongs(ctx context.Context, jobID string, payload *model.ProcessJobPayload, songs []model.SongInsert) ([]model.SongRecord, int) {
	saved := make([]model.SongRecord, 0, len(songs))
	created := 0

	for i := range songs {
		song := songs[i]
		song.UserID = payload.UserID
		if song.SourceURL == "" {
			song.SourceURL = payload.URL
		}
		if song.ClipURL == "" && song.ClipKey != "" && s.storage != nil {
			url, err := s.storage.ResolveClipURL(ctx, song.ClipKey)
			if err != nil {
				s.log.Warn("failed to resolve clip url", "jobId", jobID, "clipKey", song.ClipKey, "error", err)
			} else {
				song.ClipURL = url
			}
		}

		record, err := s.saver.SaveSong(ctx, &song)
		switch {
		case err == nil:
			saved = append(saved, *record)
			created++
		case errors.Is(err, writeback.ErrQueued):
			created++
		default:
			s.log.Error("dropping song that failed to save", "jobId", jobID, "title", song.Title, "error", err)
		}
	}

	return saved, created
}

// assembleQuickPlayGame builds a game plus one question per saved song and
// returns the game ID, or "" when no game could be created. A game whose
// questions are still queued is kept and its ID returned; routing treats it
// as playable once the sweep lands the questions.
func (s *ResultService) assembleQuickPlayGame(ctx context.Context, jobID string, payload *model.ProcessJobPayload, saved []model.SongRecord) string {
	questions := buildQuizQuestions(saved, defaultOptionCount, payload.QuestionCount)
	if len(questions) == 0 {
		s.log.Warn("not enough saved songs for a quick play game", "jobId", jobID, "saved", len(saved))
		return ""
	}

	game := &model.GameInsert{
		Name:          fmt.Sprintf(quickPlayNamePattern, time.Now().Format("Jan 2, 2006")),
		UserID:        payload.UserID,
		QuestionCount: len(questions),
		QuickPlay:     true,
	}

	record, _, err := s.saver.SaveGameWithQuestions(ctx, game, questions)
	if err != nil && !errors.Is(err, writeback.ErrQueued) {
		s.log.Error("quick play game failed to materialize", "jobId", jobID, "error", err)
		return ""
	}
	if record == nil {
		return ""
	}
	return record.ID
}

// markSourceURL records the run's terminal status for the submitted URL.
func (s *ResultService) markSourceURL(ctx context.Context, jobID, url string, run *model.PipelineRunResult, created int) {
	upd := &model.URLStatusUpdate{URL: url}
	if run.Success {
		upd.Status = model.URLStatusDone
		upd.Detail = fmt.Sprintf("%d clips saved, %d failed", created, run.TotalFailed)
	} else {
		upd.Status = model.URLStatusFailed
		upd.Detail = run.Error
	}

	if err := s.saver.UpdateURLStatus(ctx, upd); err != nil && !errors.Is(err, writeback.ErrQueued) {
		s.log.Error("failed to mark source url", "jobId", jobID, "url", url, "error", err)
	}
}

// buildQuizQuestions derives one guess-the-song question per saved clip.
// Options are the correct title plus distractor titles drawn from the other
// songs in the batch, shuffled. Songs whose titles collide with every
// available distractor are skipped rather than producing ambiguous questions.
func buildQuizQuestions(songs []model.SongRecord, optionCount, limit int) []model.QuestionInsert {
	if len(songs) < 2 {
		return nil
	}
	if optionCount < 2 {
		optionCount = defaultOptionCount
	}
	if optionCount > len(songs) {
		optionCount = len(songs)
	}
	if limit <= 0 || limit > len(songs) {
		limit = len(songs)
	}

	order := rand.Perm(len(songs))
	questions := make([]model.QuestionInsert, 0, limit)

	for _, idx := range order {
		if len(questions) == limit {
			break
		}
		subject := songs[idx]

		options := []string{subject.Title}
		for _, j := range rand.Perm(len(songs)) {
			if len(options) == optionCount {
				break
			}
			title := songs[j].Title
			if songs[j].ID == subject.ID || containsTitle(options, title) {
				continue
			}
			options = append(options, title)
		}
		if len(options) < 2 {
			continue
		}
		rand.Shuffle(len(options), func(a, b int) { options[a], options[b] = options[b], options[a] })

		questions = append(questions, model.QuestionInsert{
			SongID:   subject.ID,
			Prompt:   defaultQuestionText,
			Options:  options,
			Answer:   subject.Title,
			Position: len(questions),
		})
	}

	return questions
}

func containsTitle(options []string, title string) bool {
	for _, o := range options {
		if o == title {
			return true
		}
	}
	return false
}
