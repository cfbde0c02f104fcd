package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/writeback"
	"github.com/clipquiz/api/pkg/logger"
)

// GameService handles manual game creation and lookup.
type GameService struct {
	store client.QuizStore
	saver *writeback.Saver
	log   *logger.Logger
}

func NewGameService(store client.QuizStore, saver *writeback.Saver, log *logger.Logger) *GameService {
	return &GameService{
		store: store,
		saver: saver,
		log:   log,
	}
}

// CreateGame assembles a game from songs the user already owns. The song IDs
// must all resolve; at least two are needed to build answerable questions.
func (s *GameService) CreateGame(ctx context.Context, userID string, req *model.GameCreateRequest) (*model.GameCreateResponse, error) {
	if len(req.SongIDs) < 2 {
		return nil, &writeback.ValidationError{
			Kind:   model.OpInsertGame,
			Fields: map[string]string{"songIds": "at least 2 songs are required"},
		}
	}

	owned, err := s.store.ListSongs(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}

	byID := make(map[string]model.SongRecord, len(owned))
	for _, song := range owned {
		byID[song.ID] = song
	}

	picked := make([]model.SongRecord, 0, len(req.SongIDs))
	for _, id := range req.SongIDs {
		song, ok := byID[id]
		if !ok {
			return nil, &writeback.ValidationError{
				Kind:   model.OpInsertGame,
				Fields: map[string]string{"songIds": fmt.Sprintf("unknown song id %q", id)},
			}
		}
		picked = append(picked, song)
	}

	questions := buildQuizQuestions(picked, req.Options, 0)
	if len(questions) == 0 {
		return nil, &writeback.ValidationError{
			Kind:   model.OpInsertGame,
			Fields: map[string]string{"songIds": "songs do not yield enough distinct answer options"},
		}
	}

	game := &model.GameInsert{
		Name:          req.Name,
		UserID:        userID,
		QuestionCount: len(questions),
		QuickPlay:     false,
	}

	record, _, err := s.saver.SaveGameWithQuestions(ctx, game, questions)
	if err != nil {
		if errors.Is(err, writeback.ErrQueued) {
			return &model.GameCreateResponse{Game: record, Status: "queued"}, nil
		}
		return nil, err
	}

	return &model.GameCreateResponse{Game: record, Status: "saved"}, nil
}

// GetGame returns a game with its questions.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.GameDetailResponse, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	questions, err := s.store.ListGameQuestions(ctx, gameID)
	if err != nil {
		return nil, err
	}

	return &model.GameDetailResponse{
		Game:      *game,
		Questions: questions,
	}, nil
}

// DeleteGame removes a game and its questions.
func (s *GameService) DeleteGame(ctx context.Context, gameID string) error {
	return s.store.DeleteGame(ctx, gameID)
}
