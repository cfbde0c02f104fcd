package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipquiz/api/internal/model"
)

// MemoryStore is an in-memory QuizStore used when no store service is
// configured. Data does not survive a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	songs     map[string]model.SongRecord
	games     map[string]model.GameRecord
	questions map[string][]model.QuestionRecord
	urlStatus map[string]model.URLStatusUpdate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		songs:     make(map[string]model.SongRecord),
		games:     make(map[string]model.GameRecord),
		questions: make(map[string][]model.QuestionRecord),
		urlStatus: make(map[string]model.URLStatusUpdate),
	}
}

func (m *MemoryStore) InsertSong(ctx context.Context, song *model.SongInsert) (*model.SongRecord, error) {
	record := model.SongRecord{
		ID:        uuid.New().String(),
		Title:     song.Title,
		Artist:    song.Artist,
		VideoID:   song.VideoID,
		SourceURL: song.SourceURL,
		ClipKey:   song.ClipKey,
		ClipURL:   song.ClipURL,
		Duration:  song.Duration,
		ClipStart: song.ClipStart,
		UserID:    song.UserID,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.songs[record.ID] = record
	m.mu.Unlock()

	return &record, nil
}

func (m *MemoryStore) InsertGame(ctx context.Context, game *model.GameInsert) (*model.GameRecord, error) {
	record := model.GameRecord{
		ID:            uuid.New().String(),
		Name:          game.Name,
		UserID:        game.UserID,
		QuestionCount: game.QuestionCount,
		QuickPlay:     game.QuickPlay,
		CreatedAt:     time.Now().UTC(),
	}

	m.mu.Lock()
	m.games[record.ID] = record
	m.mu.Unlock()

	return &record, nil
}

func (m *MemoryStore) InsertQuestions(ctx context.Context, questions []model.QuestionInsert) ([]model.QuestionRecord, error) {
	records := make([]model.QuestionRecord, 0, len(questions))

	m.mu.Lock()
	for _, q := range questions {
		record := model.QuestionRecord{
			ID:       uuid.New().String(),
			GameID:   q.GameID,
			SongID:   q.SongID,
			Prompt:   q.Prompt,
			Options:  q.Options,
			Answer:   q.Answer,
			Position: q.Position,
		}
		m.questions[q.GameID] = append(m.questions[q.GameID], record)
		records = append(records, record)
	}
	m.mu.Unlock()

	return records, nil
}

func (m *MemoryStore) UpdateURLStatus(ctx context.Context, upd *model.URLStatusUpdate) error {
	m.mu.Lock()
	m.urlStatus[upd.URL] = *upd
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteSong(ctx context.Context, songID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.songs[songID]; !ok {
		return ErrNotFound
	}
	delete(m.songs, songID)
	return nil
}

func (m *MemoryStore) DeleteGame(ctx context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.games[gameID]; !ok {
		return ErrNotFound
	}
	delete(m.games, gameID)
	delete(m.questions, gameID)
	return nil
}

func (m *MemoryStore) GetSong(ctx context.Context, songID string) (*model.SongRecord, error) {
	m.mu.RLock()
	record, ok := m.songs[songID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (m *MemoryStore) ListSongs(ctx context.Context, userID string, limit int) ([]model.SongRecord, error) {
	m.mu.RLock()
	records := make([]model.SongRecord, 0, len(m.songs))
	for _, s := range m.songs {
		if userID != "" && s.UserID != userID {
			continue
		}
		records = append(records, s)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MemoryStore) GetGame(ctx context.Context, gameID string) (*model.GameRecord, error) {
	m.mu.RLock()
	record, ok := m.games[gameID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (m *MemoryStore) ListGameQuestions(ctx context.Context, gameID string) ([]model.QuestionRecord, error) {
	m.mu.RLock()
	records := append([]model.QuestionRecord(nil), m.questions[gameID]...)
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Position < records[j].Position
	})
	return records, nil
}

// URLStatus reports the recorded status for a source URL. Test helper.
func (m *MemoryStore) URLStatus(url string) (model.URLStatusUpdate, bool) {
	m.mu.RLock()
	upd, ok := m.urlStatus[url]
	m.mu.RUnlock()
	return upd, ok
}
