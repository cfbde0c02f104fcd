package service

import (
	"context"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// SongService handles song listing and deletion.
type SongService struct {
	store   client.QuizStore
	storage client.StorageClient
	log     *logger.Logger
}

func NewSongService(store client.QuizStore, storage client.StorageClient, log *logger.Logger) *SongService {
	return &SongService{
		store:   store,
		storage: storage,
		log:     log,
	}
}

// ListSongs returns a user's songs, newest first, with playable clip URLs.
// Rows stored with only an object key get their URL resolved on the way out.
func (s *SongService) ListSongs(ctx context.Context, userID string, limit int) (*model.SongListResponse, error) {
	records, err := s.store.ListSongs(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	if s.storage != nil {
		for i := range records {
			if records[i].ClipURL != "" || records[i].ClipKey == "" {
				continue
			}
			url, err := s.storage.ResolveClipURL(ctx, records[i].ClipKey)
			if err != nil {
				s.log.Warn("failed to resolve clip url", "songId", records[i].ID, "clipKey", records[i].ClipKey, "error", err)
				continue
			}
			records[i].ClipURL = url
		}
	}

	return &model.SongListResponse{
		Songs: records,
		Count: len(records),
	}, nil
}

// DeleteSong removes a song row and its clip object, if one is stored.
func (s *SongService) DeleteSong(ctx context.Context, songID string) error {
	song, err := s.store.GetSong(ctx, songID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteSong(ctx, songID); err != nil {
		return err
	}

	if song.ClipKey != "" && s.storage != nil {
		if err := s.storage.Delete(ctx, song.ClipKey); err != nil {
			s.log.Warn("failed to delete clip object", "songId", songID, "clipKey", song.ClipKey, "error", err)
		}
	}

	return nil
}
