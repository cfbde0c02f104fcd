package service

import (
	"context"
	"errors"
	"testing"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/writeback"
	"github.com/clipquiz/api/pkg/logger"
)

func seedSongs(t *testing.T, store *scriptedStore, userID string, titles ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		record, err := store.MemoryStore.InsertSong(context.Background(), &model.SongInsert{
			Title:   title,
			VideoID: "vid-" + title,
			UserID:  userID,
		})
		if err != nil {
			t.Fatalf("seeding song %q failed: %v", title, err)
		}
		ids = append(ids, record.ID)
	}
	return ids
}

func newGameService(store *scriptedStore) *GameService {
	saver, _ := newTestSaver(store)
	return NewGameService(store, saver, logger.NewNop())
}

func TestCreateGame(t *testing.T) {
	store := newScriptedStore()
	ids := seedSongs(t, store, "u1", "Alpha", "Bravo", "Charlie")
	svc := newGameService(store)

	resp, err := svc.CreateGame(context.Background(), "u1", &model.GameCreateRequest{
		Name:    "Friday quiz",
		SongIDs: ids,
	})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if resp.Status != "saved" {
		t.Errorf("expected status saved, got %q", resp.Status)
	}
	if resp.Game == nil || resp.Game.Name != "Friday quiz" {
		t.Fatalf("unexpected game record: %+v", resp.Game)
	}
	if resp.Game.QuickPlay {
		t.Error("manually created games are not quick play")
	}

	detail, err := svc.GetGame(context.Background(), resp.Game.ID)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if len(detail.Questions) != 3 {
		t.Errorf("expected 3 questions, got %d", len(detail.Questions))
	}
}

func TestCreateGame_RejectsTooFewSongs(t *testing.T) {
	store := newScriptedStore()
	ids := seedSongs(t, store, "u1", "Alpha")
	svc := newGameService(store)

	_, err := svc.CreateGame(context.Background(), "u1", &model.GameCreateRequest{
		Name:    "Tiny",
		SongIDs: ids,
	})

	var vErr *writeback.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if _, ok := vErr.Fields["songIds"]; !ok {
		t.Errorf("expected songIds in fields, got %v", vErr.Fields)
	}
}

func TestCreateGame_RejectsUnknownSong(t *testing.T) {
	store := newScriptedStore()
	ids := seedSongs(t, store, "u1", "Alpha", "Bravo")
	svc := newGameService(store)

	_, err := svc.CreateGame(context.Background(), "u1", &model.GameCreateRequest{
		Name:    "Bad ids",
		SongIDs: append(ids, "nope"),
	})

	var vErr *writeback.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestCreateGame_RejectsOtherUsersSongs(t *testing.T) {
	store := newScriptedStore()
	theirs := seedSongs(t, store, "u2", "Alpha", "Bravo")
	svc := newGameService(store)

	_, err := svc.CreateGame(context.Background(), "u1", &model.GameCreateRequest{
		Name:    "Not yours",
		SongIDs: theirs,
	})

	var vErr *writeback.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestCreateGame_QueuedQuestionsKeepGame(t *testing.T) {
	store := newScriptedStore()
	ids := seedSongs(t, store, "u1", "Alpha", "Bravo", "Charlie")
	store.questionErrs = []error{transientErr(), transientErr(), transientErr()}
	svc := newGameService(store)

	resp, err := svc.CreateGame(context.Background(), "u1", &model.GameCreateRequest{
		Name:    "Eventually",
		SongIDs: ids,
	})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if resp.Status != "queued" {
		t.Errorf("expected status queued, got %q", resp.Status)
	}
	if resp.Game == nil {
		t.Fatal("the game row should be kept while questions wait in the queue")
	}
}

func TestGetGame_NotFound(t *testing.T) {
	svc := newGameService(newScriptedStore())

	_, err := svc.GetGame(context.Background(), "missing")
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteGame(t *testing.T) {
	store := newScriptedStore()
	ids := seedSongs(t, store, "u1", "Alpha", "Bravo")
	svc := newGameService(store)

	resp, err := svc.CreateGame(context.Background(), "u1", &model.GameCreateRequest{
		Name:    "Short lived",
		SongIDs: ids,
	})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	if err := svc.DeleteGame(context.Background(), resp.Game.ID); err != nil {
		t.Fatalf("DeleteGame failed: %v", err)
	}
	if _, err := svc.GetGame(context.Background(), resp.Game.ID); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
