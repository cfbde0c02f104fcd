package model

import "time"

// GameInsert is the payload for creating a quiz game row.
type GameInsert struct {
	Name          string `json:"name" validate:"required"`
	UserID        string `json:"user_id,omitempty"`
	QuestionCount int    `json:"question_count" validate:"required,gt=0"`
	QuickPlay     bool   `json:"quick_play"`
}

// GameRecord is a game row as returned by the managed store.
type GameRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	UserID        string    `json:"user_id,omitempty"`
	QuestionCount int       `json:"question_count"`
	QuickPlay     bool      `json:"quick_play"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuestionInsert is one quiz question in a batch insert. GameID is filled in
// once the owning game row exists.
type QuestionInsert struct {
	GameID   string   `json:"game_id,omitempty"`
	SongID   string   `json:"song_id" validate:"required"`
	Prompt   string   `json:"prompt,omitempty"`
	Options  []string `json:"options" validate:"required,min=2,dive,required"`
	Answer   string   `json:"answer" validate:"required"`
	Position int      `json:"position" validate:"gte=0"`
}

// QuestionRecord is a question row as returned by the managed store.
type QuestionRecord struct {
	ID       string   `json:"id"`
	GameID   string   `json:"game_id"`
	SongID   string   `json:"song_id"`
	Prompt   string   `json:"prompt,omitempty"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
	Position int      `json:"position"`
}

// GameCreateRequest asks for a game assembled from existing songs.
type GameCreateRequest struct {
	Name    string   `json:"name" validate:"required"`
	SongIDs []string `json:"songIds" validate:"required,min=1,dive,required"`
	Options int      `json:"options" validate:"omitempty,min=2,max=8"`
}

// GameCreateResponse reports the outcome of a game creation. Status is
// "saved" when the game and its questions landed in the store, or "queued"
// when parts of the write are waiting in the background retry queue.
type GameCreateResponse struct {
	Game   *GameRecord `json:"game,omitempty"`
	Status string      `json:"status"`
}

// GameDetailResponse is a game with its questions.
type GameDetailResponse struct {
	Game      GameRecord       `json:"game"`
	Questions []QuestionRecord `json:"questions"`
}
