package redirect

import "github.com/clipquiz/api/internal/model"

// ActionKind is the terminal routing decision for a finished pipeline run.
type ActionKind string

const (
	ActionPlayGame   ActionKind = "PLAY_GAME"
	ActionCreateGame ActionKind = "CREATE_GAME"
	ActionHome       ActionKind = "HOME"
	ActionError      ActionKind = "ERROR"
)

// Action is a routing decision plus the context needed to act on it.
type Action struct {
	Kind         ActionKind
	GameID       string
	SongsCreated int
	Message      string
}

// Decide maps a completion result to a routing action. The checks are
// ordered: failures win over everything, an empty run goes home, quick play
// needs a materialized game to be playable and otherwise degrades to manual
// game creation.
func Decide(result model.CompletionResult) Action {
	if !result.Success || result.Error != "" {
		return Action{Kind: ActionError, Message: result.Error}
	}
	if result.SongsCreated == 0 {
		return Action{Kind: ActionHome}
	}
	if result.QuickPlay && result.GameID != "" {
		return Action{Kind: ActionPlayGame, GameID: result.GameID, SongsCreated: result.SongsCreated}
	}
	return Action{Kind: ActionCreateGame, SongsCreated: result.SongsCreated}
}

// URL is the client destination for an action. ERROR has no destination
// since it performs no navigation.
func (a Action) URL() string {
	switch a.Kind {
	case ActionPlayGame:
		return "/play/" + a.GameID
	case ActionCreateGame:
		return "/create-game"
	case ActionHome:
		return "/"
	default:
		return ""
	}
}

// ManualLinks derives the same destinations as automatic navigation, for
// clients that declined or missed the redirect.
func ManualLinks(a Action) []model.Link {
	switch a.Kind {
	case ActionPlayGame:
		return []model.Link{
			{Label: "Play now", URL: a.URL()},
			{Label: "Home", URL: "/"},
		}
	case ActionCreateGame:
		return []model.Link{
			{Label: "Create a game", URL: a.URL()},
			{Label: "Home", URL: "/"},
		}
	default:
		return []model.Link{
			{Label: "Home", URL: "/"},
		}
	}
}
