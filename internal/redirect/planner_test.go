package redirect

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

type redirectCall struct {
	jobID  string
	action string
	url    string
	links  []model.Link
}

// fakeBroadcaster records redirect broadcasts. When failPrimary is set,
// every non-HOME broadcast errors so the fallback path can be observed.
type fakeBroadcaster struct {
	mu          sync.Mutex
	calls       []redirectCall
	failPrimary bool
}

func (f *fakeBroadcaster) BroadcastRedirect(jobID, action, url string, links []model.Link) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrimary && action != string(ActionHome) {
		return 0, errors.New("marshal failed")
	}
	f.calls = append(f.calls, redirectCall{jobID, action, url, links})
	return 1, nil
}

func (f *fakeBroadcaster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBroadcaster) lastCall() (redirectCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return redirectCall{}, false
	}
	return f.calls[len(f.calls)-1], true
}

func newTestPlanner(hub Broadcaster, delay time.Duration) *Planner {
	return NewPlanner(hub, &config.RedirectConfig{Delay: delay}, logger.NewNop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlannerSchedule_FiresAfterDelay(t *testing.T) {
	hub := &fakeBroadcaster{}
	p := newTestPlanner(hub, 10*time.Millisecond)

	p.Schedule("job-1", Action{Kind: ActionPlayGame, GameID: "g1"})
	waitFor(t, "redirect broadcast", func() bool { return hub.callCount() == 1 })

	call, _ := hub.lastCall()
	if call.jobID != "job-1" || call.action != "PLAY_GAME" || call.url != "/play/g1" {
		t.Errorf("unexpected broadcast %+v", call)
	}
	if len(call.links) == 0 {
		t.Error("expected manual links alongside the redirect")
	}

	history := p.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.ExecutedAt == nil {
		t.Error("expected executed timestamp")
	}
	if entry.Delivered != 1 {
		t.Errorf("expected delivered 1, got %d", entry.Delivered)
	}
	if entry.Canceled || entry.Fallback {
		t.Errorf("unexpected flags on entry %+v", entry)
	}
}

func TestPlannerCancel_BeforeFire(t *testing.T) {
	hub := &fakeBroadcaster{}
	p := newTestPlanner(hub, 50*time.Millisecond)

	p.Schedule("job-1", Action{Kind: ActionHome})
	if !p.Cancel("job-1") {
		t.Fatal("expected cancel to find a pending action")
	}
	if p.Cancel("job-1") {
		t.Error("expected second cancel to find nothing")
	}

	time.Sleep(100 * time.Millisecond)
	if hub.callCount() != 0 {
		t.Error("canceled action must not broadcast")
	}

	history := p.History()
	if len(history) != 1 || !history[0].Canceled {
		t.Errorf("expected canceled history entry, got %+v", history)
	}
}

func TestPlannerSchedule_ReplacesPending(t *testing.T) {
	hub := &fakeBroadcaster{}
	p := newTestPlanner(hub, 30*time.Millisecond)

	p.Schedule("job-1", Action{Kind: ActionCreateGame, SongsCreated: 2})
	p.Schedule("job-1", Action{Kind: ActionPlayGame, GameID: "g2"})

	waitFor(t, "replacement broadcast", func() bool { return hub.callCount() == 1 })
	time.Sleep(50 * time.Millisecond)

	if hub.callCount() != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", hub.callCount())
	}
	call, _ := hub.lastCall()
	if call.action != "PLAY_GAME" {
		t.Errorf("expected the replacement action to fire, got %s", call.action)
	}

	history := p.History()
	if len(history) != 2 {
		t.Fatalf("expected both schedules recorded, got %d", len(history))
	}
	if !history[0].Canceled {
		t.Error("expected the replaced entry marked canceled")
	}
	if history[1].Canceled {
		t.Error("expected the replacement entry live")
	}
}

func TestPlannerError_NoNavigation(t *testing.T) {
	hub := &fakeBroadcaster{}
	p := newTestPlanner(hub, 10*time.Millisecond)

	p.Schedule("job-1", Action{Kind: ActionError, Message: "pipeline failed"})

	waitFor(t, "error entry execution", func() bool {
		h := p.History()
		return len(h) == 1 && h[0].ExecutedAt != nil
	})
	if hub.callCount() != 0 {
		t.Error("ERROR must not navigate")
	}
}

func TestPlannerFallback_OnBroadcastFailure(t *testing.T) {
	hub := &fakeBroadcaster{failPrimary: true}
	p := newTestPlanner(hub, 10*time.Millisecond)

	p.Schedule("job-1", Action{Kind: ActionPlayGame, GameID: "g1"})

	waitFor(t, "fallback broadcast", func() bool { return hub.callCount() == 1 })
	call, _ := hub.lastCall()
	if call.action != string(ActionHome) || call.url != "/" {
		t.Errorf("expected HOME fallback, got %+v", call)
	}

	history := p.History()
	if len(history) != 1 || !history[0].Fallback {
		t.Errorf("expected fallback recorded, got %+v", history)
	}
	if history[0].ErrorMessage == "" {
		t.Error("expected the broadcast error recorded")
	}
}

func TestPlannerStop(t *testing.T) {
	hub := &fakeBroadcaster{}
	p := newTestPlanner(hub, 30*time.Millisecond)

	p.Schedule("job-1", Action{Kind: ActionHome})
	p.Stop()

	time.Sleep(60 * time.Millisecond)
	if hub.callCount() != 0 {
		t.Error("expected no broadcast after Stop")
	}

	// Scheduling after Stop records but never fires.
	p.Schedule("job-2", Action{Kind: ActionHome})
	time.Sleep(60 * time.Millisecond)
	if hub.callCount() != 0 {
		t.Error("expected no broadcast for post-Stop schedule")
	}

	history := p.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	for _, entry := range history {
		if !entry.Canceled {
			t.Errorf("expected entry canceled, got %+v", entry)
		}
	}
}

func TestPlannerHistory_IsACopy(t *testing.T) {
	hub := &fakeBroadcaster{}
	p := newTestPlanner(hub, time.Millisecond)

	p.Schedule("job-1", Action{Kind: ActionHome})
	h1 := p.History()
	h1[0].JobID = "mutated"

	h2 := p.History()
	if h2[0].JobID != "job-1" {
		t.Error("History must return copies, not shared entries")
	}
}
