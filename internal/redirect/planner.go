package redirect

import (
	"sync"
	"time"

	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// Broadcaster delivers a redirect message to a job's observers.
type Broadcaster interface {
	BroadcastRedirect(jobID, action, url string, links []model.Link) (int, error)
}

// HistoryEntry is an append-only record of one scheduled routing action.
// Entries are updated in place as the action executes but never removed.
type HistoryEntry struct {
	JobID        string     `json:"jobId"`
	Kind         ActionKind `json:"kind"`
	URL          string     `json:"url,omitempty"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	ExecutedAt   *time.Time `json:"executedAt,omitempty"`
	Delivered    int        `json:"delivered"`
	Fallback     bool       `json:"fallback"`
	Canceled     bool       `json:"canceled"`
	ErrorMessage string     `json:"error,omitempty"`
}

type pendingRedirect struct {
	timer *time.Timer
	entry *HistoryEntry
}

// Planner executes routing actions after a configurable delay. At most one
// action is pending per job; scheduling another replaces it. A broadcast
// failure degrades to a HOME fallback with manual links instead of
// vanishing.
type Planner struct {
	mu      sync.Mutex
	pending map[string]*pendingRedirect
	history []*HistoryEntry
	closed  bool

	hub   Broadcaster
	delay time.Duration
	log   *logger.Logger
}

// NewPlanner creates a new redirect planner
func NewPlanner(hub Broadcaster, cfg *config.RedirectConfig, log *logger.Logger) *Planner {
	return &Planner{
		pending: make(map[string]*pendingRedirect),
		hub:     hub,
		delay:   cfg.Delay,
		log:     log,
	}
}

// Schedule records the action and arms the navigation timer. A pending
// action for the same job is canceled first.
func (p *Planner) Schedule(jobID string, action Action) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.pending[jobID]; ok {
		prev.timer.Stop()
		prev.entry.Canceled = true
		delete(p.pending, jobID)
	}

	entry := &HistoryEntry{
		JobID:        jobID,
		Kind:         action.Kind,
		URL:          action.URL(),
		ScheduledAt:  time.Now().UTC(),
		ErrorMessage: action.Message,
	}
	p.history = append(p.history, entry)

	if p.closed {
		entry.Canceled = true
		return
	}

	p.pending[jobID] = &pendingRedirect{
		entry: entry,
		timer: time.AfterFunc(p.delay, func() {
			p.fire(jobID, entry, action)
		}),
	}

	p.log.Info("redirect scheduled",
		"jobId", jobID, "action", action.Kind, "url", entry.URL, "delay", p.delay.String())
}

// Cancel stops a pending action before it fires. Returns false when nothing
// was pending.
func (p *Planner) Cancel(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, ok := p.pending[jobID]
	if !ok {
		return false
	}
	prev.timer.Stop()
	prev.entry.Canceled = true
	delete(p.pending, jobID)
	return true
}

// History returns a copy of every recorded action, oldest first.
func (p *Planner) History() []HistoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]HistoryEntry, len(p.history))
	for i, entry := range p.history {
		out[i] = *entry
	}
	return out
}

// Stop cancels all pending actions. Scheduled calls after Stop are recorded
// as canceled without arming a timer.
func (p *Planner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for jobID, prev := range p.pending {
		prev.timer.Stop()
		prev.entry.Canceled = true
		delete(p.pending, jobID)
	}
}

func (p *Planner) fire(jobID string, entry *HistoryEntry, action Action) {
	p.mu.Lock()
	if cur, ok := p.pending[jobID]; ok && cur.entry == entry {
		delete(p.pending, jobID)
	}
	p.mu.Unlock()

	now := time.Now().UTC()

	// ERROR is a terminal decision with no navigation; observers already
	// saw the error event itself.
	if action.Kind == ActionError {
		p.mu.Lock()
		entry.ExecutedAt = &now
		p.mu.Unlock()
		return
	}

	delivered, err := p.hub.BroadcastRedirect(jobID, string(action.Kind), action.URL(), ManualLinks(action))
	if err != nil {
		p.log.Error("redirect broadcast failed, offering home fallback",
			"jobId", jobID, "action", action.Kind, "error", err)

		fallback := Action{Kind: ActionHome}
		delivered, _ = p.hub.BroadcastRedirect(jobID, string(fallback.Kind), fallback.URL(), ManualLinks(fallback))

		p.mu.Lock()
		entry.ExecutedAt = &now
		entry.Fallback = true
		entry.Delivered = delivered
		entry.ErrorMessage = err.Error()
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	entry.ExecutedAt = &now
	entry.Delivered = delivered
	p.mu.Unlock()

	p.log.Info("redirect executed", "jobId", jobID, "action", action.Kind, "delivered", delivered)
}
