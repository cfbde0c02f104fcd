package progress

import (
	"context"
	"sync"
	"time"

	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// Snapshot is the most recent progress event observed for a job, plus when
// it arrived. Late websocket subscribers replay it on connect.
type Snapshot struct {
	JobID     string              `json:"jobId"`
	Event     model.ProgressEvent `json:"event"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Store keeps exactly one snapshot per job. Older events for the same job
// are overwritten, never accumulated.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewStore() *Store {
	return &Store{
		snapshots: make(map[string]Snapshot),
	}
}

// Set records ev as the latest event for jobID and returns the stored
// snapshot.
func (s *Store) Set(jobID string, ev model.ProgressEvent) Snapshot {
	snap := Snapshot{
		JobID:     jobID,
		Event:     ev,
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.snapshots[jobID] = snap
	s.mu.Unlock()

	return snap
}

// Get returns the latest snapshot for jobID, if any.
func (s *Store) Get(jobID string) (Snapshot, bool) {
	s.mu.RLock()
	snap, ok := s.snapshots[jobID]
	s.mu.RUnlock()
	return snap, ok
}

// Delete removes the snapshot for jobID. Returns false when nothing was
// stored.
func (s *Store) Delete(jobID string) bool {
	s.mu.Lock()
	_, ok := s.snapshots[jobID]
	if ok {
		delete(s.snapshots, jobID)
	}
	s.mu.Unlock()
	return ok
}

// Clear removes every snapshot and returns how many were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.snapshots)
	s.snapshots = make(map[string]Snapshot)
	s.mu.Unlock()
	return n
}

// Len returns the number of jobs with a stored snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	n := len(s.snapshots)
	s.mu.RUnlock()
	return n
}

// PurgeTerminal drops snapshots whose latest event is terminal (completion
// or error) and older than ttl. Non-terminal snapshots are kept regardless
// of age so an in-flight job never loses its replay state.
func (s *Store) PurgeTerminal(ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for jobID, snap := range s.snapshots {
		if snap.Event.Terminal() && snap.UpdatedAt.Before(cutoff) {
			delete(s.snapshots, jobID)
			purged++
		}
	}
	return purged
}

// StartJanitor purges expired terminal snapshots every interval until ctx is
// canceled.
func (s *Store) StartJanitor(ctx context.Context, interval, ttl time.Duration, log *logger.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.PurgeTerminal(ttl); n > 0 {
					log.Debug("purged terminal progress snapshots", "count", n)
				}
			}
		}
	}()
}
