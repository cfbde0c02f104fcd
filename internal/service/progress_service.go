package service

import (
	"time"

	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/progress"
	"github.com/clipquiz/api/internal/redirect"
	"github.com/clipquiz/api/pkg/logger"
)

// Broadcaster is the slice of the connection hub the progress service needs.
type Broadcaster interface {
	BroadcastEvent(jobID string, event model.ProgressEvent) int
	ClientCount(jobID string) int
}

// IngestResult reports what happened to one ingested progress event.
type IngestResult struct {
	Delivered        int `json:"delivered"`
	ConnectedClients int `json:"connectedClients"`
}

// ProgressService accepts pipeline progress events, keeps the latest one per
// job, and fans each accepted event out to the job's connected clients.
type ProgressService struct {
	store   *progress.Store
	hub     Broadcaster
	planner *redirect.Planner
	log     *logger.Logger
}

func NewProgressService(store *progress.Store, hub Broadcaster, planner *redirect.Planner, log *logger.Logger) *ProgressService {
	return &ProgressService{
		store:   store,
		hub:     hub,
		planner: planner,
		log:     log,
	}
}

// Ingest validates one progress event, stores it as the job's snapshot, and
// broadcasts it. Malformed events are rejected whole; they displace nothing.
func (s *ProgressService) Ingest(jobID string, event model.ProgressEvent) (*IngestResult, error) {
	if jobID == "" {
		return nil, model.ErrMissingJobID
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := event.Validate(); err != nil {
		s.log.Warn("rejected progress event", "jobId", jobID, "type", event.Type, "error", err)
		return nil, err
	}

	s.store.Set(jobID, event)
	delivered := s.hub.BroadcastEvent(jobID, event)

	s.log.Debug("progress event ingested",
		"jobId", jobID,
		"type", event.Type,
		"delivered", delivered,
	)

	return &IngestResult{
		Delivered:        delivered,
		ConnectedClients: s.hub.ClientCount(jobID),
	}, nil
}

// Snapshot returns the latest stored event for a job.
func (s *ProgressService) Snapshot(jobID string) (progress.Snapshot, bool) {
	return s.store.Get(jobID)
}

// Clear removes a job's snapshot and cancels any pending redirect for it.
// It reports whether a snapshot existed.
func (s *ProgressService) Clear(jobID string) bool {
	if s.planner != nil {
		s.planner.Cancel(jobID)
	}
	return s.store.Delete(jobID)
}
