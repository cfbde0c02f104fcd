package writeback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/pkg/logger"
)

// QueuedOperation is one store write waiting for a background retry.
type QueuedOperation struct {
	ID         string
	Kind       model.OperationKind
	Song       *model.SongInsert
	Game       *model.GameInsert
	Questions  []model.QuestionInsert
	URLStatus  *model.URLStatusUpdate
	Attempts   int
	EnqueuedAt time.Time
	LastError  string
}

// ExecFunc runs a single attempt for one queued operation.
type ExecFunc func(ctx context.Context, op *QueuedOperation) error

// SweepReport summarizes one pass over the queue.
type SweepReport struct {
	Skipped   bool
	Attempted int
	Succeeded int
	Requeued  int
	Dropped   int
	Remaining int
}

// Queue holds operations that exhausted their inline retries. A periodic
// sweeper re-attempts them in FIFO order and drops the ones that hit the
// attempt ceiling or age out.
type Queue struct {
	mu  sync.Mutex
	ops []*QueuedOperation

	sweeping atomic.Bool

	cfg *config.QueueConfig
	log *logger.Logger
}

// NewQueue creates an empty failed-operation queue
func NewQueue(cfg *config.QueueConfig, log *logger.Logger) *Queue {
	return &Queue{
		cfg: cfg,
		log: log,
	}
}

// Enqueue appends an operation. When the queue is at capacity the oldest
// operation is dropped to make room.
func (q *Queue) Enqueue(op *QueuedOperation) {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cfg.MaxSize > 0 && len(q.ops) >= q.cfg.MaxSize {
		dropped := q.ops[0]
		q.ops = q.ops[1:]
		q.log.Error("failed-operation queue full, dropping oldest",
			"kind", dropped.Kind, "id", dropped.ID, "attempts", dropped.Attempts)
	}
	q.ops = append(q.ops, op)
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Sweep re-attempts every queued operation once. Operations that succeed
// leave the queue; transient failures are requeued until they hit the
// attempt ceiling or max age; permanent failures are dropped immediately.
// Overlapping passes are skipped rather than stacked.
func (q *Queue) Sweep(ctx context.Context, exec ExecFunc) SweepReport {
	if !q.sweeping.CompareAndSwap(false, true) {
		return SweepReport{Skipped: true}
	}
	defer q.sweeping.Store(false)

	q.mu.Lock()
	batch := q.ops
	q.ops = nil
	q.mu.Unlock()

	report := SweepReport{Attempted: len(batch)}
	var retained []*QueuedOperation

	for i, op := range batch {
		if ctx.Err() != nil {
			// Shutdown mid-pass: keep the rest untouched.
			retained = append(retained, batch[i:]...)
			report.Attempted = i
			break
		}

		err := exec(ctx, op)
		if err == nil {
			report.Succeeded++
			q.log.Info("queued operation landed", "kind", op.Kind, "id", op.ID, "attempts", op.Attempts+1)
			continue
		}

		op.Attempts++
		op.LastError = err.Error()

		switch {
		case !client.IsTransient(err):
			report.Dropped++
			q.log.Error("dropping permanently failed operation",
				"kind", op.Kind, "id", op.ID, "attempts", op.Attempts, "error", err)
		case op.Attempts >= q.cfg.MaxAttempts:
			report.Dropped++
			q.log.Error("dropping operation at attempt ceiling",
				"kind", op.Kind, "id", op.ID, "attempts", op.Attempts, "lastError", op.LastError)
		case time.Since(op.EnqueuedAt) > q.cfg.MaxAge:
			report.Dropped++
			q.log.Error("dropping aged-out operation",
				"kind", op.Kind, "id", op.ID, "age", time.Since(op.EnqueuedAt).String(), "lastError", op.LastError)
		default:
			report.Requeued++
			retained = append(retained, op)
		}
	}

	// Operations enqueued while the pass ran go behind the survivors.
	q.mu.Lock()
	q.ops = append(retained, q.ops...)
	report.Remaining = len(q.ops)
	q.mu.Unlock()

	return report
}

// StartSweep runs Sweep every sweep interval until ctx is canceled.
func (q *Queue) StartSweep(ctx context.Context, exec ExecFunc) {
	go func() {
		ticker := time.NewTicker(q.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report := q.Sweep(ctx, exec)
				if report.Skipped || report.Attempted == 0 {
					continue
				}
				q.log.Info("queue sweep finished",
					"attempted", report.Attempted,
					"succeeded", report.Succeeded,
					"requeued", report.Requeued,
					"dropped", report.Dropped,
					"remaining", report.Remaining)
			}
		}
	}()
}

// Drain makes one final pass at shutdown and reports what is left behind.
func (q *Queue) Drain(ctx context.Context, exec ExecFunc) {
	report := q.Sweep(ctx, exec)
	if report.Remaining > 0 {
		q.log.Warn("shutting down with unflushed operations", "remaining", report.Remaining)
	}
}
