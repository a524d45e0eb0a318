// Package verifyqueue runs image verifications in the background so report
// submission never waits on a model call. Jobs are accepted fire-and-forget:
// the report is marked pending, a worker verifies it later, and listeners are
// notified through hooks when the verdict lands.
package verifyqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/relief-labs/groundtruth/internal/metrics"
	"github.com/relief-labs/groundtruth/verdict"
)

// Job is one queued verification request.
type Job struct {
	ReportID   string
	DisasterID string
	ImageURL   string
	// Description is the reporter's text, given to the model as claim context.
	Description string
}

// Outcome is the verdict a worker produced for a job.
type Outcome struct {
	Status verdict.Status
	Score  int
}

// VerifyFunc performs the actual verification for a job's image.
type VerifyFunc func(ctx context.Context, imageURL, description string) (Outcome, error)

// ReportStore persists verification state on reports. Implementations are
// supplied by the embedding application (the platform's report database).
type ReportStore interface {
	// MarkPending records that a verification is in flight for the report.
	MarkPending(ctx context.Context, reportID string) error
	// SetVerification records the final status and score on the report.
	SetVerification(ctx context.Context, reportID string, status verdict.Status, score int) error
}

// Event describes a completed verification, delivered to hooks so callers can
// relay it (e.g. over a realtime channel) to clients watching the disaster.
type Event struct {
	ReportID           string `json:"report_id"`
	DisasterID         string `json:"disaster_id"`
	VerificationStatus string `json:"verification_status"`
	Score              int    `json:"score"`
}

// Hook receives verification completion events. Hooks must not block.
type Hook func(ctx context.Context, e Event)

// Queue is a bounded in-process verification queue with a fixed worker pool.
type Queue struct {
	jobs    chan Job
	verify  VerifyFunc
	store   ReportStore
	workers int
	logger  *slog.Logger

	mu    sync.Mutex
	hooks []Hook
	wg    sync.WaitGroup
}

// New creates a queue holding at most size jobs, processed by workers
// goroutines once Start is called. store may be nil when the embedding
// application does not persist reports.
func New(verify VerifyFunc, store ReportStore, workers, size int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:    make(chan Job, size),
		verify:  verify,
		store:   store,
		workers: workers,
		logger:  logger,
	}
}

// AddHook registers a completion hook. Safe to call before Start.
func (q *Queue) AddHook(h Hook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks = append(q.hooks, h)
}

// Enqueue submits a job without waiting for the verdict. The report is marked
// pending immediately. Returns false when the queue is full; the drop is
// logged and counted but never surfaces to the submitter.
func (q *Queue) Enqueue(ctx context.Context, job Job) bool {
	if q.store != nil {
		if err := q.store.MarkPending(ctx, job.ReportID); err != nil {
			q.logger.Error("failed to mark report pending",
				"report_id", job.ReportID, "error", err)
		}
	}
	select {
	case q.jobs <- job:
		metrics.QueueDepth.Inc()
		return true
	default:
		metrics.QueueDropped.Inc()
		q.logger.Warn("verification queue full, dropping job",
			"report_id", job.ReportID, "image_url", job.ImageURL)
		return false
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (q *Queue) Wait() { q.wg.Wait() }

// Depth returns the number of jobs currently queued.
func (q *Queue) Depth() int { return len(q.jobs) }

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			metrics.QueueDepth.Dec()
			q.process(ctx, job)
		}
	}
}

// process runs one verification. Failures are terminal for the job: the
// report stays pending and the error is logged, matching the submission
// path's promise that verification can never fail a report.
func (q *Queue) process(ctx context.Context, job Job) {
	outcome, err := q.verify(ctx, job.ImageURL, job.Description)
	if err != nil {
		metrics.VerificationsStuckPending.Inc()
		q.logger.Error("background verification failed",
			"report_id", job.ReportID, "image_url", job.ImageURL, "error", err)
		return
	}

	if q.store != nil {
		if err := q.store.SetVerification(ctx, job.ReportID, outcome.Status, outcome.Score); err != nil {
			metrics.VerificationsStuckPending.Inc()
			q.logger.Error("failed to store verification result",
				"report_id", job.ReportID, "error", err)
			return
		}
	}

	metrics.Verdicts.WithLabelValues(string(outcome.Status)).Inc()
	q.logger.Info("verification completed",
		"report_id", job.ReportID,
		"status", outcome.Status,
		"score", outcome.Score)

	event := Event{
		ReportID:           job.ReportID,
		DisasterID:         job.DisasterID,
		VerificationStatus: string(outcome.Status),
		Score:              outcome.Score,
	}
	q.mu.Lock()
	hooks := make([]Hook, len(q.hooks))
	copy(hooks, q.hooks)
	q.mu.Unlock()
	for _, h := range hooks {
		h(ctx, event)
	}
}
