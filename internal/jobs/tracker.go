// Package jobs runs report generation in the background and tracks each
// request through PENDING, PROCESSING and a terminal state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/storerecon/reconciler/internal/domain"
)

// ErrClosed is returned by Submit once the tracker has been drained.
var ErrClosed = errors.New("job tracker is shutting down")

// DefaultStaleAfter is how long a job may stay PENDING before it is reaped.
const DefaultStaleAfter = 30 * time.Minute

// DefaultWorkers sizes the pool for I/O bound work: min(32, NumCPU+4).
func DefaultWorkers() int {
	n := runtime.NumCPU() + 4
	if n > 32 {
		n = 32
	}
	return n
}

// Store persists jobs and enforces their state machine.
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]domain.Job, error)
	Claim(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int, message string) error
	Complete(ctx context.Context, id, filename string) error
	Fail(ctx context.Context, id, errMsg string) error
	ReapStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Runner does the work of one job and returns the artifact name.
type Runner interface {
	Run(ctx context.Context, job *domain.Job, progress func(percent int, message string)) (string, error)
}

type Options struct {
	Workers    int
	StaleAfter time.Duration
}

// Tracker dispatches submitted jobs to a bounded pool. Jobs that are
// PROCESSING always run to completion; only PENDING jobs time out.
type Tracker struct {
	store      Store
	runner     Runner
	sem        *semaphore.Weighted
	staleAfter time.Duration
	now        func() time.Time
	newID      func() string
	log        logrus.FieldLogger

	// queue is cancelled by Wait so jobs still waiting for a worker give
	// up and stay PENDING.
	queue  context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewTracker(store Store, runner Runner, opts Options, log logrus.FieldLogger) *Tracker {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	queue, cancel := context.WithCancel(context.Background())
	return &Tracker{
		store:      store,
		runner:     runner,
		sem:        semaphore.NewWeighted(int64(opts.Workers)),
		staleAfter: opts.StaleAfter,
		now:        time.Now,
		newID:      uuid.NewString,
		log:        log.WithField("component", "jobs"),
		queue:      queue,
		cancel:     cancel,
	}
}

// Submit records a PENDING job for the window and queues it.
func (t *Tracker) Submit(ctx context.Context, scope domain.Scope) (*domain.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	job := &domain.Job{
		ID:        t.newID(),
		StoreCode: scope.StoreLabel(),
		StartDate: scope.StartDate(),
		EndDate:   scope.EndDate(),
	}
	if err := t.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	t.log.WithFields(logrus.Fields{"job_id": job.ID, "window": scope.String()}).Info("job submitted")

	t.wg.Add(1)
	go t.dispatch(*job)
	return job, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (*domain.Job, error) {
	return t.store.Get(ctx, id)
}

func (t *Tracker) List(ctx context.Context, limit int) ([]domain.Job, error) {
	return t.store.List(ctx, limit)
}

func (t *Tracker) dispatch(job domain.Job) {
	defer t.wg.Done()
	log := t.log.WithField("job_id", job.ID)

	if err := t.sem.Acquire(t.queue, 1); err != nil {
		log.Warn("job left pending: tracker shutting down")
		return
	}
	defer t.sem.Release(1)

	// Job state outlives the submitting request.
	ctx := context.Background()
	if err := t.store.Claim(ctx, job.ID); err != nil {
		// Reaped while queued, most likely.
		log.WithError(err).Warn("job not claimed")
		return
	}
	job.Status = domain.JobProcessing
	log.Info("job started")

	filename, err := t.run(ctx, &job, log)
	if err != nil {
		log.WithError(err).Error("job failed")
		if ferr := t.store.Fail(ctx, job.ID, err.Error()); ferr != nil {
			log.WithError(ferr).Error("record job failure")
		}
		return
	}
	if err := t.store.Complete(ctx, job.ID, filename); err != nil {
		log.WithError(err).Error("record job completion")
		return
	}
	log.WithField("file", filename).Info("job completed")
}

func (t *Tracker) run(ctx context.Context, job *domain.Job, log logrus.FieldLogger) (filename string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	progress := func(percent int, message string) {
		if err := t.store.UpdateProgress(ctx, job.ID, percent, message); err != nil {
			log.WithError(err).Warn("progress not recorded")
		}
	}
	return t.runner.Run(ctx, job, progress)
}

// ReapStale fails jobs that have been PENDING longer than the stale timeout.
func (t *Tracker) ReapStale(ctx context.Context) (int, error) {
	n, err := t.store.ReapStale(ctx, t.now().Add(-t.staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.log.WithField("jobs", n).Warn("stale pending jobs failed")
	}
	return n, nil
}

// RunReaper calls ReapStale every interval until ctx is done.
func (t *Tracker) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.ReapStale(ctx); err != nil {
				t.log.WithError(err).Error("reap stale jobs")
			}
		}
	}
}

// Wait stops accepting jobs, abandons those still queued and waits for the
// running ones to finish or ctx to end.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
