package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storerecon/reconciler/internal/domain"
)

// JobRepo persists report generation jobs. Every status change is a
// conditional UPDATE on the current status, so two workers can never both
// claim a job and a terminal job is never reopened.
type JobRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db, now: time.Now}
}

func (r *JobRepo) timestamp() string {
	return r.now().UTC().Format(domain.TimestampLayout)
}

func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	ts := r.timestamp()
	job.Status = domain.JobPending
	job.CreatedAt, _ = time.Parse(domain.TimestampLayout, ts)
	job.UpdatedAt = job.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO report_jobs
		(id, store_code, start_date, end_date, status, progress, message, filename, error, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID, job.StoreCode, job.StartDate, job.EndDate, string(job.Status),
		job.Progress, job.Message, job.Filename, job.Error, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, store_code, start_date, end_date, status, progress, message, filename, error, created_at, updated_at`

func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM report_jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// List returns the most recent jobs first.
func (r *JobRepo) List(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM report_jobs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Claim moves a PENDING job to PROCESSING.
func (r *JobRepo) Claim(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.JobProcessing,
		"status = ?, progress = 0, message = 'started', updated_at = ?",
		[]any{string(domain.JobProcessing)}, domain.JobPending)
}

// UpdateProgress records progress on a PROCESSING job. Progress never moves
// backwards.
func (r *JobRepo) UpdateProgress(ctx context.Context, id string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return r.transition(ctx, id, domain.JobProcessing,
		"progress = MAX(progress, ?), message = ?, updated_at = ?",
		[]any{progress, message}, domain.JobProcessing)
}

// Complete marks a PROCESSING job done with the artifact it produced.
func (r *JobRepo) Complete(ctx context.Context, id, filename string) error {
	return r.transition(ctx, id, domain.JobCompleted,
		"status = ?, progress = 100, message = 'completed', filename = ?, updated_at = ?",
		[]any{string(domain.JobCompleted), filename}, domain.JobProcessing)
}

// Fail marks a PENDING or PROCESSING job FAILED with the error text verbatim.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) error {
	return r.transition(ctx, id, domain.JobFailed,
		"status = ?, message = 'failed', error = ?, updated_at = ?",
		[]any{string(domain.JobFailed), errMsg}, domain.JobPending, domain.JobProcessing)
}

// ReapStale fails every job still PENDING that was created before cutoff and
// returns how many it failed.
func (r *JobRepo) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = ?, message = 'failed', error = ?, updated_at = ?
		WHERE status = ? AND created_at < ?`,
		string(domain.JobFailed), domain.StaleJobError, r.timestamp(),
		string(domain.JobPending), cutoff.UTC().Format(domain.TimestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// transition applies set (whose trailing placeholder is updated_at) when the
// job is currently in one of from.
func (r *JobRepo) transition(ctx context.Context, id string, to domain.JobStatus, set string, args []any, from ...domain.JobStatus) error {
	query := "UPDATE report_jobs SET " + set + " WHERE id = ? AND status IN ("
	args = append(args, r.timestamp(), id)
	for i, s := range from {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(s))
	}
	query += ")"

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s %s -> %s: %w", id, current.Status, to, domain.ErrInvalidTransition)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var status, createdAt, updatedAt string
	err := row.Scan(&job.ID, &job.StoreCode, &job.StartDate, &job.EndDate, &status,
		&job.Progress, &job.Message, &job.Filename, &job.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt, _ = time.Parse(domain.TimestampLayout, createdAt)
	job.UpdatedAt, _ = time.Parse(domain.TimestampLayout, updatedAt)
	return &job, nil
}
