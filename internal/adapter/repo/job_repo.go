package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/2010089698/sora2-251007-3/internal/domain"
	"github.com/2010089698/sora2-251007-3/internal/infra"
	"github.com/2010089698/sora2-251007-3/internal/sqlinline"
)

const pgUniqueViolation = "23505"

// JobRepositorySQL implements domain.JobRepository on top of the SQL runner.
type JobRepositorySQL struct {
	sql infra.TxRunner
	now func() time.Time
}

// NewJobRepository creates a new job repository.
func NewJobRepository(runner infra.TxRunner) *JobRepositorySQL {
	return &JobRepositorySQL{sql: runner, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new job record. ID and timestamps are filled in when empty.
func (r *JobRepositorySQL) Create(ctx context.Context, job *domain.VideoJob) error {
	if job == nil {
		return errors.New("job is required")
	}
	if strings.TrimSpace(job.RemoteID) == "" {
		return errors.New("remote job id is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusQueued
	}
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	_, err := r.sql.Exec(ctx, sqlinline.QInsertVideoJob,
		job.ID,
		job.UserID,
		job.Prompt,
		job.RemoteID,
		string(job.Status),
		nullString(job.ErrorMessage),
		nullInt(job.Seconds),
		nullString(job.Size),
		nullString(job.ContentVariant),
		nullString(job.ContentToken),
		nullTime(job.ContentTokenExpiresAt),
		nullTime(job.ContentReadyAt),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRemote, job.RemoteID)
		}
		return fmt.Errorf("insert video job: %w", err)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositorySQL) GetByID(ctx context.Context, jobID string) (*domain.VideoJob, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectVideoJobByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns jobs newest first.
func (r *JobRepositorySQL) List(ctx context.Context, filter domain.JobFilter) ([]domain.VideoJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	status := string(filter.Status)
	rows, err := r.sql.Query(ctx, sqlinline.QListVideoJobs, status, status, filter.UserID, filter.UserID, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListActive returns every job the poller still has to reconcile.
func (r *JobRepositorySQL) ListActive(ctx context.Context) ([]domain.VideoJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListActiveVideoJobs,
		string(domain.JobStatusQueued), string(domain.JobStatusProcessing))
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// SaveBatch writes the mutable fields of every job in one transaction.
// Rows that already reached a terminal state are skipped by the statement.
func (r *JobRepositorySQL) SaveBatch(ctx context.Context, jobs []domain.VideoJob) error {
	if len(jobs) == 0 {
		return nil
	}
	return r.sql.WithTx(ctx, func(tx infra.SQLExecutor) error {
		for i := range jobs {
			job := &jobs[i]
			if _, err := tx.Exec(ctx, sqlinline.QUpdateVideoJobState,
				string(job.Status),
				nullString(job.ErrorMessage),
				nullString(job.ContentVariant),
				nullString(job.ContentToken),
				nullTime(job.ContentTokenExpiresAt),
				nullTime(job.ContentReadyAt),
				job.UpdatedAt,
				job.ID,
				string(domain.JobStatusQueued),
				string(domain.JobStatusProcessing),
			); err != nil {
				return fmt.Errorf("update video job %s: %w", job.ID, err)
			}
		}
		return nil
	})
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepositorySQL) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCountVideoJobsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.JobStatus(status)] = n
	}
	return out, rows.Err()
}

func collectJobs(rows infra.Rows) ([]domain.VideoJob, error) {
	defer rows.Close()
	var jobs []domain.VideoJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row infra.Row) (*domain.VideoJob, error) {
	var (
		job       domain.VideoJob
		status    string
		errMsg    sql.NullString
		seconds   sql.NullInt64
		size      sql.NullString
		variant   sql.NullString
		token     sql.NullString
		expiresAt sql.NullTime
		readyAt   sql.NullTime
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Prompt,
		&job.RemoteID,
		&status,
		&errMsg,
		&seconds,
		&size,
		&variant,
		&token,
		&expiresAt,
		&readyAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.ErrorMessage = errMsg.String
	job.Seconds = int(seconds.Int64)
	job.Size = size.String
	job.ContentVariant = variant.String
	job.ContentToken = token.String
	job.ContentTokenExpiresAt = timePtr(expiresAt)
	job.ContentReadyAt = timePtr(readyAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

var _ domain.JobRepository = (*JobRepositorySQL)(nil)
