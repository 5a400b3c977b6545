package repo

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/2010089698/sora2-251007-3/internal/db/migrations"
	"github.com/2010089698/sora2-251007-3/internal/domain"
	"github.com/2010089698/sora2-251007-3/internal/infra"
)

func newTestRepo(t *testing.T) (*JobRepositorySQL, *infra.SQLRunner) {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := infra.OpenDB(ctx, filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := migrations.Up(ctx, db, string(dialect), infra.NopLogger()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	runner := infra.NewSQLRunner(db, dialect, infra.NopLogger())
	return NewJobRepository(runner), runner
}

func newJob(remoteID string, createdAt time.Time) *domain.VideoJob {
	return &domain.VideoJob{
		UserID:    "demo-user",
		Prompt:    "two words",
		RemoteID:  remoteID,
		Status:    domain.JobStatusQueued,
		Seconds:   8,
		Size:      "1920x1080",
		CreatedAt: createdAt,
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	job := newJob("video_123", time.Time{})
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected generated id")
	}
	if job.CreatedAt.IsZero() || !job.UpdatedAt.Equal(job.CreatedAt) {
		t.Fatalf("timestamps not initialised: created=%s updated=%s", job.CreatedAt, job.UpdatedAt)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Fatalf("status = %q, want queued", got.Status)
	}
	if got.Prompt != "two words" || got.RemoteID != "video_123" || got.Seconds != 8 || got.Size != "1920x1080" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.ErrorMessage != "" || got.ContentReadyAt != nil || got.ContentTokenExpiresAt != nil {
		t.Fatalf("expected empty optional fields: %+v", got)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Fatalf("created_at = %s, want %s", got.CreatedAt, job.CreatedAt)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID error = %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsDuplicateRemoteID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	if err := repo.Create(ctx, newJob("video_dup", time.Time{})); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	err := repo.Create(ctx, newJob("video_dup", time.Time{}))
	if !errors.Is(err, domain.ErrDuplicateRemote) {
		t.Fatalf("Create error = %v, want ErrDuplicateRemote", err)
	}
}

func TestListOrdersNewestFirstAndFilters(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 10, 7, 12, 0, 0, 0, time.UTC)

	for i, remote := range []string{"video_a", "video_b", "video_c"} {
		job := newJob(remote, base.Add(time.Duration(i)*time.Minute))
		if remote == "video_b" {
			job.UserID = "someone-else"
		}
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("Create %s: %v", remote, err)
		}
	}

	jobs, err := repo.List(ctx, domain.JobFilter{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	want := []string{"video_c", "video_b", "video_a"}
	for i, remote := range want {
		if jobs[i].RemoteID != remote {
			t.Fatalf("jobs[%d] = %s, want %s", i, jobs[i].RemoteID, remote)
		}
	}

	mine, err := repo.List(ctx, domain.JobFilter{UserID: "someone-else"})
	if err != nil {
		t.Fatalf("List by user error: %v", err)
	}
	if len(mine) != 1 || mine[0].RemoteID != "video_b" {
		t.Fatalf("user filter mismatch: %+v", mine)
	}

	limited, err := repo.List(ctx, domain.JobFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List limited error: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited len = %d, want 2", len(limited))
	}
}

func TestSaveBatchAndListActive(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	queued := newJob("video_q", time.Time{})
	running := newJob("video_r", time.Time{})
	running.Status = domain.JobStatusProcessing
	for _, job := range []*domain.VideoJob{queued, running} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active len = %d, want 2", len(active))
	}

	now := time.Date(2025, 10, 7, 13, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	done := *queued
	done.Transition(domain.JobStatusCompleted, "", now)
	done.ContentVariant = "hd"
	done.ContentToken = "tok"
	done.ContentTokenExpiresAt = &expires
	done.ContentReadyAt = &now

	failed := *running
	failed.Transition(domain.JobStatusFailed, "boom", now)

	if err := repo.SaveBatch(ctx, []domain.VideoJob{done, failed}); err != nil {
		t.Fatalf("SaveBatch error: %v", err)
	}

	active, err = repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active len = %d, want 0", len(active))
	}

	got, err := repo.GetByID(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Status != domain.JobStatusCompleted || got.ContentVariant != "hd" || got.ContentToken != "tok" {
		t.Fatalf("completed job mismatch: %+v", got)
	}
	if got.ContentTokenExpiresAt == nil || !got.ContentTokenExpiresAt.Equal(expires) {
		t.Fatalf("expires_at = %v, want %s", got.ContentTokenExpiresAt, expires)
	}
	if got.ContentReadyAt == nil || !got.ContentReadyAt.Equal(now) {
		t.Fatalf("ready_at = %v, want %s", got.ContentReadyAt, now)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at = %s, want %s", got.UpdatedAt, now)
	}

	gotFailed, err := repo.GetByID(ctx, running.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if gotFailed.Status != domain.JobStatusFailed || gotFailed.ErrorMessage != "boom" {
		t.Fatalf("failed job mismatch: %+v", gotFailed)
	}
}

func TestSaveBatchNeverRewritesTerminalJobs(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	job := newJob("video_t", time.Time{})
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	now := time.Now().UTC()
	failed := *job
	failed.Transition(domain.JobStatusFailed, "first failure", now)
	if err := repo.SaveBatch(ctx, []domain.VideoJob{failed}); err != nil {
		t.Fatalf("SaveBatch error: %v", err)
	}

	// A stale copy that still believes the job is active must not win.
	stale := *job
	stale.Transition(domain.JobStatusCompleted, "", now.Add(time.Minute))
	if err := repo.SaveBatch(ctx, []domain.VideoJob{stale}); err != nil {
		t.Fatalf("SaveBatch error: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Status != domain.JobStatusFailed || got.ErrorMessage != "first failure" {
		t.Fatalf("terminal job rewritten: %+v", got)
	}
}

type failingRunner struct {
	infra.TxRunner
	failOn int
	calls  int
}

func (f *failingRunner) WithTx(ctx context.Context, fn func(tx infra.SQLExecutor) error) error {
	return f.TxRunner.WithTx(ctx, func(tx infra.SQLExecutor) error {
		return fn(&countingExecutor{SQLExecutor: tx, parent: f})
	})
}

type countingExecutor struct {
	infra.SQLExecutor
	parent *failingRunner
}

func (c *countingExecutor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.parent.calls++
	if c.parent.calls == c.parent.failOn {
		return nil, errors.New("disk full")
	}
	return c.SQLExecutor.Exec(ctx, query, args...)
}

func TestSaveBatchIsAllOrNothing(t *testing.T) {
	repo, runner := newTestRepo(t)
	ctx := context.Background()

	first := newJob("video_1", time.Time{})
	second := newJob("video_2", time.Time{})
	for _, job := range []*domain.VideoJob{first, second} {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	broken := NewJobRepository(&failingRunner{TxRunner: runner, failOn: 2})
	now := time.Now().UTC()
	a, b := *first, *second
	a.Transition(domain.JobStatusProcessing, "", now)
	b.Transition(domain.JobStatusProcessing, "", now)
	if err := broken.SaveBatch(ctx, []domain.VideoJob{a, b}); err == nil {
		t.Fatalf("expected SaveBatch error")
	}

	for _, id := range []string{first.ID, second.ID} {
		got, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID error: %v", err)
		}
		if got.Status != domain.JobStatusQueued {
			t.Fatalf("job %s status = %q, want queued after rollback", id, got.Status)
		}
	}
}

func TestCountByStatus(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	for _, remote := range []string{"video_x", "video_y"} {
		if err := repo.Create(ctx, newJob(remote, time.Time{})); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}
	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus error: %v", err)
	}
	if counts[domain.JobStatusQueued] != 2 {
		t.Fatalf("queued count = %d, want 2", counts[domain.JobStatusQueued])
	}
}
