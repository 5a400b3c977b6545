package domain

import "context"

// JobRepository defines persistence for video jobs.
type JobRepository interface {
	Create(ctx context.Context, job *VideoJob) error
	GetByID(ctx context.Context, jobID string) (*VideoJob, error)
	List(ctx context.Context, filter JobFilter) ([]VideoJob, error)
	ListActive(ctx context.Context) ([]VideoJob, error)
	// SaveBatch persists all jobs atomically: either every update lands or none does.
	SaveBatch(ctx context.Context, jobs []VideoJob) error
}

// JobFilter narrows List results. Zero values mean no restriction.
type JobFilter struct {
	Status JobStatus
	UserID string
	Limit  int
}

// TokenRepository reads and writes provider credentials.
type TokenRepository interface {
	Token(ctx context.Context, provider string) (string, error)
	SetToken(ctx context.Context, provider, token string) error
}
