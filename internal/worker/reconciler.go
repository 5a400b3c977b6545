package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/2010089698/sora2-251007-3/internal/domain"
	"github.com/2010089698/sora2-251007-3/internal/infra"
	"github.com/2010089698/sora2-251007-3/internal/providers/sora"
)

// State describes the poller lifecycle reported by the health endpoint.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateRunning       State = "running"
	StateUnavailable   State = "unavailable"
)

const (
	defaultInterval   = 10 * time.Second
	defaultStartDelay = time.Second
)

// Remote is the part of the video API the poller needs.
type Remote interface {
	RetrieveVideo(ctx context.Context, remoteID string) (*sora.Video, error)
}

// ClientResult is the outcome of resolving a client for one tick: either a
// usable Remote or the reason none is available.
type ClientResult struct {
	Client Remote
	Err    error
}

// ClientSource resolves a client at the start of every tick.
type ClientSource func(ctx context.Context) ClientResult

// FromFactory adapts a sora.Factory into a ClientSource.
func FromFactory(f *sora.Factory) ClientSource {
	return func(ctx context.Context) ClientResult {
		client, err := f.Client(ctx)
		if err != nil {
			return ClientResult{Err: err}
		}
		return ClientResult{Client: client}
	}
}

// Store is the persistence the poller reads active jobs from and writes
// reconciled jobs back to.
type Store interface {
	ListActive(ctx context.Context) ([]domain.VideoJob, error)
	SaveBatch(ctx context.Context, jobs []domain.VideoJob) error
}

// Options tunes the reconciler.
type Options struct {
	Interval   time.Duration
	// StartDelay postpones the first tick. Zero means one second, negative none.
	StartDelay time.Duration
	Logger     *infra.Logger
	Now        func() time.Time
}

// TickReport summarises one reconciliation pass.
type TickReport struct {
	Checked   int `json:"checked"`
	Updated   int `json:"updated"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Reconciler polls the remote API for every active job and folds the
// observed state into the local store.
type Reconciler struct {
	store      Store
	clients    ClientSource
	interval   time.Duration
	startDelay time.Duration
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	state    State
	lastTick time.Time
}

func NewReconciler(store Store, clients ClientSource, opts Options) *Reconciler {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	startDelay := opts.StartDelay
	switch {
	case startDelay == 0:
		startDelay = defaultStartDelay
	case startDelay < 0:
		startDelay = 0
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		store:      store,
		clients:    clients,
		interval:   interval,
		startDelay: startDelay,
		logger:     logger,
		now:        now,
		state:      StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// LastTick returns when the last tick finished, zero if none has.
func (r *Reconciler) LastTick() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastTick
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	if prev != s {
		r.logger.Info().Str("from", string(prev)).Str("to", string(s)).Msg("poller: state changed")
	}
}

// Run ticks until ctx is cancelled. Tick failures are logged and never stop the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("poller: started")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.startDelay):
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("poller: tick failed")
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("poller: stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce resolves a client and performs a single tick.
func (r *Reconciler) RunOnce(ctx context.Context) (TickReport, error) {
	return r.Tick(ctx, r.clients(ctx))
}

// Tick reconciles every active job against the remote API using the given
// client. Changes are written in one batch at the end; if that write fails
// nothing from this tick is kept.
func (r *Reconciler) Tick(ctx context.Context, res ClientResult) (TickReport, error) {
	var report TickReport
	if res.Err != nil || res.Client == nil {
		err := res.Err
		if err == nil {
			err = sora.ErrMissingAPIKey
		}
		r.setState(StateUnavailable)
		if errors.Is(err, sora.ErrMissingAPIKey) {
			r.logger.Warn().Msg("poller: openai api key not configured, skipping tick")
		}
		return report, err
	}
	r.setState(StateRunning)

	jobs, err := r.store.ListActive(ctx)
	if err != nil {
		return report, err
	}

	changed := make([]domain.VideoJob, 0, len(jobs))
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		job := jobs[i]
		report.Checked++
		if !r.reconcileJob(ctx, res.Client, &job) {
			report.Skipped++
			continue
		}
		switch job.Status {
		case domain.JobStatusCompleted:
			report.Completed++
		case domain.JobStatusFailed:
			report.Failed++
		}
		changed = append(changed, job)
	}

	if len(changed) > 0 {
		if err := r.store.SaveBatch(ctx, changed); err != nil {
			r.logger.Error().Err(err).Int("jobs", len(changed)).Msg("poller: batch write rolled back")
			return TickReport{Checked: report.Checked, Skipped: report.Checked}, err
		}
	}
	report.Updated = len(changed)

	r.mu.Lock()
	r.lastTick = r.now()
	r.mu.Unlock()
	return report, nil
}

// reconcileJob applies one remote observation to job. It returns false when
// the job must be left untouched this tick.
func (r *Reconciler) reconcileJob(ctx context.Context, remote Remote, job *domain.VideoJob) bool {
	log := r.logger.With().Str("job_id", job.ID).Str("sora_job_id", job.RemoteID).Logger()

	video, err := remote.RetrieveVideo(ctx, job.RemoteID)
	now := r.now()
	if err != nil {
		var apiErr *sora.APIError
		if errors.As(err, &apiErr) {
			log.Warn().Int("upstream_status", apiErr.StatusCode).Msg("poller: upstream rejected job")
			return job.Transition(domain.JobStatusFailed, apiErr.Message(), now)
		}
		log.Warn().Err(err).Msg("poller: transient error, retrying next tick")
		return false
	}

	status, ok := domain.ParseRemoteStatus(video.Status)
	if !ok {
		log.Debug().Str("remote_status", video.Status).Msg("poller: unknown remote status")
		status = job.Status
	}

	switch status {
	case domain.JobStatusCompleted:
		if !job.Transition(domain.JobStatusCompleted, "", now) {
			return false
		}
		mergeContent(job, video, now)
		log.Info().Str("variant", job.ContentVariant).Msg("poller: job completed")
	case domain.JobStatusFailed:
		if !job.Transition(domain.JobStatusFailed, video.ErrorMessage(), now) {
			return false
		}
		log.Info().Str("error", job.ErrorMessage).Msg("poller: job failed")
	default:
		if !job.Transition(status, "", now) {
			return false
		}
	}
	return true
}
