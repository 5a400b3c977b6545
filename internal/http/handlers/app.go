package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/2010089698/sora2-251007-3/internal/domain"
	"github.com/2010089698/sora2-251007-3/internal/infra"
	"github.com/2010089698/sora2-251007-3/internal/providers/sora"
	"github.com/2010089698/sora2-251007-3/internal/worker"
)

// JobStore is the persistence the request handlers rely on.
type JobStore interface {
	Create(ctx context.Context, job *domain.VideoJob) error
	GetByID(ctx context.Context, jobID string) (*domain.VideoJob, error)
	List(ctx context.Context, filter domain.JobFilter) ([]domain.VideoJob, error)
}

// VideoAPI is the part of the remote client used while serving requests.
type VideoAPI interface {
	CreateVideo(ctx context.Context, req sora.CreateRequest) (*sora.Video, error)
	OpenContent(ctx context.Context, remoteID string, opts sora.ContentOptions) (*sora.ContentStream, error)
}

// VideoClientSource resolves a client per request so a key stored at
// runtime is honoured.
type VideoClientSource func(ctx context.Context) (VideoAPI, error)

// FromFactory adapts a sora.Factory into a VideoClientSource.
func FromFactory(f *sora.Factory) VideoClientSource {
	return func(ctx context.Context) (VideoAPI, error) {
		client, err := f.Client(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// PollerStatus exposes the reconciler state to the health endpoint.
type PollerStatus interface {
	State() worker.State
	LastTick() time.Time
}

// Pinger checks datastore connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type App struct {
	Jobs          JobStore
	Videos        VideoClientSource
	Poller        PollerStatus
	DB            Pinger
	Logger        infra.Logger
	DefaultUserID string

	validate *validator.Validate
	now      func() time.Time
}

func NewApp(jobs JobStore, videos VideoClientSource, logger infra.Logger) *App {
	return &App{
		Jobs:          jobs,
		Videos:        videos,
		Logger:        logger,
		DefaultUserID: domain.DefaultUserID,
		validate:      newValidator(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type errorResponse struct {
	Error  string       `json:"error"`
	Detail string       `json:"detail"`
	Fields []fieldError `json:"fields,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, detail string) {
	a.json(w, code, errorResponse{Error: errCode, Detail: detail})
}

func (a *App) videoClient(ctx context.Context) (VideoAPI, error) {
	if a.Videos == nil {
		return nil, sora.ErrMissingAPIKey
	}
	return a.Videos(ctx)
}

// clientError maps a client resolution failure onto a response.
func (a *App) clientError(w http.ResponseWriter, log zerolog.Logger, err error) {
	if errors.Is(err, sora.ErrMissingAPIKey) {
		a.error(w, http.StatusInternalServerError, "missing_api_key", "OPENAI_API_KEY is not configured")
		return
	}
	log.Error().Err(err).Msg("resolve video client failed")
	a.error(w, http.StatusInternalServerError, "internal", "video client unavailable")
}

// upstreamError maps a remote call failure onto a response.
func (a *App) upstreamError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var apiErr *sora.APIError
	if errors.As(err, &apiErr) {
		log.Warn().Int("upstream_status", apiErr.StatusCode).Msg("upstream rejected request")
		a.error(w, apiErr.StatusCode, "upstream_error", apiErr.Message())
		return
	}
	var netErr *sora.NetworkError
	if errors.As(err, &netErr) {
		log.Warn().Err(err).Msg("upstream unreachable")
		a.error(w, http.StatusBadGateway, "upstream_unreachable", netErr.Err.Error())
		return
	}
	log.Error().Err(err).Msg("upstream call failed")
	a.error(w, http.StatusBadGateway, "upstream_error", err.Error())
}
