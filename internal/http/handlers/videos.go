package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2010089698/sora2-251007-3/internal/domain"
	"github.com/2010089698/sora2-251007-3/internal/providers/sora"
)

var mediaHeaders = []string{"Content-Type", "Content-Length", "Content-Disposition", "ETag", "Last-Modified"}

type jobJSON struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	Prompt                string     `json:"prompt"`
	SoraJobID             string     `json:"sora_job_id"`
	Status                string     `json:"status"`
	ErrorMessage          *string    `json:"error_message"`
	Seconds               *int       `json:"seconds"`
	Size                  *string    `json:"size"`
	ContentVariant        *string    `json:"content_variant"`
	ContentTokenExpiresAt *time.Time `json:"content_token_expires_at"`
	ContentReadyAt        *time.Time `json:"content_ready_at"`
	MediaURL              *string    `json:"media_url"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func toJobJSON(job *domain.VideoJob) jobJSON {
	out := jobJSON{
		ID:                    job.ID,
		UserID:                job.UserID,
		Prompt:                job.Prompt,
		SoraJobID:             job.RemoteID,
		Status:                string(job.Status),
		ErrorMessage:          optString(job.ErrorMessage),
		Size:                  optString(job.Size),
		ContentVariant:        optString(job.ContentVariant),
		ContentTokenExpiresAt: job.ContentTokenExpiresAt,
		ContentReadyAt:        job.ContentReadyAt,
		CreatedAt:             job.CreatedAt,
		UpdatedAt:             job.UpdatedAt,
	}
	if job.Seconds > 0 {
		seconds := job.Seconds
		out.Seconds = &seconds
	}
	if job.Ready() {
		media := "/api/videos/" + job.ID + "/media"
		out.MediaURL = &media
	}
	return out
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// VideosCreate submits a generation to the remote API and records the job.
func (a *App) VideosCreate(w http.ResponseWriter, r *http.Request) {
	log := a.Logger.With().Str("handler", "videos_create").Logger()

	var req domain.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}
	req.Normalize(a.DefaultUserID)
	if err := a.validate.Struct(req); err != nil {
		a.json(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation_failed",
			Detail: "request validation failed",
			Fields: formatValidationErrors(err),
		})
		return
	}

	client, err := a.videoClient(r.Context())
	if err != nil {
		a.clientError(w, log, err)
		return
	}
	video, err := client.CreateVideo(r.Context(), sora.CreateRequest{
		Prompt:  req.Prompt,
		Seconds: req.Seconds,
		Size:    req.Size,
	})
	if err != nil {
		a.upstreamError(w, log, err)
		return
	}

	// Anything other than an in-flight status is left for the poller to confirm.
	status := domain.JobStatusQueued
	if s, ok := domain.ParseRemoteStatus(video.Status); ok && s == domain.JobStatusProcessing {
		status = s
	}
	job := &domain.VideoJob{
		UserID:   req.UserID,
		Prompt:   req.Prompt,
		RemoteID: video.ID,
		Status:   status,
		Seconds:  req.Seconds,
		Size:     req.Size,
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		if errors.Is(err, domain.ErrDuplicateRemote) {
			a.error(w, http.StatusConflict, "conflict", "remote job is already tracked")
			return
		}
		log.Error().Err(err).Str("sora_job_id", video.ID).Msg("persist video job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist video job")
		return
	}
	log.Info().Str("job_id", job.ID).Str("sora_job_id", job.RemoteID).Str("status", string(job.Status)).Msg("video job created")
	a.json(w, http.StatusCreated, map[string]any{"job": toJobJSON(job)})
}

// VideosList returns jobs newest first, optionally filtered by status or user.
func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.JobFilter{UserID: strings.TrimSpace(q.Get("user_id"))}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := domain.JobStatus(strings.ToLower(raw))
		if !status.Valid() {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown status filter")
			return
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	jobs, err := a.Jobs.List(r.Context(), filter)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list video jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list video jobs")
		return
	}
	items := make([]jobJSON, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobJSON(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": items})
}

// VideoGet returns one job.
func (a *App) VideoGet(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job": toJobJSON(job)})
}

// VideoMedia streams the rendered video from the remote API to the caller.
func (a *App) VideoMedia(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	log := a.Logger.With().Str("job_id", job.ID).Str("sora_job_id", job.RemoteID).Logger()
	switch {
	case job.Status == domain.JobStatusFailed:
		a.error(w, http.StatusNotFound, "not_found", "no content available")
		return
	case !job.Ready():
		a.error(w, http.StatusConflict, "not_ready", "video is not ready yet")
		return
	}

	client, err := a.videoClient(r.Context())
	if err != nil {
		a.clientError(w, log, err)
		return
	}

	opts := sora.ContentOptions{Variant: strings.TrimSpace(r.URL.Query().Get("variant"))}
	if opts.Variant == "" {
		opts.Variant = job.ContentVariant
	}
	if job.TokenValid(a.now()) {
		opts.Token = job.ContentToken
	}

	stream, err := client.OpenContent(r.Context(), job.RemoteID, opts)
	if err != nil {
		var apiErr *sora.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			a.error(w, http.StatusNotFound, "not_found", "no content available")
			return
		}
		a.upstreamError(w, log, err)
		return
	}
	defer stream.Close()

	for _, name := range mediaHeaders {
		if v := stream.Header().Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "video/mp4")
	}
	// Downloads outlive the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug().Err(err).Msg("clear write deadline failed")
	}
	w.WriteHeader(stream.StatusCode())

	var written int64
	for chunk, err := range stream.Chunks(sora.DefaultChunkSize) {
		if err != nil {
			log.Warn().Err(err).Int64("bytes", written).Msg("media stream interrupted")
			return
		}
		n, werr := w.Write(chunk)
		written += int64(n)
		if werr != nil {
			log.Debug().Err(werr).Int64("bytes", written).Msg("client went away during media stream")
			return
		}
	}
	log.Debug().Int64("bytes", written).Msg("media streamed")
}

func (a *App) loadJob(w http.ResponseWriter, r *http.Request) (*domain.VideoJob, bool) {
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return nil, false
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return nil, false
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load video job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load video job")
		return nil, false
	}
	return job, true
}
