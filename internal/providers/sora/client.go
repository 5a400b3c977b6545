package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/2010089698/sora2-251007-3/internal/infra"
)

// ErrMissingAPIKey indicates that no OpenAI credential is configured.
var ErrMissingAPIKey = errors.New("sora: api key is required")

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "sora-2"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Options configures the OpenAI Videos client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	BetaHeader     string
	RequestTimeout time.Duration
	// HTTPClient serves JSON calls. Its transport is reused for content
	// streaming, which runs without an overall timeout.
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs HTTP calls to the OpenAI Videos API.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	betaHeader   string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *infra.Logger
}

// CreateRequest captures the inputs of a new generation.
type CreateRequest struct {
	Prompt  string
	Seconds int
	Size    string
}

type createPayload struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Seconds int    `json:"seconds,omitempty"`
	Size    string `json:"size,omitempty"`
}

// APIError is returned for any non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sora: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("sora: upstream status %d: %s", e.StatusCode, e.Body)
}

// Message is the upstream body, or a status line when the body was empty.
func (e *APIError) Message() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return e.Body
}

// NetworkError wraps connection, timeout and transport failures.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("sora: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NewClient constructs a client. An empty API key is a configuration error.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := zerolog.Nop()
		logger = &l
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		model:        model,
		betaHeader:   strings.TrimSpace(opts.BetaHeader),
		httpClient:   httpClient,
		streamClient: &http.Client{Transport: httpClient.Transport},
		logger:       logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// CreateVideo submits a new generation job.
func (c *Client) CreateVideo(ctx context.Context, req CreateRequest) (*Video, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("sora: prompt is required")
	}
	body, err := json.Marshal(createPayload{
		Model:   c.model,
		Prompt:  prompt,
		Seconds: req.Seconds,
		Size:    strings.TrimSpace(req.Size),
	})
	if err != nil {
		return nil, fmt.Errorf("sora: encode request: %w", err)
	}
	var video Video
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/videos", body, &video); err != nil {
		return nil, err
	}
	if video.ID == "" {
		return nil, errors.New("sora: response is missing the video id")
	}
	c.logger.Info().Str("sora_job_id", video.ID).Str("status", video.Status).Msg("sora: video job created")
	return &video, nil
}

// RetrieveVideo fetches the current state of a remote job.
func (c *Client) RetrieveVideo(ctx context.Context, remoteID string) (*Video, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return nil, errors.New("sora: video id is required")
	}
	var video Video
	if err := c.doJSON(ctx, http.MethodGet, c.videoURL(remoteID), nil, &video); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("sora_job_id", remoteID).Str("status", video.Status).Msg("sora: polled video")
	return &video, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("sora: build request: %w", err)
	}
	c.setHeaders(httpReq, true)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &NetworkError{Op: strings.ToLower(method) + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("sora: decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, jsonBody bool) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.betaHeader != "" {
		req.Header.Set("OpenAI-Beta", c.betaHeader)
	}
}

func (c *Client) videoURL(remoteID string) string {
	return c.baseURL + "/videos/" + url.PathEscape(remoteID)
}
