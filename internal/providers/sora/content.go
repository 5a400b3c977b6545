package sora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// DefaultChunkSize is the read size used when Chunks is given a non-positive size.
const DefaultChunkSize = 64 << 10

// ContentOptions selects which rendition to download.
type ContentOptions struct {
	Variant string
	Token   string
}

// ContentStream is an open download of rendered video bytes. The body is
// released once the chunk sequence ends, the consumer stops early, or Close
// is called, whichever happens first.
type ContentStream struct {
	resp      *http.Response
	closeOnce sync.Once
	closeErr  error
}

// Header returns the upstream response headers.
func (s *ContentStream) Header() http.Header {
	return s.resp.Header
}

// StatusCode returns the upstream status code.
func (s *ContentStream) StatusCode() int {
	return s.resp.StatusCode
}

// Chunks yields the body in reads of at most size bytes. The yielded slice
// is only valid until the next iteration. A read error is yielded once and
// ends the sequence.
func (s *ContentStream) Chunks(size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		buf := make([]byte, size)
		for {
			n, err := s.resp.Body.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, &NetworkError{Op: "read content", Err: err})
				return
			}
		}
	}
}

// Close releases the underlying connection. It is safe to call repeatedly.
func (s *ContentStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.resp.Body.Close()
	})
	return s.closeErr
}

// OpenContent starts streaming the rendered video. Callers own the returned
// stream and must either drain it through Chunks or Close it.
func (c *Client) OpenContent(ctx context.Context, remoteID string, opts ContentOptions) (*ContentStream, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return nil, errors.New("sora: video id is required")
	}
	endpoint := c.videoURL(remoteID) + "/content"
	params := url.Values{}
	if v := strings.TrimSpace(opts.Variant); v != "" {
		params.Set("variant", v)
	}
	if t := strings.TrimSpace(opts.Token); t != "" {
		params.Set("token", t)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("sora: build content request: %w", err)
	}
	c.setHeaders(req, false)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "get content", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	c.logger.Debug().Str("sora_job_id", remoteID).Str("variant", opts.Variant).Msg("sora: streaming content")
	return &ContentStream{resp: resp}, nil
}

// WithContent opens the content stream, hands it to fn and always closes it.
func (c *Client) WithContent(ctx context.Context, remoteID string, opts ContentOptions, fn func(*ContentStream) error) error {
	stream, err := c.OpenContent(ctx, remoteID, opts)
	if err != nil {
		return err
	}
	defer stream.Close()
	return fn(stream)
}
