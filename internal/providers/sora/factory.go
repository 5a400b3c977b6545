package sora

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// KeyLookup resolves a stored API key. An empty result means none is stored.
type KeyLookup interface {
	OpenAIAPIKey(ctx context.Context) (string, error)
}

// Factory builds clients on demand so that a key stored after startup is
// picked up without a restart. The environment key wins over the store.
type Factory struct {
	opts Options
	keys KeyLookup
}

// NewFactory prepares a factory. opts.APIKey may be empty; keys may be nil.
func NewFactory(opts Options, keys KeyLookup) *Factory {
	if opts.HTTPClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		opts.HTTPClient = &http.Client{Timeout: timeout, Transport: http.DefaultTransport}
	}
	return &Factory{opts: opts, keys: keys}
}

// Client returns a ready client or ErrMissingAPIKey.
func (f *Factory) Client(ctx context.Context) (*Client, error) {
	key, err := f.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	opts := f.opts
	opts.APIKey = key
	return NewClient(opts)
}

func (f *Factory) apiKey(ctx context.Context) (string, error) {
	if key := strings.TrimSpace(f.opts.APIKey); key != "" {
		return key, nil
	}
	if f.keys == nil {
		return "", ErrMissingAPIKey
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	key, err := f.keys.OpenAIAPIKey(lookupCtx)
	if err != nil {
		return "", fmt.Errorf("sora: load stored api key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}
