package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPrompt   = errors.New("invalid prompt")
	ErrInvalidSeconds  = errors.New("invalid seconds")
	ErrInvalidSize     = errors.New("invalid size")
	ErrNotReady        = errors.New("job not completed")
	ErrProviderFailure = errors.New("provider failure")
	ErrDuplicateRemote = errors.New("duplicate remote job id")
)
