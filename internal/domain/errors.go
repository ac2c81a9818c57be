package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateOperation  = errors.New("duplicate operation")
	ErrSubjectNotFound     = errors.New("subject not found")
	ErrNoWorkRemaining     = errors.New("no work remaining")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrChunkMissing        = errors.New("chunk missing")
	ErrProviderFailure     = errors.New("provider failure")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrPersistenceFailure  = errors.New("persistence failure")
)

// ProviderError classifies a failed call to an image or text backend.
// Kind is one of ErrProviderFailure, ErrProviderTimeout or ErrProviderUnavailable.
type ProviderError struct {
	Kind     error
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewProviderError builds a ProviderError, defaulting the kind to ErrProviderFailure.
func NewProviderError(kind error, provider string, err error) *ProviderError {
	if kind == nil {
		kind = ErrProviderFailure
	}
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// ClassifyProviderError wraps err into a ProviderError unless it is already classified.
// Deadline expiry maps to ErrProviderTimeout.
func ClassifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrProviderTimeout):
		return NewProviderError(ErrProviderTimeout, provider, err)
	case errors.Is(err, ErrProviderUnavailable):
		return NewProviderError(ErrProviderUnavailable, provider, err)
	default:
		return NewProviderError(ErrProviderFailure, provider, err)
	}
}
