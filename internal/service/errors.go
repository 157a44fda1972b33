package service

import (
	"context"
	"errors"
	"time"

	"trust-service/internal/models"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAborted         = errors.New("too many incorrect attempts")
	ErrRateLimited     = errors.New("too many requests")
)

// RateLimitError carries how long the caller should wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error() + ", retry after " + e.RetryAfter.Round(time.Second).String()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

type Tokenizer interface {
	Tokenize(phone string) (string, error)
}

type EventRecorder interface {
	Record(ctx context.Context, event models.TrustEvent)
}

type Throttle interface {
	Allow(ctx context.Context, token string) (bool, time.Duration, error)
	Reset(ctx context.Context, token string) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, models.TrustEvent) {}
