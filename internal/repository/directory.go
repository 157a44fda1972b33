package repository

import (
	"context"
	"errors"

	"trust-service/internal/models"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrStoreUnavailable = errors.New("user store unavailable")
	ErrVersionConflict  = errors.New("user record was modified concurrently")
)

// Directory stores users keyed by id and by phone token.
//
// Records returned by a Directory are owned by the caller. Save persists
// the whole record and fails with ErrVersionConflict when the stored
// version no longer matches the one the caller read; on success the
// caller's Version is advanced.
type Directory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByToken(ctx context.Context, token string) (*models.User, error)

	// CreateUnverified and CreatePlaceholder return the existing record
	// unchanged when the token is already known.
	CreateUnverified(ctx context.Context, token string) (*models.User, error)
	CreatePlaceholder(ctx context.Context, token string) (*models.User, error)

	Save(ctx context.Context, user *models.User) error
	HealthCheck(ctx context.Context) error
}
