package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trust-service/internal/models"
	"trust-service/internal/repository"
	"trust-service/internal/util"
)

// SecretSealer protects the pre-shared secret at rest.
type SecretSealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Unseal(ctx context.Context, sealed string) (string, error)
}

type Bucketer interface {
	GetUserBucket(userID string) int
}

// UserRepository is the ScyllaDB-backed repository.Directory. Users are
// partitioned by a murmur3 bucket of their id; token_to_user indexes them
// by phone token and is claimed with a lightweight transaction so a token
// maps to exactly one user.
type UserRepository struct {
	client  *ScyllaClient
	secrets SecretSealer
	buckets Bucketer
	nowFn   func() time.Time
}

var _ repository.Directory = (*UserRepository)(nil)

func NewUserRepository(client *ScyllaClient, secrets SecretSealer, buckets Bucketer) *UserRepository {
	return &UserRepository{
		client:  client,
		secrets: secrets,
		buckets: buckets,
		nowFn:   time.Now,
	}
}

// mapError translates driver errors into directory errors.
func mapError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gocql.ErrNotFound):
		return repository.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", repository.ErrStoreUnavailable, op, err)
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var (
		u      models.User
		status string
		bucket int
		sealed string
	)
	err := r.client.Query(ctx, r.client.Statements.GetUserByID, r.buckets.GetUserBucket(id), id).Scan(
		&bucket, &u.ID, &u.PhoneToken, &status, &u.TrustedNumbers, &u.SpamNumbers,
		&u.SessionKey, &sealed, &u.SessionKeyEstablishedAt, &u.NonceExpected,
		&u.ExpectedCode, &u.RetryCount, &u.RecentMessageCount, &u.Version,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "find user by id")
	}
	u.UserBucket = bucket
	u.Status = models.AccountStatus(status)

	if sealed != "" {
		secret, err := r.secrets.Unseal(ctx, sealed)
		if err != nil {
			util.Error("Failed to unseal shared secret", util.UserID(id), zap.Error(err))
			return nil, fmt.Errorf("%w: unseal shared secret: %v", repository.ErrStoreUnavailable, err)
		}
		u.SharedSecret = secret
	}
	return &u, nil
}

func (r *UserRepository) FindByToken(ctx context.Context, token string) (*models.User, error) {
	var id string
	if err := r.client.Query(ctx, r.client.Statements.GetUserByToken, token).Scan(&id); err != nil {
		return nil, mapError(err, "find user by token")
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepository) CreateUnverified(ctx context.Context, token string) (*models.User, error) {
	return r.create(ctx, token, models.StatusUnverified)
}

func (r *UserRepository) CreatePlaceholder(ctx context.Context, token string) (*models.User, error) {
	return r.create(ctx, token, models.StatusInactive)
}

// create writes the user row first and then claims the token. When another
// writer already holds the token the fresh row is dropped and the existing
// user returned.
func (r *UserRepository) create(ctx context.Context, token string, status models.AccountStatus) (*models.User, error) {
	now := r.nowFn().UTC()
	u := &models.User{
		ID:         uuid.NewString(),
		PhoneToken: token,
		Status:     status,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	u.UserBucket = r.buckets.GetUserBucket(u.ID)

	err := r.client.Query(ctx, r.client.Statements.InsertUser,
		u.UserBucket, u.ID, u.PhoneToken, string(u.Status), u.TrustedNumbers, u.SpamNumbers,
		u.SessionKey, "", u.SessionKeyEstablishedAt, u.NonceExpected,
		u.ExpectedCode, u.RetryCount, u.RecentMessageCount, u.Version,
		u.CreatedAt, u.UpdatedAt,
	).Exec()
	if err != nil {
		return nil, mapError(err, "insert user")
	}

	existing := map[string]any{}
	applied, err := r.client.Query(ctx, r.client.Statements.ClaimToken,
		token, u.UserBucket, u.ID, now,
	).MapScanCAS(existing)
	if err != nil {
		return nil, mapError(err, "claim token")
	}
	if applied {
		util.Debug("User created", util.UserID(u.ID), zap.String("status", string(status)))
		return u, nil
	}

	if err := r.client.Query(ctx, r.client.Statements.DeleteUser, u.UserBucket, u.ID).Exec(); err != nil {
		util.Warn("Failed to drop orphaned user row", util.UserID(u.ID), zap.Error(err))
	}
	id, _ := existing["user_id"].(string)
	if id == "" {
		return r.FindByToken(ctx, token)
	}
	return r.FindByID(ctx, id)
}

// Save writes every mutable column guarded by the version the caller read.
func (r *UserRepository) Save(ctx context.Context, u *models.User) error {
	sealed := ""
	if u.SharedSecret != "" {
		var err error
		if sealed, err = r.secrets.Seal(ctx, u.SharedSecret); err != nil {
			util.Error("Failed to seal shared secret", util.UserID(u.ID), zap.Error(err))
			return fmt.Errorf("%w: seal shared secret: %v", repository.ErrStoreUnavailable, err)
		}
	}

	now := r.nowFn().UTC()
	next := u.Version + 1
	current := map[string]any{}
	applied, err := r.client.Query(ctx, r.client.Statements.UpdateUser,
		string(u.Status), u.TrustedNumbers, u.SpamNumbers,
		u.SessionKey, sealed, u.SessionKeyEstablishedAt,
		u.NonceExpected, u.ExpectedCode, u.RetryCount,
		u.RecentMessageCount, next, now,
		r.buckets.GetUserBucket(u.ID), u.ID, u.Version,
	).MapScanCAS(current)
	if err != nil {
		return mapError(err, "save user")
	}
	if !applied {
		if len(current) == 0 {
			return fmt.Errorf("%w: id %s", repository.ErrNotFound, u.ID)
		}
		util.Debug("Version conflict on save",
			util.UserID(u.ID),
			zap.Int64("read_version", u.Version),
			zap.Any("stored_version", current["version"]))
		return fmt.Errorf("%w: id %s", repository.ErrVersionConflict, u.ID)
	}

	u.Version = next
	u.UpdatedAt = now
	return nil
}

func (r *UserRepository) HealthCheck(ctx context.Context) error {
	if err := r.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	return nil
}
