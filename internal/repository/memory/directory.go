package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/models"
	"trust-service/internal/repository"
)

// Directory is an in-process repository.Directory. It backs development
// runs and tests, and records lookups so callers can assert access bounds.
type Directory struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byToken map[string]string
	nowFn   func() time.Time

	lookups map[string]int
	saves   int
	err     error
	saveErr error
}

func NewDirectory() *Directory {
	return &Directory{
		byID:    make(map[string]*models.User),
		byToken: make(map[string]string),
		lookups: make(map[string]int),
		nowFn:   time.Now,
	}
}

// WithClock overrides the time provider used for CreatedAt/UpdatedAt.
func (d *Directory) WithClock(nowFn func() time.Time) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	if nowFn != nil {
		d.nowFn = nowFn
	}
	return d
}

// WithError makes every subsequent call fail with err wrapped as
// repository.ErrStoreUnavailable. Passing nil clears it.
func (d *Directory) WithError(err error) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
	return d
}

// WithSaveError makes only Save fail, with err returned as is.
func (d *Directory) WithSaveError(err error) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saveErr = err
	return d
}

// Put stores u directly, bypassing version checks. Intended for seeding.
func (d *Directory) Put(u *models.User) *models.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := u.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = d.nowFn().UTC()
	}
	d.byID[c.ID] = c
	d.byToken[c.PhoneToken] = c.ID
	return c.Clone()
}

func (d *Directory) FindByID(_ context.Context, id string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, d.err)
	}
	u, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", repository.ErrNotFound, id)
	}
	return u.Clone(), nil
}

func (d *Directory) FindByToken(_ context.Context, token string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups[token]++
	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, d.err)
	}
	id, ok := d.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d.byID[id].Clone(), nil
}

func (d *Directory) CreateUnverified(ctx context.Context, token string) (*models.User, error) {
	return d.create(ctx, token, models.StatusUnverified)
}

func (d *Directory) CreatePlaceholder(ctx context.Context, token string) (*models.User, error) {
	return d.create(ctx, token, models.StatusInactive)
}

func (d *Directory) create(_ context.Context, token string, status models.AccountStatus) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, d.err)
	}
	if id, ok := d.byToken[token]; ok {
		return d.byID[id].Clone(), nil
	}
	now := d.nowFn().UTC()
	u := &models.User{
		ID:         uuid.NewString(),
		PhoneToken: token,
		Status:     status,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	d.byID[u.ID] = u
	d.byToken[token] = u.ID
	return u.Clone(), nil
}

func (d *Directory) Save(_ context.Context, u *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, d.err)
	}
	if d.saveErr != nil {
		return d.saveErr
	}
	stored, ok := d.byID[u.ID]
	if !ok {
		return fmt.Errorf("%w: id %s", repository.ErrNotFound, u.ID)
	}
	if stored.Version != u.Version {
		return fmt.Errorf("%w: id %s has version %d, caller read %d",
			repository.ErrVersionConflict, u.ID, stored.Version, u.Version)
	}

	u.Version++
	u.UpdatedAt = d.nowFn().UTC()
	c := u.Clone()
	if c.PhoneToken != stored.PhoneToken {
		delete(d.byToken, stored.PhoneToken)
		d.byToken[c.PhoneToken] = c.ID
	}
	d.byID[c.ID] = c
	d.saves++
	return nil
}

func (d *Directory) HealthCheck(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, d.err)
	}
	return nil
}

// TokenLookups reports how many times FindByToken was called for token.
func (d *Directory) TokenLookups(token string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups[token]
}

// TotalTokenLookups reports FindByToken calls across all tokens.
func (d *Directory) TotalTokenLookups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.lookups {
		n += c
	}
	return n
}

// ResetCounters clears the lookup and save counters.
func (d *Directory) ResetCounters() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups = make(map[string]int)
	d.saves = 0
}

// Saves reports how many Save calls succeeded.
func (d *Directory) Saves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}

var _ repository.Directory = (*Directory)(nil)
