package phonelist

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"trust-service/internal/models"
	"trust-service/internal/util"
)

var ErrInvalidList = errors.New("invalid list")

type ListKind int

const (
	Trust ListKind = iota
	Spam
)

func (k ListKind) String() string {
	switch k {
	case Trust:
		return "trust"
	case Spam:
		return "spam"
	}
	return fmt.Sprintf("ListKind(%d)", int(k))
}

// Opposite returns the list a token has to leave when it joins k.
func (k ListKind) Opposite() ListKind {
	if k == Trust {
		return Spam
	}
	return Trust
}

type Saver interface {
	Save(ctx context.Context, user *models.User) error
}

// Manager edits a user's trust and spam lists. Every effective change is
// saved immediately; when the save fails the list is put back as it was.
// Keeping the two lists disjoint is the caller's job.
type Manager struct {
	store  Saver
	logger *zap.Logger
}

func NewManager(store Saver, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

func selectList(user *models.User, kind ListKind) (*[]string, error) {
	switch kind {
	case Trust:
		return &user.TrustedNumbers, nil
	case Spam:
		return &user.SpamNumbers, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidList, kind)
}

// Add appends token to the list unless it is already there.
func (m *Manager) Add(ctx context.Context, user *models.User, token string, kind ListKind) error {
	list, err := selectList(user, kind)
	if err != nil {
		return err
	}
	if slices.Contains(*list, token) {
		return nil
	}

	prev := *list
	next := make([]string, len(prev), len(prev)+1)
	copy(next, prev)
	*list = append(next, token)

	return m.commit(ctx, user, list, prev, kind, "add")
}

// Remove drops token from the list. Absent tokens are a no-op.
func (m *Manager) Remove(ctx context.Context, user *models.User, token string, kind ListKind) error {
	list, err := selectList(user, kind)
	if err != nil {
		return err
	}
	if !slices.Contains(*list, token) {
		return nil
	}

	prev := *list
	*list = slices.DeleteFunc(slices.Clone(prev), func(t string) bool { return t == token })

	return m.commit(ctx, user, list, prev, kind, "remove")
}

func (m *Manager) commit(ctx context.Context, user *models.User, list *[]string, prev []string, kind ListKind, op string) error {
	if err := m.store.Save(ctx, user); err != nil {
		*list = prev
		m.logger.Warn("Phone list change rolled back",
			util.UserID(user.ID),
			util.String("list", kind.String()),
			util.String("op", op),
			util.ErrorField(err),
		)
		return fmt.Errorf("save %s list: %w", kind, err)
	}
	m.logger.Debug("Phone list updated",
		util.UserID(user.ID),
		util.String("list", kind.String()),
		util.String("op", op),
		util.Int("size", len(*list)),
	)
	return nil
}
