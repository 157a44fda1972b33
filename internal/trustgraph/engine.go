// Package trustgraph scores phone numbers from the trust and spam lists
// users keep about each other.
//
// The graph is never materialized. Edges are read from user records on
// demand through a LookupCache, and a walk only follows bidirectional trust
// between verified users.
package trustgraph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"trust-service/internal/models"
	"trust-service/internal/repository"
	"trust-service/internal/util"
)

const (
	DefaultDepth = 3

	trustWeight = 1
	spamWeight  = -2
)

// UserLookup is the slice of the directory the engine reads from.
type UserLookup interface {
	FindByToken(ctx context.Context, token string) (*models.User, error)
}

type Engine struct {
	users  UserLookup
	logger *zap.Logger
}

func NewEngine(users UserLookup, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{users: users, logger: logger}
}

// Resolve returns the user holding token, consulting cache first. Misses
// are cached and reported as repository.ErrNotFound.
func (e *Engine) Resolve(ctx context.Context, token string, cache *LookupCache) (*models.User, error) {
	if u, ok := cache.get(token); ok {
		if u == nil {
			return nil, repository.ErrNotFound
		}
		return u, nil
	}

	u, err := e.users.FindByToken(ctx, token)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		cache.put(token, nil)
		return nil, repository.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	cache.put(token, u)
	return u, nil
}

// BidirectionalTrusts returns, in trust-list order, the tokens of verified
// users who trust user back. Tokens without a directory record are skipped.
func (e *Engine) BidirectionalTrusts(ctx context.Context, user *models.User, cache *LookupCache) ([]string, error) {
	if len(user.TrustedNumbers) == 0 {
		return nil, nil
	}

	var mutual []string
	for _, token := range user.TrustedNumbers {
		other, err := e.Resolve(ctx, token, cache)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if other.IsVerified() && other.Trusts(user.PhoneToken) {
			mutual = append(mutual, token)
		}
	}
	return mutual, nil
}

// Multiplier is the weight applied to edges found depth hops from the
// bottom of the walk.
func Multiplier(depth int) int {
	switch depth {
	case 3:
		return 3
	case 2:
		return 2
	default:
		return 1
	}
}

// edgeScore is the direct contribution of from's lists towards target.
func edgeScore(from *models.User, target string, depth int) int {
	m := Multiplier(depth)
	switch {
	case from.Trusts(target):
		return trustWeight * m
	case from.MarkedSpam(target):
		return spamWeight * m
	}
	return 0
}

type step struct {
	token string
	depth int
}

// CalculateTrustScore sums edge scores towards target over every walk of
// bidirectional trust starting at from, up to depth hops. Walks never step
// onto target or origin. A node reachable along several paths contributes
// once per path.
func (e *Engine) CalculateTrustScore(ctx context.Context, from, target string, depth int, cache *LookupCache, origin string) (int, error) {
	total := 0
	queue := []step{{token: from, depth: depth}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		cur := queue[0]
		queue = queue[1:]

		user, err := e.Resolve(ctx, cur.token, cache)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}

		total += edgeScore(user, target, cur.depth)
		if cur.depth <= 1 {
			continue
		}

		next, err := e.BidirectionalTrusts(ctx, user, cache)
		if err != nil {
			return 0, err
		}
		for _, token := range next {
			if token == target || token == origin {
				continue
			}
			queue = append(queue, step{token: token, depth: cur.depth - 1})
		}
	}

	e.logger.Debug("Trust score walk finished",
		util.Token(target),
		util.Int("depth", depth),
		util.Int("score", total),
		util.Int("resolved_tokens", cache.Len()),
	)
	return total, nil
}
