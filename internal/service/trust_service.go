package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"trust-service/internal/models"
	"trust-service/internal/phonelist"
	"trust-service/internal/repository"
	"trust-service/internal/trustgraph"
	"trust-service/internal/util"
)

// spamPenaltyDivisor converts a number's recent outbound message volume
// into score points.
const spamPenaltyDivisor = 20

type Command int

const (
	MarkTrust Command = iota + 1
	MarkSpam
	RemoveTrust
	RemoveSpam
)

func (c Command) String() string {
	switch c {
	case MarkTrust:
		return "trust"
	case MarkSpam:
		return "spam"
	case RemoveTrust:
		return "rmtrust"
	case RemoveSpam:
		return "rmspam"
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

func ParseCommand(s string) (Command, error) {
	switch s {
	case "trust":
		return MarkTrust, nil
	case "spam":
		return MarkSpam, nil
	case "rmtrust":
		return RemoveTrust, nil
	case "rmspam":
		return RemoveSpam, nil
	}
	return 0, fmt.Errorf("%w: unknown command %q", ErrInvalidArgument, s)
}

type KnownStatus string

const (
	KnownTrusted KnownStatus = "TRUSTED"
	KnownSpam    KnownStatus = "SPAM"
	KnownUnknown KnownStatus = "UNKNOWN"
)

type ScoreResult struct {
	Score   int         `json:"score"`
	Message KnownStatus `json:"message,omitempty"`
}

// TrustService owns the trust and spam lists and the score computed from them.
type TrustService struct {
	dir       repository.Directory
	engine    *trustgraph.Engine
	lists     *phonelist.Manager
	tokenizer Tokenizer
	events    EventRecorder
	depth     int
	logger    *zap.Logger
}

func NewTrustService(
	dir repository.Directory,
	tokenizer Tokenizer,
	events EventRecorder,
	depth int,
	logger *zap.Logger,
) *TrustService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = nopRecorder{}
	}
	if depth < 1 {
		depth = trustgraph.DefaultDepth
	}
	return &TrustService{
		dir:       dir,
		engine:    trustgraph.NewEngine(dir, logger),
		lists:     phonelist.NewManager(dir, logger),
		tokenizer: tokenizer,
		events:    events,
		depth:     depth,
		logger:    logger,
	}
}

func (s *TrustService) tokenize(phone string) (string, error) {
	token, err := s.tokenizer.Tokenize(phone)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return token, nil
}

// UpdateMembership applies cmd for phone to the lists of userID. Marking a
// number moves it out of the opposite list, so a number is never both
// trusted and spam.
func (s *TrustService) UpdateMembership(ctx context.Context, userID, phone string, cmd Command) error {
	var (
		kind phonelist.ListKind
		mark bool
	)
	switch cmd {
	case MarkTrust:
		kind, mark = phonelist.Trust, true
	case MarkSpam:
		kind, mark = phonelist.Spam, true
	case RemoveTrust:
		kind = phonelist.Trust
	case RemoveSpam:
		kind = phonelist.Spam
	default:
		return fmt.Errorf("%w: unknown command %s", ErrInvalidArgument, cmd)
	}

	token, err := s.tokenize(phone)
	if err != nil {
		return err
	}
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if mark {
		if _, err := s.dir.CreatePlaceholder(ctx, token); err != nil {
			return fmt.Errorf("materialize %s: %w", cmd, err)
		}
		if err := s.lists.Remove(ctx, user, token, kind.Opposite()); err != nil {
			return err
		}
		if err := s.lists.Add(ctx, user, token, kind); err != nil {
			return err
		}
	} else if err := s.lists.Remove(ctx, user, token, kind); err != nil {
		return err
	}

	s.events.Record(ctx, models.TrustEvent{
		EventType:  models.EventListUpdated,
		UserID:     user.ID,
		PhoneToken: token,
		Details:    cmd.String(),
	})
	s.logger.Info("Phone lists updated",
		util.UserID(user.ID),
		util.String("command", cmd.String()),
	)
	return nil
}

// CheckIfKnown reports direct membership of phone in the user's lists.
func (s *TrustService) CheckIfKnown(ctx context.Context, userID, phone string) (KnownStatus, error) {
	token, err := s.tokenize(phone)
	if err != nil {
		return "", err
	}
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	switch {
	case user.Trusts(token):
		return KnownTrusted, nil
	case user.MarkedSpam(token):
		return KnownSpam, nil
	}
	return KnownUnknown, nil
}

// GetTrustScore scores phone from the point of view of userID. Numbers the
// user already classified short-circuit without touching the graph.
func (s *TrustService) GetTrustScore(ctx context.Context, userID, phone string) (*ScoreResult, error) {
	token, err := s.tokenize(phone)
	if err != nil {
		return nil, err
	}
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.Trusts(token) {
		return &ScoreResult{Score: 0, Message: KnownTrusted}, nil
	}
	if user.MarkedSpam(token) {
		return &ScoreResult{Score: -1, Message: KnownSpam}, nil
	}

	cache := trustgraph.NewLookupCache(user)
	target, err := s.engine.Resolve(ctx, token, cache)
	if errors.Is(err, repository.ErrNotFound) {
		if _, err := s.dir.CreatePlaceholder(ctx, token); err != nil {
			return nil, fmt.Errorf("materialize target: %w", err)
		}
		return &ScoreResult{Score: 0}, nil
	}
	if err != nil {
		return nil, err
	}

	mutual, err := s.engine.BidirectionalTrusts(ctx, user, cache)
	if err != nil {
		return nil, err
	}

	score := 0
	for _, friend := range mutual {
		part, err := s.engine.CalculateTrustScore(ctx, friend, token, s.depth, cache, user.PhoneToken)
		if err != nil {
			return nil, err
		}
		score += part
	}
	score -= max(target.RecentMessageCount, 0) / spamPenaltyDivisor

	s.logger.Debug("Trust score computed",
		util.UserID(user.ID),
		util.Int("score", score),
		util.Int("mutual_trusts", len(mutual)),
		util.Int("resolved_tokens", cache.Len()),
	)
	return &ScoreResult{Score: score}, nil
}
