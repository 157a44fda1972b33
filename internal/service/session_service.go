package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trust-service/internal/encryption"
	"trust-service/internal/keyexchange"
	"trust-service/internal/models"
	"trust-service/internal/repository"
	"trust-service/internal/util"
)

const DefaultSessionKeyTTL = 15 * time.Minute

type InitSessionRequest struct {
	UserID         string
	AssertedUserID string
	// ClientNonce is echoed back verbatim inside the sealed response.
	ClientNonce       json.RawMessage
	ClientPublicValue *big.Int
}

type InitSessionResponse struct {
	Nonce   int64  `json:"nonce"`
	Payload string `json:"payload"`
}

// serverHalf is sealed under the pre-shared secret in phase 1.
type serverHalf struct {
	Nonce   json.RawMessage `json:"nonce"`
	KeyHalf string          `json:"keyhalf"`
}

// SessionService runs the two-phase handshake that establishes a user's
// short-lived session key.
//
// Phase 1 derives the key and stores it together with a server nonce; the
// session stays unusable until phase 2 echoes that nonce back.
type SessionService struct {
	dir    repository.Directory
	params keyexchange.Params
	ttl    time.Duration
	sealer *encryption.Sealer
	events EventRecorder
	logger *zap.Logger
	rand   io.Reader
	nowFn  func() time.Time
}

func NewSessionService(
	dir repository.Directory,
	params keyexchange.Params,
	ttl time.Duration,
	sealer *encryption.Sealer,
	events EventRecorder,
	logger *zap.Logger,
) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionKeyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = nopRecorder{}
	}
	return &SessionService{
		dir:    dir,
		params: params,
		ttl:    ttl,
		sealer: sealer,
		events: events,
		logger: logger,
		rand:   rand.Reader,
		nowFn:  time.Now,
	}
}

// WithClock overrides the time provider.
func (s *SessionService) WithClock(nowFn func() time.Time) *SessionService {
	if nowFn != nil {
		s.nowFn = nowFn
	}
	return s
}

// WithRand overrides the source of exponents and nonces.
func (s *SessionService) WithRand(r io.Reader) *SessionService {
	if r != nil {
		s.rand = r
	}
	return s
}

func (s *SessionService) lookup(ctx context.Context, userID, asserted string) (*models.User, error) {
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if asserted != userID {
		return nil, fmt.Errorf("%w: payload identity does not match sender", ErrUnauthorized)
	}
	return user, nil
}

// InitSessionKey is phase 1 of the handshake.
func (s *SessionService) InitSessionKey(ctx context.Context, req InitSessionRequest) (*InitSessionResponse, error) {
	if err := s.params.ValidatePublic(req.ClientPublicValue); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if len(req.ClientNonce) == 0 {
		return nil, fmt.Errorf("%w: client nonce is required", ErrInvalidArgument)
	}

	user, err := s.lookup(ctx, req.UserID, req.AssertedUserID)
	if err != nil {
		return nil, err
	}
	secret, err := encryption.DecodeSharedSecret(user.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: no usable pre-shared secret", ErrUnauthorized)
	}

	b, err := s.params.RandomExponent(s.rand)
	if err != nil {
		return nil, err
	}
	serverPublic := s.params.PublicValue(b)
	sessionKey := keyexchange.RenderKey(s.params.SharedKey(req.ClientPublicValue, b))

	sealed, err := s.sealer.SealJSON(serverHalf{
		Nonce:   req.ClientNonce,
		KeyHalf: serverPublic.Text(16),
	}, secret)
	if err != nil {
		return nil, fmt.Errorf("seal server half: %w", err)
	}

	serverNonce, err := keyexchange.RandomNonce(s.rand)
	if err != nil {
		return nil, err
	}

	user.SessionKey = sessionKey
	user.NonceExpected = strconv.FormatInt(serverNonce, 10)
	user.SessionKeyEstablishedAt = time.Time{}
	if err := s.dir.Save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Debug("Session key half-established", util.UserID(user.ID))
	return &InitSessionResponse{Nonce: serverNonce, Payload: sealed}, nil
}

// FinishSessionKey is phase 2: the client proves it could read phase 1 by
// echoing the server nonce.
func (s *SessionService) FinishSessionKey(ctx context.Context, userID, assertedUserID, echoedNonce string) error {
	user, err := s.lookup(ctx, userID, assertedUserID)
	if err != nil {
		return err
	}
	if user.NonceExpected == "" || echoedNonce != user.NonceExpected {
		s.logger.Warn("Session nonce mismatch", util.UserID(user.ID))
		return fmt.Errorf("%w: nonce mismatch", ErrUnauthorized)
	}

	user.SessionKeyEstablishedAt = s.nowFn().UTC()
	if err := s.dir.Save(ctx, user); err != nil {
		return err
	}

	s.events.Record(ctx, models.TrustEvent{
		EventType: models.EventSessionEstablished,
		UserID:    user.ID,
	})
	s.logger.Info("Session key established", util.UserID(user.ID))
	return nil
}

func (s *SessionService) expired(user *models.User) bool {
	if user.SessionKeyEstablishedAt.IsZero() {
		return true
	}
	return s.nowFn().Sub(user.SessionKeyEstablishedAt) > s.ttl
}

func (s *SessionService) IsKeyExpired(ctx context.Context, userID string) (bool, error) {
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.expired(user), nil
}

// SharedSecretKey returns the key that seals handshake payloads for userID.
func (s *SessionService) SharedSecretKey(ctx context.Context, userID string) ([]byte, error) {
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	key, err := encryption.DecodeSharedSecret(user.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: no usable pre-shared secret", ErrUnauthorized)
	}
	return key, nil
}

// SessionKey returns the key that seals payloads for userID once a session
// is established and still fresh.
func (s *SessionService) SessionKey(ctx context.Context, userID string) ([]byte, error) {
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.expired(user) {
		return nil, fmt.Errorf("%w: session key expired", ErrUnauthorized)
	}
	key, err := encryption.SessionKeyBytes(user.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return key, nil
}
