package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"

	"go.uber.org/zap"

	"trust-service/internal/encryption"
	"trust-service/internal/models"
	"trust-service/internal/notify"
	"trust-service/internal/repository"
	"trust-service/internal/util"
)

const (
	DefaultMaxVerificationRetries = 3
	codeDigits                    = 6
)

type RegistrationResult struct {
	UserID    string `json:"-"`
	Delivered bool   `json:"delivered"`
}

type Confirmation struct {
	Phone  string `json:"phone"`
	UserID string `json:"uuid"`
}

// RegistrationService binds a phone number to an identity through a one-time
// code and stores the client's pre-shared secret once the code checks out.
type RegistrationService struct {
	dir        repository.Directory
	tokenizer  Tokenizer
	sender     notify.Sender
	throttle   Throttle
	events     EventRecorder
	maxRetries int
	logger     *zap.Logger
	rand       io.Reader
}

func NewRegistrationService(
	dir repository.Directory,
	tokenizer Tokenizer,
	sender notify.Sender,
	throttle Throttle,
	events EventRecorder,
	maxRetries int,
	logger *zap.Logger,
) *RegistrationService {
	if maxRetries < 1 {
		maxRetries = DefaultMaxVerificationRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = nopRecorder{}
	}
	return &RegistrationService{
		dir:        dir,
		tokenizer:  tokenizer,
		sender:     sender,
		throttle:   throttle,
		events:     events,
		maxRetries: maxRetries,
		logger:     logger,
		rand:       rand.Reader,
	}
}

// WithRand overrides the source of verification codes.
func (s *RegistrationService) WithRand(r io.Reader) *RegistrationService {
	if r != nil {
		s.rand = r
	}
	return s
}

func (s *RegistrationService) newCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(s.rand, limit)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// InitRegistration starts or restarts verification of phone and sends the
// pending code to it.
func (s *RegistrationService) InitRegistration(ctx context.Context, phone string) (*RegistrationResult, error) {
	token, err := s.tokenizer.Tokenize(phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	normalized := util.NormalizePhone(phone)

	if s.throttle != nil {
		ok, retryAfter, err := s.throttle.Allow(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
		}
		if !ok {
			return nil, &RateLimitError{RetryAfter: retryAfter}
		}
	}

	user, err := s.dir.FindByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.dir.CreateUnverified(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	// An aborted attempt restarts with a fresh code; a pending one is re-sent.
	if user.Status != models.StatusUnverified || user.ExpectedCode == "" || user.RetryCount >= s.maxRetries {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		user.Status = models.StatusUnverified
		user.ExpectedCode = code
		user.RetryCount = 0
		if err := s.dir.Save(ctx, user); err != nil {
			return nil, err
		}
		s.events.Record(ctx, models.TrustEvent{
			EventType:  models.EventRegistrationStarted,
			UserID:     user.ID,
			PhoneToken: token,
		})
	}

	result := &RegistrationResult{UserID: user.ID, Delivered: true}
	if err := s.sender.SendCode(ctx, normalized, user.ExpectedCode); err != nil {
		s.logger.Warn("Verification code not delivered",
			util.UserID(user.ID),
			util.ErrorField(err),
		)
		result.Delivered = false
	}
	return result, nil
}

// FinishRegistration checks code against the pending one for phone. On
// success the account is verified and keyMaterial becomes its pre-shared
// secret.
func (s *RegistrationService) FinishRegistration(ctx context.Context, phone, code, keyMaterial string) (*Confirmation, error) {
	if _, err := encryption.DecodeSharedSecret(keyMaterial); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	token, err := s.tokenizer.Tokenize(phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	user, err := s.dir.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.Status != models.StatusUnverified || user.ExpectedCode == "" {
		return nil, fmt.Errorf("%w: no pending verification", ErrUnauthorized)
	}
	if user.RetryCount >= s.maxRetries {
		return nil, ErrAborted
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(user.ExpectedCode)) != 1 {
		user.RetryCount++
		if err := s.dir.Save(ctx, user); err != nil {
			return nil, err
		}
		s.events.Record(ctx, models.TrustEvent{
			EventType:  models.EventRegistrationRejected,
			UserID:     user.ID,
			PhoneToken: token,
		})
		s.logger.Info("Verification code rejected",
			util.UserID(user.ID),
			util.Int("retry_count", user.RetryCount),
		)
		return nil, fmt.Errorf("%w: incorrect verification code", ErrUnauthorized)
	}

	user.Status = models.StatusVerified
	user.SharedSecret = keyMaterial
	user.ExpectedCode = ""
	user.RetryCount = 0
	if err := s.dir.Save(ctx, user); err != nil {
		return nil, err
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, token); err != nil {
			s.logger.Warn("Registration throttle not cleared",
				util.UserID(user.ID),
				util.ErrorField(err),
			)
		}
	}

	s.events.Record(ctx, models.TrustEvent{
		EventType:  models.EventRegistrationVerified,
		UserID:     user.ID,
		PhoneToken: token,
	})
	s.logger.Info("Phone verified", util.UserID(user.ID))
	return &Confirmation{Phone: util.NormalizePhone(phone), UserID: user.ID}, nil
}
