package service

import (
	"time"

	"go.uber.org/zap"

	"trust-service/internal/encryption"
	"trust-service/internal/keyexchange"
	"trust-service/internal/notify"
	"trust-service/internal/repository"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	dir       repository.Directory
	tokenizer Tokenizer
	sender    notify.Sender
	throttle  Throttle
	events    EventRecorder
	params    keyexchange.Params
	opts      Options
	logger    *zap.Logger

	trustService        *TrustService
	sessionService      *SessionService
	registrationService *RegistrationService
}

// Options carries the protocol tunables shared by the services.
type Options struct {
	TrustDepth             int
	SessionKeyTTL          time.Duration
	MaxVerificationRetries int
}

func NewServiceFactory(
	dir repository.Directory,
	tokenizer Tokenizer,
	sender notify.Sender,
	throttle Throttle,
	events EventRecorder,
	params keyexchange.Params,
	opts Options,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		dir:       dir,
		tokenizer: tokenizer,
		sender:    sender,
		throttle:  throttle,
		events:    events,
		params:    params,
		opts:      opts,
		logger:    logger,
	}
}

// TrustService returns the trust service instance (singleton)
func (f *ServiceFactory) TrustService() *TrustService {
	if f.trustService == nil {
		f.trustService = NewTrustService(f.dir, f.tokenizer, f.events, f.opts.TrustDepth, f.logger)
	}
	return f.trustService
}

// SessionService returns the session service instance (singleton)
func (f *ServiceFactory) SessionService() *SessionService {
	if f.sessionService == nil {
		f.sessionService = NewSessionService(
			f.dir,
			f.params,
			f.opts.SessionKeyTTL,
			encryption.NewSealer(),
			f.events,
			f.logger,
		)
	}
	return f.sessionService
}

// RegistrationService returns the registration service instance (singleton)
func (f *ServiceFactory) RegistrationService() *RegistrationService {
	if f.registrationService == nil {
		f.registrationService = NewRegistrationService(
			f.dir,
			f.tokenizer,
			f.sender,
			f.throttle,
			f.events,
			f.opts.MaxVerificationRetries,
			f.logger,
		)
	}
	return f.registrationService
}
