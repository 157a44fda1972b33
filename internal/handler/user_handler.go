package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"trust-service/internal/encryption"
	"trust-service/internal/phonelist"
	"trust-service/internal/repository"
	"trust-service/internal/service"
	"trust-service/internal/util"
)

const maxBodyBytes = 64 << 10

var errIdentityMismatch = fmt.Errorf("%w: payload uuid does not match request", service.ErrUnauthorized)

// UserHandler serves the /user API. Everything after registration travels
// sealed: handshake payloads under the pre-shared secret, list and score
// payloads under the session key.
type UserHandler struct {
	trust        *service.TrustService
	sessions     *service.SessionService
	registration *service.RegistrationService
	sealer       *encryption.Sealer
	logger       *zap.Logger
}

func NewUserHandler(
	trust *service.TrustService,
	sessions *service.SessionService,
	registration *service.RegistrationService,
	sealer *encryption.Sealer,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		trust:        trust,
		sessions:     sessions,
		registration: registration,
		sealer:       sealer,
		logger:       logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func successResponse(data any, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*s = looseString(n.String())
	return nil
}

type registerInitRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type registerFinishRequest struct {
	PhoneNumber  string `json:"phone_number"`
	OneTimePass  string `json:"one_time_pass"`
	SharedSecret string `json:"shared_secret"`
}

// envelope is the outer body of every sealed request.
type envelope struct {
	UUID    string          `json:"uuid"`
	Nonce   json.RawMessage `json:"nonce,omitempty"`
	Payload string          `json:"payload"`
}

type keyHalfPayload struct {
	UUID    string      `json:"uuid"`
	KeyHalf looseString `json:"keyhalf"`
}

type noncePayload struct {
	UUID  string      `json:"uuid"`
	Nonce looseString `json:"nonce"`
}

type phonePayload struct {
	UUID  string `json:"uuid"`
	Phone string `json:"phone"`
}

type sealedResponse struct {
	Payload string `json:"payload"`
}

// RegisterRoutes registers all user routes
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/user", func(r chi.Router) {
		r.Post("/register/init", h.InitRegistration)
		r.Post("/register/finish", h.FinishRegistration)

		r.Post("/session/init", h.InitSession)
		r.Post("/session/finish", h.FinishSession)
		r.Post("/session/expired", h.SessionExpired)

		r.Post("/known", h.CheckIfKnown)
		r.Post("/score", h.GetTrustScore)
		r.Post("/trust", h.listCommand(service.MarkTrust))
		r.Post("/spam", h.listCommand(service.MarkSpam))
		r.Post("/trust/remove", h.listCommand(service.RemoveTrust))
		r.Post("/spam/remove", h.listCommand(service.RemoveSpam))
	})
}

// InitRegistration sends a verification code to the submitted number.
func (h *UserHandler) InitRegistration(w http.ResponseWriter, r *http.Request) {
	var req registerInitRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.registration.InitRegistration(r.Context(), req.PhoneNumber)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to start registration")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(res, "Verification code issued"))
}

func (h *UserHandler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	var req registerFinishRequest
	if !h.decode(w, r, &req) {
		return
	}

	conf, err := h.registration.FinishRegistration(r.Context(), req.PhoneNumber, req.OneTimePass, req.SharedSecret)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to verify phone")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(conf, "Phone verified"))
}

// InitSession is phase 1 of the session handshake.
func (h *UserHandler) InitSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var env envelope
	if !h.decode(w, r, &env) {
		return
	}

	var p keyHalfPayload
	if err := h.open(ctx, env, h.sessions.SharedSecretKey, &p); err != nil {
		h.respondWithServiceError(w, err, "Failed to open payload")
		return
	}
	public, ok := new(big.Int).SetString(string(p.KeyHalf), 10)
	if !ok {
		h.respondWithServiceError(w, fmt.Errorf("%w: keyhalf is not a decimal integer", service.ErrInvalidArgument), "Invalid key half")
		return
	}

	resp, err := h.sessions.InitSessionKey(ctx, service.InitSessionRequest{
		UserID:            env.UUID,
		AssertedUserID:    p.UUID,
		ClientNonce:       env.Nonce,
		ClientPublicValue: public,
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to start session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// FinishSession is phase 2 of the session handshake.
func (h *UserHandler) FinishSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var env envelope
	if !h.decode(w, r, &env) {
		return
	}

	var p noncePayload
	if err := h.open(ctx, env, h.sessions.SharedSecretKey, &p); err != nil {
		h.respondWithServiceError(w, err, "Failed to open payload")
		return
	}
	if err := h.sessions.FinishSessionKey(ctx, env.UUID, p.UUID, string(p.Nonce)); err != nil {
		h.respondWithServiceError(w, err, "Failed to establish session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Session established"))
}

func (h *UserHandler) SessionExpired(w http.ResponseWriter, r *http.Request) {
	var env envelope
	if !h.decode(w, r, &env) {
		return
	}
	expired, err := h.sessions.IsKeyExpired(r.Context(), env.UUID)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to check session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"expired": expired})
}

func (h *UserHandler) CheckIfKnown(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, userID string, p phonePayload) (any, error) {
		status, err := h.trust.CheckIfKnown(ctx, userID, p.Phone)
		if err != nil {
			return nil, err
		}
		return map[string]service.KnownStatus{"status": status}, nil
	})
}

func (h *UserHandler) GetTrustScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.withSession(w, r, func(ctx context.Context, userID string, p phonePayload) (any, error) {
		res, err := h.trust.GetTrustScore(ctx, userID, p.Phone)
		if err != nil {
			return nil, err
		}
		h.logger.Debug("Score served",
			util.UserID(userID),
			util.Duration("duration", time.Since(start)),
		)
		return res, nil
	})
}

func (h *UserHandler) listCommand(cmd service.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.withSession(w, r, func(ctx context.Context, userID string, p phonePayload) (any, error) {
			if err := h.trust.UpdateMembership(ctx, userID, p.Phone, cmd); err != nil {
				return nil, err
			}
			return map[string]string{"status": "ok"}, nil
		})
	}
}

// withSession opens a request sealed under the caller's session key, runs
// fn and seals its result under the same key.
func (h *UserHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, phonePayload) (any, error)) {
	ctx := r.Context()
	var env envelope
	if !h.decode(w, r, &env) {
		return
	}

	key, err := h.sessions.SessionKey(ctx, env.UUID)
	if err != nil {
		h.respondWithServiceError(w, err, "Session unavailable")
		return
	}
	var p phonePayload
	if err := h.sealer.OpenJSON(env.Payload, key, &p); err != nil {
		h.respondWithServiceError(w, err, "Failed to open payload")
		return
	}
	if p.UUID != env.UUID {
		h.respondWithServiceError(w, errIdentityMismatch, "Failed to open payload")
		return
	}

	out, err := fn(ctx, env.UUID, p)
	if err != nil {
		h.respondWithServiceError(w, err, "Request failed")
		return
	}
	sealed, err := h.sealer.SealJSON(out, key)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to seal response")
		return
	}
	h.respondWithJSON(w, http.StatusOK, sealedResponse{Payload: sealed})
}

type keyFunc func(ctx context.Context, userID string) ([]byte, error)

// open decrypts env.Payload into v with the key keyOf returns for the
// sender and checks that the sealed uuid matches the outer one.
func (h *UserHandler) open(ctx context.Context, env envelope, keyOf keyFunc, v interface{ asserted() string }) error {
	key, err := keyOf(ctx, env.UUID)
	if err != nil {
		return err
	}
	if err := h.sealer.OpenJSON(env.Payload, key, v); err != nil {
		return err
	}
	if v.asserted() != env.UUID {
		return errIdentityMismatch
	}
	return nil
}

func (p *keyHalfPayload) asserted() string { return p.UUID }
func (p *noncePayload) asserted() string   { return p.UUID }

func (h *UserHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return false
	}
	return true
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *UserHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *UserHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

func (h *UserHandler) respondWithServiceError(w http.ResponseWriter, err error, message string) {
	var rle *service.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Round(time.Second).Seconds())))
	}
	h.respondWithError(w, getStatusCode(err), err, message)
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, phonelist.ErrInvalidList),
		errors.Is(err, encryption.ErrInvalidEnvelope),
		errors.Is(err, encryption.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAborted):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, repository.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
