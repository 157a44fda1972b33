package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-service/internal/encryption"
	"trust-service/internal/keyexchange"
	"trust-service/internal/models"
	"trust-service/internal/repository"
	"trust-service/internal/repository/memory"
	"trust-service/internal/util"
)

// plainTokenizer uses the normalized phone as its token.
type plainTokenizer struct{}

func (plainTokenizer) Tokenize(phone string) (string, error) {
	n := util.NormalizePhone(phone)
	if n == "" {
		return "", errors.New("invalid phone")
	}
	return n, nil
}

type sentCode struct {
	phone string
	code  string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (f *fakeSender) SendCode(_ context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCode{phone: phone, code: code})
	return f.err
}

func (f *fakeSender) last() sentCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeThrottle struct {
	allow  bool
	retry  time.Duration
	calls  int
	resets []string
}

func (f *fakeThrottle) Allow(context.Context, string) (bool, time.Duration, error) {
	f.calls++
	return f.allow, f.retry, nil
}

func (f *fakeThrottle) Reset(_ context.Context, token string) error {
	f.resets = append(f.resets, token)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []models.TrustEvent
}

func (l *eventLog) Record(_ context.Context, e models.TrustEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []models.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.EventType
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

func verifiedUser(token string, trusts, spam []string) *models.User {
	return &models.User{
		PhoneToken:     token,
		Status:         models.StatusVerified,
		TrustedNumbers: trusts,
		SpamNumbers:    spam,
		Version:        1,
	}
}

// Trust service

func TestUpdateMembershipKeepsListsExclusive(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	r := d.Put(verifiedUser("1001", nil, nil))
	events := &eventLog{}
	svc := NewTrustService(d, plainTokenizer{}, events, 0, nil)

	require.NoError(t, svc.UpdateMembership(ctx, r.ID, "2000", MarkTrust))
	got, err := d.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2000"}, got.TrustedNumbers)

	placeholder, err := d.FindByToken(ctx, "2000")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, placeholder.Status)

	require.NoError(t, svc.UpdateMembership(ctx, r.ID, "2000", MarkSpam))
	got, err = d.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TrustedNumbers)
	assert.Equal(t, []string{"2000"}, got.SpamNumbers)

	// idempotent
	require.NoError(t, svc.UpdateMembership(ctx, r.ID, "2000", MarkSpam))
	require.NoError(t, svc.UpdateMembership(ctx, r.ID, "2000", RemoveTrust))
	got, err = d.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2000"}, got.SpamNumbers)

	require.NoError(t, svc.UpdateMembership(ctx, r.ID, "2000", RemoveSpam))
	got, err = d.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SpamNumbers)
	assert.Empty(t, got.TrustedNumbers)

	assert.Len(t, events.types(), 5)
	assert.Equal(t, models.EventListUpdated, events.types()[0])
}

func TestUpdateMembershipValidatesBeforeLookup(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	svc := NewTrustService(d, plainTokenizer{}, nil, 0, nil)

	err := svc.UpdateMembership(ctx, "missing", "2000", Command(42))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.UpdateMembership(ctx, "missing", "not a phone", MarkTrust)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.UpdateMembership(ctx, "missing", "2000", MarkTrust)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = d.FindByToken(ctx, "2000")
	assert.ErrorIs(t, err, repository.ErrNotFound, "no placeholder for an unknown caller")
}

func TestUpdateMembershipSaveFailure(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	r := d.Put(verifiedUser("1001", nil, nil))
	d.CreatePlaceholder(ctx, "2000")
	d.WithSaveError(errors.New("disk full"))
	svc := NewTrustService(d, plainTokenizer{}, nil, 0, nil)

	err := svc.UpdateMembership(ctx, r.ID, "2000", MarkTrust)
	require.Error(t, err)

	got, err := d.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TrustedNumbers)
}

func TestCheckIfKnown(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	r := d.Put(verifiedUser("1001", []string{"2000"}, []string{"3000"}))
	svc := NewTrustService(d, plainTokenizer{}, nil, 0, nil)

	tests := []struct {
		phone string
		want  KnownStatus
	}{
		{phone: "2000", want: KnownTrusted},
		{phone: "3000", want: KnownSpam},
		{phone: "4000", want: KnownUnknown},
	}
	for _, tt := range tests {
		got, err := svc.CheckIfKnown(ctx, r.ID, tt.phone)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.phone)
	}

	_, err := svc.CheckIfKnown(ctx, "missing", "2000")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetTrustScoreShortCircuitsWithoutGraphLookups(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	r := d.Put(verifiedUser("1001", []string{"2000"}, []string{"3000"}))
	d.ResetCounters()
	svc := NewTrustService(d, plainTokenizer{}, nil, 0, nil)

	got, err := svc.GetTrustScore(ctx, r.ID, "2000")
	require.NoError(t, err)
	assert.Equal(t, &ScoreResult{Score: 0, Message: KnownTrusted}, got)

	got, err = svc.GetTrustScore(ctx, r.ID, "3000")
	require.NoError(t, err)
	assert.Equal(t, &ScoreResult{Score: -1, Message: KnownSpam}, got)

	assert.Zero(t, d.TotalTokenLookups())
}

func TestGetTrustScoreUnknownTargetCreatesPlaceholder(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	r := d.Put(verifiedUser("1001", nil, nil))
	svc := NewTrustService(d, plainTokenizer{}, nil, 0, nil)

	got, err := svc.GetTrustScore(ctx, r.ID, "5555")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Score)
	assert.Empty(t, got.Message)

	placeholder, err := d.FindByToken(ctx, "5555")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, placeholder.Status)
}

func TestGetTrustScoreWalksMutualTrusts(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	r := d.Put(verifiedUser("1001", []string{"1002", "1003"}, nil))
	d.Put(verifiedUser("1002", []string{"1001", "2000", "1004"}, nil))
	d.Put(verifiedUser("1003", []string{"1001"}, nil))
	d.Put(verifiedUser("1004", []string{"1002", "2000"}, nil))
	d.Put(&models.User{PhoneToken: "2000", Status: models.StatusInactive, RecentMessageCount: 45})
	d.ResetCounters()
	svc := NewTrustService(d, plainTokenizer{}, nil, 0, nil)

	got, err := svc.GetTrustScore(ctx, r.ID, "2000")
	require.NoError(t, err)
	// 1002 trusts the target at x3, 1004 at x2, 1002 again at x1; 45/20 = 2
	assert.Equal(t, 6-2, got.Score)

	for _, token := range []string{"1002", "1003", "1004", "2000"} {
		assert.LessOrEqual(t, d.TokenLookups(token), 1, token)
	}
	assert.Zero(t, d.TokenLookups("1001"))
}

func TestGetTrustScorePropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	r := d.Put(verifiedUser("1001", []string{"1002"}, nil))
	d.WithError(errors.New("timeout"))
	svc := NewTrustService(d, plainTokenizer{}, nil, 0, nil)

	_, err := svc.GetTrustScore(ctx, r.ID, "2000")
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
}

func TestParseCommand(t *testing.T) {
	for _, cmd := range []Command{MarkTrust, MarkSpam, RemoveTrust, RemoveSpam} {
		got, err := ParseCommand(cmd.String())
		require.NoError(t, err)
		assert.Equal(t, cmd, got)
	}
	_, err := ParseCommand("block")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// Session service

var sharedSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

func sessionFixture(t *testing.T, now *time.Time) (*memory.Directory, *models.User, *SessionService, *eventLog) {
	t.Helper()
	d := memory.NewDirectory()
	u := d.Put(&models.User{
		PhoneToken:   "1001",
		Status:       models.StatusVerified,
		SharedSecret: sharedSecret,
		Version:      1,
	})
	events := &eventLog{}
	svc := NewSessionService(d, keyexchange.DefaultParams(), 0, encryption.NewSealer(), events, nil).
		WithClock(func() time.Time { return *now })
	return d, u, svc, events
}

func TestSessionHandshakeAgreesOnKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d, u, svc, events := sessionFixture(t, &now)
	params := keyexchange.DefaultParams()

	a := big.NewInt(6)
	resp, err := svc.InitSessionKey(ctx, InitSessionRequest{
		UserID:            u.ID,
		AssertedUserID:    u.ID,
		ClientNonce:       json.RawMessage(`"client-nonce"`),
		ClientPublicValue: params.PublicValue(a),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Nonce, int64(1))
	assert.Less(t, resp.Nonce, int64(10000))

	secret, err := encryption.DecodeSharedSecret(sharedSecret)
	require.NoError(t, err)
	var half struct {
		Nonce   string `json:"nonce"`
		KeyHalf string `json:"keyhalf"`
	}
	require.NoError(t, encryption.NewSealer().OpenJSON(resp.Payload, secret, &half))
	assert.Equal(t, "client-nonce", half.Nonce)

	serverPublic, ok := new(big.Int).SetString(half.KeyHalf, 16)
	require.True(t, ok)
	clientKey := keyexchange.RenderKey(params.SharedKey(serverPublic, a))

	stored, err := d.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, clientKey, stored.SessionKey)
	assert.Len(t, stored.SessionKey, keyexchange.KeyWidth)
	assert.True(t, stored.SessionKeyEstablishedAt.IsZero())

	expired, err := svc.IsKeyExpired(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, expired, "half-established session is unusable")

	require.NoError(t, svc.FinishSessionKey(ctx, u.ID, u.ID, strconv.FormatInt(resp.Nonce, 10)))
	expired, err = svc.IsKeyExpired(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	key, err := svc.SessionKey(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte(clientKey), key)
	assert.Equal(t, []models.EventType{models.EventSessionEstablished}, events.types())
}

func TestFinishSessionKeyNonceMismatch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d, u, svc, _ := sessionFixture(t, &now)

	resp, err := svc.InitSessionKey(ctx, InitSessionRequest{
		UserID:            u.ID,
		AssertedUserID:    u.ID,
		ClientNonce:       json.RawMessage(`7`),
		ClientPublicValue: big.NewInt(8),
	})
	require.NoError(t, err)

	wrong := strconv.FormatInt(resp.Nonce%9999+1, 10)
	err = svc.FinishSessionKey(ctx, u.ID, u.ID, wrong)
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, err := d.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.SessionKeyEstablishedAt.IsZero())

	require.NoError(t, svc.FinishSessionKey(ctx, u.ID, u.ID, strconv.FormatInt(resp.Nonce, 10)))
	established := now

	now = now.Add(5 * time.Minute)
	err = svc.FinishSessionKey(ctx, u.ID, u.ID, wrong)
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, err = d.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, established.Equal(stored.SessionKeyEstablishedAt))
	expired, err := svc.IsKeyExpired(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestSessionIdentityMismatch(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	_, u, svc, _ := sessionFixture(t, &now)

	_, err := svc.InitSessionKey(ctx, InitSessionRequest{
		UserID:            u.ID,
		AssertedUserID:    "someone-else",
		ClientNonce:       json.RawMessage(`1`),
		ClientPublicValue: big.NewInt(8),
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = svc.FinishSessionKey(ctx, u.ID, "someone-else", "1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestInitSessionKeyRejectsBadPublicValue(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	d, u, svc, _ := sessionFixture(t, &now)
	d.ResetCounters()

	for _, v := range []*big.Int{nil, big.NewInt(0), big.NewInt(23), big.NewInt(-4)} {
		_, err := svc.InitSessionKey(ctx, InitSessionRequest{
			UserID:            u.ID,
			AssertedUserID:    u.ID,
			ClientNonce:       json.RawMessage(`1`),
			ClientPublicValue: v,
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	assert.Zero(t, d.Saves())
}

func TestInitSessionKeyRequiresSharedSecret(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	u := d.Put(&models.User{PhoneToken: "1001", Status: models.StatusUnverified})
	svc := NewSessionService(d, keyexchange.DefaultParams(), 0, encryption.NewSealer(), nil, nil)

	_, err := svc.InitSessionKey(ctx, InitSessionRequest{
		UserID:            u.ID,
		AssertedUserID:    u.ID,
		ClientNonce:       json.RawMessage(`1`),
		ClientPublicValue: big.NewInt(8),
	})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.SharedSecretKey(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSessionKeyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d, u, svc, _ := sessionFixture(t, &now)

	u.SessionKey = "0123456789abcdef01234567"
	u.SessionKeyEstablishedAt = now
	d.Put(u)

	tests := []struct {
		elapsed time.Duration
		want    bool
	}{
		{elapsed: 0, want: false},
		{elapsed: 15 * time.Minute, want: false},
		{elapsed: 15*time.Minute + time.Second, want: true},
	}
	for _, tt := range tests {
		now = u.SessionKeyEstablishedAt.Add(tt.elapsed)
		got, err := svc.IsKeyExpired(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.elapsed.String())
	}

	_, err := svc.SessionKey(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.IsKeyExpired(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// Registration service

func registrationFixture() (*memory.Directory, *fakeSender, *RegistrationService) {
	d := memory.NewDirectory()
	sender := &fakeSender{}
	svc := NewRegistrationService(d, plainTokenizer{}, sender, nil, nil, 3, nil)
	return d, sender, svc
}

func TestRegistrationHappyPath(t *testing.T) {
	ctx := context.Background()
	d, sender, svc := registrationFixture()

	res, err := svc.InitRegistration(ctx, "+1 (555) 010-0001")
	require.NoError(t, err)
	assert.True(t, res.Delivered)

	sent := sender.last()
	assert.Equal(t, "+15550100001", sent.phone)
	assert.Len(t, sent.code, 6)

	conf, err := svc.FinishRegistration(ctx, "+15550100001", sent.code, sharedSecret)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, conf.UserID)
	assert.Equal(t, "+15550100001", conf.Phone)

	u, err := d.FindByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, u.Status)
	assert.Equal(t, sharedSecret, u.SharedSecret)
	assert.Empty(t, u.ExpectedCode)
	assert.Empty(t, u.SessionKey)
}

func TestInitRegistrationResendsPendingCode(t *testing.T) {
	ctx := context.Background()
	_, sender, svc := registrationFixture()

	_, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	first := sender.last().code

	_, err = svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	assert.Equal(t, first, sender.last().code)
}

func TestInitRegistrationRestartsVerifiedAccount(t *testing.T) {
	ctx := context.Background()
	d, sender, svc := registrationFixture()
	existing := d.Put(&models.User{
		PhoneToken:     "5550100001",
		Status:         models.StatusVerified,
		TrustedNumbers: []string{"2000"},
		SharedSecret:   sharedSecret,
		Version:        1,
	})

	res, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.UserID)

	u, err := d.FindByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnverified, u.Status)
	assert.Equal(t, []string{"2000"}, u.TrustedNumbers)
	assert.Equal(t, sharedSecret, u.SharedSecret)
	assert.Equal(t, sender.last().code, u.ExpectedCode)
}

func TestInitRegistrationPromotesPlaceholder(t *testing.T) {
	ctx := context.Background()
	d, _, svc := registrationFixture()
	p, err := d.CreatePlaceholder(ctx, "5550100001")
	require.NoError(t, err)

	res, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.UserID)

	u, err := d.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnverified, u.Status)
}

func TestInitRegistrationDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	d, sender, svc := registrationFixture()
	sender.err = errors.New("gateway down")

	res, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	assert.False(t, res.Delivered)

	u, err := d.FindByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.NotEmpty(t, u.ExpectedCode)
}

func TestInitRegistrationThrottled(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	throttle := &fakeThrottle{allow: false, retry: 90 * time.Second}
	svc := NewRegistrationService(d, plainTokenizer{}, &fakeSender{}, throttle, nil, 3, nil)

	_, err := svc.InitRegistration(ctx, "5550100001")
	assert.ErrorIs(t, err, ErrRateLimited)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 90*time.Second, rle.RetryAfter)

	_, err = d.FindByToken(ctx, "5550100001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFinishRegistrationAbortsAfterRetries(t *testing.T) {
	ctx := context.Background()
	d, sender, svc := registrationFixture()

	res, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	code := sender.last().code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		_, err := svc.FinishRegistration(ctx, "5550100001", wrong, sharedSecret)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err = svc.FinishRegistration(ctx, "5550100001", code, sharedSecret)
	assert.ErrorIs(t, err, ErrAborted)

	u, err := d.FindByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnverified, u.Status)
	assert.Equal(t, 3, u.RetryCount)
}

func TestInitRegistrationRestartsAbortedAttempt(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	sender := &fakeSender{}
	throttle := &fakeThrottle{allow: true}
	codes := bytes.NewReader([]byte{0, 0, 1, 0, 0, 2})
	svc := NewRegistrationService(d, plainTokenizer{}, sender, throttle, nil, 3, nil).WithRand(codes)

	res, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	first := sender.last().code
	require.Equal(t, "000001", first)

	for i := 0; i < 3; i++ {
		_, err := svc.FinishRegistration(ctx, "5550100001", "999999", sharedSecret)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
	_, err = svc.FinishRegistration(ctx, "5550100001", first, sharedSecret)
	require.ErrorIs(t, err, ErrAborted)

	again, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	assert.Equal(t, res.UserID, again.UserID)
	fresh := sender.last().code
	assert.Equal(t, "000002", fresh)

	u, err := d.FindByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.RetryCount)
	assert.Equal(t, fresh, u.ExpectedCode)

	_, err = svc.FinishRegistration(ctx, "5550100001", first, sharedSecret)
	assert.ErrorIs(t, err, ErrUnauthorized, "the aborted code is gone")

	conf, err := svc.FinishRegistration(ctx, "5550100001", fresh, sharedSecret)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, conf.UserID)
	assert.Equal(t, []string{"5550100001"}, throttle.resets)
}

func TestFinishRegistrationValidatesSecretFirst(t *testing.T) {
	ctx := context.Background()
	d, sender, svc := registrationFixture()

	_, err := svc.InitRegistration(ctx, "5550100001")
	require.NoError(t, err)
	code := sender.last().code
	savesBefore := d.Saves()

	for _, secret := range []string{
		"",
		"not base64!",
		base64.StdEncoding.EncodeToString([]byte("fifteen bytes!!")),
		base64.StdEncoding.EncodeToString([]byte("seventeen bytes!!")),
	} {
		_, err := svc.FinishRegistration(ctx, "5550100001", code, secret)
		assert.ErrorIs(t, err, ErrInvalidArgument, secret)
	}
	assert.Equal(t, savesBefore, d.Saves())
}

func TestFinishRegistrationStates(t *testing.T) {
	ctx := context.Background()
	d, _, svc := registrationFixture()

	_, err := svc.FinishRegistration(ctx, "5550100001", "123456", sharedSecret)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	d.Put(&models.User{PhoneToken: "5550100002", Status: models.StatusVerified})
	_, err = svc.FinishRegistration(ctx, "5550100002", "123456", sharedSecret)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
