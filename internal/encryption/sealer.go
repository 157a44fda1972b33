package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"trust-service/internal/keyexchange"
)

const SharedSecretSize = 16

var (
	ErrInvalidKey      = errors.New("invalid sealing key")
	ErrInvalidEnvelope = errors.New("invalid sealed payload")
)

// Sealer wraps JSON payloads in AES-GCM and renders them as base64.
// The envelope layout is nonce || ciphertext || tag.
type Sealer struct {
	rand io.Reader
}

func NewSealer() *Sealer {
	return &Sealer{rand: rand.Reader}
}

// WithRand overrides the nonce source.
func (s *Sealer) WithRand(r io.Reader) *Sealer {
	if r != nil {
		s.rand = r
	}
	return s
}

func (s *Sealer) SealJSON(v any, key []byte) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

func (s *Sealer) OpenJSON(sealed string, key []byte, v any) error {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("%w: not base64", ErrInvalidEnvelope)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(raw) < gcm.NonceSize()+gcm.Overhead() {
		return fmt.Errorf("%w: too short", ErrInvalidEnvelope)
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("%w: authentication failed", ErrInvalidEnvelope)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	gcm, err := aesGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return gcm, nil
}

// DecodeSharedSecret returns the raw bytes of a base64 pre-shared secret.
func DecodeSharedSecret(secret string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: shared secret is not base64", ErrInvalidKey)
	}
	if len(raw) != SharedSecretSize {
		return nil, fmt.Errorf("%w: shared secret is %d bytes, want %d", ErrInvalidKey, len(raw), SharedSecretSize)
	}
	return raw, nil
}

// SessionKeyBytes returns the AES key for a rendered session key. The hex
// text itself is the key material, giving AES-192.
func SessionKeyBytes(sessionKey string) ([]byte, error) {
	if len(sessionKey) != keyexchange.KeyWidth {
		return nil, fmt.Errorf("%w: session key is %d chars, want %d", ErrInvalidKey, len(sessionKey), keyexchange.KeyWidth)
	}
	return []byte(sessionKey), nil
}
