package hashing

import (
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"trust-service/internal/config"
	"trust-service/internal/util"
)

var ErrInvalidPhone = errors.New("invalid phone number")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// Tokenizer turns phone numbers into the opaque tokens stored in the
// directory. The transform is deterministic so equal numbers always meet,
// and keyed by a pepper so tokens cannot be recomputed from a leaked table.
type Tokenizer struct {
	params Argon2Params
	pepper []byte
}

func NewTokenizer(params Argon2Params, pepper string) (*Tokenizer, error) {
	if pepper == "" {
		return nil, errors.New("phone pepper must not be empty")
	}
	if params.KeyLength == 0 {
		params.KeyLength = 32
	}
	if params.Iterations == 0 || params.Memory == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid argon2 params %+v", params)
	}
	return &Tokenizer{params: params, pepper: []byte(pepper)}, nil
}

func NewTokenizerFromConfig(cfg config.HashingConfig) (*Tokenizer, error) {
	return NewTokenizer(Argon2Params{
		Memory:      uint32(cfg.Argon2MemoryCost),
		Iterations:  uint32(cfg.Argon2TimeCost),
		Parallelism: uint8(cfg.Argon2Parallelism),
		KeyLength:   32,
	}, cfg.PhonePepper)
}

// Tokenize normalizes phone and returns its token.
func (t *Tokenizer) Tokenize(phone string) (string, error) {
	normalized := util.NormalizePhone(phone)
	if normalized == "" {
		return "", ErrInvalidPhone
	}
	key := argon2.IDKey(
		[]byte(normalized),
		t.pepper,
		t.params.Iterations,
		t.params.Memory,
		t.params.Parallelism,
		t.params.KeyLength,
	)
	return base64.RawURLEncoding.EncodeToString(key), nil
}
