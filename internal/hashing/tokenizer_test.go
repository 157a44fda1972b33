package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-service/internal/config"
)

var cheap = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestTokenizeIsDeterministicAcrossFormatting(t *testing.T) {
	tok, err := NewTokenizer(cheap, "pepper")
	require.NoError(t, err)

	a, err := tok.Tokenize("+1 (555) 010-0199")
	require.NoError(t, err)
	b, err := tok.Tokenize("+15550100199")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotContains(t, a, "5550100199")
	assert.Len(t, a, 43)
}

func TestTokenizeDependsOnPepper(t *testing.T) {
	t1, err := NewTokenizer(cheap, "pepper-1")
	require.NoError(t, err)
	t2, err := NewTokenizer(cheap, "pepper-2")
	require.NoError(t, err)

	a, err := t1.Tokenize("5550100")
	require.NoError(t, err)
	b, err := t2.Tokenize("5550100")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenizeRejectsGarbage(t *testing.T) {
	tok, err := NewTokenizer(cheap, "pepper")
	require.NoError(t, err)
	_, err = tok.Tokenize("call me")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestNewTokenizerValidation(t *testing.T) {
	_, err := NewTokenizer(cheap, "")
	assert.Error(t, err)
	_, err = NewTokenizer(Argon2Params{}, "pepper")
	assert.Error(t, err)

	_, err = NewTokenizerFromConfig(config.HashingConfig{
		Argon2MemoryCost:  1024,
		Argon2TimeCost:    1,
		Argon2Parallelism: 1,
		PhonePepper:       "p",
	})
	assert.NoError(t, err)
}
