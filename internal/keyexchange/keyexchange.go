// Package keyexchange holds the modular arithmetic of the session key
// handshake. The default group is tiny and offers no real secrecy; it is
// kept for compatibility with deployed clients.
package keyexchange

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	DefaultGenerator = 5
	DefaultModulus   = 23

	// KeyWidth is the length of a rendered session key in hex characters.
	KeyWidth = 24

	maxNonce = 10000
)

var ErrInvalidPublicValue = errors.New("public value out of range")

type Params struct {
	G *big.Int
	P *big.Int
}

func NewParams(g, p int64) (Params, error) {
	if p <= 3 {
		return Params{}, fmt.Errorf("modulus %d too small", p)
	}
	if g < 2 || g >= p-2 {
		return Params{}, fmt.Errorf("generator %d out of range for modulus %d", g, p)
	}
	return Params{G: big.NewInt(g), P: big.NewInt(p)}, nil
}

func DefaultParams() Params {
	return Params{G: big.NewInt(DefaultGenerator), P: big.NewInt(DefaultModulus)}
}

// ValidatePublic accepts values in [1, p-1].
func (p Params) ValidatePublic(v *big.Int) error {
	if v == nil || v.Sign() <= 0 || v.Cmp(p.P) >= 0 {
		return fmt.Errorf("%w: must be in [1, %s]", ErrInvalidPublicValue, new(big.Int).Sub(p.P, big.NewInt(1)))
	}
	return nil
}

// RandomExponent draws a private exponent uniformly from [g, p-2).
func (p Params) RandomExponent(r io.Reader) (*big.Int, error) {
	upper := new(big.Int).Sub(p.P, big.NewInt(2))
	span := new(big.Int).Sub(upper, p.G)
	if span.Sign() <= 0 {
		return nil, fmt.Errorf("empty exponent range [%s, %s)", p.G, upper)
	}
	n, err := rand.Int(reader(r), span)
	if err != nil {
		return nil, fmt.Errorf("draw exponent: %w", err)
	}
	return n.Add(n, p.G), nil
}

// PublicValue is g^x mod p.
func (p Params) PublicValue(x *big.Int) *big.Int {
	return new(big.Int).Exp(p.G, x, p.P)
}

// SharedKey is peer^x mod p.
func (p Params) SharedKey(peer, x *big.Int) *big.Int {
	return new(big.Int).Exp(peer, x, p.P)
}

// RenderKey formats k as exactly KeyWidth lowercase hex characters,
// left-padded with zeros and keeping the low-order digits if wider.
func RenderKey(k *big.Int) string {
	h := k.Text(16)
	if len(h) >= KeyWidth {
		return h[len(h)-KeyWidth:]
	}
	return strings.Repeat("0", KeyWidth-len(h)) + h
}

// RandomNonce draws a handshake nonce uniformly from [1, 10000).
func RandomNonce(r io.Reader) (int64, error) {
	n, err := rand.Int(reader(r), big.NewInt(maxNonce-1))
	if err != nil {
		return 0, fmt.Errorf("draw nonce: %w", err)
	}
	return n.Int64() + 1, nil
}

func reader(r io.Reader) io.Reader {
	if r == nil {
		return rand.Reader
	}
	return r
}
