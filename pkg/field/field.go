// Package field implements arithmetic over F_p for a configurable large
// prime p, as required by the rubric's commitment and lookup layers.
package field

import (
	"fmt"
	"math/big"
)

// DefaultPrimeDecimal is (98*10^161 - 89) / 99, the engine's default modulus.
const DefaultPrimeDecimal = "98989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989"

// Prime holds the modulus all Elements in a given context are reduced under.
// Field elements from two different Primes must never be mixed.
type Prime struct {
	p *big.Int
	// byteLen is ceil(log2(p) / 8), the canonical serialization width.
	byteLen int
	// inv2 caches the inverse of 2 for CantorPair; computed on first use.
	inv2 *big.Int
}

// NewPrime wraps p (assumed prime; primality is the compiler's problem,
// not this package's) into a Prime context.
func NewPrime(p *big.Int) *Prime {
	bitLen := p.BitLen()
	return &Prime{p: new(big.Int).Set(p), byteLen: (bitLen + 7) / 8}
}

// DefaultPrime parses DefaultPrimeDecimal.
func DefaultPrime() *Prime {
	p, ok := new(big.Int).SetString(DefaultPrimeDecimal, 10)
	if !ok {
		panic("field: malformed default prime literal")
	}
	return NewPrime(p)
}

// Int returns the modulus as a big.Int. Callers must not mutate the result.
func (pr *Prime) Int() *big.Int { return pr.p }

// ByteLen is the canonical fixed serialization width for elements under p.
func (pr *Prime) ByteLen() int { return pr.byteLen }

// Element is a non-negative integer strictly less than the Prime it was
// produced under. The zero value is not a valid Element; use Zero or New.
type Element struct {
	v *big.Int
	p *Prime
}

// New reduces v modulo p and returns the resulting Element.
func (pr *Prime) New(v *big.Int) Element {
	r := new(big.Int).Mod(v, pr.p)
	return Element{v: r, p: pr}
}

// FromUint64 is a convenience constructor for small constants.
func (pr *Prime) FromUint64(v uint64) Element {
	return pr.New(new(big.Int).SetUint64(v))
}

// FromBytes interprets b as a big-endian unsigned integer and reduces it
// modulo p, the same convention OPV tuple components use.
func (pr *Prime) FromBytes(b []byte) Element {
	return pr.New(new(big.Int).SetBytes(b))
}

// Zero is the additive identity under p.
func (pr *Prime) Zero() Element { return Element{v: big.NewInt(0), p: pr} }

// One is the multiplicative identity under p.
func (pr *Prime) One() Element { return Element{v: big.NewInt(1), p: pr} }

func (e Element) checkSamePrime(o Element) {
	if e.p != o.p {
		panic("field: element arithmetic across mismatched primes")
	}
}

// Add returns (e + o) mod p.
func (e Element) Add(o Element) Element {
	e.checkSamePrime(o)
	return e.p.New(new(big.Int).Add(e.v, o.v))
}

// Sub returns (e - o) mod p.
func (e Element) Sub(o Element) Element {
	e.checkSamePrime(o)
	return e.p.New(new(big.Int).Sub(e.v, o.v))
}

// Mul returns (e * o) mod p.
func (e Element) Mul(o Element) Element {
	e.checkSamePrime(o)
	return e.p.New(new(big.Int).Mul(e.v, o.v))
}

// Pow returns e^exp mod p for a non-negative exponent.
func (e Element) Pow(exp *big.Int) Element {
	return e.p.New(new(big.Int).Exp(e.v, exp, e.p.p))
}

// PowUint64 is a convenience wrapper around Pow for small exponents.
func (e Element) PowUint64(exp uint64) Element {
	return e.Pow(new(big.Int).SetUint64(exp))
}

// Inverse returns the modular multiplicative inverse of e, or false if e is
// zero (no inverse exists). Only the compiler inverts; the engine never
// does at scoring time.
func (e Element) Inverse() (Element, bool) {
	if e.v.Sign() == 0 {
		return Element{}, false
	}
	inv := new(big.Int).ModInverse(e.v, e.p.p)
	if inv == nil {
		return Element{}, false
	}
	return Element{v: inv, p: e.p}, true
}

// Equal reports whether e and o denote the same residue under the same prime.
func (e Element) Equal(o Element) bool {
	if e.p != o.p {
		return false
	}
	return e.v.Cmp(o.v) == 0
}

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool { return e.v.Sign() == 0 }

// Big returns a copy of the element's value as a big.Int.
func (e Element) Big() *big.Int { return new(big.Int).Set(e.v) }

// Bytes serializes e into a canonical big-endian buffer of exactly
// p.ByteLen() bytes, left-padded with zeros, so every stored coefficient
// round-trips exactly.
func (e Element) Bytes() []byte {
	buf := make([]byte, e.p.byteLen)
	b := e.v.Bytes()
	if len(b) > len(buf) {
		panic("field: element exceeds canonical byte length")
	}
	copy(buf[len(buf)-len(b):], b)
	return buf
}

// String renders the element's decimal value, for debugging only.
func (e Element) String() string {
	if e.v == nil {
		return "<nil field.Element>"
	}
	return e.v.String()
}

// FromCanonicalBytes is the inverse of Bytes: it requires b be exactly
// p.ByteLen() bytes and the resulting value be strictly less than p,
// returning an error otherwise.
func (pr *Prime) FromCanonicalBytes(b []byte) (Element, error) {
	if len(b) != pr.byteLen {
		return Element{}, fmt.Errorf("field: expected %d canonical bytes, got %d", pr.byteLen, len(b))
	}
	v := new(big.Int).SetBytes(b)
	if v.Cmp(pr.p) >= 0 {
		return Element{}, fmt.Errorf("field: value %s out of range [0, p)", v.String())
	}
	return Element{v: v, p: pr}, nil
}
