// Package commitment implements the Pedersen-style product commitment the
// scoring fabric keys its Lagrange lookups with. A commitment binds an
// ordered OPV tuple to a single field element by raising a per-position
// generator to each tuple component and multiplying the results mod p.
//
// Generators are derived from a seeded deterministic PRNG so that the
// compiler and the engine, given the same artifact seed, arrive at the same
// sequence. Blinding factors are intentionally not used anywhere in this
// package.
package commitment

import (
	"encoding/binary"
	"math/big"
	"math/rand"
	"sync"

	"github.com/ajiang-xyz/zekaengine/pkg/field"
	"github.com/ajiang-xyz/zekaengine/pkg/opv"
)

// DefaultSeed is the generator-PRNG seed used when the artifact does not
// override it.
const DefaultSeed int64 = 1835364215

// Scheme produces commitments under a fixed prime and generator seed. A
// Scheme is safe for concurrent use; the generator sequence is extended
// lazily under a mutex.
type Scheme struct {
	p    *field.Prime
	seed int64

	mu   sync.Mutex
	rng  *rand.Rand
	gens []field.Element
}

// NewScheme builds a Scheme over p whose generator sequence is determined
// entirely by seed.
func NewScheme(p *field.Prime, seed int64) *Scheme {
	return &Scheme{
		p:    p,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Generator returns g_i, extending the derived sequence as needed. The i-th
// generator is the i-th accepted candidate emitted by the seeded PRNG, so the
// sequence is identical across all parties regardless of how many generators
// each has previously requested.
func (s *Scheme) Generator(i int) field.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.gens) <= i {
		s.gens = append(s.gens, s.nextGeneratorLocked())
	}
	return s.gens[i]
}

// nextGeneratorLocked draws candidate field elements from the PRNG and
// rejects any that are 0, 1, or of multiplicative order two (the only
// elements of publicly known small order for a safe choice of p).
func (s *Scheme) nextGeneratorLocked() field.Element {
	pInt := s.p.Int()
	pMinusOne := new(big.Int).Sub(pInt, big.NewInt(1))
	for {
		cand := s.drawBelowPLocked()
		if cand.Sign() == 0 || cand.Cmp(big.NewInt(1)) == 0 {
			continue
		}
		if cand.Cmp(pMinusOne) == 0 {
			continue
		}
		return s.p.New(cand)
	}
}

// drawBelowPLocked assembles a candidate of exactly the prime's bit width
// from successive PRNG words, masking the top byte down to the prime's bit
// length and rejecting values >= p so candidates stay uniform over [0, p).
func (s *Scheme) drawBelowPLocked() *big.Int {
	byteLen := s.p.ByteLen()
	topBits := uint(s.p.Int().BitLen() % 8)
	buf := make([]byte, (byteLen+7)/8*8)
	for {
		for i := 0; i < len(buf); i += 8 {
			binary.BigEndian.PutUint64(buf[i:], s.rng.Uint64())
		}
		b := buf[:byteLen]
		if topBits != 0 {
			b[0] &= byte(1<<topBits) - 1
		}
		v := new(big.Int).SetBytes(b)
		if v.Cmp(s.p.Int()) < 0 {
			return v
		}
	}
}

// Commit computes the product over i of g_i^(c_i) mod p, where c_i are the
// big-endian integer components of the tuple (operation, path segments,
// optional value).
func (s *Scheme) Commit(o opv.OPV) field.Element {
	return s.commitComponents(o.Components(), 0)
}

// CommitWithOffset is Commit with the hiding delta h added to every tuple
// component before exponentiation. This derives the key for the follow-up
// L2 lookup after a check passes.
func (s *Scheme) CommitWithOffset(o opv.OPV, h uint16) field.Element {
	return s.commitComponents(o.Components(), uint64(h))
}

// CommitScalar commits a bare one-component tuple, g_0^v mod p. Expression
// identifiers are looked up under this form.
func (s *Scheme) CommitScalar(v uint64) field.Element {
	return s.commitComponents([]*big.Int{new(big.Int).SetUint64(v)}, 0)
}

func (s *Scheme) commitComponents(comps []*big.Int, offset uint64) field.Element {
	acc := s.p.One()
	off := new(big.Int).SetUint64(offset)
	for i, c := range comps {
		exp := c
		if offset != 0 {
			exp = new(big.Int).Add(c, off)
		}
		acc = acc.Mul(s.Generator(i).Pow(exp))
	}
	return acc
}

// Prime exposes the scheme's modulus context.
func (s *Scheme) Prime() *field.Prime { return s.p }

// Seed exposes the generator seed the scheme was built with.
func (s *Scheme) Seed() int64 { return s.seed }
