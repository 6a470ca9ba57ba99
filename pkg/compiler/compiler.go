// Package compiler turns a validated plaintext rubric into the opaque
// artifact the engine scores against. All randomness (hiding deltas, slot
// values, automaton state elements, decoys) flows from a single seeded
// source, so compiling the same rubric with the same seed is reproducible
// bit for bit.
package compiler

import (
	"fmt"
	"math/rand"

	"github.com/ajiang-xyz/zekaengine/pkg/artifact"
	"github.com/ajiang-xyz/zekaengine/pkg/commitment"
	"github.com/ajiang-xyz/zekaengine/pkg/descriptor"
	"github.com/ajiang-xyz/zekaengine/pkg/field"
	"github.com/ajiang-xyz/zekaengine/pkg/lagrange"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/rubric"
)

// Options tune a compilation. The zero value is usable: default prime,
// seed resolution from the rubric, and a small decoy count.
type Options struct {
	// Prime overrides the default modulus.
	Prime *field.Prime
	// Seed overrides the generator seed when the rubric declares none.
	// Zero means fall back to commitment.DefaultSeed.
	Seed int64
	// Decoys is the number of chaff points mixed into each polynomial so
	// the coefficient count does not leak the number of live checks.
	// Zero means DefaultDecoys.
	Decoys int
}

// DefaultDecoys is the per-polynomial chaff count.
const DefaultDecoys = 8

// Limits that keep a hostile or overgrown rubric from exploding the
// artifact.
const (
	maxLeavesPerCheck = 8
	maxChecks         = 1<<9 - 1  // expression ids are 9 bits
	maxVariables      = 1<<14 - 1 // variable ids are 14 bits
	maxL3Points       = 20000
)

// Compile builds the artifact for rb.
func Compile(rb *rubric.Rubric, opts Options) (*artifact.Artifact, error) {
	p := opts.Prime
	if p == nil {
		p = field.DefaultPrime()
	}
	if p.ByteLen() > descriptor.MaxElementWidth || p.ByteLen() < descriptor.HeaderLen+3 {
		return nil, fmt.Errorf("compiler: prime width %d outside supported range", p.ByteLen())
	}
	if len(rb.Checks) > maxChecks {
		return nil, &rubric.CheckError{Msg: fmt.Sprintf("rubric has %d checks; at most %d are supported", len(rb.Checks), maxChecks)}
	}

	seed := opts.Seed
	if rb.SeedSet {
		seed = rb.Seed
	}
	if seed == 0 {
		seed = commitment.DefaultSeed
	}

	b := &builder{
		p:      p,
		scheme: commitment.NewScheme(p, seed),
		// Chaff and hiding randomness comes from a stream distinct from
		// the generator stream but still derived from the artifact seed.
		rng:         rand.New(rand.NewSource(seed ^ 0x5EED0DDC0FFEE)),
		l1:          newPointSet(),
		l2:          newPointSet(),
		l3:          newPointSet(),
		aad:         []byte(rb.AEAD),
		catSeen:     map[models.Category]bool{},
		chainsByKey: map[string]*l1Chain{},
		redirected:  map[string]bool{},
		exprTrie:    map[string]field.Element{},
	}

	art := &artifact.Artifact{
		Title: rb.Title,
		Prime: p,
		Seed:  seed,
		AAD:   []byte(rb.AEAD),
	}

	for i, check := range rb.Checks {
		if err := b.addCheck(uint16(i+1), check); err != nil {
			return nil, err
		}
	}
	if err := b.finalizeChains(); err != nil {
		return nil, err
	}

	decoys := opts.Decoys
	if decoys == 0 {
		decoys = DefaultDecoys
	}
	b.addDecoys(decoys)

	var err error
	if art.L1, err = b.l1.interpolate(p); err != nil {
		return nil, fmt.Errorf("compiler: L1: %w", err)
	}
	if art.L2, err = b.l2.interpolate(p); err != nil {
		return nil, fmt.Errorf("compiler: L2: %w", err)
	}
	if art.L3, err = b.l3.interpolate(p); err != nil {
		return nil, fmt.Errorf("compiler: L3: %w", err)
	}
	art.Records = b.records
	art.VarNodes = b.varNodes
	art.Blobs = b.blobs
	art.Categories = b.categories
	return art, nil
}

// builder accumulates polynomial points and side tables. All iteration is
// over slices in declaration order; maps are used only for duplicate
// detection, never for ordering.
type builder struct {
	p      *field.Prime
	scheme *commitment.Scheme
	rng    *rand.Rand

	l1, l2, l3 *pointSet

	records    []descriptor.Record
	varNodes   []descriptor.VarNode
	blobs      [][]byte
	categories []models.Category
	aad        []byte

	catSeen     map[models.Category]bool
	chains      []*l1Chain
	chainsByKey map[string]*l1Chain
	redirected  map[string]bool

	nextVar  uint16
	nextL3   uint32 // next free small-int automaton state id
	exprTrie map[string]field.Element
}

// pointSet is an ordered (x, y) collection with duplicate-x detection.
type pointSet struct {
	xs, ys []field.Element
	seen   map[string]int
}

func newPointSet() *pointSet {
	return &pointSet{seen: map[string]int{}}
}

// add inserts a point; adding the same x with a different y is a fatal
// internal collision.
func (s *pointSet) add(x, y field.Element) error {
	key := string(x.Bytes())
	if i, ok := s.seen[key]; ok {
		if s.ys[i].Equal(y) {
			return nil
		}
		return fmt.Errorf("lookup key collision")
	}
	s.seen[key] = len(s.xs)
	s.xs = append(s.xs, x)
	s.ys = append(s.ys, y)
	return nil
}

func (s *pointSet) has(x field.Element) bool {
	_, ok := s.seen[string(x.Bytes())]
	return ok
}

func (s *pointSet) interpolate(p *field.Prime) (lagrange.Polynomial, error) {
	return lagrange.Interpolate(s.xs, s.ys, p)
}
