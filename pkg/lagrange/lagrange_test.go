package lagrange_test

import (
	"math/big"
	"testing"

	"github.com/ajiang-xyz/zekaengine/pkg/field"
	"github.com/ajiang-xyz/zekaengine/pkg/lagrange"
)

func elems(p *field.Prime, vals ...string) []field.Element {
	out := make([]field.Element, len(vals))
	for i, v := range vals {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			panic("bad decimal literal in test: " + v)
		}
		out[i] = p.New(n)
	}
	return out
}

func TestInterpolateKnownVectors(t *testing.T) {
	p := field.DefaultPrime()

	xs := elems(p, "16", "32", "64")
	ys := elems(p, "7", "8", "9")

	poly, err := lagrange.Interpolate(xs, ys, p)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	want := elems(p,
		"32996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996633002",
		"52588383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838",
		"14758259680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680",
	)
	if len(poly) != len(want) {
		t.Fatalf("coefficient count: got %d, want %d", len(poly), len(want))
	}
	for i := range want {
		if !poly[i].Equal(want[i]) {
			t.Errorf("coefficient %d: got %s, want %s", i, poly[i], want[i])
		}
	}
}

func TestEvalKnownVectors(t *testing.T) {
	p := field.DefaultPrime()
	poly := lagrange.Polynomial(elems(p,
		"32996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996632996633002",
		"52588383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838383838",
		"14758259680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680134680",
	))

	cases := []struct{ x, want string }{
		{"16", "7"},
		{"32", "8"},
		{"64", "9"},
		{"69", "79204808501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683501683510"},
		{"128", "7"},
		{"255", "28163141835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016835016822"},
		{"256", "98989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898989898976"},
	}
	for _, c := range cases {
		x := elems(p, c.x)[0]
		want := elems(p, c.want)[0]
		if got := poly.Eval(x, p); !got.Equal(want) {
			t.Errorf("Eval(%s): got %s, want %s", c.x, got, want)
		}
	}
}

func TestInterpolateRoundTrip(t *testing.T) {
	p := field.NewPrime(big.NewInt(257))
	xs := elems(p, "1", "5", "9", "200")
	ys := elems(p, "100", "0", "42", "13")

	poly, err := lagrange.Interpolate(xs, ys, p)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	for i := range xs {
		if got := poly.Eval(xs[i], p); !got.Equal(ys[i]) {
			t.Errorf("Eval(x_%d): got %s, want %s", i, got, ys[i])
		}
	}
}

func TestInterpolateRejectsDuplicateXs(t *testing.T) {
	p := field.NewPrime(big.NewInt(257))
	xs := elems(p, "3", "3")
	ys := elems(p, "1", "2")
	if _, err := lagrange.Interpolate(xs, ys, p); err == nil {
		t.Error("expected error for duplicate x values")
	}
}

func TestInterpolateRejectsLengthMismatch(t *testing.T) {
	p := field.NewPrime(big.NewInt(257))
	if _, err := lagrange.Interpolate(elems(p, "1"), nil, p); err == nil {
		t.Error("expected error for mismatched point lists")
	}
}

func TestCoefficientsInRange(t *testing.T) {
	p := field.NewPrime(big.NewInt(101))
	xs := elems(p, "7", "11", "13", "17", "19")
	ys := elems(p, "95", "2", "88", "100", "0")
	poly, err := lagrange.Interpolate(xs, ys, p)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	for i, c := range poly {
		if c.Big().Sign() < 0 || c.Big().Cmp(p.Int()) >= 0 {
			t.Errorf("coefficient %d out of [0, p): %s", i, c)
		}
	}
}
