package expr_test

import (
	"math/big"
	"testing"

	"github.com/ajiang-xyz/zekaengine/pkg/expr"
	"github.com/ajiang-xyz/zekaengine/pkg/field"
)

func truthFor(ids ...uint16) func(uint16) bool {
	set := map[uint16]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(id uint16) bool { return set[id] }
}

func TestParseAndEval(t *testing.T) {
	cases := []struct {
		src  string
		true []uint16
		want bool
	}{
		{"1", []uint16{1}, true},
		{"1", nil, false},
		{"1&2", []uint16{1, 2}, true},
		{"1&2", []uint16{1}, false},
		{"1|2", []uint16{2}, true},
		{"1|2", nil, false},
		{"1&2|3", []uint16{3}, true},      // & binds tighter
		{"1&(2|3)", []uint16{1, 3}, true},
		{"1&(2|3)", []uint16{3}, false},
		{"(1&2)|(3&4)", []uint16{3, 4}, true},
	}
	for _, c := range cases {
		e, err := expr.Parse(c.src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.src, err)
		}
		if got := e.Eval(truthFor(c.true...)); got != c.want {
			t.Errorf("%q with %v: got %v, want %v", c.src, c.true, got, c.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"", "&", "1&", "(1", "1)", "1#2", "99999"} {
		if _, err := expr.Parse(src); err == nil {
			t.Errorf("Parse(%q) should fail", src)
		}
	}
}

func TestLeavesDistinctInOrder(t *testing.T) {
	e, err := expr.Parse("3&(1|3)&2")
	if err != nil {
		t.Fatal(err)
	}
	got := e.Leaves()
	want := []uint16{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("leaves: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("leaves: got %v, want %v", got, want)
		}
	}
}

func TestSlotsTruthiness(t *testing.T) {
	p := field.NewPrime(big.NewInt(97))
	s := expr.NewSlots(p)

	if s.Truthy(5) {
		t.Error("unset slot must be falsy")
	}
	s.Set(5, p.FromUint64(12))
	if !s.Truthy(5) {
		t.Error("nonzero slot must be truthy")
	}
	s.Clear(5)
	if s.Truthy(5) {
		t.Error("cleared slot must be falsy")
	}
}

func TestTrueLeafProduct(t *testing.T) {
	p := field.NewPrime(big.NewInt(101))
	s := expr.NewSlots(p)
	s.Set(1, p.FromUint64(3))
	s.Set(2, p.FromUint64(7))

	e, err := expr.Parse("1&2")
	if err != nil {
		t.Fatal(err)
	}
	prod, ok := e.TrueLeafProduct(s)
	if !ok {
		t.Fatal("expression should be true")
	}
	if prod.Big().Int64() != 21 {
		t.Errorf("product: got %s, want 21", prod)
	}
}

func TestTrueLeafProductIncludesExtraTrueLeaves(t *testing.T) {
	// With `or`, every currently-true leaf participates in the product,
	// not only the ones needed for satisfaction.
	p := field.NewPrime(big.NewInt(101))
	s := expr.NewSlots(p)
	s.Set(1, p.FromUint64(3))
	s.Set(2, p.FromUint64(5))

	e, err := expr.Parse("1|2")
	if err != nil {
		t.Fatal(err)
	}
	prod, ok := e.TrueLeafProduct(s)
	if !ok {
		t.Fatal("expression should be true")
	}
	if prod.Big().Int64() != 15 {
		t.Errorf("product: got %s, want 15", prod)
	}
}

func TestTrueLeafProductFalseExpression(t *testing.T) {
	p := field.NewPrime(big.NewInt(101))
	s := expr.NewSlots(p)
	e, err := expr.Parse("1&2")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.TrueLeafProduct(s); ok {
		t.Error("false expression must yield no product")
	}
}

func TestProductOver(t *testing.T) {
	p := field.NewPrime(big.NewInt(101))
	e, err := expr.Parse("1&2|3")
	if err != nil {
		t.Fatal(err)
	}
	vals := map[uint16]field.Element{
		1: p.FromUint64(2),
		2: p.FromUint64(3),
		3: p.FromUint64(5),
	}
	prod, ok := e.ProductOver(p, vals, map[uint16]bool{3: true})
	if !ok {
		t.Fatal("subset {3} satisfies the expression")
	}
	if prod.Big().Int64() != 5 {
		t.Errorf("product: got %s, want 5", prod)
	}
	if _, ok := e.ProductOver(p, vals, map[uint16]bool{1: true}); ok {
		t.Error("subset {1} does not satisfy the expression")
	}
}
