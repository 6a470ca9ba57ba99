package field_test

import (
	"math/big"
	"testing"

	"github.com/ajiang-xyz/zekaengine/pkg/field"
)

func TestArithmeticBasics(t *testing.T) {
	p := field.NewPrime(big.NewInt(97))

	a := p.FromUint64(40)
	b := p.FromUint64(90)

	if got := a.Add(b); got.Big().Int64() != 33 {
		t.Errorf("Add: got %s, want 33", got)
	}
	if got := a.Sub(b); got.Big().Int64() != 47 {
		t.Errorf("Sub: got %s, want 47", got)
	}
	if got := a.Mul(b); got.Big().Int64() != (40*90)%97 {
		t.Errorf("Mul: got %s, want %d", got, (40*90)%97)
	}
}

func TestPowAndInverse(t *testing.T) {
	p := field.NewPrime(big.NewInt(97))
	a := p.FromUint64(5)

	got := a.PowUint64(3)
	if got.Big().Int64() != 125%97 {
		t.Errorf("Pow: got %s, want %d", got, 125%97)
	}

	inv, ok := a.Inverse()
	if !ok {
		t.Fatal("Inverse: expected an inverse for nonzero element")
	}
	if product := a.Mul(inv); !product.Equal(p.One()) {
		t.Errorf("a * a^-1 = %s, want 1", product)
	}

	if _, ok := p.Zero().Inverse(); ok {
		t.Error("Inverse: zero should have no inverse")
	}
}

func TestCanonicalBytesRoundTrip(t *testing.T) {
	p := field.DefaultPrime()
	a := p.FromUint64(123456789)

	b := a.Bytes()
	if len(b) != p.ByteLen() {
		t.Fatalf("Bytes: got length %d, want %d", len(b), p.ByteLen())
	}

	back, err := p.FromCanonicalBytes(b)
	if err != nil {
		t.Fatalf("FromCanonicalBytes: %v", err)
	}
	if !back.Equal(a) {
		t.Errorf("round-trip mismatch: got %s, want %s", back, a)
	}
}

func TestFromCanonicalBytesRejectsOutOfRange(t *testing.T) {
	p := field.NewPrime(big.NewInt(97))
	buf := []byte{200} // >= 97, same byte length
	if _, err := p.FromCanonicalBytes(buf); err == nil {
		t.Error("expected error for out-of-range canonical bytes")
	}
}

func TestEqualAcrossDifferentPrimesIsFalse(t *testing.T) {
	p1 := field.NewPrime(big.NewInt(97))
	p2 := field.NewPrime(big.NewInt(101))

	a := p1.FromUint64(5)
	b := p2.FromUint64(5)

	if a.Equal(b) {
		t.Error("elements under different primes must never compare equal")
	}
}
