package field

import "math/big"

// CantorPair maps the ordered pair (a, b) to a single field element using the
// Cantor pairing function evaluated mod p:
//
//	pair(a, b) = (a + b)(a + b + 1)/2 + b  (mod p)
//
// The automaton walkers use this to fold (state, input) pairs into single
// lookup keys. Division by two is multiplication by the precomputed inverse
// of 2, which always exists for an odd prime.
func (pr *Prime) CantorPair(a, b Element) Element {
	a.checkSamePrime(b)
	sum := new(big.Int).Add(a.v, b.v)
	sumPlus := new(big.Int).Add(sum, big.NewInt(1))
	prod := new(big.Int).Mul(sum, sumPlus)
	prod.Mul(prod, pr.halfInv())
	prod.Add(prod, b.v)
	return pr.New(prod)
}

func (pr *Prime) halfInv() *big.Int {
	if pr.inv2 == nil {
		pr.inv2 = new(big.Int).ModInverse(big.NewInt(2), pr.p)
	}
	return pr.inv2
}
