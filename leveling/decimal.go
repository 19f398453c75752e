package leveling

import (
	"math/big"
	"strconv"
)

// ratOf reads a float through its shortest decimal form, so 1.15 becomes
// exactly 23/20 instead of the nearest binary fraction.
func ratOf(f float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(f)
	}
	return r
}

func floorRat(r *big.Rat) int {
	q, m := new(big.Int), new(big.Int)
	q.DivMod(r.Num(), r.Denom(), m)
	return int(q.Int64())
}

// floorProduct returns floor(base * factors...) computed on exact decimals.
func floorProduct(base float64, factors ...float64) int {
	r := ratOf(base)
	for _, f := range factors {
		r.Mul(r, ratOf(f))
	}
	return floorRat(r)
}

// floorPow returns floor(base * mult^exp) on exact decimals.
func floorPow(base, mult float64, exp int) int {
	r := ratOf(base)
	m := ratOf(mult)
	for i := 0; i < exp; i++ {
		r.Mul(r, m)
	}
	return floorRat(r)
}
