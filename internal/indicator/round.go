package indicator

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// toFixed rounds v to decimals fractional digits with fixed-point formatting
// semantics: the nearest decimal to the exact binary value, exact ties going
// away from zero. The result feeds later arithmetic, so RSI output depends on
// where this is applied.
func toFixed(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	a := math.Abs(v)

	var r float64
	if isExactTie(a, decimals) {
		r = roundTieUp(a, decimals)
	} else {
		r, _ = strconv.ParseFloat(strconv.FormatFloat(a, 'f', decimals, 64), 64)
	}
	return math.Copysign(r, v)
}

// isExactTie reports whether a sits exactly halfway between two decimals
// with the given number of fractional digits. strconv rounds those to even.
func isExactTie(a float64, decimals int) bool {
	s := strconv.FormatFloat(a, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 || len(s)-dot-1 != decimals+1 || s[len(s)-1] != '5' {
		return false
	}
	r := new(big.Rat).SetFloat64(a)
	r.Mul(r, new(big.Rat).SetInt(pow10(decimals)))
	return r.Denom().Cmp(big.NewInt(2)) == 0
}

func roundTieUp(a float64, decimals int) float64 {
	scale := pow10(decimals)
	r := new(big.Rat).SetFloat64(a)
	r.Mul(r, new(big.Rat).SetInt(scale))
	n := new(big.Int).Quo(r.Num(), r.Denom())
	n.Add(n, big.NewInt(1))
	out, _ := new(big.Rat).SetFrac(n, scale).Float64()
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
