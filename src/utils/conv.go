package utils

import (
	"math/big"
	"strconv"
	"strings"
)

// FloatToDecN converts a floating point number to a decimal-n,
// i.e., to num*10^decN. It works on the shortest decimal form of num, so
// 0.29 gives exactly 29*10^(decN-2). Digits beyond decN are cut.
func FloatToDecN(num float64, decN uint8) *big.Int {
	s := strconv.FormatFloat(num, 'f', -1, 64)
	neg := strings.HasPrefix(s, "-")
	whole, frac, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if len(frac) > int(decN) {
		frac = frac[:decN]
	} else {
		frac += strings.Repeat("0", int(decN)-len(frac))
	}
	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return new(big.Int)
	}
	if neg {
		n.Neg(n)
	}
	return n
}

// DecNToFloat converts a decimal N number to
// the corresponding float number
func DecNToFloat(num *big.Int, decN uint8) float64 {
	divisor := new(big.Float).SetInt(pow10(decN))
	numf := new(big.Float).SetInt(num)
	smallFloat := new(big.Float).Quo(numf, divisor)
	f, _ := smallFloat.Float64()
	return f
}

// DecNTimesFloat multiplies a decimal-N number by a float, keeping
// 'precision' decimals of the float. Rounds down.
func DecNTimesFloat(num *big.Int, f float64, precision uint8) *big.Int {
	res := new(big.Int).Mul(num, FloatToDecN(f, precision))
	return res.Div(res, pow10(precision))
}

// DecNFromString parses a base-10 integer string (numeric db column),
// returns zero on garbage
func DecNFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
