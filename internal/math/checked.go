package math

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// ErrOverflow and ErrUnderflow abort the enclosing operation. The engine
// never truncates silently: any arithmetic that would wrap fails instead.
var (
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = errors.New("arithmetic underflow")
	ErrDivByZero = errors.New("division by zero")
)

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// CheckedSub returns a-b or ErrUnderflow.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// Int128 pool for wide intermediate products
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetUint64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDiv computes a*b/c with a 128-bit intermediate product and floor
// division. Returns ErrOverflow if the quotient does not fit in uint64.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivByZero
	}

	product := getInt128()
	divisor := getInt128()
	defer putInt128(product)
	defer putInt128(divisor)

	product.SetUint64(a)
	product.Mul(product, divisor.SetUint64(b))
	product.Quo(product, divisor.SetUint64(c))

	if !product.IsUint64() {
		return 0, ErrOverflow
	}
	return product.Uint64(), nil
}

// PercentOf returns amount*pct/100 with floor division. Used for pool
// splits: each share floors independently, so up to 3 units of a split
// amount are lost to rounding across four shares.
func PercentOf(amount uint64, pct uint8) (uint64, error) {
	return MulDiv(amount, uint64(pct), 100)
}

// Pow10 returns 10^n for token-decimal scaling.
func Pow10(n uint8) uint64 {
	result := uint64(1)
	for i := uint8(0); i < n; i++ {
		result *= 10
	}
	return result
}
