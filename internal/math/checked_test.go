package math_test

import (
	stdmath "math"
	"testing"

	"RugShield/internal/math"
)

func TestCheckedAdd(t *testing.T) {
	got, err := math.CheckedAdd(40, 2)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}

	if _, err := math.CheckedAdd(stdmath.MaxUint64, 1); err != math.ErrOverflow {
		t.Errorf("overflow: got %v, want ErrOverflow", err)
	}
	if _, err := math.CheckedAdd(stdmath.MaxUint64, 0); err != nil {
		t.Errorf("max+0 should not overflow: %v", err)
	}
}

func TestCheckedSub(t *testing.T) {
	got, err := math.CheckedSub(42, 2)
	if err != nil {
		t.Fatalf("sub failed: %v", err)
	}
	if got != 40 {
		t.Errorf("got %d, want 40", got)
	}

	if _, err := math.CheckedSub(1, 2); err != math.ErrUnderflow {
		t.Errorf("underflow: got %v, want ErrUnderflow", err)
	}
	if got, err := math.CheckedSub(5, 5); err != nil || got != 0 {
		t.Errorf("exact sub: got %d, %v", got, err)
	}
}

func TestCheckedMul(t *testing.T) {
	got, err := math.CheckedMul(6, 7)
	if err != nil {
		t.Fatalf("mul failed: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}

	if got, err := math.CheckedMul(0, stdmath.MaxUint64); err != nil || got != 0 {
		t.Errorf("zero mul: got %d, %v", got, err)
	}
	if _, err := math.CheckedMul(stdmath.MaxUint64, 2); err != math.ErrOverflow {
		t.Errorf("overflow: got %v, want ErrOverflow", err)
	}
}

func TestMulDiv(t *testing.T) {
	// Intermediate product exceeds uint64, quotient fits.
	got, err := math.MulDiv(stdmath.MaxUint64, 3, 6)
	if err != nil {
		t.Fatalf("muldiv failed: %v", err)
	}
	want := uint64(stdmath.MaxUint64 / 2)
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}

	// Floor division.
	got, err = math.MulDiv(7, 1, 2)
	if err != nil {
		t.Fatalf("muldiv failed: %v", err)
	}
	if got != 3 {
		t.Errorf("floor: got %d, want 3", got)
	}

	if _, err := math.MulDiv(1, 1, 0); err != math.ErrDivByZero {
		t.Errorf("div by zero: got %v, want ErrDivByZero", err)
	}
	if _, err := math.MulDiv(stdmath.MaxUint64, 2, 1); err != math.ErrOverflow {
		t.Errorf("quotient overflow: got %v, want ErrOverflow", err)
	}
}

func TestPercentOf(t *testing.T) {
	got, err := math.PercentOf(1003, 40)
	if err != nil {
		t.Fatalf("percent failed: %v", err)
	}
	if got != 401 {
		t.Errorf("got %d, want 401", got)
	}

	if got, _ := math.PercentOf(0, 100); got != 0 {
		t.Errorf("zero amount: got %d, want 0", got)
	}
}

func TestPow10(t *testing.T) {
	cases := map[uint8]uint64{0: 1, 1: 10, 6: 1_000_000, 9: 1_000_000_000}
	for n, want := range cases {
		if got := math.Pow10(n); got != want {
			t.Errorf("pow10(%d): got %d, want %d", n, got, want)
		}
	}
}
