// Package bfloat16 implements the 16-bit brain floating point type used by
// accelerator storages: 1 sign bit, 8 exponent bits, 7 mantissa bits. It is
// the top half of an IEEE float32, so conversions are bit truncations.
package bfloat16

import "math"

// BFloat16 holds the raw bits of a bfloat16 value.
type BFloat16 uint16

// FromFloat32 converts by truncating the mantissa. No rounding is applied.
func FromFloat32(f float32) BFloat16 {
	return BFloat16(math.Float32bits(f) >> 16)
}

// FromFloat64 converts through float32.
func FromFloat64(f float64) BFloat16 {
	return FromFloat32(float32(f))
}

// Float32 expands the value back to float32. The conversion is exact.
func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// Float64 expands the value to float64. The conversion is exact.
func (b BFloat16) Float64() float64 {
	return float64(b.Float32())
}

// Bits returns the raw representation.
func (b BFloat16) Bits() uint16 { return uint16(b) }

// FromBits builds a value from its raw representation.
func FromBits(bits uint16) BFloat16 { return BFloat16(bits) }

// IsNaN reports whether b is an IEEE "not-a-number" value.
func (b BFloat16) IsNaN() bool {
	return b&0x7F80 == 0x7F80 && b&0x007F != 0
}

// Extremes of the format.
var (
	// MaxValue is the largest finite bfloat16 (~3.39e38).
	MaxValue = FromBits(0x7F7F)
	// SmallestNonZeroValue is the smallest positive subnormal (~9.18e-41).
	SmallestNonZeroValue = FromBits(0x0001)
	// Inf is positive infinity.
	Inf = FromBits(0x7F80)
	// NegInf is negative infinity.
	NegInf = FromBits(0xFF80)
)
