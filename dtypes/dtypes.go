// Package dtypes declares the element types storages and tensor
// implementations carry around, with byte sizes and numeric limits.
package dtypes

import (
	"math"
	"strings"

	"github.com/chewxy/math32"
	"github.com/x448/float16"

	"github.com/orteaf/go-orteaf/dtypes/bfloat16"
)

// DType is the element type of a storage or tensor implementation.
type DType int32

//go:generate go tool enumer -type=DType dtypes.go

const (
	InvalidDType DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	Float32
	Float64
	BFloat16
	Complex64
	Complex128
)

// Invalid is an alias for InvalidDType, representing a not-set dtype.
const Invalid = InvalidDType

// MapOfNames maps the lower-cased dtype names to their values.
var MapOfNames = func() map[string]DType {
	m := make(map[string]DType, len(DTypeValues()))
	for _, d := range DTypeValues() {
		m[strings.ToLower(d.String())] = d
	}
	// Accepted aliases.
	m["invalid"] = InvalidDType
	m["pred"] = Bool
	return m
}()

// Size returns the number of bytes one element occupies, or 0 for
// InvalidDType.
func (dtype DType) Size() int {
	switch dtype {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16, BFloat16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	}
	return 0
}

// IsFloat reports whether the dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64 || dtype == BFloat16
}

// IsComplex reports whether the dtype is a complex number type.
func (dtype DType) IsComplex() bool {
	return dtype == Complex64 || dtype == Complex128
}

// IsInt reports whether the dtype is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	switch dtype {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsSupported reports whether the dtype is one storages can hold.
func (dtype DType) IsSupported() bool {
	return dtype != InvalidDType && dtype.IsADType()
}

// SmallestNonZeroValueForDType returns the smallest positive representable
// value for float dtypes, whose concrete Go type matches the dtype (e.g.
// float16.Float16 for Float16), and int(1) for every integer dtype. Returns
// nil for the other dtypes (Bool, complex types, InvalidDType).
func (dtype DType) SmallestNonZeroValueForDType() any {
	switch dtype {
	case Float16:
		return float16.Float16(0x0001)
	case BFloat16:
		return bfloat16.SmallestNonZeroValue
	case Float32:
		return float32(math32.SmallestNonzeroFloat32)
	case Float64:
		return math.SmallestNonzeroFloat64
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return int(1)
	}
	return nil
}

// HighestValueForDType returns the largest finite representable value for
// the dtype, or nil for complex dtypes and InvalidDType.
func (dtype DType) HighestValueForDType() any {
	switch dtype {
	case Bool:
		return true
	case Float16:
		return float16.Fromfloat32(65504)
	case BFloat16:
		return bfloat16.MaxValue
	case Float32:
		return float32(math32.MaxFloat32)
	case Float64:
		return math.MaxFloat64
	case Int8:
		return int8(127)
	case Int16:
		return int16(32767)
	case Int32:
		return int32(2147483647)
	case Int64:
		return int64(9223372036854775807)
	case Uint8:
		return uint8(255)
	case Uint16:
		return uint16(65535)
	case Uint32:
		return uint32(4294967295)
	case Uint64:
		return uint64(18446744073709551615)
	}
	return nil
}

// LowestValueForDType returns the most negative finite representable value
// for the dtype (0 for unsigned ints), or nil for complex dtypes and
// InvalidDType.
func (dtype DType) LowestValueForDType() any {
	switch dtype {
	case Bool:
		return false
	case Float16:
		return float16.Fromfloat32(-65504)
	case BFloat16:
		return bfloat16.FromFloat32(bfloat16.MaxValue.Float32() * -1)
	case Float32:
		return float32(-math32.MaxFloat32)
	case Float64:
		return -math.MaxFloat64
	case Int8:
		return int8(-128)
	case Int16:
		return int16(-32768)
	case Int32:
		return int32(-2147483648)
	case Int64:
		return int64(-9223372036854775808)
	case Uint8:
		return uint8(0)
	case Uint16:
		return uint16(0)
	case Uint32:
		return uint32(0)
	case Uint64:
		return uint64(0)
	}
	return nil
}
