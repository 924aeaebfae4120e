package base

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type deviceTag struct{}
type streamTag struct{}

func TestHandleBasics(t *testing.T) {
	h1 := NewHandle[deviceTag](3, 1)
	h2 := NewHandle[deviceTag](3, 1)
	h3 := NewHandle[deviceTag](4, 1)

	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
	require.EqualValues(t, 3, h1.Index())
	require.EqualValues(t, 1, h1.Generation())
	require.True(t, h1.IsValid())
}

func TestHandleInvalid(t *testing.T) {
	bad := InvalidHandle[streamTag]()
	require.False(t, bad.IsValid())
	require.Equal(t, InvalidIndex, bad.Index())
	require.EqualValues(t, 0, bad.Generation())
	require.Equal(t, "handle(invalid)", bad.String())
}

func TestHandlePackRoundTrip(t *testing.T) {
	h := NewHandle[deviceTag](0xDEAD, 0xBEEF)
	packed := h.Pack()
	require.Equal(t, uint64(0xDEAD)<<32|uint64(0xBEEF), packed)
	require.Equal(t, h, UnpackHandle[deviceTag](packed))

	inv := InvalidHandle[deviceTag]()
	require.Equal(t, inv, UnpackHandle[deviceTag](inv.Pack()))
}

func TestBlockVectorStableAddresses(t *testing.T) {
	v := NewBlockVector[int](4)
	v.Grow(4)
	first := v.At(0)
	*first = 42

	// Force several new blocks; the original pointer must still be good.
	v.Grow(100)
	require.Equal(t, 104, v.Len())
	require.Equal(t, 42, *v.At(0))
	require.Same(t, first, v.At(0))
}

func TestBlockVectorAppendAndBounds(t *testing.T) {
	v := NewBlockVector[string](2)
	i := v.Append()
	require.Equal(t, 0, i)
	*v.At(i) = "a"
	require.Equal(t, 1, v.Len())
	require.Equal(t, 2, v.Cap())

	require.Panics(t, func() { v.At(1) })
	require.Panics(t, func() { v.At(-1) })

	v.Clear()
	require.Equal(t, 0, v.Len())
	require.Equal(t, 0, v.Cap())
}

func TestBlockVectorDefaultBlockSize(t *testing.T) {
	v := NewBlockVector[byte](0)
	require.Equal(t, DefaultBlockSize, v.BlockSize())
}
