package orterr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := New(OutOfCapacity, "pool exhausted")
	require.Equal(t, OutOfCapacity, CodeOf(err))
	require.True(t, IsCode(err, OutOfCapacity))
	require.False(t, IsCode(err, OutOfMemory))

	require.Equal(t, OK, CodeOf(nil))
	require.False(t, IsCode(nil, OK))

	// Errors that never passed through this package surface as backend failures.
	require.Equal(t, BackendFailure, CodeOf(errors.New("driver said no")))
}

func TestWrapKeepsChainOutermostCodeWins(t *testing.T) {
	inner := Errorf(HandleExpired, "slot %d generation mismatch", 3)
	outer := Wrap(InvalidState, inner, "resolving tensor storage")
	require.Equal(t, InvalidState, CodeOf(outer))
	require.Contains(t, outer.Error(), "generation mismatch")
	require.Contains(t, outer.Error(), "resolving tensor storage")

	require.NoError(t, Wrap(InvalidState, nil, "ignored"))
}

func TestCodeString(t *testing.T) {
	require.Equal(t, "InvalidArgument", InvalidArgument.String())
	require.Equal(t, "BackendFailure", BackendFailure.String())
	require.Equal(t, "Code(42)", Code(42).String())
}
