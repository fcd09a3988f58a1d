package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
	}
	for _, c := range cases {
		require.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
}

func TestStatusHTTPCode(t *testing.T) {
	require.Equal(t, 201, StatusPending.HTTPCode())
	require.Equal(t, 201, StatusProcessing.HTTPCode())
	require.Equal(t, 200, StatusCompleted.HTTPCode())
	require.Equal(t, 500, StatusFailed.HTTPCode())
}

func TestStatusValid(t *testing.T) {
	require.True(t, StatusPending.Valid())
	require.False(t, Status("mined").Valid())
}
