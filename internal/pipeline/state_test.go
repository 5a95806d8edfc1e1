package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAllowedTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Idle, Discovering, true},
		{Discovering, Transforming, true},
		{Transforming, Extracting, true},
		{Extracting, Naming, true},
		{Naming, Emitting, true},
		{Emitting, Done, true},
		{Done, Idle, true},
		{Failed, Idle, true},

		{Discovering, Failed, true},
		{Transforming, Failed, true},
		{Extracting, Failed, true},
		{Naming, Failed, true},
		{Emitting, Failed, true},

		{Idle, Failed, false},
		{Done, Failed, false},
		{Failed, Failed, false},
		{Idle, Transforming, false},
		{Transforming, Naming, false},
		{Extracting, Transforming, false},
		{Done, Discovering, false},
		{Emitting, Idle, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			require.Equal(t, tt.want, isAllowedTransition(tt.from, tt.to))
		})
	}
}

func TestTransition(t *testing.T) {
	s := Idle
	require.NoError(t, transition(&s, Discovering))
	require.Equal(t, Discovering, s)

	err := transition(&s, Done)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, Discovering, s, "state must not change on a rejected transition")
}

func TestStateString(t *testing.T) {
	require.Equal(t, "transforming", Transforming.String())
	require.Equal(t, "state(42)", State(42).String())
	require.True(t, Done.IsTerminal())
	require.True(t, Failed.IsTerminal())
	require.False(t, Emitting.IsTerminal())
}
