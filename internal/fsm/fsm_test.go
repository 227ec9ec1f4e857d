package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateCapturing, next)

	next, err = Transition(next, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateStopping, next)

	next, err = Transition(next, EventFinalized)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionTimeoutMirrorsStop(t *testing.T) {
	next, err := Transition(StateCapturing, EventTimeout)
	require.NoError(t, err)
	require.Equal(t, StateStopping, next)
}

func TestTransitionFailFromAnyStateGoesIdle(t *testing.T) {
	states := []State{StateIdle, StateCapturing, StateStopping}
	for _, state := range states {
		next, err := Transition(state, EventFail)
		require.NoError(t, err)
		require.Equal(t, StateIdle, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle stop invalid", state: StateIdle, event: EventStop, want: StateIdle, wantErr: true},
		{name: "idle timeout invalid", state: StateIdle, event: EventTimeout, want: StateIdle, wantErr: true},
		{name: "idle finalized invalid", state: StateIdle, event: EventFinalized, want: StateIdle, wantErr: true},
		{name: "capturing start invalid", state: StateCapturing, event: EventStart, want: StateCapturing, wantErr: true},
		{name: "capturing finalized invalid", state: StateCapturing, event: EventFinalized, want: StateCapturing, wantErr: true},
		{name: "stopping start invalid", state: StateStopping, event: EventStart, want: StateStopping, wantErr: true},
		{name: "stopping stop invalid", state: StateStopping, event: EventStop, want: StateStopping, wantErr: true},
		{name: "stopping timeout invalid", state: StateStopping, event: EventTimeout, want: StateStopping, wantErr: true},
		{name: "stopping finalized valid", state: StateStopping, event: EventFinalized, want: StateIdle, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}
