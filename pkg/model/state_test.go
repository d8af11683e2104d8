package model

import "testing"

func TestJobStateIsTerminal(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobStateCreated, false},
		{JobStateQueued, false},
		{JobStateRunning, false},
		{JobStateCompleted, true},
		{JobStateFailed, true},
		{JobStateCanceled, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestJobStateCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobStateCreated, JobStateQueued, true},
		{JobStateQueued, JobStateRunning, true},
		{JobStateQueued, JobStateCanceled, true},
		{JobStateRunning, JobStateCompleted, true},
		{JobStateRunning, JobStateFailed, true},
		{JobStateRunning, JobStateCanceled, true},

		// No transitions out of terminal states.
		{JobStateCompleted, JobStateQueued, false},
		{JobStateFailed, JobStateRunning, false},
		{JobStateCanceled, JobStateCanceled, false},

		// No skipping the queue.
		{JobStateCreated, JobStateRunning, false},
		{JobStateQueued, JobStateCompleted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
