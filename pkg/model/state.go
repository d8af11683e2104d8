package model

// JobState represents the lifecycle state of a Job.
type JobState string

const (
	JobStateCreated   JobState = "CREATED"
	JobStateQueued    JobState = "QUEUED"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
	JobStateCanceled  JobState = "CANCELED"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
// Terminal states are never left again.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}

// ValidJobTransitions defines the allowed state transitions for Jobs.
// CREATED exists only between construction and Enqueue; a queued job that
// is canceled before admission never passes through RUNNING.
var ValidJobTransitions = map[JobState][]JobState{
	JobStateCreated: {JobStateQueued},
	JobStateQueued:  {JobStateRunning, JobStateCanceled},
	JobStateRunning: {JobStateCompleted, JobStateFailed, JobStateCanceled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
