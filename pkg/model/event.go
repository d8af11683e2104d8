package model

import (
	"time"

	"github.com/google/uuid"
)

// JobEvent is one job state notification pushed by the scheduler.
// Running jobs additionally emit interim events whose Detail carries a
// stage/percentage marker such as "handshake:20%".
type JobEvent struct {
	JobID  uuid.UUID `json:"job_id"`
	State  JobState  `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}
