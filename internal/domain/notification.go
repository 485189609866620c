package domain

import "time"

// TransitionType names the terminal transition a notification reports.
type TransitionType string

const (
	TransitionCompletion TransitionType = "completion"
	TransitionFailure    TransitionType = "failure"
)

// Notification is an ephemeral, per-session record of a job reaching a
// terminal state. It is never persisted.
type Notification struct {
	ID             string         `json:"id"`
	JobID          string         `json:"job_id"`
	JobKind        Kind           `json:"job_kind"`
	TransitionType TransitionType `json:"transition_type"`
	Message        string         `json:"message"`
	Timestamp      time.Time      `json:"timestamp"`
	Read           bool           `json:"read"`
}
