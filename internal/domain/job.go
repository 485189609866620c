package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind enumerates the generation job families. Each kind lives in its own
// collection with an identical record shape.
type Kind string

const (
	KindVideo  Kind = "video"
	KindImage  Kind = "image"
	KindAvatar Kind = "avatar"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindVideo, KindImage, KindAvatar}

// ParseKind validates a kind coming from an untrusted source.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case KindVideo, KindImage, KindAvatar:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown job kind %q", ErrInvalidRequest, raw)
}

// Collection returns the table that stores jobs of this kind.
func (k Kind) Collection() string {
	return string(k) + "_jobs"
}

// State enumerates the persisted lifecycle states of a job.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateDeleted    State = "deleted"
)

// ActiveStates are the states a job is in while a provider still owns it.
var ActiveStates = []State{StatePending, StateProcessing}

// TerminalStates are the states that trigger notifications.
var TerminalStates = []State{StateCompleted, StateFailed}

// VisibleStates are every state except the soft-deleted one.
var VisibleStates = []State{StatePending, StateProcessing, StateCompleted, StateFailed}

var transitions = map[State][]State{
	StatePending:    {StateProcessing, StateCompleted, StateFailed, StateDeleted},
	StateProcessing: {StateCompleted, StateFailed, StateDeleted},
	StateCompleted:  {StateDeleted},
	StateFailed:     {StateDeleted},
}

// IsActive reports whether polling may still move the job forward.
func (s State) IsActive() bool {
	return s == StatePending || s == StateProcessing
}

// IsTerminal reports whether the job reached completed or failed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s State) CanTransitionTo(next State) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every state from which target is reachable in one step.
// Conditional writes use it as their WHERE state = ANY(...) guard.
func SourcesOf(target State) []State {
	var out []State
	for _, from := range []State{StatePending, StateProcessing, StateCompleted, StateFailed} {
		if from.CanTransitionTo(target) {
			out = append(out, from)
		}
	}
	return out
}

// FailureKind distinguishes why a job ended in failed.
type FailureKind string

const (
	FailureProvider   FailureKind = "provider"
	FailureTimeout    FailureKind = "timeout"
	FailureAuth       FailureKind = "auth"
	FailureSubmission FailureKind = "submission"
)

// Job is one generation request tracked from submission to a terminal state.
type Job struct {
	ID             string
	OwnerID        string
	Kind           Kind
	Provider       string
	ExternalJobID  string
	Request        RequestSpec
	State          State
	ResultLocation string
	ErrorDetail    string
	FailureKind    FailureKind
	CreditsCharged int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// JobPatch is a partial update. Empty fields are left untouched;
// ExternalJobID is only written while the stored value is still empty.
type JobPatch struct {
	State          State
	ExternalJobID  string
	ResultLocation string
	ErrorDetail    string
	FailureKind    FailureKind
}

// Apply mutates job with the non-empty fields of p. CompletedAt is stamped
// on the first move into a terminal state only.
func (p JobPatch) Apply(job *Job, now time.Time) {
	if p.State != "" {
		job.State = p.State
		if p.State.IsTerminal() && job.CompletedAt == nil {
			ts := now
			job.CompletedAt = &ts
		}
	}
	if p.ExternalJobID != "" && job.ExternalJobID == "" {
		job.ExternalJobID = p.ExternalJobID
	}
	if p.ResultLocation != "" {
		job.ResultLocation = p.ResultLocation
	}
	if p.ErrorDetail != "" {
		job.ErrorDetail = p.ErrorDetail
	}
	if p.FailureKind != "" {
		job.FailureKind = p.FailureKind
	}
	job.UpdatedAt = now
}

// JobFilter narrows a query or subscription for one owner.
type JobFilter struct {
	OwnerID        string
	States         []State
	CompletedSince time.Time
	Limit          int
}

// EffectiveStates returns States, or every visible state when none were given.
func (f JobFilter) EffectiveStates() []State {
	if len(f.States) == 0 {
		return VisibleStates
	}
	return f.States
}

// Matches reports whether job belongs to the filter's result set.
func (f JobFilter) Matches(job Job) bool {
	if f.OwnerID != "" && job.OwnerID != f.OwnerID {
		return false
	}
	found := false
	for _, s := range f.EffectiveStates() {
		if job.State == s {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if !f.CompletedSince.IsZero() {
		if job.CompletedAt == nil || job.CompletedAt.Before(f.CompletedSince) {
			return false
		}
	}
	return true
}
