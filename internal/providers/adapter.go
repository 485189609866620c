// Package providers defines the normalized contract every external generation
// API is adapted to, together with the error taxonomy and the result-location
// extraction rules shared by the concrete clients.
package providers

import (
	"context"
	"time"

	"genflow/internal/domain"
)

// Adapter is the normalized surface of one external generation API.
// Submit is called at most once per job; FetchStatus any number of times.
type Adapter interface {
	Name() string
	Kind() domain.Kind
	Submit(ctx context.Context, req domain.RequestSpec) (string, error)
	FetchStatus(ctx context.Context, externalJobID string) (Outcome, error)
	Policy() PollPolicy
}

// PollPolicy is the per-provider polling cadence.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Budget is the total time a job may spend polling.
func (p PollPolicy) Budget() time.Duration {
	return p.Interval * time.Duration(p.MaxAttempts)
}

// OutcomeStatus tags the variant held by an Outcome.
type OutcomeStatus int

const (
	OutcomePending OutcomeStatus = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome is the normalized result of one status fetch. URLs is only set for
// OutcomeSucceeded and Reason only for OutcomeFailed.
type Outcome struct {
	Status OutcomeStatus
	URLs   []string
	Reason string
}

func Pending() Outcome { return Outcome{Status: OutcomePending} }

func Succeeded(urls ...string) Outcome {
	return Outcome{Status: OutcomeSucceeded, URLs: urls}
}

func Failed(reason string) Outcome {
	return Outcome{Status: OutcomeFailed, Reason: reason}
}

// FirstURL returns the first non-empty result location.
func (o Outcome) FirstURL() string {
	for _, u := range o.URLs {
		if u != "" {
			return u
		}
	}
	return ""
}
