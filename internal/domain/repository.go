package domain

import (
	"context"
	"time"
)

// JobStore persists jobs, one collection per kind.
type JobStore interface {
	// Create assigns ID, CreatedAt and UpdatedAt and inserts the record.
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, kind Kind, id string) (*Job, error)
	// Update applies patch only while the stored state is one of from.
	// It reports whether a row was changed.
	Update(ctx context.Context, kind Kind, id string, patch JobPatch, from ...State) (bool, error)
	QueryByUser(ctx context.Context, kind Kind, filter JobFilter) ([]Job, error)
	// QueryPending returns pending and processing jobs of every owner that
	// already carry an external job id.
	QueryPending(ctx context.Context, kind Kind) ([]Job, error)
	Subscribe(ctx context.Context, kind Kind, filter JobFilter) (Subscription, error)
}

// Subscription streams full snapshots of a filtered result set. The first
// delivery is the initial snapshot; later ones may be coalesced.
type Subscription interface {
	Deliveries() <-chan Delivery
	Close() error
}

// Delivery is the complete matching set at At.
type Delivery struct {
	Kind Kind
	Jobs []Job
	At   time.Time
}

// CreditLedger gates job creation on the user's balance.
type CreditLedger interface {
	TryDeduct(ctx context.Context, userID string, amount int) (bool, error)
	Grant(ctx context.Context, userID string, amount int) error
	Balance(ctx context.Context, userID string) (int, error)
}
