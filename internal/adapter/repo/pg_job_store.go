package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/sqlinline"
)

const defaultListLimit = 100

// JobStorePG implements domain.JobStore on one PostgreSQL table per kind.
// Subscriptions are driven by a ChangeFeed; without one Subscribe fails.
type JobStorePG struct {
	sql    infra.SQLExecutor
	feed   *ChangeFeed
	stmts  map[domain.Kind]sqlinline.JobStatements
	logger *infra.Logger
}

// NewJobStore creates a job store backed by PostgreSQL.
func NewJobStore(sql infra.SQLExecutor, feed *ChangeFeed, logger *infra.Logger) *JobStorePG {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	stmts := make(map[domain.Kind]sqlinline.JobStatements, len(domain.Kinds))
	for _, kind := range domain.Kinds {
		stmts[kind] = sqlinline.ForTable(kind.Collection())
	}
	return &JobStorePG{sql: sql, feed: feed, stmts: stmts, logger: logger}
}

// EnsureSchema creates tables, indexes and the change trigger.
func EnsureSchema(ctx context.Context, sql infra.SQLExecutor) error {
	if _, err := sql.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *JobStorePG) statements(kind domain.Kind) (sqlinline.JobStatements, error) {
	st, ok := r.stmts[kind]
	if !ok {
		return sqlinline.JobStatements{}, fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidRequest, kind)
	}
	return st, nil
}

// Create inserts a new job record.
func (r *JobStorePG) Create(ctx context.Context, job *domain.Job) error {
	st, err := r.statements(job.Kind)
	if err != nil {
		return err
	}
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	row := r.sql.QueryRow(ctx, st.Insert,
		job.OwnerID,
		job.Provider,
		job.ExternalJobID,
		request,
		string(job.State),
		job.ResultLocation,
		job.ErrorDetail,
		string(job.FailureKind),
		job.CreditsCharged,
	)
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert %s job: %w", job.Kind, err)
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobStorePG) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Job, error) {
	st, err := r.statements(kind)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(kind, r.sql.QueryRow(ctx, st.Select, id))
	if err != nil {
		if infra.IsNoRows(err) || isInvalidUUID(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get %s job: %w", kind, err)
	}
	return job, nil
}

// Update applies patch while the stored state is one of from.
func (r *JobStorePG) Update(ctx context.Context, kind domain.Kind, id string, patch domain.JobPatch, from ...domain.State) (bool, error) {
	st, err := r.statements(kind)
	if err != nil {
		return false, err
	}
	if len(from) == 0 {
		from = domain.VisibleStates
	}
	tag, err := r.sql.Exec(ctx, st.Update,
		id,
		string(patch.State),
		patch.ExternalJobID,
		patch.ResultLocation,
		patch.ErrorDetail,
		string(patch.FailureKind),
		stateStrings(from),
	)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("update %s job: %w", kind, err)
	}
	return tag.RowsAffected() > 0, nil
}

// QueryByUser lists the owner's jobs newest first.
func (r *JobStorePG) QueryByUser(ctx context.Context, kind domain.Kind, filter domain.JobFilter) ([]domain.Job, error) {
	st, err := r.statements(kind)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var since *time.Time
	if !filter.CompletedSince.IsZero() {
		ts := filter.CompletedSince
		since = &ts
	}
	rows, err := r.sql.Query(ctx, st.ListByOwner, filter.OwnerID, stateStrings(filter.EffectiveStates()), since, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", kind, err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s job: %w", kind, err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// QueryPending lists every in-flight job that already has an external id.
func (r *JobStorePG) QueryPending(ctx context.Context, kind domain.Kind) ([]domain.Job, error) {
	st, err := r.statements(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.sql.Query(ctx, st.ListPending)
	if err != nil {
		return nil, fmt.Errorf("list pending %s jobs: %w", kind, err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s job: %w", kind, err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Subscribe streams snapshots of the filtered set, refreshed on every
// change notification for the owner.
func (r *JobStorePG) Subscribe(ctx context.Context, kind domain.Kind, filter domain.JobFilter) (domain.Subscription, error) {
	if r.feed == nil {
		return nil, errors.New("job store has no change feed")
	}
	if _, err := r.statements(kind); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) ([]domain.Job, error) {
		return r.QueryByUser(ctx, kind, filter)
	}
	return r.feed.subscribe(ctx, kind, filter, load), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(kind domain.Kind, row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		request     []byte
		state       string
		failureKind string
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Provider,
		&job.ExternalJobID,
		&request,
		&state,
		&job.ResultLocation,
		&job.ErrorDetail,
		&failureKind,
		&job.CreditsCharged,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = kind
	job.State = domain.State(state)
	job.FailureKind = domain.FailureKind(failureKind)
	if len(request) > 0 {
		if err := json.Unmarshal(request, &job.Request); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
	}
	return &job, nil
}

func stateStrings(states []domain.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// isInvalidUUID reports a malformed id, which callers treat as not found.
func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

var _ domain.JobStore = (*JobStorePG)(nil)
