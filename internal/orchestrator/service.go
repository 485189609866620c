// Package orchestrator is the caller-facing surface: it gates job creation on
// credits, hands jobs to the polling engine and exposes per-user views.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/lifecycle"
	"genflow/internal/live"
	"genflow/internal/poller"
	"genflow/internal/providers"
	"genflow/internal/telemetry"
)

// Costs is the flat credit price of one job per kind.
type Costs map[domain.Kind]int

// CostsFromConfig maps the configured prices onto kinds.
func CostsFromConfig(c infra.CreditCosts) Costs {
	return Costs{
		domain.KindVideo:  c.Video,
		domain.KindImage:  c.Image,
		domain.KindAvatar: c.Avatar,
	}
}

type Options struct {
	Store     domain.JobStore
	Ledger    domain.CreditLedger
	Lifecycle *lifecycle.Manager
	Engine    *poller.Engine
	Providers *providers.Registry
	Hub       *live.Hub
	Costs     Costs
	Logger    *infra.Logger
	Tracer    trace.Tracer
}

type Service struct {
	store     domain.JobStore
	ledger    domain.CreditLedger
	lifecycle *lifecycle.Manager
	engine    *poller.Engine
	providers *providers.Registry
	hub       *live.Hub
	costs     Costs
	logger    *infra.Logger
	tracer    trace.Tracer
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("orchestrator")
	}
	costs := opts.Costs
	if costs == nil {
		costs = Costs{}
	}
	return &Service{
		store:     opts.Store,
		ledger:    opts.Ledger,
		lifecycle: opts.Lifecycle,
		engine:    opts.Engine,
		providers: opts.Providers,
		hub:       opts.Hub,
		costs:     costs,
		logger:    logger,
		tracer:    tracer,
	}
}

// StartJob charges the user, submits the request once and starts polling.
// Credits are not refunded when submission fails.
func (s *Service) StartJob(ctx context.Context, ownerID string, kind domain.Kind, spec domain.RequestSpec) (handle *JobHandle, err error) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.start_job")
	span.SetAttributes(attribute.String("job.kind", string(kind)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	spec = spec.Normalize(kind)
	if err := spec.Validate(kind); err != nil {
		return nil, err
	}
	adapter, err := s.providers.Lookup(kind, spec.Provider)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("provider.name", adapter.Name()))

	cost := s.costs[kind]
	if cost > 0 {
		ok, err := s.ledger.TryDeduct(ctx, ownerID, cost)
		if err != nil {
			return nil, fmt.Errorf("deduct credits: %w", err)
		}
		if !ok {
			return nil, domain.ErrInsufficientCredits
		}
	}

	job, err := s.lifecycle.CreateJob(ctx, lifecycle.CreateParams{
		OwnerID:        ownerID,
		Kind:           kind,
		Spec:           spec,
		Adapter:        adapter,
		CreditsCharged: cost,
	})
	if err != nil {
		if cost > 0 {
			s.logger.Warn().Err(err).
				Str("owner_id", ownerID).
				Str("kind", string(kind)).
				Int("credits", cost).
				Msg("submission failed after charge, credits kept")
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("job.id", job.ID))

	if err := s.engine.Track(*job); err != nil {
		// The record is processing with an external id; the next resume
		// pass picks it up.
		s.logger.Error().Err(err).Str("job_id", job.ID).Str("kind", string(kind)).Msg("could not start polling")
	}
	return &JobHandle{svc: s, ownerID: ownerID, kind: kind, id: job.ID}, nil
}

// Handle returns a handle for an existing, visible job of ownerID.
func (s *Service) Handle(ctx context.Context, ownerID string, kind domain.Kind, id string) (*JobHandle, error) {
	if _, err := s.owned(ctx, ownerID, kind, id); err != nil {
		return nil, err
	}
	return &JobHandle{svc: s, ownerID: ownerID, kind: kind, id: id}, nil
}

// List returns ownerID's jobs newest first. An empty kind lists every kind.
func (s *Service) List(ctx context.Context, ownerID string, kind domain.Kind, filter domain.JobFilter) ([]Status, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	kinds := domain.Kinds
	if kind != "" {
		if _, err := domain.ParseKind(string(kind)); err != nil {
			return nil, err
		}
		kinds = []domain.Kind{kind}
	}
	filter.OwnerID = ownerID
	for _, st := range filter.States {
		if st == domain.StateDeleted {
			return nil, fmt.Errorf("%w: deleted jobs are not listable", domain.ErrInvalidRequest)
		}
	}

	out := make([]Status, 0)
	for _, k := range kinds {
		jobs, err := s.store.QueryByUser(ctx, k, filter)
		if err != nil {
			return nil, fmt.Errorf("list %s jobs: %w", k, err)
		}
		for _, job := range jobs {
			out = append(out, s.statusOf(job))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete soft-deletes the job and stops its poll loop.
func (s *Service) Delete(ctx context.Context, ownerID string, kind domain.Kind, id string) error {
	if _, err := s.owned(ctx, ownerID, kind, id); err != nil {
		return err
	}
	changed, err := s.lifecycle.SoftDelete(ctx, kind, id)
	if err != nil {
		return err
	}
	s.engine.Cancel(id)
	if !changed {
		return domain.ErrNotFound
	}
	return nil
}

// Retry starts a new job with the request of a finished one. The new job is
// charged like any other.
func (s *Service) Retry(ctx context.Context, ownerID string, kind domain.Kind, id string) (*JobHandle, error) {
	job, err := s.owned(ctx, ownerID, kind, id)
	if err != nil {
		return nil, err
	}
	if job.State.IsActive() {
		return nil, fmt.Errorf("%w: job %s is still running", domain.ErrInvalidRequest, id)
	}
	spec := job.Request
	if spec.Provider == "" {
		spec.Provider = job.Provider
	}
	return s.StartJob(ctx, ownerID, kind, spec)
}

// Resume re-enters in-flight jobs into polling after a restart.
func (s *Service) Resume(ctx context.Context) (int, error) {
	return s.engine.Resume(ctx)
}

// Credits returns ownerID's balance.
func (s *Service) Credits(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, domain.ErrUnauthorized
	}
	return s.ledger.Balance(ctx, ownerID)
}

// OpenSession starts a live view for ownerID.
func (s *Service) OpenSession(ctx context.Context, ownerID string) (*live.Session, error) {
	if s.hub == nil {
		return nil, errors.New("live updates are not configured")
	}
	return s.hub.Open(ctx, ownerID)
}

// SubscribeProcessingQueue streams ownerID's merged queue until stop is
// called or ctx is done.
func (s *Service) SubscribeProcessingQueue(ctx context.Context, ownerID string) (<-chan []live.JobSummary, func() error, error) {
	session, err := s.OpenSession(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return session.Queue(), session.Close, nil
}

// SubscribeNotifications streams ownerID's terminal notifications.
func (s *Service) SubscribeNotifications(ctx context.Context, ownerID string) (<-chan domain.Notification, func() error, error) {
	session, err := s.OpenSession(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return session.Notifications(), session.Close, nil
}

func (s *Service) owned(ctx context.Context, ownerID string, kind domain.Kind, id string) (*domain.Job, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	job, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID || job.State == domain.StateDeleted {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *Service) statusOf(job domain.Job) Status {
	st := Status{
		JobID:          job.ID,
		Kind:           job.Kind,
		Provider:       job.Provider,
		State:          job.State,
		ResultLocation: job.ResultLocation,
		ErrorDetail:    job.ErrorDetail,
		FailureKind:    job.FailureKind,
		CreditsCharged: job.CreditsCharged,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
	}
	if job.State == domain.StateCompleted {
		st.Progress = 100
	} else if p, ok := s.engine.Progress(job.ID); ok {
		st.Progress = p
	}
	return st
}

// Status is the caller's view of one job.
type Status struct {
	JobID          string             `json:"id"`
	Kind           domain.Kind        `json:"kind"`
	Provider       string             `json:"provider"`
	State          domain.State       `json:"state"`
	Progress       int                `json:"progress"`
	ResultLocation string             `json:"result_location,omitempty"`
	ErrorDetail    string             `json:"error_detail,omitempty"`
	FailureKind    domain.FailureKind `json:"failure_kind,omitempty"`
	CreditsCharged int                `json:"credits_charged"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// JobHandle refers to one job owned by one user.
type JobHandle struct {
	svc     *Service
	ownerID string
	kind    domain.Kind
	id      string
}

func (h *JobHandle) ID() string        { return h.id }
func (h *JobHandle) Kind() domain.Kind { return h.kind }

// Status reads the current record. Progress is 100 only once completed.
func (h *JobHandle) Status(ctx context.Context) (Status, error) {
	job, err := h.svc.owned(ctx, h.ownerID, h.kind, h.id)
	if err != nil {
		return Status{}, err
	}
	return h.svc.statusOf(*job), nil
}
