// Package lifecycle owns every write to a job record. All transitions are
// conditional on the source states of the transition graph, so terminal
// writes are idempotent and a deleted record is never brought back.
package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/providers"
	"genflow/internal/telemetry"
)

type Manager struct {
	store   domain.JobStore
	logger  *infra.Logger
	metrics *telemetry.Metrics
}

type Options struct {
	Store   domain.JobStore
	Logger  *infra.Logger
	Metrics *telemetry.Metrics
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Manager{store: opts.Store, logger: logger, metrics: opts.Metrics}
}

// CreateParams describes a job about to be submitted.
type CreateParams struct {
	OwnerID        string
	Kind           domain.Kind
	Spec           domain.RequestSpec
	Adapter        providers.Adapter
	CreditsCharged int
}

// CreateJob submits the request exactly once and records the job as
// processing. A failed submission leaves no record behind.
func (m *Manager) CreateJob(ctx context.Context, p CreateParams) (*domain.Job, error) {
	if p.Adapter == nil {
		return nil, fmt.Errorf("%w: no adapter for %s", domain.ErrUnsupportedProvider, p.Kind)
	}
	if p.Adapter.Kind() != p.Kind {
		return nil, fmt.Errorf("%w: %s does not serve %s jobs", domain.ErrUnsupportedProvider, p.Adapter.Name(), p.Kind)
	}

	externalID, err := p.Adapter.Submit(ctx, p.Spec)
	if err != nil {
		m.metrics.SubmitFailed(p.Adapter.Name(), string(providers.KindOf(err)))
		return nil, fmt.Errorf("submit %s job: %w", p.Kind, err)
	}

	spec := p.Spec
	spec.Provider = p.Adapter.Name()
	job := &domain.Job{
		OwnerID:        p.OwnerID,
		Kind:           p.Kind,
		Provider:       p.Adapter.Name(),
		ExternalJobID:  externalID,
		Request:        spec,
		State:          domain.StateProcessing,
		CreditsCharged: p.CreditsCharged,
	}
	if err := m.store.Create(ctx, job); err != nil {
		// The provider already accepted the task; keep its id in the log so
		// the orphan can be traced.
		m.logger.Error().Err(err).
			Str("kind", string(p.Kind)).
			Str("provider", job.Provider).
			Str("external_job_id", externalID).
			Str("owner_id", p.OwnerID).
			Msg("job submitted but record creation failed")
		return nil, fmt.Errorf("create %s job: %w", p.Kind, err)
	}

	m.metrics.JobStarted(string(p.Kind), job.Provider)
	m.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("provider", job.Provider).
		Str("external_job_id", externalID).
		Msg("job created")
	return job, nil
}

// MarkProcessing moves a pending job into processing.
func (m *Manager) MarkProcessing(ctx context.Context, kind domain.Kind, id string) (bool, error) {
	return m.transition(ctx, kind, id, domain.JobPatch{State: domain.StateProcessing})
}

// MarkCompleted records the result location. Jobs already terminal or
// deleted are left untouched and report false.
func (m *Manager) MarkCompleted(ctx context.Context, kind domain.Kind, id, resultLocation string) (bool, error) {
	resultLocation = strings.TrimSpace(resultLocation)
	if resultLocation == "" {
		return false, fmt.Errorf("%w: completed job %s requires a result location", domain.ErrInvalidRequest, id)
	}
	return m.transition(ctx, kind, id, domain.JobPatch{State: domain.StateCompleted, ResultLocation: resultLocation})
}

// MarkFailed records a terminal failure with a human readable detail.
func (m *Manager) MarkFailed(ctx context.Context, kind domain.Kind, id, detail string, reason domain.FailureKind) (bool, error) {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = "generation failed"
	}
	if reason == "" {
		reason = domain.FailureProvider
	}
	return m.transition(ctx, kind, id, domain.JobPatch{State: domain.StateFailed, ErrorDetail: detail, FailureKind: reason})
}

// SoftDelete hides the job from every view. Any later write is discarded.
func (m *Manager) SoftDelete(ctx context.Context, kind domain.Kind, id string) (bool, error) {
	return m.transition(ctx, kind, id, domain.JobPatch{State: domain.StateDeleted})
}

func (m *Manager) transition(ctx context.Context, kind domain.Kind, id string, patch domain.JobPatch) (bool, error) {
	changed, err := m.store.Update(ctx, kind, id, patch, domain.SourcesOf(patch.State)...)
	if err != nil {
		return false, fmt.Errorf("mark %s job %s %s: %w", kind, id, patch.State, err)
	}
	event := m.logger.Debug()
	if changed {
		event = m.logger.Info()
	}
	event.
		Str("job_id", id).
		Str("kind", string(kind)).
		Str("state", string(patch.State)).
		Bool("applied", changed).
		Msg("job transition")
	return changed, nil
}
