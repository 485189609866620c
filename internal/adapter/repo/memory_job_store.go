package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genflow/internal/domain"
	"genflow/internal/infra"
)

// MemoryJobStore is a process-local JobStore. It backs tests and development
// runs without DATABASE_URL.
type MemoryJobStore struct {
	mu     sync.RWMutex
	jobs   map[domain.Kind]map[string]domain.Job
	subs   *subscriptionSet
	now    func() time.Time
	logger *infra.Logger
}

func NewMemoryJobStore(logger *infra.Logger) *MemoryJobStore {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &MemoryJobStore{
		jobs:   make(map[domain.Kind]map[string]domain.Job),
		subs:   newSubscriptionSet(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return domain.ErrInvalidRequest
	}
	s.mu.Lock()
	now := s.now()
	job.ID = uuid.NewString()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.State.IsTerminal() && job.CompletedAt == nil {
		ts := now
		job.CompletedAt = &ts
	}
	if s.jobs[job.Kind] == nil {
		s.jobs[job.Kind] = make(map[string]domain.Job)
	}
	s.jobs[job.Kind][job.ID] = *job
	s.mu.Unlock()

	s.subs.signal(job.Kind, job.OwnerID)
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[kind][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) Update(ctx context.Context, kind domain.Kind, id string, patch domain.JobPatch, from ...domain.State) (bool, error) {
	if len(from) == 0 {
		from = domain.VisibleStates
	}
	s.mu.Lock()
	job, ok := s.jobs[kind][id]
	if !ok {
		s.mu.Unlock()
		return false, domain.ErrNotFound
	}
	if !containsState(from, job.State) {
		s.mu.Unlock()
		return false, nil
	}
	patch.Apply(&job, s.now())
	s.jobs[kind][id] = job
	s.mu.Unlock()

	s.subs.signal(kind, job.OwnerID)
	return true, nil
}

func (s *MemoryJobStore) QueryByUser(ctx context.Context, kind domain.Kind, filter domain.JobFilter) ([]domain.Job, error) {
	s.mu.RLock()
	out := make([]domain.Job, 0)
	for _, job := range s.jobs[kind] {
		if filter.Matches(job) {
			out = append(out, job)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryJobStore) QueryPending(ctx context.Context, kind domain.Kind) ([]domain.Job, error) {
	s.mu.RLock()
	out := make([]domain.Job, 0)
	for _, job := range s.jobs[kind] {
		if job.State.IsActive() && job.ExternalJobID != "" {
			out = append(out, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryJobStore) Subscribe(ctx context.Context, kind domain.Kind, filter domain.JobFilter) (domain.Subscription, error) {
	load := func(ctx context.Context) ([]domain.Job, error) {
		return s.QueryByUser(ctx, kind, filter)
	}
	sub := newSnapshotSubscription(ctx, kind, filter, load, s.logger, s.subs.remove)
	s.subs.add(sub)
	sub.start()
	return sub, nil
}

// Close tears down every open subscription.
func (s *MemoryJobStore) Close() {
	s.subs.closeAll()
}

func containsState(states []domain.State, state domain.State) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func sortNewestFirst(jobs []domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

var _ domain.JobStore = (*MemoryJobStore)(nil)
