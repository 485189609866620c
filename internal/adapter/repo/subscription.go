package repo

import (
	"context"
	"sync"
	"time"

	"genflow/internal/domain"
	"genflow/internal/infra"
)

type snapshotLoader func(ctx context.Context) ([]domain.Job, error)

// snapshotSubscription re-reads the filtered set whenever it is woken and
// hands the latest snapshot to the consumer. Wakeups and undelivered
// snapshots coalesce, so a slow consumer only ever sees the newest state.
type snapshotSubscription struct {
	kind    domain.Kind
	filter  domain.JobFilter
	load    snapshotLoader
	logger  *infra.Logger
	out     chan domain.Delivery
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	onClose func(*snapshotSubscription)
	once    sync.Once
}

func newSnapshotSubscription(ctx context.Context, kind domain.Kind, filter domain.JobFilter, load snapshotLoader, logger *infra.Logger, onClose func(*snapshotSubscription)) *snapshotSubscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &snapshotSubscription{
		kind:    kind,
		filter:  filter,
		load:    load,
		logger:  logger,
		out:     make(chan domain.Delivery, 1),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		onClose: onClose,
	}
	s.wake <- struct{}{}
	return s
}

// start begins loading snapshots. Callers register the subscription for
// change signals first so no change between registration and the initial
// load is missed.
func (s *snapshotSubscription) start() {
	go s.run()
	go func() {
		<-s.ctx.Done()
		s.Close()
	}()
}

func (s *snapshotSubscription) Deliveries() <-chan domain.Delivery {
	return s.out
}

func (s *snapshotSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
	return nil
}

// interested reports whether a change to ownerID's kind jobs may alter the set.
func (s *snapshotSubscription) interested(kind domain.Kind, ownerID string) bool {
	if s.kind != kind {
		return false
	}
	return s.filter.OwnerID == "" || ownerID == "" || s.filter.OwnerID == ownerID
}

func (s *snapshotSubscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *snapshotSubscription) run() {
	defer close(s.out)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		jobs, err := s.load(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).
				Str("kind", string(s.kind)).
				Str("owner_id", s.filter.OwnerID).
				Msg("subscription snapshot failed")
			continue
		}
		s.publish(domain.Delivery{Kind: s.kind, Jobs: jobs, At: time.Now().UTC()})
	}
}

func (s *snapshotSubscription) publish(d domain.Delivery) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case s.out <- d:
			return
		default:
		}
		// Drop the stale snapshot the consumer has not picked up yet.
		select {
		case <-s.out:
		default:
		}
	}
}

// subscriptionSet tracks open subscriptions for fan-out of change signals.
type subscriptionSet struct {
	mu   sync.Mutex
	subs map[*snapshotSubscription]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{subs: make(map[*snapshotSubscription]struct{})}
}

func (s *subscriptionSet) add(sub *snapshotSubscription) {
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
}

func (s *subscriptionSet) remove(sub *snapshotSubscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// signal wakes every subscription interested in a change. An empty kind
// wakes all of them.
func (s *subscriptionSet) signal(kind domain.Kind, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if kind == "" || sub.interested(kind, ownerID) {
			sub.notify()
		}
	}
}

func (s *subscriptionSet) closeAll() {
	s.mu.Lock()
	subs := make([]*snapshotSubscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}
