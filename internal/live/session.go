package live

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genflow/internal/domain"
)

const (
	notificationBuffer = 64
	recentLimit        = 50
)

type stream int

const (
	streamActive stream = iota
	streamRecent
)

// JobSummary is one row of the processing queue.
type JobSummary struct {
	ID        string       `json:"id"`
	Kind      domain.Kind  `json:"kind"`
	State     domain.State `json:"state"`
	Provider  string       `json:"provider"`
	Progress  int          `json:"progress"`
	CreatedAt time.Time    `json:"created_at"`
}

type taggedDelivery struct {
	stream   stream
	delivery domain.Delivery
}

// Session is one user's live view. All deliveries are handled by a single
// aggregation goroutine; Queue and Notifications are closed when the
// session ends.
type Session struct {
	id      string
	ownerID string
	hub     *Hub
	ctx     context.Context
	cancel  context.CancelFunc

	subs   []domain.Subscription
	in     chan taggedDelivery
	queue  chan []JobSummary
	notes  chan domain.Notification
	done   chan struct{}
	fanIn  sync.WaitGroup
	closer sync.Once

	// active is owned by the aggregation loop.
	active map[domain.Kind][]domain.Job

	mu     sync.Mutex
	recent []domain.Notification
}

func newSession(h *Hub, ctx context.Context, cancel context.CancelFunc, id, ownerID string) *Session {
	return &Session{
		id:      id,
		ownerID: ownerID,
		hub:     h,
		ctx:     ctx,
		cancel:  cancel,
		in:      make(chan taggedDelivery),
		queue:   make(chan []JobSummary, 1),
		notes:   make(chan domain.Notification, notificationBuffer),
		done:    make(chan struct{}),
		active:  make(map[domain.Kind][]domain.Job),
	}
}

func (s *Session) ID() string      { return s.id }
func (s *Session) OwnerID() string { return s.ownerID }

// Queue delivers the merged processing queue. Only the latest value is kept
// for a slow reader.
func (s *Session) Queue() <-chan []JobSummary { return s.queue }

// Notifications delivers each terminal transition once.
func (s *Session) Notifications() <-chan domain.Notification { return s.notes }

// Done is closed after the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) attach(kind domain.Kind, st stream, sub domain.Subscription) {
	s.subs = append(s.subs, sub)
	s.fanIn.Add(1)
	go func() {
		defer s.fanIn.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case d, ok := <-sub.Deliveries():
				if !ok {
					return
				}
				if d.Kind == "" {
					d.Kind = kind
				}
				select {
				case s.in <- taggedDelivery{stream: st, delivery: d}:
				case <-s.ctx.Done():
					return
				}
			}
		}
	}()
}

func (s *Session) start() {
	go s.loop()
}

// abort tears down a session that never started.
func (s *Session) abort() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Close()
	}
	s.fanIn.Wait()
}

func (s *Session) loop() {
	defer func() {
		for _, sub := range s.subs {
			_ = sub.Close()
		}
		s.fanIn.Wait()
		s.hub.forget(s)
		close(s.queue)
		close(s.notes)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case td := <-s.in:
			if td.stream == streamActive {
				s.active[td.delivery.Kind] = td.delivery.Jobs
				s.publish(s.merge())
			}
			s.announce(td.delivery.Jobs)
		}
	}
}

// merge unions the per-kind active subsets, newest first.
func (s *Session) merge() []JobSummary {
	out := make([]JobSummary, 0)
	for _, jobs := range s.active {
		for _, job := range jobs {
			summary := JobSummary{
				ID:        job.ID,
				Kind:      job.Kind,
				State:     job.State,
				Provider:  job.Provider,
				CreatedAt: job.CreatedAt,
			}
			if s.hub.progress != nil {
				summary.Progress, _ = s.hub.progress(job.ID)
			}
			out = append(out, summary)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Session) publish(summaries []JobSummary) {
	select {
	case <-s.queue:
	default:
	}
	s.queue <- summaries
}

// announce emits a notification for every terminal job that finished within
// the window and has not been claimed yet.
func (s *Session) announce(jobs []domain.Job) {
	now := s.hub.now()
	for _, job := range jobs {
		if !job.State.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) > s.hub.window {
			continue
		}
		first, err := s.hub.dedup.Claim(s.ctx, s.ownerID, job.ID, job.State)
		if err != nil {
			s.hub.logger.Warn().Err(err).Str("job_id", job.ID).Str("owner_id", s.ownerID).Msg("notification claim failed")
			continue
		}
		if !first {
			continue
		}
		n := domain.Notification{
			ID:             uuid.NewString(),
			JobID:          job.ID,
			JobKind:        job.Kind,
			TransitionType: transitionFor(job.State),
			Message:        notificationMessage(job),
			Timestamp:      now.UTC(),
		}
		s.remember(n)
		s.hub.metrics.NotificationEmitted(string(job.Kind), string(n.TransitionType))
		select {
		case s.notes <- n:
		default:
			s.hub.logger.Warn().Str("job_id", job.ID).Str("session_id", s.id).Msg("notification buffer full, kept in recent list only")
		}
	}
}

func (s *Session) remember(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append([]domain.Notification{n}, s.recent...)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[:recentLimit]
	}
}

// Recent returns the session's notifications, newest first.
func (s *Session) Recent() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Notification, len(s.recent))
	copy(out, s.recent)
	return out
}

// MarkRead flags a notification as read. It reports false for unknown ids.
func (s *Session) MarkRead(notificationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.recent {
		if s.recent[i].ID == notificationID {
			s.recent[i].Read = true
			return true
		}
	}
	return false
}

// Unread counts notifications not yet marked read.
func (s *Session) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, note := range s.recent {
		if !note.Read {
			n++
		}
	}
	return n
}

// Close ends the session and waits for its goroutines.
func (s *Session) Close() error {
	s.closer.Do(func() {
		s.cancel()
	})
	<-s.done
	return nil
}
