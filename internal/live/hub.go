// Package live turns the job store's change streams into per-user sessions:
// a merged processing queue across all kinds and terminal notifications that
// are announced once no matter how many times the transition is observed.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/telemetry"
)

const defaultWindow = 30 * time.Second

// ErrHubClosed is returned by Open after Close.
var ErrHubClosed = errors.New("live hub closed")

// Subscriber is the part of the job store a session listens to.
type Subscriber interface {
	Subscribe(ctx context.Context, kind domain.Kind, filter domain.JobFilter) (domain.Subscription, error)
}

// ProgressFunc reports the synthetic progress of an active job.
type ProgressFunc func(jobID string) (int, bool)

type Options struct {
	Store    Subscriber
	Dedup    DedupSet
	Window   time.Duration
	Progress ProgressFunc
	Logger   *infra.Logger
	Metrics  *telemetry.Metrics
}

// Hub owns every open session. Sessions of the same hub share its DedupSet.
type Hub struct {
	store    Subscriber
	dedup    DedupSet
	window   time.Duration
	progress ProgressFunc
	logger   *infra.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
}

func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}
	dedup := opts.Dedup
	if dedup == nil {
		dedup = NewMemoryDedup(0)
	}
	return &Hub{
		store:    opts.Store,
		dedup:    dedup,
		window:   window,
		progress: opts.Progress,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session for ownerID. It lives until Close or until ctx is
// done.
func (h *Hub) Open(ctx context.Context, ownerID string) (*Session, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, ErrHubClosed
	}

	sctx, cancel := context.WithCancel(ctx)
	s := newSession(h, sctx, cancel, uuid.NewString(), ownerID)

	openedAt := h.now()
	for _, kind := range domain.Kinds {
		active, err := h.store.Subscribe(sctx, kind, domain.JobFilter{OwnerID: ownerID, States: domain.ActiveStates})
		if err != nil {
			s.abort()
			return nil, err
		}
		s.attach(kind, streamActive, active)

		recent, err := h.store.Subscribe(sctx, kind, domain.JobFilter{
			OwnerID:        ownerID,
			States:         domain.TerminalStates,
			CompletedSince: openedAt.Add(-h.window),
		})
		if err != nil {
			s.abort()
			return nil, err
		}
		s.attach(kind, streamRecent, recent)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.abort()
		return nil, ErrHubClosed
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.metrics.SessionOpened()
	h.logger.Debug().Str("session_id", s.id).Str("owner_id", ownerID).Msg("live session opened")
	s.start()
	return s, nil
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

func (h *Hub) forget(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()
	if ok {
		h.metrics.SessionClosed()
		h.logger.Debug().Str("session_id", s.id).Str("owner_id", s.ownerID).Msg("live session closed")
	}
}
