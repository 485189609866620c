package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/sqlinline"
)

const (
	listenerMinReconnect = 2 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingEvery    = 90 * time.Second
)

type changeEvent struct {
	Kind    domain.Kind `json:"kind"`
	OwnerID string      `json:"owner_id"`
	ID      string      `json:"id"`
}

// ChangeFeed listens for generation_job_changes notifications on a dedicated
// connection and wakes the subscriptions they concern. After a reconnect
// every subscription is refreshed because notifications may have been lost.
type ChangeFeed struct {
	listener *pq.Listener
	subs     *subscriptionSet
	logger   *infra.Logger
	done     chan struct{}
	stopped  chan struct{}
}

// NewChangeFeed opens the LISTEN connection and starts dispatching.
func NewChangeFeed(databaseURL string, logger *infra.Logger) (*ChangeFeed, error) {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	f := &ChangeFeed{
		subs:    newSubscriptionSet(),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	f.listener = pq.NewListener(databaseURL, listenerMinReconnect, listenerMaxReconnect, f.onEvent)
	if err := f.listener.Listen(sqlinline.ChangeChannel); err != nil {
		_ = f.listener.Close()
		return nil, fmt.Errorf("listen %s: %w", sqlinline.ChangeChannel, err)
	}
	go f.run()
	return f, nil
}

func (f *ChangeFeed) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		f.logger.Info().Msg("change feed connected")
	case pq.ListenerEventDisconnected:
		f.logger.Warn().Err(err).Msg("change feed disconnected")
	case pq.ListenerEventReconnected:
		f.logger.Info().Msg("change feed reconnected, refreshing subscriptions")
	case pq.ListenerEventConnectionAttemptFailed:
		f.logger.Warn().Err(err).Msg("change feed reconnect attempt failed")
	}
}

func (f *ChangeFeed) run() {
	defer close(f.stopped)
	ticker := time.NewTicker(listenerPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			f.handle(n)
		case <-ticker.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn().Err(err).Msg("change feed ping failed")
				}
			}()
		}
	}
}

func (f *ChangeFeed) handle(n *pq.Notification) {
	if n == nil {
		// pq sends nil after re-establishing the connection.
		f.subs.signal("", "")
		return
	}
	f.dispatch(n.Extra)
}

func (f *ChangeFeed) dispatch(payload string) {
	var ev changeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		f.logger.Warn().Err(err).Str("payload", payload).Msg("change feed: malformed payload")
		return
	}
	f.subs.signal(ev.Kind, ev.OwnerID)
}

func (f *ChangeFeed) subscribe(ctx context.Context, kind domain.Kind, filter domain.JobFilter, load snapshotLoader) *snapshotSubscription {
	sub := newSnapshotSubscription(ctx, kind, filter, load, f.logger, f.subs.remove)
	f.subs.add(sub)
	sub.start()
	return sub
}

// Close stops dispatching, closes every subscription and the connection.
func (f *ChangeFeed) Close() error {
	select {
	case <-f.done:
		return nil
	default:
	}
	close(f.done)
	<-f.stopped
	f.subs.closeAll()
	return f.listener.Close()
}
