// Package poller drives submitted jobs to a terminal state by polling their
// provider on a timer, one cancellable goroutine per job.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/providers"
	"genflow/internal/telemetry"
)

const (
	// rateLimitCeiling caps the backoff after RATE_LIMIT at this many intervals.
	rateLimitCeiling = 4
	writeTimeout     = 10 * time.Second

	// failedProgressRetention bounds how long the last progress of a failed
	// job stays readable after its loop ends.
	failedProgressRetention = 10 * time.Minute
	progressSweepInterval   = time.Minute
)

// Outcome labels used in logs, spans and metrics.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeTimeout   = "timeout"
	outcomeCanceled  = "canceled"
	outcomeStale     = "stale"
	outcomeError     = "error"
)

// Lifecycle is the subset of the lifecycle manager the engine reports to.
type Lifecycle interface {
	MarkCompleted(ctx context.Context, kind domain.Kind, id, resultLocation string) (bool, error)
	MarkFailed(ctx context.Context, kind domain.Kind, id, detail string, reason domain.FailureKind) (bool, error)
}

// AdapterResolver finds the adapter that owns a job.
type AdapterResolver interface {
	Lookup(kind domain.Kind, name string) (providers.Adapter, error)
}

// PendingSource lists jobs to re-enter after a restart.
type PendingSource interface {
	QueryPending(ctx context.Context, kind domain.Kind) ([]domain.Job, error)
}

type Options struct {
	Lifecycle Lifecycle
	Providers AdapterResolver
	Pending   PendingSource
	Logger    *infra.Logger
	Metrics   *telemetry.Metrics
	Tracer    trace.Tracer
}

// Engine runs poll loops. Progress of a completed loop is dropped; a failed
// job keeps its last value for failedProgressRetention.
type Engine struct {
	lifecycle Lifecycle
	providers AdapterResolver
	pending   PendingSource
	logger    *infra.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	loops     map[string]context.CancelFunc
	progress  map[string]int
	failed    map[string]lastProgress
	lastSweep time.Time
	now       func() time.Time
}

type lastProgress struct {
	value int
	at    time.Time
}

func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("poller")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		lifecycle: opts.Lifecycle,
		providers: opts.Providers,
		pending:   opts.Pending,
		logger:    logger,
		metrics:   opts.Metrics,
		tracer:    tracer,
		ctx:       ctx,
		cancel:    cancel,
		loops:     make(map[string]context.CancelFunc),
		progress:  make(map[string]int),
		failed:    make(map[string]lastProgress),
		now:       time.Now,
	}
}

// Track starts polling job. It never submits; the job must already carry
// an external id. Tracking an already tracked or inactive job is a no-op.
func (e *Engine) Track(job domain.Job) error {
	if !job.State.IsActive() {
		return nil
	}
	if job.ExternalJobID == "" {
		return fmt.Errorf("%w: job %s has no external job id", domain.ErrInvalidRequest, job.ID)
	}
	adapter, err := e.providers.Lookup(job.Kind, job.Provider)
	if err != nil {
		return err
	}
	policy := adapter.Policy()
	if policy.Interval <= 0 || policy.MaxAttempts <= 0 {
		return fmt.Errorf("provider %s has an invalid poll policy", adapter.Name())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		return errors.New("poll engine is shut down")
	}
	if _, ok := e.loops[job.ID]; ok {
		return nil
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.loops[job.ID] = cancel
	delete(e.failed, job.ID)
	if _, ok := e.progress[job.ID]; !ok {
		e.progress[job.ID] = 0
	}
	e.wg.Add(1)
	e.metrics.PollStarted()
	go e.run(ctx, cancel, job, adapter)
	return nil
}

// Cancel stops the loop for jobID. The loop writes nothing afterwards.
func (e *Engine) Cancel(jobID string) {
	e.mu.Lock()
	cancel, ok := e.loops[jobID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// Tracking reports whether a loop is running for jobID.
func (e *Engine) Tracking(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loops[jobID]
	return ok
}

// Progress returns the synthetic progress of jobID and whether the engine
// has seen it.
func (e *Engine) Progress(jobID string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.progress[jobID]; ok {
		return p, true
	}
	if last, ok := e.failed[jobID]; ok && e.now().Sub(last.at) <= failedProgressRetention {
		return last.value, true
	}
	return 0, false
}

// Resume re-enters every in-flight job of every kind into polling.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	if e.pending == nil {
		return 0, errors.New("poll engine has no pending source")
	}
	resumed := 0
	for _, kind := range domain.Kinds {
		jobs, err := e.pending.QueryPending(ctx, kind)
		if err != nil {
			return resumed, fmt.Errorf("query pending %s jobs: %w", kind, err)
		}
		for _, job := range jobs {
			if e.Tracking(job.ID) {
				continue
			}
			if err := e.Track(job); err != nil {
				e.logger.Warn().Err(err).
					Str("job_id", job.ID).
					Str("kind", string(job.Kind)).
					Str("provider", job.Provider).
					Msg("resume skipped job")
				continue
			}
			resumed++
		}
	}
	if resumed > 0 {
		e.logger.Info().Int("jobs", resumed).Msg("resumed polling")
	}
	return resumed, nil
}

// Wait blocks until every running loop has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown cancels every loop without writing and waits for them, or until
// ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) setProgress(jobID string, p int) {
	e.mu.Lock()
	e.progress[jobID] = p
	e.mu.Unlock()
}

// release forgets the loop of jobID. Only failed jobs keep their progress.
func (e *Engine) release(jobID, outcome string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.loops, jobID)
	p, ok := e.progress[jobID]
	delete(e.progress, jobID)

	now := e.now()
	if ok && (outcome == outcomeFailed || outcome == outcomeTimeout) {
		e.failed[jobID] = lastProgress{value: p, at: now}
	}
	if now.Sub(e.lastSweep) < progressSweepInterval {
		return
	}
	e.lastSweep = now
	for id, last := range e.failed {
		if now.Sub(last.at) > failedProgressRetention {
			delete(e.failed, id)
		}
	}
}

// verdict is a terminal decision waiting to be written.
type verdict struct {
	outcome string
	url     string
	detail  string
	reason  domain.FailureKind
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, job domain.Job, adapter providers.Adapter) {
	startedAt := time.Now()
	policy := adapter.Policy()
	log := e.logger.With().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("provider", adapter.Name()).
		Str("external_job_id", job.ExternalJobID).
		Logger()

	ctx, span := e.tracer.Start(ctx, "poller.poll_job", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("provider.name", adapter.Name()),
		attribute.Int("poll.max_attempts", policy.MaxAttempts),
	)

	outcome := outcomeCanceled
	attempt := 0
	defer func() {
		span.SetAttributes(attribute.String("job.outcome", outcome), attribute.Int("poll.attempts", attempt))
		if outcome == outcomeError {
			span.SetStatus(codes.Error, "terminal write failed")
		}
		span.End()
		cancel()
		e.release(job.ID, outcome)
		e.metrics.PollStopped()
		e.metrics.JobFinished(string(job.Kind), outcome, time.Since(startedAt))
		e.wg.Done()
	}()

	log.Debug().Dur("interval", policy.Interval).Int("max_attempts", policy.MaxAttempts).Msg("polling started")

	delay := policy.Interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	// The deadline backs up the attempt bound: the remaining attempts plus one
	// interval of grace, re-armed after every tick. Only a hung status call
	// reaches it before the last attempt.
	deadline := time.Now().Add(policy.Budget() + policy.Interval)
	budget := time.NewTimer(time.Until(deadline))
	defer budget.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("attempt", attempt).Msg("polling canceled")
			return
		case <-budget.C:
			outcome = e.finish(ctx, job, timeoutVerdict(attempt, policy), &log)
			return
		case <-timer.C:
		}

		attempt++
		fctx, fcancel := context.WithDeadline(ctx, deadline)
		result, err := adapter.FetchStatus(fctx, job.ExternalJobID)
		fcancel()
		if ctx.Err() != nil {
			// Let the select above decide whether anything is written.
			continue
		}
		if err != nil && !time.Now().Before(deadline) {
			// The status call ran into the deadline; the budget timer fires next.
			continue
		}

		var v *verdict
		next := policy.Interval
		switch {
		case err != nil:
			kind := providers.KindOf(err)
			e.metrics.PollTick(adapter.Name(), "error")
			span.AddEvent("status_error", trace.WithAttributes(attribute.String("provider.error_kind", string(kind))))
			switch kind {
			case providers.KindAuth:
				v = &verdict{outcome: outcomeFailed, detail: err.Error(), reason: domain.FailureAuth}
			case providers.KindValidation:
				v = &verdict{outcome: outcomeFailed, detail: err.Error(), reason: domain.FailureProvider}
			case providers.KindRateLimit:
				next = backoff(delay, policy.Interval)
				log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", next).Msg("provider rate limited status poll")
			default:
				log.Warn().Err(err).Int("attempt", attempt).Msg("transient status error")
			}
		case result.Status == providers.OutcomeSucceeded:
			e.metrics.PollTick(adapter.Name(), "succeeded")
			if url := result.FirstURL(); url != "" {
				v = &verdict{outcome: outcomeCompleted, url: url}
			} else {
				v = &verdict{outcome: outcomeFailed, detail: "provider reported success without a result location", reason: domain.FailureProvider}
			}
		case result.Status == providers.OutcomeFailed:
			e.metrics.PollTick(adapter.Name(), "failed")
			v = &verdict{outcome: outcomeFailed, detail: result.Reason, reason: domain.FailureProvider}
		default:
			e.metrics.PollTick(adapter.Name(), "pending")
		}

		if v == nil && attempt >= policy.MaxAttempts {
			tv := timeoutVerdict(attempt, policy)
			v = &tv
		}
		if v != nil {
			outcome = e.finish(ctx, job, *v, &log)
			return
		}

		e.setProgress(job.ID, progressFor(attempt, policy.MaxAttempts))
		delay = next
		deadline = time.Now().Add(delay + time.Duration(policy.MaxAttempts-attempt)*policy.Interval)
		budget.Reset(time.Until(deadline))
		timer.Reset(delay)
	}
}

// finish writes v through the lifecycle manager. Nothing is written once the
// loop was canceled or the engine shut down.
func (e *Engine) finish(ctx context.Context, job domain.Job, v verdict, log *infra.Logger) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return outcomeCanceled
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	var (
		applied bool
		err     error
	)
	if v.outcome == outcomeCompleted {
		applied, err = e.lifecycle.MarkCompleted(wctx, job.Kind, job.ID, v.url)
	} else {
		applied, err = e.lifecycle.MarkFailed(wctx, job.Kind, job.ID, v.detail, v.reason)
	}
	if err != nil {
		log.Error().Err(err).Str("outcome", v.outcome).Msg("terminal write failed")
		return outcomeError
	}
	if !applied {
		log.Info().Str("outcome", v.outcome).Msg("job no longer active, result discarded")
		return outcomeStale
	}
	if v.outcome == outcomeCompleted {
		log.Info().Str("result_location", v.url).Msg("job completed")
	} else {
		log.Info().Str("detail", v.detail).Str("failure_kind", string(v.reason)).Msg("job failed")
	}
	return v.outcome
}

func timeoutVerdict(attempts int, policy providers.PollPolicy) verdict {
	return verdict{
		outcome: outcomeTimeout,
		detail:  fmt.Sprintf("generation timed out after %d status checks (%s)", attempts, policy.Budget()),
		reason:  domain.FailureTimeout,
	}
}

func backoff(current, interval time.Duration) time.Duration {
	next := current * 2
	if ceiling := interval * rateLimitCeiling; next > ceiling {
		next = ceiling
	}
	return next
}

// progressFor is synthetic: providers report no percentage, so progress
// tracks the share of the poll budget used and stays below 100 until the
// job completes.
func progressFor(attempt, maxAttempts int) int {
	if maxAttempts <= 0 {
		return 0
	}
	p := attempt * 100 / maxAttempts
	if p > 99 {
		p = 99
	}
	return p
}
