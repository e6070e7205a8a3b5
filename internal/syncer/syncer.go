// Package syncer drains the durable outbox against the origin API.
//
// A drain pass walks pending mutations strictly in enqueue order, claims each
// one, replays it, and applies the outcome: 2xx removes the entry, 4xx
// archives it as a permanent failure, 5xx sends it back to pending with a
// backoff delay, and a transport-level failure aborts the pass so the
// remainder stays queued for the next connectivity window.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/interceptor"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
)

// Default configuration constants
const (
	// DefaultInterval is the safety-net drain period used when no
	// connectivity signal fires.
	DefaultInterval = 30 * time.Second
	// DefaultTimeout bounds each individual replay call.
	DefaultTimeout = 15 * time.Second
	// StaleClaimGrace pads the replay timeout when judging whether an
	// in_flight claim was abandoned. A live replay call never outlasts the
	// timeout, so a claim older than timeout plus grace belongs to a dead
	// process and is safe to take back.
	StaleClaimGrace = 30 * time.Second
)

// EventFunc receives replayer progress events so the surrounding application
// can surface queue depth and terminal failures to the user.
type EventFunc func(models.SyncEvent)

// Opts holds configuration options for the syncer.
type Opts struct {
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
}

// Option defines a configuration option for the syncer.
type Option func(*Opts)

// WithInterval sets the periodic safety-net drain interval.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) {
		o.Interval = d
	}
}

// WithTimeout sets the per-replay request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithHTTPClient injects the HTTP client used for replay calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.Client = c
	}
}

// Syncer owns the outbox drain loop. Exactly one drain pass runs at a time.
type Syncer struct {
	store    store.Store
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	onEvent  EventFunc
	online   <-chan bool
	kick     chan struct{}
	drainMu  sync.Mutex
}

// NewSyncer creates a syncer over the given store.
func NewSyncer(st store.Store, opts ...Option) *Syncer {
	cfg := Opts{Interval: DefaultInterval, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Syncer{
		store:    st,
		client:   client,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		kick:     make(chan struct{}, 1),
	}
}

// SetEventFunc registers the progress event callback.
func (s *Syncer) SetEventFunc(fn EventFunc) {
	s.onEvent = fn
}

// SetConnectivity subscribes the syncer to online/offline transitions; a true
// value triggers an immediate drain. Without a signal the syncer degrades to
// the periodic timer alone.
func (s *Syncer) SetConnectivity(ch <-chan bool) {
	s.online = ch
}

// Kick requests a drain pass without blocking; used by the interceptor after
// an enqueue and by the manual-sync endpoint.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Recover returns abandoned in_flight mutations to pending. Called at
// startup: a stale claim can only mean a process died mid-replay, and
// re-delivering is the at-least-once answer to that ambiguity. Claims still
// inside the stale window are left alone; on a shared store they may belong
// to another agent whose replay call is in progress, and taking one back
// would deliver the same mutation twice.
func (s *Syncer) Recover() (int, error) {
	n, err := s.store.RequeueInFlightMutations(s.staleClaimCutoff())
	if err != nil {
		return 0, fmt.Errorf("requeue in-flight mutations failed: %w", err)
	}
	if n > 0 {
		slog.Info("Syncer.Recover: requeued interrupted mutations", "count", n)
	}
	return n, nil
}

// staleClaimCutoff is the instant before which an untouched claim is
// considered abandoned.
func (s *Syncer) staleClaimCutoff() time.Time {
	return time.Now().Add(-(s.timeout + StaleClaimGrace))
}

// Run performs crash recovery, drains once, then serves drain triggers until
// the context is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	if _, err := s.Recover(); err != nil {
		return fmt.Errorf("Syncer.Run: %w", err)
	}
	s.SyncNow(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SyncNow(ctx)
		case <-s.kick:
			s.SyncNow(ctx)
		case isOnline, ok := <-s.online:
			if !ok {
				s.online = nil
				continue
			}
			if isOnline {
				slog.Info("Syncer.Run: connectivity restored, draining")
				s.SyncNow(ctx)
			}
		}
	}
}

// SyncNow runs a single drain pass to completion. Safe to call concurrently;
// passes serialize on an internal mutex.
func (s *Syncer) SyncNow(ctx context.Context) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	if n, err := s.store.RequeueInFlightMutations(s.staleClaimCutoff()); err != nil {
		slog.Error("Syncer.SyncNow: requeue stale claims failed", "error", err)
		return
	} else if n > 0 {
		slog.Info("Syncer.SyncNow: requeued abandoned claims", "count", n)
	}

	processed := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if inFlight, err := s.store.OldestInFlightMutation(); err != nil {
			slog.Error("Syncer.SyncNow: in-flight lookup failed", "error", err)
			return
		} else if inFlight != nil {
			// Another agent on the same store holds a live claim. Draining
			// past it could reorder same-subject deliveries, so this pass
			// waits for the claim to resolve or go stale.
			slog.Debug("Syncer.SyncNow: waiting on concurrent claim", "id", inFlight.ID)
			if processed > 0 {
				s.emit(models.SyncEventCompleted, nil, "")
			}
			return
		}
		pending, err := s.store.ListPendingMutations(1)
		if err != nil {
			slog.Error("Syncer.SyncNow: list pending failed", "error", err)
			return
		}
		if len(pending) == 0 {
			if processed > 0 {
				s.emit(models.SyncEventCompleted, nil, "")
			}
			return
		}

		head := pending[0]
		if head.NextEligibleAt != nil && time.Now().Before(*head.NextEligibleAt) {
			// The head is waiting out its backoff window. Draining past it
			// would reorder deliveries, so the pass ends here.
			slog.Debug("Syncer.SyncNow: head in backoff window", "id", head.ID, "eligibleAt", head.NextEligibleAt)
			if processed > 0 {
				s.emit(models.SyncEventCompleted, nil, "")
			}
			return
		}

		if err := s.store.MarkMutationInFlight(head.ID); err != nil {
			// Lost the claim race; the other pass owns this entry now.
			slog.Warn("Syncer.SyncNow: claim failed", "id", head.ID, "error", err)
			return
		}
		processed++

		outcome, detail := s.replay(ctx, head)
		switch outcome {
		case outcomeDelivered:
			if err := s.store.MarkMutationDelivered(head.ID); err != nil {
				slog.Error("Syncer.SyncNow: mark delivered failed", "id", head.ID, "error", err)
				return
			}
			slog.Info("Syncer.SyncNow: delivered", "id", head.ID, "subject", head.Subject)
			s.emit(models.SyncEventDelivered, &head, "")

		case outcomePermanent:
			if err := s.store.FailMutationPermanent(head.ID, detail); err != nil {
				slog.Error("Syncer.SyncNow: mark permanent failed", "id", head.ID, "error", err)
				return
			}
			slog.Warn("Syncer.SyncNow: origin rejected mutation", "id", head.ID, "subject", head.Subject, "detail", detail)
			s.emit(models.SyncEventFailedPermanent, &head, detail)

		case outcomeRetryable:
			eligible := time.Now().Add(Delay(head.Attempts))
			if err := s.store.FailMutationRetryable(head.ID, detail, eligible); err != nil {
				slog.Error("Syncer.SyncNow: mark retryable failed", "id", head.ID, "error", err)
				return
			}
			if s.promotedToPermanent(head.ID) {
				slog.Warn("Syncer.SyncNow: retry budget exhausted", "id", head.ID, "subject", head.Subject, "detail", detail)
				s.emit(models.SyncEventFailedPermanent, &head, detail)
			} else {
				slog.Info("Syncer.SyncNow: transient origin failure, backing off", "id", head.ID, "detail", detail, "eligibleAt", eligible)
			}

		case outcomeTransport:
			// The device went offline mid-drain. The claimed entry goes
			// straight back to pending without consuming an attempt, so a
			// long outage can never exhaust its retry budget.
			if err := s.store.RequeueMutation(head.ID); err != nil {
				slog.Error("Syncer.SyncNow: requeue after transport failure failed", "id", head.ID, "error", err)
			}
			slog.Info("Syncer.SyncNow: transport failure, aborting drain", "id", head.ID, "detail", detail)
			s.emit(models.SyncEventAborted, &head, detail)
			return
		}
	}
}

type replayOutcome int

const (
	outcomeDelivered replayOutcome = iota
	outcomePermanent
	outcomeRetryable
	outcomeTransport
)

// replay re-issues a queued mutation against its stored target and classifies
// the result. A client-side timeout counts as a transport failure.
func (s *Syncer) replay(ctx context.Context, m store.QueuedMutation) (replayOutcome, string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, m.Method, m.TargetURL, strings.NewReader(m.Payload))
	if err != nil {
		return outcomePermanent, fmt.Sprintf("build replay request: %v", err)
	}
	if m.ContentType != "" {
		req.Header.Set("Content-Type", m.ContentType)
	}
	// The client-generated ID rides along so an origin that deduplicates can
	// collapse duplicate deliveries after a crash-during-ack.
	req.Header.Set(interceptor.MutationIDHeader, m.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return outcomeTransport, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeDelivered, ""
	case resp.StatusCode >= 500:
		return outcomeRetryable, fmt.Sprintf("origin returned %d", resp.StatusCode)
	default:
		return outcomePermanent, fmt.Sprintf("origin rejected with %d", resp.StatusCode)
	}
}

func (s *Syncer) promotedToPermanent(id string) bool {
	m, err := s.store.GetMutation(id)
	if err != nil || m == nil {
		return false
	}
	return m.State == store.MutationStateFailedPermanent
}

func (s *Syncer) emit(eventType models.SyncEventType, m *store.QueuedMutation, errMsg string) {
	if s.onEvent == nil {
		return
	}
	depth, err := s.store.CountPendingMutations()
	if err != nil {
		slog.Warn("Syncer.emit: count pending failed", "error", err)
	}
	ev := models.SyncEvent{
		Type:       eventType,
		QueueDepth: depth,
		Error:      errMsg,
		Time:       time.Now(),
	}
	if m != nil {
		ev.MutationID = m.ID
		ev.Subject = m.Subject
	}
	s.onEvent(ev)
}
