// Package connectivity tracks whether the origin network is reachable.
//
// The watcher probes a lightweight URL on a timer and publishes online/offline
// transitions to subscribers. Deployments with an OS- or environment-provided
// signal can push state in through SetOnline instead; without a probe URL the
// agent degrades to the replayer's periodic timer alone.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Default configuration constants
const (
	// DefaultProbeInterval is how often the watcher probes for reachability.
	DefaultProbeInterval = 15 * time.Second
	// DefaultProbeTimeout bounds each probe request.
	DefaultProbeTimeout = 5 * time.Second
)

// Opts holds configuration options for the watcher.
type Opts struct {
	ProbeURL string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
}

// Option defines a configuration option for the watcher.
type Option func(*Opts)

// WithProbeURL sets the URL probed for reachability. Empty disables probing.
func WithProbeURL(u string) Option {
	return func(o *Opts) {
		o.ProbeURL = u
	}
}

// WithInterval sets the probe period.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) {
		o.Interval = d
	}
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithHTTPClient injects the HTTP client used for probes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.Client = c
	}
}

// Watcher maintains the current reachability state and fans out transitions.
type Watcher struct {
	probeURL string
	client   *http.Client
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// NewWatcher creates a watcher. The initial state is online so a healthy
// start does not publish a spurious transition.
func NewWatcher(opts ...Option) *Watcher {
	cfg := Opts{Interval: DefaultProbeInterval, Timeout: DefaultProbeTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Watcher{
		probeURL: cfg.ProbeURL,
		client:   client,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		online:   true,
	}
}

// Online reports the current reachability state.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Subscribe returns a channel that receives the new state on every
// online/offline transition. The channel is buffered; a subscriber that falls
// behind keeps only the most recent transition.
func (w *Watcher) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// SetOnline pushes an externally observed state. Subscribers are notified
// only when the state actually changes.
func (w *Watcher) SetOnline(isOnline bool) {
	w.mu.Lock()
	changed := w.online != isOnline
	w.online = isOnline
	subs := w.subs
	w.mu.Unlock()
	if !changed {
		return
	}

	slog.Info("Watcher.SetOnline: connectivity changed", "online", isOnline)
	for _, ch := range subs {
		select {
		case ch <- isOnline:
		default:
			// Drop the stale value so the latest state wins.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- isOnline:
			default:
			}
		}
	}
}

// Run probes until the context is cancelled. Without a probe URL it returns
// immediately and the agent relies on the periodic retry timer.
func (w *Watcher) Run(ctx context.Context) error {
	if w.probeURL == "" {
		slog.Info("Watcher.Run: no probe URL configured, timer-only mode")
		return nil
	}

	w.SetOnline(w.probe(ctx))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.SetOnline(w.probe(ctx))
		}
	}
}

// probe reports whether the probe URL answered at all; any HTTP status counts
// as reachable, only transport failures count as offline.
func (w *Watcher) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.probeURL, nil)
	if err != nil {
		slog.Error("Watcher.probe: invalid probe URL", "url", w.probeURL, "error", err)
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		slog.Debug("Watcher.probe: unreachable", "url", w.probeURL, "error", err)
		return false
	}
	resp.Body.Close()
	return true
}
