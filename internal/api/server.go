// Package api exposes the sync agent's local HTTP surface.
//
// The device UI points its origin-bound calls at /api/, where the interceptor
// applies offline policy. The /v1/ endpoints are the agent's own control
// plane: manual sync, queue inspection, failure triage, and cache generation
// rollover.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/connectivity"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/interceptor"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/lifecycle"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/scheduler"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/syncer"
)

// DefaultAddr is the default listen address for the agent's HTTP surface.
const DefaultAddr = ":8380"

// Server wires the agent's components behind one HTTP listener.
type Server struct {
	store       store.Store
	interceptor *interceptor.Interceptor
	syncer      *syncer.Syncer
	lifecycle   *lifecycle.Manager
	watcher     *connectivity.Watcher
	sched       *scheduler.Scheduler
	startedAt   time.Time
}

// NewServer creates the HTTP server over the agent's components. The watcher
// and scheduler may be nil when no connectivity probe or safety-net schedule
// is configured.
func NewServer(st store.Store, ic *interceptor.Interceptor, sy *syncer.Syncer, lm *lifecycle.Manager, w *connectivity.Watcher, sched *scheduler.Scheduler) *Server {
	return &Server{
		store:       st,
		interceptor: ic,
		syncer:      sy,
		lifecycle:   lm,
		watcher:     w,
		sched:       sched,
		startedAt:   time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", s.interceptor)
	mux.HandleFunc("/v1/sync", s.syncHandler)
	mux.HandleFunc("/v1/queue", s.queueHandler)
	mux.HandleFunc("/v1/failures", s.failuresHandler)
	mux.HandleFunc("/v1/failures/", s.failureItemHandler)
	mux.HandleFunc("/v1/generation", s.generationHandler)
	mux.HandleFunc("/v1/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}
