// Package api provides HTTP handlers for the sync agent's control endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
)

// defaultQueueListLimit caps queue listings unless the caller asks for more.
const defaultQueueListLimit = 100

// syncHandler triggers a drain pass. The pass runs asynchronously; callers
// poll /v1/queue or /v1/status to observe progress.
func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	slog.Debug("Server.syncHandler: manual sync requested")
	s.syncer.Kick()
	writeEnvelope(w, http.StatusAccepted, models.SuccessWithMessage("sync triggered", nil))
}

// queueHandler lists pending mutations in delivery order.
func (s *Server) queueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	limit := defaultQueueListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeEnvelope(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	pending, err := s.store.ListPendingMutations(limit)
	if err != nil {
		slog.Error("Server.queueHandler: list failed", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to list queue"))
		return
	}
	depth, err := s.store.CountPendingMutations()
	if err != nil {
		slog.Error("Server.queueHandler: count failed", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to count queue"))
		return
	}
	writeEnvelope(w, http.StatusOK, models.Success(map[string]interface{}{
		"depth":     depth,
		"mutations": pending,
	}))
}

// failuresHandler lists archived permanent failures for operator triage.
func (s *Server) failuresHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	failures, err := s.store.ListPermanentFailures()
	if err != nil {
		slog.Error("Server.failuresHandler: list failed", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to list failures"))
		return
	}
	writeEnvelope(w, http.StatusOK, models.Success(map[string]interface{}{
		"count":    len(failures),
		"failures": failures,
	}))
}

// failureItemHandler handles per-failure operator decisions:
// DELETE /v1/failures/{id} discards, POST /v1/failures/{id}/retry resubmits.
func (s *Server) failureItemHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/failures/")
	if rest == "" {
		writeEnvelope(w, http.StatusBadRequest, models.Error("missing failure ID"))
		return
	}

	if id, ok := strings.CutSuffix(rest, "/retry"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		s.retryFailure(w, id)
		return
	}

	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w, http.MethodDelete)
		return
	}
	if err := s.store.DeletePermanentFailure(rest); err != nil {
		slog.Warn("Server.failureItemHandler: discard failed", "id", rest, "error", err)
		writeEnvelope(w, http.StatusNotFound, models.Error("no archived failure with that ID"))
		return
	}
	slog.Info("Server.failureItemHandler: failure discarded", "id", rest)
	writeEnvelope(w, http.StatusOK, models.SuccessWithMessage("failure discarded", nil))
}

// retryFailure moves an archived failure back to the pending queue with a
// fresh retry budget. The mutation keeps its ID so an origin that
// deduplicates still recognizes it.
func (s *Server) retryFailure(w http.ResponseWriter, id string) {
	m, err := s.store.GetMutation(id)
	if err != nil {
		slog.Error("Server.retryFailure: lookup failed", "id", id, "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to look up mutation"))
		return
	}
	if m == nil || m.State != store.MutationStateFailedPermanent {
		writeEnvelope(w, http.StatusNotFound, models.Error("no archived failure with that ID"))
		return
	}

	if err := s.store.DeletePermanentFailure(id); err != nil {
		slog.Error("Server.retryFailure: unarchive failed", "id", id, "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to resubmit mutation"))
		return
	}
	if _, err := s.store.EnqueueMutation(store.QueuedMutation{
		ID:          m.ID,
		Subject:     m.Subject,
		TargetURL:   m.TargetURL,
		Method:      m.Method,
		Payload:     m.Payload,
		ContentType: m.ContentType,
		MaxAttempts: m.MaxAttempts,
	}); err != nil {
		slog.Error("Server.retryFailure: re-enqueue failed", "id", id, "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to resubmit mutation"))
		return
	}

	slog.Info("Server.retryFailure: failure resubmitted", "id", id, "subject", m.Subject)
	s.syncer.Kick()
	writeEnvelope(w, http.StatusAccepted, models.SuccessWithMessage("mutation resubmitted", map[string]interface{}{
		"mutation_id": m.ID,
	}))
}

// generationHandler rolls the cache over to a new generation.
func (s *Server) generationHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeEnvelope(w, http.StatusOK, models.Success(map[string]interface{}{
			"generation": s.lifecycle.Current(),
		}))
	case http.MethodPost:
		if r.Body != nil {
			defer r.Body.Close()
		}
		var req struct {
			Generation string `json:"generation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeEnvelope(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		purged, err := s.lifecycle.Activate(req.Generation)
		if err != nil {
			if errors.Is(err, models.ErrEmptyGeneration) {
				writeEnvelope(w, http.StatusBadRequest, models.Error(err.Error()))
				return
			}
			slog.Error("Server.generationHandler: activation failed", "error", err)
			writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to activate generation"))
			return
		}
		writeEnvelope(w, http.StatusOK, models.SuccessWithMessage("generation activated", map[string]interface{}{
			"generation": req.Generation,
			"purged":     purged,
		}))
	default:
		writeMethodNotAllowed(w, "GET, POST")
	}
}

// statusHandler reports the agent's sync posture in one call.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	depth, err := s.store.CountPendingMutations()
	if err != nil {
		slog.Error("Server.statusHandler: count failed", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to read queue depth"))
		return
	}
	failures, err := s.store.ListPermanentFailures()
	if err != nil {
		slog.Error("Server.statusHandler: failures lookup failed", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.Error("failed to read failures"))
		return
	}

	status := map[string]interface{}{
		"queue_depth":        depth,
		"permanent_failures": len(failures),
		"generation":         s.lifecycle.Current(),
		"started_at":         s.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds":     int(time.Since(s.startedAt).Seconds()),
	}
	if s.watcher != nil {
		status["online"] = s.watcher.Online()
	}
	if s.sched != nil {
		status["scheduled_jobs"] = s.sched.JobCount()
		if next := s.sched.NextRun(); !next.IsZero() {
			status["next_scheduled_sync"] = next.UTC().Format(time.RFC3339)
		}
	}
	writeEnvelope(w, http.StatusOK, models.Success(status))
}

// healthHandler is the liveness probe.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
