package http

import (
	"context"
	"net/http"
	"time"

	"ledger/internal/log"
)

const readyTimeout = 3 * time.Second

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady reports whether the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.api.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
			log.FieldComponent, log.ComponentBackend,
			log.FieldError, err)
		NewJSONResponse().
			Status(http.StatusServiceUnavailable).
			Body(map[string]string{"status": "unavailable"}).
			Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// handleNotFound answers every request no route matched, including known
// paths hit with an unsupported method.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError().Write(w)
}
