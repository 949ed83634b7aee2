// Package health serves the dependency health endpoint.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// Optional marks a dependency whose failure degrades the service without
// making it unhealthy, such as the rate-limit store which fails open.
func Optional(c Checker) Checker { return optional{c} }

type optional struct{ Checker }

type Handler struct {
	checks map[string]Checker
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, checks map[string]Checker) *Handler {
	return &Handler{checks: checks, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.check)
	return r
}

type result struct {
	Status string `json:"status"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]result, len(h.checks))
	status := http.StatusOK

	for name, c := range h.checks {
		err := c.Check(ctx)
		if err == nil {
			results[name] = result{Status: "ok"}
			continue
		}
		if _, ok := c.(optional); ok {
			h.logger.Warn("health check degraded", "name", name, "error", err)
			results[name] = result{Status: "degraded"}
			continue
		}
		h.logger.Error("health check failed", "name", name, "error", err)
		results[name] = result{Status: "error"}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(results)
}
