// Package api exposes a memory Service over HTTP for operators and for
// hosts that capture turns out of process.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/metrics"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("api")
	if err != nil {
		debugLog.Warnf("Failed to initialize api logger, using stderr fallback: %v", err)
	}
}

// NewRouter creates the chi router with all routes and middleware. m may be
// nil, in which case /metrics answers 404.
func NewRouter(svc *memory.Service, m *metrics.Manager) chi.Router {
	if m == nil {
		m = metrics.NoOpManager()
	}
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Recovery)
	r.Use(Metrics(m))
	r.Use(AccessLog)

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/episodic", h.Episodic)
	r.Get("/semantic", h.Semantic)
	r.Post("/run", h.Run)
	r.Get("/schedule", h.Schedule)
	r.Put("/schedule", h.UpdateSchedule)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Post("/turns", h.AppendTurn)
		r.Post("/close", h.CloseSession)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}
