package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"fleettrack/internal/auth"
	"fleettrack/internal/broker"
	"fleettrack/internal/cache"
	"fleettrack/internal/eventlog"
	"fleettrack/internal/ingress"
	"fleettrack/internal/metrics"
	"fleettrack/internal/sos"
	"fleettrack/internal/store"
	fthttp "fleettrack/internal/transport/http"
)

// Deps is every dependency a handler needs, built once at boot and
// closed over by the route closures rather than held in globals.
type Deps struct {
	Ingest      *ingress.Service
	Cache       cache.Cacher
	Store       *store.Store
	Bus         eventlog.Bus
	SOS         *sos.Gate
	AuthMW      *fthttp.AuthMiddleware
	BrokerDeps  *broker.Deps
	ClientURL   string
	HealthCheck func() map[string]bool
}

// NewRouter builds the full chi mux: ingress, query, ambient report/SOS
// transport, /ws, /health, /metrics.
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(fthttp.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.ClientURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	// Coarse per-IP request cap, ahead of and independent from the
	// per-vehicle gate in internal/gate — this protects the HTTP surface
	// itself rather than the ingest pipeline behind it.
	r.Use(httprate.LimitByIP(300, time.Minute))

	h := &handlers{deps: d}

	r.Route("/api/vehicles", func(r chi.Router) {
		r.Post("/{id}/location", h.pushLocation)
		r.Post("/batch/locations", h.pushBatchLocations)
		r.Get("/{id}/location", h.getLocation)
		r.Get("/{id}/history", h.getHistory)
	})
	r.Get("/api/nearby", h.getNearby)

	r.Group(func(r chi.Router) {
		r.Use(d.AuthMW.RequireAuth)
		r.Post("/api/reports", h.postReport)
		r.Post("/api/sos", h.postSOS)
	})

	r.Get("/ws", broker.UpgradeHandler(d.BrokerDeps))
	r.Get("/health", h.health)
	r.Handle("/metrics", metrics.Handler())

	return r
}

type handlers struct {
	deps *Deps
}

func identityFromCtx(r *http.Request) (*auth.Identity, bool) {
	return fthttp.Identity(r.Context())
}
