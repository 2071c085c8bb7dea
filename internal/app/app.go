// Package app is the boot & service registry (§2 Component I): builds
// every dependency once, in order, and threads it into the handlers and
// workers that need it — no package-level globals hold live connections.
// Boot order (store -> cache -> log -> consumers -> listener) is
// grounded on the teacher-pack's Daniil11ru-EGTS main.go, which brings
// up its primary data source before the server and API goroutines.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fleettrack/internal/api"
	"fleettrack/internal/auth"
	"fleettrack/internal/broker"
	"fleettrack/internal/cache"
	"fleettrack/internal/config"
	"fleettrack/internal/eventlog"
	"fleettrack/internal/gate"
	"fleettrack/internal/ingress"
	"fleettrack/internal/logging"
	"fleettrack/internal/pipeline"
	"fleettrack/internal/sos"
	"fleettrack/internal/store"
	fthttp "fleettrack/internal/transport/http"
)

// App holds every live dependency for the lifetime of the process.
type App struct {
	cfg *config.Config

	Store *store.Store
	Cache cache.Cacher
	Bus   eventlog.Bus // nil when NATS_URL is unset: direct-write fallback only

	hub     *broker.Hub
	server  *http.Server
	workers []worker
}

type worker interface {
	Run(ctx context.Context) error
}

// Build constructs the App in dependency order. A failure to reach
// Postgres is fatal; a failure to reach Redis or NATS demotes to the
// in-process fallback rather than failing boot, per spec.md §4.A/§4.C.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	hist, err := store.New(ctx, cfg.DBURI, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("app: history store: %w", err)
	}

	hotCache := buildCache(ctx, cfg)

	var bus eventlog.Bus
	if cfg.NATSURL != "" {
		natsBus, err := eventlog.NewNATSBus(ctx, cfg.NATSURL)
		if err != nil {
			logging.Warn().Err(err).Msg("app: nats unavailable, event log disabled, using direct-write fallback only")
		} else {
			bus = natsBus
		}
	}

	activeBus := eventlog.Bus(eventlog.NoopBus{})
	if bus != nil {
		activeBus = bus
	}

	authenticator := auth.New(cfg.JWTSecret, 5*time.Minute)
	sosGate := sos.New(cfg.SOSCreditsPerUser, cfg.SOSPerIPPerDay)
	hub := broker.NewHub()
	direct := pipeline.NewDirectWriter(hist, hub)
	g := gate.New(hotCache).WithThresholds(cfg.ThrottleMax, cfg.ThrottleWindow, cfg.DeadZoneMinM)
	ingestor := ingress.New(g, hotCache, activeBus, direct)

	a := &App{
		cfg:   cfg,
		Store: hist,
		Cache: hotCache,
		Bus:   bus,
		hub:   hub,
	}

	if bus != nil {
		a.workers = []worker{
			pipeline.NewPersistenceWorker(bus, hist, cfg.DBBatchSize, time.Duration(cfg.DBFlushIntervalMS)*time.Millisecond),
			pipeline.NewFanoutWorker(bus, hub, time.Duration(cfg.FanoutFlushIntervalMS)*time.Millisecond),
			pipeline.NewAlertProcessor(bus, hub),
			pipeline.NewVehicleEventsProcessor(bus, hub),
		}
	}

	brokerDeps := &broker.Deps{Hub: hub, Cache: hotCache, Store: hist, Auth: authenticator, Ingest: ingestor}
	authMW := fthttp.NewAuthMiddleware(authenticator)

	router := api.NewRouter(&api.Deps{
		Ingest:      ingestor,
		Cache:       hotCache,
		Store:       hist,
		Bus:         activeBus,
		SOS:         sosGate,
		AuthMW:      authMW,
		BrokerDeps:  brokerDeps,
		ClientURL:   cfg.ClientURL,
		HealthCheck: a.healthFlags,
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func buildCache(ctx context.Context, cfg *config.Config) cache.Cacher {
	if cfg.RedisURL == "" {
		logging.Info().Msg("app: REDIS_URL unset, using in-process cache")
		return cache.NewLocalCache(cfg.CacheTTL)
	}
	redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		logging.Warn().Err(err).Msg("app: redis unreachable, falling back to in-process cache")
		return cache.NewLocalCache(cfg.CacheTTL)
	}
	return redisCache
}

// Run starts every background worker and the HTTP/WS listener, blocking
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	for _, w := range a.workers {
		w := w
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("app: worker exited with error")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", a.server.Addr).Msg("app: listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.hub.Stop()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("app: http server shutdown error")
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	_ = a.Cache.Close()
	a.Store.Close()
	return nil
}

func (a *App) healthFlags() map[string]bool {
	flags := map[string]bool{"store": true, "cache": true, "eventlog": a.Bus != nil}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.Store.Ping(ctx); err != nil {
		flags["store"] = false
	}
	if err := a.Cache.Ping(ctx); err != nil {
		flags["cache"] = false
	}
	return flags
}
