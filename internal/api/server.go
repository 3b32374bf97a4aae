package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"reliefops/internal/analytics"
	"reliefops/internal/auth"
	"reliefops/internal/buildinfo"
	"reliefops/internal/config"
	"reliefops/internal/geofence"
	"reliefops/internal/metrics"
	"reliefops/internal/store"
	"reliefops/internal/webhooks"
)

// Server wires the store, event fan-out, analytics engine, and geofence
// tracker behind the HTTP handlers.
type Server struct {
	Cfg     *config.Config
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Log     *zap.Logger
	Engine  *analytics.Engine
	Tracker *geofence.Tracker

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter // per-tenant fix ingest limiters
}

// NewServer builds a Server from configuration. An empty DATABASE_URL
// selects the in-memory store; an empty REDIS_URL the in-process broker.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
		log.Info("using in-memory store")
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Warn("migrations failed", zap.Error(err))
			}
		}
		st = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Warn("redis broker unavailable, falling back to in-process", zap.Error(err))
			broker = NewBroker()
		} else {
			broker = rb
		}
	} else {
		broker = NewBroker()
	}

	engine := analytics.NewEngine(analytics.Config{
		MaxFixesPerUnit: cfg.Analytics.MaxFixesPerUnit,
		MaxSpeedKph:     cfg.Analytics.MaxSpeedKph,
	})

	return &Server{
		Cfg:      cfg,
		Store:    st,
		Pub:      webhooks.NewPublisher(st),
		Auth:     auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret),
		Broker:   broker,
		Log:      log,
		Engine:   engine,
		Tracker:  geofence.NewTracker(),
		limiters: map[string]*rate.Limiter{},
	}, nil
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Log, s.Cfg.Webhooks.MaxAttempts, s.Cfg.Webhooks.PollEvery)
}

// ingestLimiter returns the per-tenant rate limiter for fix ingestion.
func (s *Server) ingestLimiter(tenant string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := s.limiters[tenant]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.Cfg.Analytics.IngestRatePerSec), s.Cfg.Analytics.IngestBurst)
		s.limiters[tenant] = lim
	}
	return lim
}

// Router mounts every handler.
func (s *Server) Router() http.Handler {
	metrics.RegisterDefault()
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, buildinfo.Info())
	})
	r.Method(http.MethodGet, s.Cfg.HTTP.MetricsPath,
		promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Get("/openapi.yaml", s.OpenAPIHandler)
	r.Get("/docs", s.DocsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/needs", s.CreateNeedsHandler)
		r.Get("/needs", s.ListNeedsHandler)
		r.Get("/needs/{id}", s.GetNeedHandler)
		r.Patch("/needs/{id}", s.PatchNeedHandler)

		r.Post("/teams", s.UpsertTeamHandler)
		r.Get("/teams", s.ListTeamsHandler)

		r.Post("/dispatch/plan", s.PlanHandler)

		r.Get("/missions", s.ListMissionsHandler)
		r.Get("/missions/{id}", s.GetMissionHandler)
		r.Patch("/missions/{id}", s.PatchMissionHandler)
		r.Post("/missions/{id}/assign", s.AssignMissionHandler)
		r.Post("/missions/{id}/advance", s.AdvanceMissionHandler)
		r.Get("/missions/{id}/events/stream", s.MissionEventsStreamHandler)

		r.Post("/field-events", s.FieldEventsHandler)

		r.Post("/inventory/items", s.CreateInventoryItemHandler)
		r.Get("/inventory/items", s.ListInventoryItemsHandler)
		r.Get("/inventory/items/{id}", s.GetInventoryItemHandler)
		r.Patch("/inventory/items/{id}", s.PatchInventoryItemHandler)
		r.Post("/inventory/items/{id}/movements", s.StockMovementHandler)
		r.Get("/inventory/items/{id}/movements", s.ListStockMovementsHandler)

		r.Post("/geofences", s.CreateGeofenceHandler)
		r.Get("/geofences", s.ListGeofencesHandler)
		r.Get("/geofences/{id}", s.GetGeofenceHandler)
		r.Patch("/geofences/{id}", s.PatchGeofenceHandler)
		r.Delete("/geofences/{id}", s.DeleteGeofenceHandler)

		r.Post("/analytics/fixes", s.IngestFixesHandler)
		r.Get("/analytics/patterns", s.PatternsHandler)
		r.Get("/analytics/units/{unitId}/patterns", s.UnitPatternsHandler)
		r.Get("/analytics/units/{unitId}/suggestions", s.UnitSuggestionsHandler)
		r.Get("/analytics/summary", s.AnalyticsSummaryHandler)

		r.Post("/subscriptions", s.CreateSubscriptionHandler)
		r.Get("/subscriptions", s.ListSubscriptionsHandler)
		r.Delete("/subscriptions/{id}", s.DeleteSubscriptionHandler)

		r.Get("/ops/ws", s.OpsWSHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/webhooks/deliveries", s.ListWebhookDeliveriesHandler)
			r.Post("/webhooks/deliveries/{id}/retry", s.RetryWebhookDeliveryHandler)
			r.Get("/webhooks/dlq", s.ListWebhookDLQHandler)
			r.Post("/webhooks/dlq/{id}/requeue", s.RequeueWebhookDLQHandler)
			r.Get("/plan-metrics", s.ListPlanMetricsHandler)
			r.Get("/mission-stats", s.MissionStatsHandler)
		})
	})
	return r
}
