package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/api/handlers"
	mw "github.com/arjunp-dev/ledgermind/internal/api/middleware"
	"github.com/arjunp-dev/ledgermind/internal/config"
	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/evidence"
	"github.com/arjunp-dev/ledgermind/internal/resilience"
	"github.com/arjunp-dev/ledgermind/internal/service"
	"github.com/arjunp-dev/ledgermind/internal/similarity"
	"github.com/arjunp-dev/ledgermind/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and shared infrastructure for lifecycle management.
type App struct {
	Router *chi.Mux
	Budget *resilience.Budget

	startTime time.Time
	counters  mw.Counters
}

// NewApp wires stores, services and handlers over the two pools: memDB is
// the memory ledger, truthDB the read-only codebase analysis store.
func NewApp(memDB, truthDB *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	memoryStore := store.NewMemoryStore(memDB)
	graphStore := store.NewGraphStore(memDB)
	snapshotStore := store.NewSnapshotStore(memDB)
	conflictStore := store.NewConflictStore(memDB)

	// Shared resilience
	budget := resilience.NewBudget(config.ErrorBudgetThreshold(), logger)
	retrier := resilience.NewRetrier(config.RetryMaxAttempts(), logger)

	// External collaborators
	source := evidence.NewGroundTruthSource(truthDB, config.EvidenceSourceName(), logger)

	simProvider, err := similarity.NewProvider(config.SimilarityProvider(), truthDB, logger)
	if err != nil {
		logger.Warn("similarity provider initialization failed",
			zap.String("provider", config.SimilarityProvider()), zap.Error(err))
		simProvider = similarity.NewMockProvider()
	} else {
		logger.Info("similarity provider initialized", zap.String("provider", config.SimilarityProvider()))
	}

	// Services
	memorySvc := service.NewMemoryService(memoryStore, graphStore, retrier, budget, logger)
	graphSvc := service.NewGraphService(graphStore, budget, logger)
	inferenceSvc := service.NewInferenceService(memoryStore, graphSvc, simProvider, logger)
	conflictSvc := service.NewConflictService(memorySvc, conflictStore, graphSvc, simProvider, logger)
	weightEngine := service.NewWeightEngine(snapshotStore, config.WeightHalfLifeDays(), logger)
	groundingSvc := service.NewGroundingService(
		memorySvc, graphSvc, inferenceSvc, conflictSvc,
		snapshotStore, source, weightEngine, budget,
		config.VerdictThresholds(), logger)
	groundingSvc.SetParallelism(config.GroundingParallelism())

	// Handlers
	memoryHandler := handlers.NewMemoryHandler(memorySvc)
	graphHandler := handlers.NewGraphHandler(graphSvc)
	groundingHandler := handlers.NewGroundingHandler(groundingSvc, weightEngine, config.GroundingBatchCap())
	conflictHandler := handlers.NewConflictHandler(conflictSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Budget:    budget,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.CountRequests(&app.counters))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", app.healthHandler(memDB, truthDB))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Memories
		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Create)
			r.Get("/", memoryHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Patch("/", memoryHandler.Update)
				r.Get("/versions", memoryHandler.Versions)
				r.Post("/close", memoryHandler.Close)
				r.Post("/archive", memoryHandler.Archive)
				r.Post("/confidence", memoryHandler.AdjustConfidence)
				r.Get("/snapshots", groundingHandler.Snapshots)
				r.Post("/ground", groundingHandler.Ground)
			})
		})

		// Causal graph
		r.Route("/graph", func(r chi.Router) {
			r.Post("/edges", graphHandler.AddEdge)
			r.Get("/edges/{id}", graphHandler.Edges)
			r.Get("/trace/{id}", graphHandler.Trace)
			r.Get("/path", graphHandler.FindPath)
			r.Post("/prune", graphHandler.Prune)
		})

		// Grounding
		r.Route("/grounding", func(r chi.Router) {
			r.Post("/batch", groundingHandler.GroundBatch)
			r.Get("/weights", groundingHandler.Weights)
		})

		// Conflicts
		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", conflictHandler.ListOpen)
			r.Post("/detect", conflictHandler.Detect)
			r.Post("/{id}/resolve", conflictHandler.Resolve)
		})
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage no lifecycle.
func NewRouter(memDB, truthDB *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(memDB, truthDB, logger).Router
}

// healthHandler pings both pools and reports degraded dependencies from
// the error budget. A failing ground-truth store degrades, it does not
// fail: the ledger still serves reads and writes.
func (app *App) healthHandler(memDB, truthDB *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := memDB.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": err.Error()})
			return
		}

		status := "ok"
		body := map[string]any{"status": status}

		if err := truthDB.Ping(r.Context()); err != nil {
			status = "degraded"
			body["status"] = status
			body["ground_truth_error"] = err.Error()
		}

		if degraded := app.Budget.Status(); len(degraded) > 0 {
			body["dependencies"] = degraded
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.counters.Requests.Load(),
			"error_count":    app.counters.Errors.Load(),
			"in_flight":      app.counters.InFlight.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and collaborators satisfy interfaces at compile time.
var (
	_ domain.MemoryStore        = (*store.MemoryStore)(nil)
	_ domain.GraphStore         = (*store.GraphStore)(nil)
	_ domain.SnapshotStore      = (*store.SnapshotStore)(nil)
	_ domain.ConflictStore      = (*store.ConflictStore)(nil)
	_ domain.EvidenceSource     = (*evidence.GroundTruthSource)(nil)
	_ domain.SimilarityProvider = (*similarity.PgVectorProvider)(nil)
	_ domain.SimilarityProvider = (*similarity.MockProvider)(nil)
)
