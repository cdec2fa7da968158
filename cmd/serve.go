package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sightline-ai/visibility-cli/internal/learning"
	"github.com/sightline-ai/visibility-cli/internal/monitoring"
	"github.com/sightline-ai/visibility-cli/internal/network"
	"github.com/sightline-ai/visibility-cli/internal/platform"
	"github.com/sightline-ai/visibility-cli/internal/prediction"
	"github.com/sightline-ai/visibility-cli/internal/scheduler"
	"github.com/sightline-ai/visibility-cli/internal/store"
	"github.com/sightline-ai/visibility-cli/internal/syncer"
)

var servePort int

// serverEnv bundles the long-lived services behind the HTTP surface. Any
// field may be nil in tests; handlers that need a missing service return 503.
type serverEnv struct {
	store      store.Store
	learning   *learning.Engine
	syncEngine *syncer.Engine
	sched      *scheduler.Scheduler
	prediction *prediction.Engine
	collector  *monitoring.Collector
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: HTTP surface, sync consumer, scheduler, monitoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		registry := platform.RegistryFromConfig(cfg.Platforms)
		syncEngine := syncer.NewEngine(cfg.Sync, registry, st)
		syncEngine.Start(ctx)
		defer syncEngine.Stop()

		learnEngine := learning.NewEngine()
		predEngine := prediction.NewEngine(st)

		sched := scheduler.New(cfg.Scheduler)
		if err := scheduler.RegisterCatalog(sched, scheduler.Deps{
			Store:      st,
			Learning:   learnEngine,
			Syncer:     syncEngine,
			Network:    network.NewIndexer(st),
			Prediction: predEngine,
			Config:     cfg.Learning,
		}); err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()

		collector := monitoring.NewCollector(st, syncEngine, sched)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		router := buildRouter(&serverEnv{
			store:      st,
			learning:   learnEngine,
			syncEngine: syncEngine,
			sched:      sched,
			prediction: predEngine,
			collector:  collector,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func buildRouter(env *serverEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/domains", env.handleListDomains)
		r.Get("/graphs/{domain}", env.handleGetGraph)
		r.Post("/learn/{domain}", env.handleLearn)
		r.Get("/predictions/{domain}", env.handleGetPrediction)
		r.Get("/network-effects", env.handleNetworkEffects)
		r.Get("/sync/metrics", env.handleSyncMetrics)
		r.Get("/sync/operations/{id}", env.handleGetOperation)
		r.Get("/jobs", env.handleListJobs)
		r.Post("/jobs/{id}/run", env.handleRunJob)
		r.Post("/jobs/{id}/enable", env.handleEnableJob)
		r.Post("/jobs/{id}/disable", env.handleDisableJob)
		r.Get("/status", env.handleStatus)
	})

	return r
}

func (env *serverEnv) handleListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := env.store.ListDomains(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

func (env *serverEnv) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := env.store.GetGraph(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "graph not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (env *serverEnv) handleLearn(w http.ResponseWriter, r *http.Request) {
	apply, _ := strconv.ParseBool(r.URL.Query().Get("apply"))

	res, err := runLearningPass(r.Context(), env.store, env.learning, env.syncEngine,
		chi.URLParam(r, "domain"), apply)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "graph not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (env *serverEnv) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if env.prediction == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction engine not running")
		return
	}
	p, err := env.prediction.Forecast(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "graph not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (env *serverEnv) handleNetworkEffects(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	effects, err := env.store.ListNetworkEffects(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"effects": effects})
}

func (env *serverEnv) handleSyncMetrics(w http.ResponseWriter, r *http.Request) {
	if env.syncEngine == nil {
		writeError(w, http.StatusServiceUnavailable, "sync engine not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": env.syncEngine.PendingOperations(),
		"domains": env.syncEngine.Metrics().All(),
	})
}

func (env *serverEnv) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if env.syncEngine == nil {
		writeError(w, http.StatusServiceUnavailable, "sync engine not running")
		return
	}
	op, ok := env.syncEngine.Operation(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (env *serverEnv) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if env.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": env.sched.List()})
}

func (env *serverEnv) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if env.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := env.sched.Status(id); !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err := env.sched.TriggerNow(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	status, _ := env.sched.Status(id)
	writeJSON(w, http.StatusOK, status)
}

func (env *serverEnv) handleEnableJob(w http.ResponseWriter, r *http.Request) {
	env.setJobEnabled(w, r, true)
}

func (env *serverEnv) handleDisableJob(w http.ResponseWriter, r *http.Request) {
	env.setJobEnabled(w, r, false)
}

func (env *serverEnv) setJobEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if env.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	id := chi.URLParam(r, "id")
	var err error
	if enabled {
		err = env.sched.Enable(id)
	} else {
		err = env.sched.Disable(id)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	status, _ := env.sched.Status(id)
	writeJSON(w, http.StatusOK, status)
}

func (env *serverEnv) handleStatus(w http.ResponseWriter, r *http.Request) {
	if env.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "collector not running")
		return
	}
	snap, err := env.collector.Collect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
