package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/monitoring"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/orchestrator"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/override"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for triggering and inspecting ingestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := buildPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(monitoring.NewCollector(env.Store, env.Breakers), env.Alerter, cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(ctx, env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server holds the handlers' dependencies. Runs started over HTTP use ctx
// so they outlive the request.
type server struct {
	ctx       context.Context
	orch      *orchestrator.Orchestrator
	overrides *override.Manager

	mu       sync.Mutex
	inflight map[string]bool
}

func newServer(ctx context.Context, env *pipelineEnv) *server {
	return &server{
		ctx:       ctx,
		orch:      env.Orchestrator,
		overrides: override.NewManager(env.Store),
		inflight:  make(map[string]bool),
	}
}

func buildRouter(ctx context.Context, env *pipelineEnv) chi.Router {
	return newServer(ctx, env).routes()
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/ingest", s.handleIngest)
	r.Get("/executions", s.handleExecutions)
	r.Route("/overrides", func(r chi.Router) {
		r.Get("/", s.handleListOverrides)
		r.Post("/", s.handleCreateOverride)
		r.Get("/stats", s.handleOverrideStats)
		r.Post("/{id}/approve", s.handleApproveOverride)
		r.Delete("/{id}", s.handleDeactivateOverride)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.orch.HealthCheck(r.Context())
	status := http.StatusOK
	if rep.Status == orchestrator.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var ic model.IngestionConfig
	if err := json.NewDecoder(r.Body).Decode(&ic); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ic.Season < 2000 || ic.Season > 2100 || ic.Week < 0 || ic.Week > 20 {
		writeError(w, http.StatusBadRequest, "season and week are out of range")
		return
	}
	if len(ic.Adapters) == 0 {
		ic.Adapters = cfgAdapters()
	}

	key := fmt.Sprintf("%dW%d", ic.Season, ic.Week)
	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "ingestion already running for "+key)
		return
	}
	s.inflight[key] = true
	s.mu.Unlock()

	run := func(ctx context.Context) *model.IngestionResult {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
		}()
		return s.orch.Execute(ctx, ic)
	}

	if r.URL.Query().Get("wait") == "true" {
		res := run(r.Context())
		status := http.StatusOK
		if !res.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, res)
		return
	}

	go func() {
		res := run(s.ctx)
		zap.L().Info("http ingestion complete",
			zap.String("execution_id", res.ExecutionID),
			zap.Bool("success", res.Success),
		)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "target": key})
}

// cfgAdapters returns the configured default adapter list.
func cfgAdapters() []string {
	if cfg == nil {
		return nil
	}
	if len(cfg.Ingest.Adapters) > 0 {
		return cfg.Ingest.Adapters
	}
	names := make([]string, 0, len(cfg.Adapters.Feeds))
	for _, f := range cfg.Adapters.Feeds {
		names = append(names, f.Name)
	}
	return names
}

func (s *server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	season, err := queryInt(r, "season", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	execs, err := s.orch.History(r.Context(), season, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if execs == nil {
		execs = []model.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OverrideFilter{
		PlayerID:    q.Get("player_id"),
		FieldName:   q.Get("field_name"),
		ActiveOnly:  q.Get("active") == "true",
		PendingOnly: q.Get("pending") == "true",
	}
	var err error
	if filter.Season, err = queryInt(r, "season", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Has("week") {
		wk, err := queryInt(r, "week", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Week = &wk
	}

	list, err := s.overrides.Search(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []model.ManualOverride{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	var req override.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.overrides.Create(r.Context(), req)
	var invalid *override.InvalidError
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": invalid.Errors})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, res)
	}
}

func (s *server) handleOverrideStats(w http.ResponseWriter, r *http.Request) {
	season, err := queryInt(r, "season", time.Now().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := s.overrides.Stats(r.Context(), season)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type actorRequest struct {
	By     string `json:"by"`
	Reason string `json:"reason"`
}

func decodeActor(r *http.Request) actorRequest {
	var a actorRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&a)
	}
	if a.By == "" {
		a.By = "api"
	}
	return a
}

func (s *server) handleApproveOverride(w http.ResponseWriter, r *http.Request) {
	a := decodeActor(r)
	o, err := s.overrides.Approve(r.Context(), chi.URLParam(r, "id"), a.By)
	if err != nil {
		writeError(w, overrideErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *server) handleDeactivateOverride(w http.ResponseWriter, r *http.Request) {
	a := decodeActor(r)
	if err := s.overrides.Deactivate(r.Context(), chi.URLParam(r, "id"), a.By, a.Reason); err != nil {
		writeError(w, overrideErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// overrideErrorStatus maps manager errors to HTTP statuses by message.
func overrideErrorStatus(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "already approved"), strings.Contains(msg, "does not require approval"):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
