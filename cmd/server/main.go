package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/farmstead/automation/alerts"
	"github.com/farmstead/automation/internal/logger"
	"github.com/farmstead/automation/rules"
	"github.com/farmstead/automation/toast"
)

// Config is read from the environment. With no DATABASE_URL the server
// runs on in-memory stores, which is enough for a single dashboard
// process.
type Config struct {
	Addr        string        `env:"ADDR" envDefault:":8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	RecordMode  string        `env:"RECORD_MODE" envDefault:"after"` // after | before
	ToastLife   time.Duration `env:"TOAST_LIFETIME" envDefault:"6s"`
}

type Server struct {
	engine     *rules.Engine
	dispatcher *alerts.Dispatcher
	toasts     *toast.Scheduler
	executor   rules.ActionExecutor
	db         *sql.DB
	router     *chi.Mux
}

func NewServer(cfg Config) (*Server, error) {
	var (
		db         *sql.DB
		ruleStore  rules.RuleStore
		alertStore alerts.AlertStore
	)

	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		ruleStore = rules.NewPostgresRuleStore(db)
		alertStore = alerts.NewPostgresAlertStore(db)
	} else {
		ruleStore = rules.NewInMemoryRuleStore()
		alertStore = alerts.NewInMemoryAlertStore()
	}

	mode := rules.RecordAfterAction
	if cfg.RecordMode == "before" {
		mode = rules.RecordBeforeAction
	}

	engine, err := rules.NewEngine(ruleStore, rules.WithRecordMode(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	dispatcher := alerts.NewDispatcher(alertStore)

	toastCfg := toast.DefaultConfig()
	if cfg.ToastLife > 0 {
		toastCfg.Lifetime = cfg.ToastLife
	}

	s := &Server{
		engine:     engine,
		dispatcher: dispatcher,
		toasts:     toast.New(dispatcher, toastCfg),
		executor:   &alertingExecutor{dispatcher: dispatcher},
		db:         db,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/summary", s.handleRuleSummary)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
			r.Post("/toggle", s.handleToggleRule)
		})
	})

	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Post("/task-deadline", s.handleTaskDeadline)
		r.Post("/stage-change", s.handleStageChange)
		r.Post("/wallet", s.handleWalletEvent)
	})

	r.Route("/api/v1/alerts", func(r chi.Router) {
		r.Get("/", s.handleListAlerts)
		r.Get("/unacknowledged", s.handleUnacknowledged)
		r.Post("/{alertId}/ack", s.handleAcknowledge)
	})

	r.Route("/api/v1/toasts", func(r chi.Router) {
		r.Get("/", s.handleToasts)
		r.Post("/{alertId}/dismiss", s.handleDismissToast)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" || len(req.Trigger) == 0 || req.Action.Kind == "" {
		respondError(w, http.StatusBadRequest, "name, trigger, and action are required", nil)
		return
	}

	trigger, err := rules.UnmarshalTrigger(req.Trigger)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trigger", err)
		return
	}

	rule := rules.NewRule(req.Name, req.Description, trigger, req.Action)
	if err := s.engine.AddRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}

	s.respondRule(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	all, err := s.engine.ListRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	if kind := r.URL.Query().Get("trigger"); kind != "" {
		all = rules.ByTrigger(all, rules.TriggerKind(kind))
	}
	if kind := r.URL.Query().Get("action"); kind != "" {
		all = rules.ByAction(all, rules.ActionKind(kind))
	}
	if r.URL.Query().Get("active") == "true" {
		all = rules.ActiveRules(all)
	}

	out := make([]RuleResponse, 0, len(all))
	for _, rule := range all {
		resp, err := toRuleResponse(rule)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
			return
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (s *Server) handleRuleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Summary()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to summarize rules", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	s.respondRule(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if len(req.Trigger) > 0 {
		trigger, err := rules.UnmarshalTrigger(req.Trigger)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid trigger", err)
			return
		}
		rule.Trigger = trigger
	}
	if req.Action != nil {
		rule.Action = *req.Action
	}
	if req.Status != nil {
		// Administrative path: the only way in or out of disabled.
		rule.Status = *req.Status
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := s.engine.UpdateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update rule", err)
		return
	}
	s.respondRule(w, http.StatusOK, rule)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.ToggleRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	s.respondRule(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	snap := rules.Context{
		Metrics:       req.Metrics,
		CurrentStage:  req.CurrentStage,
		PreviousStage: req.PreviousStage,
	}

	start := time.Now()
	results, err := s.engine.FireAll(r.Context(), snap, s.executor)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}

	out := make([]FireResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toFireResultResponse(res))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"results":        out,
		"evaluationTime": time.Since(start).String(),
	})
}

func (s *Server) handleTaskDeadline(w http.ResponseWriter, r *http.Request) {
	var ev TaskDeadlineEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if ev.TaskID == "" {
		respondError(w, http.StatusBadRequest, "taskId is required", nil)
		return
	}
	s.dispatch(w, alerts.TaskDeadline(ev.TaskID, ev.TaskTitle,
		alerts.DeadlineThreshold(ev.Threshold), ev.Days))
}

func (s *Server) handleStageChange(w http.ResponseWriter, r *http.Request) {
	var ev StageChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if ev.PlantationID == "" {
		respondError(w, http.StatusBadRequest, "plantationId is required", nil)
		return
	}
	s.dispatch(w, alerts.StageChange(ev.PlantationID, ev.PlantationName, ev.FromStage, ev.ToStage))
}

func (s *Server) handleWalletEvent(w http.ResponseWriter, r *http.Request) {
	var ev WalletEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if ev.Address == "" {
		respondError(w, http.StatusBadRequest, "address is required", nil)
		return
	}
	s.dispatch(w, alerts.WalletActivity(alerts.WalletActivityKind(ev.Activity), ev.Address))
}

func (s *Server) dispatch(w http.ResponseWriter, req alerts.Request) {
	alert, err := s.dispatcher.Dispatch(req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to dispatch alert", err)
		return
	}
	respondJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	var (
		list []alerts.Alert
		err  error
	)
	if sev := r.URL.Query().Get("severity"); sev != "" {
		list, err = s.dispatcher.BySeverity(alerts.Severity(sev))
	} else {
		list, err = s.dispatcher.All()
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alerts", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": list})
}

func (s *Server) handleUnacknowledged(w http.ResponseWriter, r *http.Request) {
	list, err := s.dispatcher.Unacknowledged()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alerts", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": list})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Acknowledge(chi.URLParam(r, "alertId")); err != nil {
		respondError(w, statusFor(err), "alert not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToasts(w http.ResponseWriter, r *http.Request) {
	unacked, err := s.dispatcher.Unacknowledged()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alerts", err)
		return
	}

	entries := s.toasts.Reconcile(unacked, time.Now())
	out := make([]ToastResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToastResponse{
			AlertID:   e.Alert.ID,
			Title:     e.Alert.Title,
			Severity:  string(e.Alert.Severity),
			ExpiresAt: e.ExpiresAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"toasts": out})
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	s.toasts.Dismiss(chi.URLParam(r, "alertId"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondRule(w http.ResponseWriter, status int, rule rules.Rule) {
	resp, err := toRuleResponse(rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
		return
	}
	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

// statusFor maps store errors onto HTTP statuses. Stale references show
// up as NotFound; everything else is on us.
func statusFor(err error) int {
	if errors.Is(err, rules.ErrNotFound) || errors.Is(err, alerts.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("failed to parse config", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Outstanding toast timers must not fire into a dead dispatcher.
	server.toasts.Close()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
