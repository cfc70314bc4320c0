package main

import (
	"context"
	"database/sql"
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbaylor/formrules/internal/logger"
	"github.com/mbaylor/formrules/internal/metrics"
	"github.com/mbaylor/formrules/rules"
	"github.com/mbaylor/formrules/session"
	"github.com/mbaylor/formrules/validation"
)

// Config is the server configuration, read from the environment.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// RuleSetFile serves a single form ("default") from a JSON rule
	// document on disk, reloading it when the file changes. Used without
	// a database.
	RuleSetFile string `env:"RULESET_FILE"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	MaxSweeps   int `env:"MAX_SWEEPS" envDefault:"10"`
	MaxMessages int `env:"MAX_MESSAGES" envDefault:"20"`
}

const fileFormID = "default"

type Server struct {
	db       *sql.DB
	store    rules.RuleSetStore
	manager  *session.Manager
	semantic validation.SemanticValidator
	router   *chi.Mux
}

func NewServer(cfg Config) (*Server, error) {
	var db *sql.DB
	var store rules.RuleSetStore

	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store = rules.NewPostgresRuleSetStore(db)
	} else {
		store = rules.NewInMemoryRuleSetStore()
	}

	collector := metrics.New(prometheus.DefaultRegisterer)
	manager := session.NewManager(store, rules.Config{
		MaxSweeps:   cfg.MaxSweeps,
		MaxMessages: cfg.MaxMessages,
	}, collector)

	if cfg.RuleSetFile != "" {
		doc, err := os.ReadFile(cfg.RuleSetFile)
		if err != nil {
			return nil, fmt.Errorf("read rule set file: %w", err)
		}
		if err := store.Add(&rules.RuleSet{
			ID:       fileFormID,
			FormID:   fileFormID,
			Name:     cfg.RuleSetFile,
			Document: doc,
			Active:   true,
		}); err != nil {
			return nil, fmt.Errorf("load rule set file: %w", err)
		}
	}

	logger.Logger.Info("loading forms")
	if err := manager.LoadAllForms(); err != nil {
		return nil, fmt.Errorf("failed to load forms: %w", err)
	}
	logger.Logger.Info("forms loaded", "forms", manager.ListForms())

	s := &Server{
		db:       db,
		store:    store,
		manager:  manager,
		semantic: validation.NewOpenAIValidator(cfg.OpenAIAPIKey),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/forms/{formId}/rulesets", func(r chi.Router) {
		r.Post("/", s.handleCreateRuleSet)
		r.Get("/", s.handleGetRuleSet)
	})

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)

		r.Route("/{sessionId}", func(r chi.Router) {
			r.Post("/events", s.handleFieldChange)
			r.Get("/state", s.handleGetState)
			r.Delete("/", s.handleEndSession)
		})
	})

	r.Post("/api/v1/validate", s.handleValidate)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logger.Logger.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// File mode: keep the single form in sync with the document on disk.
	if cfg.RuleSetFile != "" {
		watcher, err := rules.NewWatcher(cfg.RuleSetFile, logger.Logger)
		if err != nil {
			logger.Logger.Error("failed to create rule set watcher", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := watcher.Run(ctx, func(doc []byte) error {
				return server.manager.ReloadForm(fileFormID, doc)
			}); err != nil && ctx.Err() == nil {
				logger.Logger.Error("rule set watcher stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("logger shutdown error", "error", err)
	}

	logger.Logger.Info("server stopped")
}
