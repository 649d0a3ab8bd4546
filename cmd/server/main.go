package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finvela/gl-approvals/internal/client"
	"github.com/finvela/gl-approvals/internal/handler"
	"github.com/finvela/gl-approvals/internal/platform/config"
	"github.com/finvela/gl-approvals/internal/platform/database"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/platform/middleware"
	natsclient "github.com/finvela/gl-approvals/internal/platform/nats"
	"github.com/finvela/gl-approvals/internal/policy"
	"github.com/finvela/gl-approvals/internal/repository"
	"github.com/finvela/gl-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting GL Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	transactionRepo := repository.NewTransactionRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	thresholdRepo := repository.NewThresholdRepository(db)
	approverRepo := repository.NewApproverRepository(db)

	// Initialize NATS for notifications (optional: notifications are
	// skipped entirely when no URL is configured)
	var natsConn *natsclient.Client
	if cfg.NATS.URL != "" {
		natsConn, err = natsclient.Connect(natsclient.Config{
			URL:  cfg.NATS.URL,
			Name: cfg.Service.Name,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsConn.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set; notifications disabled")
	}
	notifier := client.NewNotificationPublisher(natsConn, log.Logger)

	// Select the policy source. The database is authoritative in
	// production; a YAML file with hot reload serves local setups.
	var policyProvider policy.Provider
	switch cfg.Policy.Source {
	case "file":
		fileProvider, err := policy.NewFileProvider(cfg.Policy.Path, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Policy.Path).Msg("Failed to load policy file")
		}
		if err := fileProvider.Watch(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to watch policy file")
		}
		policyProvider = fileProvider
		log.Info().Str("path", cfg.Policy.Path).Msg("Policy source: file")
	default:
		policyProvider = policy.NewDBProvider(thresholdRepo, approverRepo)
		log.Info().Msg("Policy source: database")
	}

	// Initialize services
	approvalService := service.NewApprovalService(transactionRepo, workflowRepo, auditRepo, policyProvider, notifier, log)
	configService := service.NewConfigService(thresholdRepo, approverRepo, log)

	escalationService := service.NewEscalationService(workflowRepo, notifier, log, cfg.Policy.OverdueAfter)
	if err := escalationService.Start(cfg.Policy.Cron); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Policy.Cron).Msg("Failed to start escalation sweep")
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, log)
	configHandler := handler.NewConfigHandler(configService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Transaction routes
	mux.HandleFunc("/api/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListTransactions(w, r)
		case http.MethodPost:
			httpHandler.CreateTransaction(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/transactions/get", httpHandler.GetTransaction)
	mux.HandleFunc("/api/v1/transactions/submit", httpHandler.SubmitForApproval)
	mux.HandleFunc("/api/v1/transactions/approve", httpHandler.ApproveTransaction)
	mux.HandleFunc("/api/v1/transactions/reject", httpHandler.RejectTransaction)
	mux.HandleFunc("/api/v1/transactions/recall", httpHandler.RecallTransaction)
	mux.HandleFunc("/api/v1/transactions/delete", httpHandler.DeleteTransaction)

	// Approval routes
	mux.HandleFunc("/api/v1/approvals/pending", httpHandler.PendingApprovals)
	mux.HandleFunc("/api/v1/approvals/history", httpHandler.ApprovalHistory)
	mux.HandleFunc("/api/v1/routing/preview", httpHandler.PreviewRoute)

	// Configuration routes
	mux.HandleFunc("/api/v1/config/thresholds", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			configHandler.ListThresholds(w, r)
		case http.MethodPut:
			configHandler.ReplaceThresholds(w, r)
		case http.MethodDelete:
			configHandler.DeleteThreshold(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/config/approvers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			configHandler.ListApprovers(w, r)
		case http.MethodPost:
			configHandler.AddApprover(w, r)
		case http.MethodDelete:
			configHandler.RemoveApprover(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/config/approvers/delegate", configHandler.Delegate)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Auth(cfg.Auth.JWTSecret, cfg.Auth.SkipAuth)(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	escalationService.Stop()

	log.Info().Msg("Server stopped")
}
