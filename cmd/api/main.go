package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/async"
	"github.com/BradenHooton/bnetlogin/internal/auth"
	"github.com/BradenHooton/bnetlogin/internal/background"
	"github.com/BradenHooton/bnetlogin/internal/config"
	"github.com/BradenHooton/bnetlogin/internal/database"
	"github.com/BradenHooton/bnetlogin/internal/handlers"
	"github.com/BradenHooton/bnetlogin/internal/metrics"
	middlewareCustom "github.com/BradenHooton/bnetlogin/internal/middleware"
	"github.com/BradenHooton/bnetlogin/internal/network"
	"github.com/BradenHooton/bnetlogin/internal/repositories"
	"github.com/BradenHooton/bnetlogin/internal/routes"
	"github.com/BradenHooton/bnetlogin/internal/services"
	pkghttp "github.com/BradenHooton/bnetlogin/pkg/http"
	pkglogger "github.com/BradenHooton/bnetlogin/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Resolve login addresses before accepting traffic
	localNetworks, err := network.InterfaceNetworks()
	if err != nil {
		logger.Warn("failed to list interface networks", slog.Any("error", err))
	}

	resolveCtx, resolveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	resolver, err := network.NewAddressResolver(resolveCtx, net.DefaultResolver, cfg.Login.ExternalAddress, cfg.Login.LocalAddress, localNetworks)
	resolveCancel()
	if err != nil {
		logger.Error("failed to resolve login addresses", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("login addresses resolved",
		slog.String("external", resolver.ExternalAddress().String()),
		slog.String("local", resolver.LocalAddress().String()),
	)

	// Apply migrations
	if cfg.Database.AutoMigrate {
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(migrateCtx, cfg.Database.DSN(), logger)
		migrateCancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	processor := async.NewProcessor(cfg.Async.MaxChains, logger, m)

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	banRepo := repositories.NewBanRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger, cfg.Server.Env)

	// Initialize services
	guard := services.NewBruteforceGuard(accountRepo, banRepo, db, services.BruteforceConfig{
		MaxWrongPassword: cfg.WrongPass.MaxCount,
		Logging:          cfg.WrongPass.Logging,
		BanMode:          cfg.WrongPass.BanMode,
		BanDuration:      cfg.WrongPass.BanTime,
	}, logger, auditLogger, m)

	tickets := auth.NewTicketManager(cfg.Login.TicketDuration)
	loginService := services.NewLoginService(accountRepo, tickets, guard, logger, auditLogger, m)

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	loginHandler := handlers.NewLoginHandler(loginService, processor, resolver, cfg.Login.PortalPort, ipConfig, logger, m)
	loginHandler.SetFailureDelay(auth.NewFailureDelay(cfg.Login.FailureDelay, cfg.Login.FailureJitter))

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middlewareCustom.RequestContentLogger(logger, cfg.Server.LogRequestContent))
	router.Use(middleware.Recoverer)

	routes.RegisterRoutes(router, routes.Dependencies{
		Login:          loginHandler,
		Health:         db,
		IPBans:         banRepo,
		Processor:      processor,
		IPConfig:       ipConfig,
		Gatherer:       registry,
		LoginRateLimit: cfg.Server.LoginRateLimit,
		Logger:         logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start ban expiry task
	banExpiry := background.NewBanExpiryManager(banRepo, logger, m, cfg.Login.BanExpiryCheck)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go banExpiry.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	banExpiry.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Let chains already started finish against the database
	if err := processor.Shutdown(shutdownCtx); err != nil {
		logger.Error("query processor shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
