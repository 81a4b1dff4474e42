package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aradsms/sms_proxy/internal/platform/config"
	"github.com/aradsms/sms_proxy/internal/platform/database"
	"github.com/aradsms/sms_proxy/internal/platform/logger"
	"github.com/aradsms/sms_proxy/internal/platform/messagebroker"
	"github.com/aradsms/sms_proxy/internal/proxy_service/adapters/smsprovider"
	"github.com/aradsms/sms_proxy/internal/proxy_service/app"
	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
	"github.com/aradsms/sms_proxy/internal/proxy_service/repository/memory"
	"github.com/aradsms/sms_proxy/internal/proxy_service/repository/postgres"
	httptransport "github.com/aradsms/sms_proxy/internal/proxy_service/transport/http"
)

const (
	serviceName     = "sms_proxy"
	shutdownTimeout = 15 * time.Second
	inboundBuffer   = 100
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("SMS proxy service starting...",
		"http_port", cfg.HTTPPort,
		"grpc_health_port", cfg.GRPCHealthPort,
		"storage_driver", cfg.StorageDriver,
		"sms_provider", cfg.SMSProvider,
	)

	healthChecks := map[string]httptransport.HealthCheck{}

	// --- Storage ---
	var (
		numberRepo  domain.NumberRepository
		sessionRepo domain.SessionRepository
	)
	switch cfg.StorageDriver {
	case "memory":
		store := memory.NewStore()
		numberRepo, sessionRepo = store.Numbers(), store.Sessions()
		appLogger.Warn("Using in-memory storage, state is lost on restart")
	default:
		if cfg.AutoMigrate {
			if _, err := database.Migrate(cfg.PostgresDSN, appLogger); err != nil {
				appLogger.Error("Failed to apply database migrations", "error", err)
				os.Exit(1)
			}
		}
		dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, database.PoolOptions{
			MaxConns:        int32(cfg.DBMaxConns),
			MinConns:        int32(cfg.DBMinConns),
			MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMinutes) * time.Minute,
			MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleMinutes) * time.Minute,
		})
		if err != nil {
			appLogger.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		appLogger.Info("Successfully connected to PostgreSQL")
		numberRepo = postgres.NewPgNumberRepository(dbPool, appLogger)
		sessionRepo = postgres.NewPgSessionRepository(dbPool, appLogger)
		healthChecks["database"] = dbPool.Ping
	}

	// --- Outbound SMS provider ---
	provider, err := smsprovider.New(smsprovider.Config{
		Name:               cfg.SMSProvider,
		FlowrouteAccessKey: cfg.FlowrouteAccessKey,
		FlowrouteSecretKey: cfg.FlowrouteSecretKey,
		FlowrouteAPIURL:    cfg.FlowrouteAPIURL,
		TwilioAccountSID:   cfg.TwilioAccountSID,
		TwilioAuthToken:    cfg.TwilioAuthToken,
		TwilioAPIURL:       cfg.TwilioAPIURL,
		Timeout:            time.Duration(cfg.ProviderTimeoutSeconds) * time.Second,
	}, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize SMS provider", "error", err)
		os.Exit(1)
	}
	appLogger.Info("SMS provider initialized", "provider", provider.GetName())

	// --- NATS (optional) ---
	var (
		natsClient *messagebroker.NATSClient
		publisher  app.EventPublisher = app.NoopEventPublisher{}
	)
	if cfg.NATSEnabled {
		natsClient, err = messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = app.NewNATSEventPublisher(natsClient, cfg.NATSEventsPrefix, appLogger)
		healthChecks["nats"] = func(ctx context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats connection is not healthy")
			}
			return nil
		}
	}

	// --- Application services ---
	pool := app.NewNumberPool(numberRepo, appLogger)
	registry := app.NewSessionRegistry(sessionRepo, appLogger)
	notifier := app.NewNotifier(provider, app.NotifierConfig{
		OrgName:         cfg.OrgName,
		SessionStartMsg: cfg.SessionStartMsg,
		SessionEndMsg:   cfg.SessionEndMsg,
		NoSessionMsg:    cfg.NoSessionMsg,
		EndTrigger:      cfg.SessionEndTrigger,
		SendStartMsg:    cfg.SendStartMsg,
		SendEndMsg:      cfg.SendEndMsg,
	}, appLogger)
	reaper := app.NewExpiryReaper(registry, notifier, publisher, appLogger)
	router := app.NewMessageRouter(registry, reaper, cfg.SessionEndTrigger, appLogger)
	lifecycle := app.NewSessionLifecycle(pool, registry, reaper, router, notifier, publisher, cfg.CreateMaxAttempts, appLogger)
	appLogger.Info("Proxy application services initialized")

	g, groupCtx := errgroup.WithContext(mainCtx)

	// --- HTTP server ---
	httpRouter := chi.NewRouter()
	httpRouter.Use(chiMiddleware.RequestID)
	httpRouter.Use(chiMiddleware.RealIP)
	httpRouter.Use(httptransport.RequestLogger(appLogger))
	httpRouter.Use(chiMiddleware.Recoverer)
	httpRouter.Use(httptransport.PrometheusMetricsMiddleware)
	httpRouter.Use(chiMiddleware.Timeout(60 * time.Second))

	httpRouter.Get("/health", httptransport.NewHealthHandler(appLogger, healthChecks))
	httpRouter.Handle("/metrics", promhttp.Handler())

	proxyHandler := httptransport.NewProxyHandler(pool, lifecycle, appLogger, validator.New())
	proxyHandler.RegisterRoutes(httpRouter, httptransport.AdminAuthMiddleware(cfg.AdminJWTSecret, appLogger))
	if cfg.AdminJWTSecret == "" {
		appLogger.Warn("ADMIN_JWT_SECRET is empty, admin routes are unauthenticated")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	// --- gRPC health server ---
	var grpcServer *grpc.Server
	if cfg.GRPCHealthPort != 0 {
		grpcListenAddress := fmt.Sprintf(":%d", cfg.GRPCHealthPort)
		grpcListener, err := net.Listen("tcp", grpcListenAddress)
		if err != nil {
			appLogger.Error("Failed to listen for gRPC", "address", grpcListenAddress, "error", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthServer := health.NewServer()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		g.Go(func() error {
			appLogger.Info("gRPC health server starting", "address", grpcListenAddress)
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				appLogger.Error("gRPC server failed to serve", "error", err)
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-groupCtx.Done()
			healthServer.Shutdown()
			return nil
		})
	}

	// --- NATS inbound consumer ---
	if natsClient != nil {
		consumer := app.NewInboundConsumer(natsClient, lifecycle, inboundBuffer, appLogger)
		g.Go(func() error {
			return consumer.Run(groupCtx, cfg.NATSInboundSubject, cfg.NATSQueueGroup)
		})
	}

	// --- Graceful shutdown ---
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErrors error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return shutdownErrors
	})

	appLogger.Info("SMS proxy service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("SMS proxy service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("SMS proxy service shut down.")
}
