package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/broker"
	"CapIot.telemetry/internal/config"
	"CapIot.telemetry/internal/controller"
	"CapIot.telemetry/internal/controlpush"
	"CapIot.telemetry/internal/identity"
	"CapIot.telemetry/internal/logging"
	"CapIot.telemetry/internal/middleware"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
	"CapIot.telemetry/internal/routes"
	"CapIot.telemetry/internal/service"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if !cfg.EnvFileLoaded {
		logger.Info().Msg("No .env file found, using process environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	db, err := repository.OpenDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := repository.CloseDatabase(db); err != nil {
			logger.Error().Err(err).Msg("Error closing database")
		}
	}()
	if err := repository.Migrate(db); err != nil {
		return err
	}

	accounts := repository.NewAccountRepository(db)
	telemetry := repository.NewTelemetryRepository(db)
	alerts := repository.NewAlertRepository(db)
	controls := repository.NewControlRepository(db)

	healthChecks := []controller.HealthCheck{{Name: "database", Check: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}}

	// Identity, optionally cached in Redis
	var resolver identity.Resolver = identity.NewDBResolver(accounts)
	if cfg.RedisAddr != "" {
		cache := identity.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer cache.Close()
		if err := cache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, identity cache reads will fall through to the database")
		}
		resolver = identity.NewCachedResolver(resolver, cache, cfg.IdentityCacheTTL, logger)
		healthChecks = append(healthChecks, controller.HealthCheck{Name: "redis", Check: cache.Ping})
	}

	// Long-term archive
	var archive repository.TelemetryArchive
	if cfg.InfluxEnabled() {
		influx := repository.NewInfluxDBRepository(cfg.InfluxDBURL, cfg.InfluxDBToken, cfg.InfluxDBOrg, cfg.InfluxDBBucket)
		defer influx.Close()
		if err := influx.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("InfluxDB not healthy, archive writes may fail")
		} else if created, err := influx.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("Could not ensure InfluxDB bucket")
		} else if created {
			logger.Info().Str("bucket", cfg.InfluxDBBucket).Msg("Created InfluxDB bucket")
		}
		archive = influx
		healthChecks = append(healthChecks, controller.HealthCheck{Name: "influxdb", Check: influx.Health})
	}

	// Core services
	pruner := service.NewRetentionPruner(telemetry, cfg.TelemetryRetention, logger)
	evaluator := service.NewThresholdEvaluator(controls, alerts, logger)
	ingestion := service.NewIngestionService(resolver, telemetry, pruner, evaluator, archive, logger)

	devicePlatform := controlpush.NewHTTPPusher(cfg.DeviceScheme, cfg.DeviceHost, cfg.PushTimeout)

	var manager *broker.Manager
	var pusher service.Pusher = devicePlatform
	if cfg.ControlPushMode == "mqtt" {
		pusher = service.PusherFunc(func(ctx context.Context, credential string, key models.Attribute, value any) error {
			return manager.PushAttribute(ctx, credential, key, value)
		})
	}
	control := service.NewControlService(pusher, devicePlatform, controls, logger)

	manager = broker.NewManager(
		broker.NewPahoDialer(cfg.BrokerURL, connectTimeout, logger),
		cfg.Topic,
		resolver,
		ingestion,
		control,
		logger,
	)
	manager.Start(ctx, cfg.Credentials)
	defer manager.Stop()

	// HTTP API
	router := mux.NewRouter()
	router.Use(middleware.AccessLog(logger))
	routes.RegisterRoutes(router, routes.Handlers{
		Auth:   middleware.NewAuthenticator(resolver, logger),
		Device: controller.NewDeviceController(service.NewDataService(telemetry, controls, cfg.DefaultIntervalSeconds), control, logger),
		Alerts: controller.NewAlertController(service.NewAlertService(alerts, cfg.AlertRetention, logger), logger),
		SignIn: controller.NewAuthController(service.NewAuthService(accounts), logger),
		Health: controller.HandleHealth(healthChecks...),
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("push_mode", cfg.ControlPushMode).Msg("Server is running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
