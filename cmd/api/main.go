package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/odai-awartani/wasselny/internal/api/handlers"
	"github.com/odai-awartani/wasselny/internal/api/routes"
	"github.com/odai-awartani/wasselny/internal/config"
	"github.com/odai-awartani/wasselny/internal/coordinator"
	"github.com/odai-awartani/wasselny/internal/events"
	"github.com/odai-awartani/wasselny/internal/expiry"
	"github.com/odai-awartani/wasselny/internal/identity"
	"github.com/odai-awartani/wasselny/internal/notify"
	"github.com/odai-awartani/wasselny/internal/seats"
	"github.com/odai-awartani/wasselny/internal/storage/postgres"
	"github.com/odai-awartani/wasselny/pkg/cache"
	"github.com/odai-awartani/wasselny/pkg/database"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/odai-awartani/wasselny/pkg/monitoring"
	"github.com/odai-awartani/wasselny/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Wasselny ride coordinator",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
	)

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp = &monitoring.NewRelicApp{}
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized",
			logger.String("app_name", cfg.NewRelic.AppName))
	}
	defer nrApp.Shutdown(10 * time.Second)

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cache.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		MinIdleConn: cfg.Redis.MinIdleConn,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
	}
	defer cache.Close(redisClient)

	appLogger.Info("Connected to Redis")

	// Initialize PostgreSQL
	postgresDB, err := database.NewPostgresDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConnections,
		MaxIdle:  cfg.Database.MaxIdleConns,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
	}
	defer postgresDB.Close()

	appLogger.Info("Connected to PostgreSQL")

	// Background loops stop when this context is cancelled
	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run()

	// Repositories and collaborators
	rideRepo := postgres.NewRideRepository(postgresDB)
	requestRepo := postgres.NewRequestRepository(postgresDB)
	identityProvider := identity.NewPostgresProvider(postgresDB)
	seatLedger := seats.NewLedger(rideRepo, appLogger)

	// Notification gateway: immediate pushes plus redis-parked reminders
	pushClient := notify.NewPushClient(cfg.Push.Endpoint, cfg.Push.Key, cfg.Push.Timeout)
	gateway := notify.NewPushGateway(pushClient, redisClient, appLogger)
	go gateway.Run(runCtx)

	// Lifecycle event publisher (optional)
	var publisher *events.KafkaPublisher
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, appLogger)
		defer publisher.Close()
		appLogger.Info("Kafka event publishing enabled",
			logger.Any("brokers", cfg.Kafka.Brokers))
	}

	// Lifecycle coordinator
	coord := coordinator.New(
		rideRepo,
		requestRepo,
		seatLedger,
		identityProvider,
		gateway,
		wsHub,
		publisher,
		appLogger,
		coordinator.Config{
			CallTimeout:   cfg.Booking.CallTimeout,
			RetryAttempts: cfg.Booking.RetryAttempts,
			RetryBackoff:  cfg.Booking.RetryBackoff,
			ReminderLead:  cfg.Booking.ReminderLead,
		},
	)

	// Expiry watcher sweeps past-due rides to ended
	watcher := expiry.NewWatcher(rideRepo, publisher, appLogger,
		cfg.Expiry.SweepInterval, cfg.Expiry.BatchSize)
	watcher.Monitor = nrApp
	go watcher.Run(runCtx)

	// Initialize handlers with dependencies
	h := handlers.NewHandlers(coord, rideRepo, requestRepo, wsHub, nrApp, appLogger)

	// Initialize Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Setup all routes
	routes.SetupRoutes(router, h, nrApp.Application)

	appLogger.Info("Routes configured")

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stopBackground()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}

	appLogger.Info("Server stopped gracefully")
}
