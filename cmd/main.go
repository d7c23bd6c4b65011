package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-service/internal/auth"
	"booking-service/internal/catalog"
	appconfig "booking-service/internal/config"
	"booking-service/internal/distance"
	"booking-service/internal/handlers"
	"booking-service/internal/kinesis"
	"booking-service/internal/service"
	"booking-service/internal/storage"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	kinesisService "github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/gorilla/mux"
)

func main() {
	configPath := flag.String("config", ".env", "path to an optional dotenv config file")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Initialize storage based on configuration
	var repo storage.BookingRepository
	switch cfg.StorageType {
	case appconfig.StorageDynamoDB:
		awsCfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(cfg.AWSRegion))
		if err != nil {
			slog.Error("Failed to load AWS config", "error", err)
			os.Exit(1)
		}

		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		repo = storage.NewDynamoDBBookingRepository(dynamoClient, cfg.BookingsTable)
		slog.Info("Using DynamoDB storage", "table_name", cfg.BookingsTable)
	default:
		repo = storage.NewMemoryBookingRepository()
		slog.Info("Using in-memory storage")
	}

	// Initialize distance resolver
	resolver := distance.NewHTTPResolver(cfg.GeocoderURL, cfg.RouterURL, cfg.ResolverTimeout, cfg.ResolverRatePerSec)

	// Initialize service
	bookingService := service.NewBookingService(catalog.Default(), resolver, repo, auth.ContextSession{})
	bookingService.SetResolveTimeout(cfg.ResolverTimeout)

	// Initialize Kinesis streamer if stream name is provided
	if cfg.KinesisStream != "" {
		awsCfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(cfg.AWSRegion))
		if err != nil {
			slog.Warn("Failed to load AWS config for Kinesis", "error", err)
		} else {
			kinesisClient := kinesisService.NewFromConfig(awsCfg)
			bookingService.SetKinesisStreamer(kinesis.NewStreamer(kinesisClient, cfg.KinesisStream))
			slog.Info("Kinesis session event streaming enabled", "stream", cfg.KinesisStream)
		}
	}

	// Initialize background session sweeper
	sweeper := service.NewSessionSweeper(bookingService, cfg.SweepInterval, cfg.SessionTTL)
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize HTTP handlers
	httpHandler := handlers.NewHTTPHandler(bookingService)

	// Setup routes
	router := mux.NewRouter()

	// Use path prefix if running behind load balancer
	if cfg.PathPrefix != "" {
		httpHandler.RegisterRoutes(router.PathPrefix(cfg.PathPrefix).Subrouter())
	} else {
		httpHandler.RegisterRoutes(router)
	}

	router.Use(corsMiddleware)
	if cfg.JWTSecret != "" {
		router.Use(auth.NewJWTAuthenticator(cfg.JWTSecret).Middleware)
	} else {
		slog.Warn("JWT_SECRET not set, all requests are anonymous")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		slog.Info("Booking Service starting", "port", cfg.Port, "storage", cfg.StorageType)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Booking Service failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-c
	slog.Info("Booking Service shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

// corsMiddleware adds CORS headers for frontend access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
