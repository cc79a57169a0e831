package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/setrag/rail-booking-backend/internal/config"
	"github.com/setrag/rail-booking-backend/internal/database"
	"github.com/setrag/rail-booking-backend/internal/handlers"
	"github.com/setrag/rail-booking-backend/internal/middleware"
	"github.com/setrag/rail-booking-backend/internal/services"
	"github.com/setrag/rail-booking-backend/pkg/jwt"
	"github.com/setrag/rail-booking-backend/pkg/logger"
	"github.com/setrag/rail-booking-backend/pkg/mq"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

// eventPublisher is what the booking flow publishes through
type eventPublisher interface {
	services.EventPublisher
	Close() error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(logger.Options{Level: cfg.Server.LogLevel, File: cfg.Server.LogFile})
	log.WithFields(logrus.Fields{
		"version":     version,
		"build_time":  buildTime,
		"environment": cfg.Server.Environment,
	}).Info("Starting SETRAG booking backend")

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB.DB); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}
	if schemaVersion, err := database.MigrationStatus(db.DB.DB); err == nil {
		log.WithField("schema_version", schemaVersion).Info("Database connection established")
	}

	// Optional infrastructure
	rdb := connectRedis(cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}
	events := connectBroker(cfg.AMQP, log)
	defer events.Close()

	// Repositories
	stationRepository := database.NewStationRepository(db.DB)
	tripRepository := database.NewTripRepository(db.DB)
	seatRepository := database.NewSeatRepository(db.DB)
	bookingRepository := database.NewBookingRepository(db.DB)
	paymentAuditRepository := database.NewPaymentAuditRepository(db.DB, log)

	// Services
	log.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	pricingService := services.NewPricingService(cfg.Booking.Currency)
	seatInventory := services.NewSeatInventoryService(seatRepository, tripRepository, log)
	ledger := services.NewBookingLedgerService(bookingRepository, log)
	ebilling := services.NewEbillingService(&cfg.Ebilling, log)
	paymentAudit := services.NewPaymentAuditService(paymentAuditRepository, log)

	var idempotencyCache services.IdempotencyCache = services.NoopIdempotencyCache{}
	if rdb != nil {
		idempotencyCache = services.NewRedisIdempotencyCache(rdb, cfg.Redis.IdempotencyTTL)
	}

	orchestrator := services.NewBookingOrchestratorService(
		tripRepository,
		pricingService,
		ledger,
		ebilling,
		idempotencyCache,
		events,
		paymentAudit,
		services.BookingOrchestratorConfig{
			HoldMinutes:     cfg.Booking.HoldMinutes,
			ForceSimulation: cfg.Ebilling.ForceSimulation,
		},
		log,
	)
	if !ebilling.IsConfigured() || cfg.Ebilling.ForceSimulation {
		log.Warn("eBilling is not configured: bookings are confirmed by simulated payments")
	}

	var sweeper *services.HoldSweeperService
	if cfg.HoldSweep.Enabled {
		sweepConfig := services.DefaultHoldSweeperConfig()
		sweepConfig.Schedule = cfg.HoldSweep.Schedule
		sweepConfig.PendingMaxAge = cfg.Booking.PaymentTimeout
		sweeper = services.NewHoldSweeperService(ledger, seatInventory, events, sweepConfig, log)
		if err := sweeper.Start(); err != nil {
			log.Fatalf("Failed to start hold sweeper: %v", err)
		}
	}

	// Handlers
	healthHandler := handlers.NewHealthHandler(version, db, optionalChecks(rdb))
	catalogHandler := handlers.NewCatalogHandler(stationRepository, tripRepository, seatInventory, cfg.Booking.DefaultSeatCount, log)
	seatHandler := handlers.NewSeatHandler(seatInventory, log)
	bookingHandler := handlers.NewBookingHandler(orchestrator, log)
	paymentHandler := handlers.NewPaymentHandler(orchestrator, log)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowMethods = cfg.CORS.AllowedMethods
	corsConfig.AllowHeaders = cfg.CORS.AllowedHeaders
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Content-Disposition"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	limiters := middleware.NewRateLimiterFactory(rdb, log)
	requireAuth := middleware.AuthMiddleware(jwtService, log)
	optionalAuth := middleware.OptionalAuth(jwtService, log)
	adminOnly := middleware.RequireRole("admin")

	router.GET("/health", healthHandler.Check)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Check)
		v1.GET("/stations", catalogHandler.ListStations)
		v1.GET("/trips", catalogHandler.ListTrips)
		v1.GET("/trips/:id", catalogHandler.GetTrip)
		v1.POST("/quote", bookingHandler.Quote)

		// Seats
		seats := v1.Group("/trips/:id")
		{
			seats.GET("/seats", seatHandler.ListSeats)
			seats.GET("/availability", seatHandler.Availability)
			seats.POST("/seats/allocate", seatHandler.Allocate)
			seats.POST("/seats/seed", requireAuth, adminOnly, seatHandler.Seed)
			seats.POST("/seats/:seatNo/confirm", requireAuth, adminOnly, seatHandler.Confirm)
			seats.POST("/seats/:seatNo/release", requireAuth, adminOnly, seatHandler.Release)
		}

		// Bookings
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", limiters.New(cfg.RateLimit.Booking, "bookings"), optionalAuth, bookingHandler.CreateBooking)
			bookings.GET("", requireAuth, bookingHandler.ListMyBookings)
			bookings.GET("/:pnr", requireAuth, bookingHandler.GetBooking)
			bookings.DELETE("/:pnr", requireAuth, bookingHandler.CancelBooking)
			bookings.GET("/:pnr/status", bookingHandler.CheckPaymentStatus)
			bookings.GET("/:pnr/ticket", bookingHandler.Ticket)
		}

		// Payment provider notifications
		v1.POST("/payments/ebilling/callback", limiters.New(cfg.RateLimit.Callback, "ebilling_callback"), paymentHandler.EbillingCallback)

		// Catalog maintenance
		admin := v1.Group("/admin", requireAuth, adminOnly)
		{
			admin.POST("/trips", catalogHandler.CreateTrip)
			admin.PUT("/trips/:id", catalogHandler.UpdateTrip)
			admin.DELETE("/trips/:id", catalogHandler.DeleteTrip)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	if sweeper != nil {
		sweeper.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited successfully")
}

// connectRedis returns nil when Redis is not configured. An unreachable
// server is kept: the cache and the rate limiter degrade on their own.
func connectRedis(cfg config.RedisConfig, log *logrus.Logger) *redis.Client {
	if cfg.URL == "" {
		log.Info("REDIS_URL not set: idempotency cache disabled, rate limits kept in memory")
		return nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis is unreachable, continuing without it until it recovers")
	} else {
		log.Info("Connected to Redis")
	}
	return rdb
}

// connectBroker returns a no-op publisher when AMQP is not configured
func connectBroker(cfg config.AMQPConfig, log *logrus.Logger) eventPublisher {
	if cfg.URL == "" {
		log.Info("AMQP_URL not set: booking events are not published")
		return mq.NoopPublisher{}
	}

	publisher, err := mq.NewPublisher(cfg.URL, cfg.Exchange)
	if err != nil {
		log.WithError(err).Warn("RabbitMQ is unreachable: booking events are not published")
		return mq.NoopPublisher{}
	}
	log.WithField("exchange", cfg.Exchange).Info("Publishing booking events")
	return publisher
}

func optionalChecks(rdb *redis.Client) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if rdb != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return checks
}
