package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"charity-delivery/internal/api"
	"charity-delivery/internal/config"
	"charity-delivery/internal/jobs"
	"charity-delivery/internal/modules/batching"
	"charity-delivery/internal/modules/branch"
	"charity-delivery/internal/modules/delivery"
	"charity-delivery/internal/modules/route"
	"charity-delivery/internal/modules/stock"
	"charity-delivery/pkg/geo"
	"charity-delivery/pkg/notify"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	e := echo.New()

	// 2. --- Middleware ---
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:5173", cfg.ClientOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// 3. --- Database Connection ---
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database configuration: %v", err)
	}

	dbPool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v\n", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}
	e.Logger.Info("Successfully connected to the database!")

	// Redis backs the geocode cache; the app runs without it if unreachable.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			e.Logger.Warnf("Redis unavailable, geocoding uncached: %v", err)
			redisClient = nil
		}
	}

	// 4. --- Shared Infrastructure ---
	resolver := geo.NewResolver(cfg.GeoBaseURL, cfg.GeoAPIKey, redisClient, cfg.OptimizerTimeout, cfg.MaxBranchDistanceKm)
	hub := notify.NewHub()

	var routeEmailer route.AssignmentEmailerInterface
	var reportEmailer delivery.ReportEmailerInterface
	if cfg.EmailFrom != "" {
		sender, err := notify.NewEmailSender(context.Background(), cfg.SESRegion, cfg.EmailFrom)
		if err != nil {
			e.Logger.Warnf("Email sender unavailable: %v", err)
		} else {
			routeEmailer = sender
			reportEmailer = sender
		}
	}

	// 5. --- Dependency Injection (Wiring everything up) ---
	// --- Branch Module ---
	branchRepo := branch.NewRepository(dbPool)
	branchService := branch.NewService(branchRepo, resolver)
	branchHandler := branch.NewHandler(branchService)

	// --- Stock Module ---
	stockRepo := stock.NewRepository(dbPool)
	stockService := stock.NewService(stockRepo)
	stockHandler := stock.NewHandler(stockService)

	// --- Delivery Request Module ---
	deliveryRepo := delivery.NewRepository(dbPool)
	deliveryService := delivery.NewService(deliveryRepo, resolver, hub, reportEmailer)
	deliveryHandler := delivery.NewHandler(deliveryService)

	// --- Scheduled Route Module ---
	routeRepo := route.NewRepository(dbPool)
	routeService := route.NewService(routeRepo, stockService, hub, routeEmailer, time.Duration(cfg.RouteOfferWindowHours)*time.Hour)
	routeHandler := route.NewHandler(routeService)

	// --- Batching Module ---
	batchingService := batching.NewService(
		deliveryRepo,
		routeRepo,
		branchRepo,
		resolver,
		time.Duration(cfg.BatchingHorizonHours)*time.Hour,
		cfg.RouteCapacityUnits,
	)
	batchingHandler := batching.NewHandler(batchingService)

	// 6. --- Initialize Router ---
	api.SetupRoutes(e,
		deliveryHandler,
		routeHandler,
		branchHandler,
		batchingHandler,
		stockHandler,
		hub,
		cfg.JWTSecret,
	)

	// 7. --- Background Jobs ---
	scheduler, err := jobs.NewScheduler([]jobs.Job{
		{
			Name: "batch-pending-delivery-requests",
			Spec: cfg.BatchingSchedule,
			Run: func(ctx context.Context) error {
				_, err := batchingService.BatchPendingDeliveryRequests(ctx)
				return err
			},
		},
		{
			Name: "sweep-scheduled-routes",
			Spec: cfg.SweepSchedule,
			Run: func(ctx context.Context) error {
				_, _, err := routeService.AutoUpdateAvailableAndLateScheduledRoute(ctx)
				return err
			},
		},
		{
			Name: "expire-aid-requests",
			Spec: cfg.SweepSchedule,
			Run: func(ctx context.Context) error {
				_, err := deliveryService.UpdateOutDateAidRequests(ctx)
				return err
			},
		},
		{
			Name: "expire-donated-requests",
			Spec: cfg.SweepSchedule,
			Run: func(ctx context.Context) error {
				_, err := deliveryService.UpdateOutDateDonatedRequests(ctx)
				return err
			},
		},
		{
			Name: "expire-stock-lots",
			Spec: cfg.SweepSchedule,
			Run: func(ctx context.Context) error {
				_, err := stockService.ExpireOutdatedStock(ctx)
				return err
			},
		},
	})
	if err != nil {
		log.Fatalf("Failed to register background jobs: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 8. --- Start Server with graceful shutdown logic ---
	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server an error occurred:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal("Server forced to shutdown:", err)
	}
	log.Println("Server exiting")
}
