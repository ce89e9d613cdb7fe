package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	intDatabase "callfeed-backend/internal/database"
	"callfeed-backend/internal/events"
	callsHandler "callfeed-backend/internal/handler/http/calls"
	wsHandler "callfeed-backend/internal/handler/ws"
	"callfeed-backend/internal/middleware"
	"callfeed-backend/internal/repository/cockroach"
	redisRepo "callfeed-backend/internal/repository/redis"
	callsService "callfeed-backend/internal/service/calls"
	"callfeed-backend/internal/service/history"
	"callfeed-backend/pkg/config"
	"callfeed-backend/pkg/constants"
	pkgDatabase "callfeed-backend/pkg/database"
	"callfeed-backend/pkg/jwt"
	"callfeed-backend/pkg/logger"
	"callfeed-backend/pkg/metrics"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logger
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 3. Setup JWT Manager
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// 4. Connect to CockroachDB with exponential backoff retry
	dbConfig := &pkgDatabase.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}

	var db *pkgDatabase.CockroachDB

	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err = pkgDatabase.NewCockroachDB(ctx, dbConfig)
	for attempt := 2; err != nil && attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		log.Printf("CockroachDB connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
		time.Sleep(delay)
		db, err = pkgDatabase.NewCockroachDB(ctx, dbConfig)
	}
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB after %d attempts: %v", maxRetries, err)
	}
	defer db.Close()
	log.Println("Connected to CockroachDB")

	// 5. Initialize Redis with degraded mode support
	intDatabase.InitRedisMetrics()
	redisDB, err := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()

	redisDB.StartHealthCheck(ctx, 10*time.Second)
	log.Println("Connected to Redis, health check started (10s interval)")

	// 6. Initialize Repositories
	callRecordRepo := cockroach.NewCallRecordRepository(db.Pool)
	conversationRepo := cockroach.NewConversationRepository(db.Pool)
	groupCallRepo := redisRepo.NewGroupCallRepository(redisDB)

	// 7. Initialize Services
	publisher := events.NewPublisher(redisDB)
	callsSvc := callsService.NewService(callRecordRepo, conversationRepo, groupCallRepo, publisher)
	loader := history.NewLoader(callRecordRepo, conversationRepo)
	deriver := history.NewDeriver(conversationRepo, groupCallRepo)

	// 8. Initialize Metrics
	appMetrics := metrics.NewMetrics("calls-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 9. Initialize Handlers
	callsHdlr := callsHandler.NewHandler(callsSvc, loader, deriver)
	feedHdlr := wsHandler.NewFeedHandler(
		callRecordRepo,
		conversationRepo,
		conversationRepo,
		groupCallRepo,
		appMetrics,
		cfg.History.PageSize,
		cfg.History.WindowCapacity,
	)

	// 10. Subscribe to record events and fan them out to feed sessions
	subscriber := events.NewSubscriber(redisDB)
	go func() {
		if err := subscriber.Run(ctx, feedHdlr.Dispatch); err != nil && ctx.Err() == nil {
			log.Printf("Record event subscriber stopped: %v", err)
		}
	}()

	// 11. Setup Gin Router
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "calls-service",
			"time":    time.Now().UTC(),
		})
	})

	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Call routes (all require authentication)
	v1 := router.Group("/v1/calls")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("", callsHdlr.StartCall)
		v1.POST("/active", callsHdlr.SetActiveCall)
		v1.GET("/history", callsHdlr.GetHistoryPage)

		v1.GET("/:conversation_id/:call_id", callsHdlr.GetRecord)
		v1.POST("/:conversation_id/:call_id/accept", callsHdlr.AcceptCall)
		v1.POST("/:conversation_id/:call_id/decline", callsHdlr.DeclineCall)
		v1.POST("/:conversation_id/:call_id/missed", callsHdlr.MarkMissed)
		v1.POST("/:conversation_id/:call_id/end", callsHdlr.EndCall)
		v1.DELETE("/:conversation_id/:call_id", callsHdlr.DeleteCall)

		// WebSocket endpoint for the live history feed
		v1.GET("/ws/feed", feedHdlr.HandleFeed)
	}

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Calls Service starting on port %d", cfg.Server.Port)
		log.Println("Live feed: /v1/calls/ws/feed")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 13. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
