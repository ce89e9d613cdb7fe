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

	paymentHandler "callfeed-backend/internal/handler/http/payment"
	"callfeed-backend/internal/middleware"
	paymentService "callfeed-backend/internal/service/payment"
	"callfeed-backend/pkg/config"
	"callfeed-backend/pkg/constants"
	"callfeed-backend/pkg/jwt"
	"callfeed-backend/pkg/logger"
	"callfeed-backend/pkg/metrics"
	"callfeed-backend/pkg/resilience"
)

func main() {
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

	// 4. Initialize Stripe gateway client
	if cfg.Stripe.SecretKey == "" {
		log.Fatal("STRIPE_SECRET_KEY environment variable is required")
	}
	gateway, err := paymentService.NewStripeClient(&paymentService.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		BaseURL:   cfg.Stripe.BaseURL,
		Timeout:   cfg.Stripe.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to create gateway client: %v", err)
	}

	// 5. Initialize Metrics
	appMetrics := metrics.NewMetrics("payment-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 6. Initialize Payment Service
	breaker := resilience.NewGatewayResilience()
	paymentSvc := paymentService.NewService(gateway, breaker, appMetrics)

	// 7. Initialize Handler
	paymentHdlr := paymentHandler.NewHandler(paymentSvc)

	// 8. Setup Gin Router
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "payment-service",
			"time":    time.Now().UTC(),
		})
	})

	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Payment routes (all require authentication)
	v1 := router.Group("/v1/payments")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("", paymentHdlr.ProcessPayment)
	}

	// 9. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Payment Service starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
