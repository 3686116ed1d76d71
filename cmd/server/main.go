package main

import (
	"context"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/Joa705/raspberrypi-projects/internal/core/services"
	httphandlers "github.com/Joa705/raspberrypi-projects/internal/handlers/http"
	"github.com/Joa705/raspberrypi-projects/internal/infrastructure/capture"
	"github.com/Joa705/raspberrypi-projects/internal/infrastructure/middleware"
	"github.com/Joa705/raspberrypi-projects/internal/infrastructure/monitoring"
	repositories "github.com/Joa705/raspberrypi-projects/internal/infrastructure/repositories"
	"github.com/Joa705/raspberrypi-projects/internal/infrastructure/signal"
	webrtcinfra "github.com/Joa705/raspberrypi-projects/internal/infrastructure/webrtc"
	"github.com/Joa705/raspberrypi-projects/pkg/config"
	"github.com/Joa705/raspberrypi-projects/pkg/logger"
	"github.com/Joa705/raspberrypi-projects/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/camhub/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  1.0,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	cameraRepo, err := repoFactory.CreateCameraRepository(startupCtx)
	startupCancel()
	if err != nil {
		log.Fatalw("failed to create camera repository", "error", err)
	}

	// Initialize monitoring
	collector := monitoring.NewPrometheusCollector()

	// Capture factory (ffmpeg subprocesses)
	captureFactory := capture.NewFactory(capture.Config{
		FFmpegPath:    cfg.Capture.FFmpegPath,
		RTSPTransport: cfg.Capture.RTSPTransport,
		RTSPPort:      cfg.Capture.RTSPPort,
		KillAfter:     cfg.Stream.StopTimeout,
	}, log)

	// Stream registry
	registry := services.NewRegistry(services.RegistryConfig{
		GracePeriod:  cfg.Stream.GracePeriod,
		StartTimeout: cfg.Stream.StartTimeout,
		StopTimeout:  cfg.Stream.StopTimeout,
	}, cameraRepo, captureFactory, collector, log)

	// WebRTC configuration (including STUN/TURN from config)
	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	transportCfg := webrtcinfra.Config{
		ICEServers: iceServers,
		FrameRate:  cfg.Stream.FrameRate,
	}
	transportCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	transportCfg.PortRange.Max = cfg.WebRTC.PortRange.Max

	transport, err := webrtcinfra.NewTransport(transportCfg, collector, log)
	if err != nil {
		log.Fatalw("failed to create webrtc transport", "error", err)
	}

	// Initialize services
	signaling := services.NewSignalingService(registry, transport, collector, log)
	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.TokenTTL,
		cfg.Auth.AdminUser,
		cfg.Auth.AdminPassword,
	)

	// Legacy websocket transport
	streamer := signal.NewStreamer(registry, log)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.TokenTTL)
	cameraHandler := httphandlers.NewCameraHandler(registry, signaling, cameraRepo, captureFactory, streamer, log)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Public auth routes
	public := router.Group("/api/v1")
	authHandler.SetupRoutes(public)

	// Camera routes behind authentication
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	cameraHandler.SetupRoutes(api)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting camera hub server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	osSignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down camera hub server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	// Stop all capture subprocesses
	registry.Shutdown(shutdownCtx)

	// Close repository factory
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	// Flush traces
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("Camera hub server stopped")
}
