package main

import (
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agent-ops/relay/internal/api/handlers"
	"github.com/agent-ops/relay/internal/api/middleware"
	"github.com/agent-ops/relay/internal/config"
	"github.com/agent-ops/relay/internal/crypto"
	"github.com/agent-ops/relay/internal/eventbus"
	"github.com/agent-ops/relay/internal/session/actor"
	"github.com/agent-ops/relay/pkg/logger"
)

const (
	// sweepInterval is how often idle actors are checked for hibernation.
	sweepInterval = time.Minute
	// actorMaxIdle is how long an actor may sit without sockets or work
	// before its database handle is released.
	actorMaxIdle = 15 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	// Set Gin mode
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Session databases live under one directory, one file per session
	logger.Infof("Session data directory: %s", cfg.DataDir)
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Errorf("Failed to create data directory: %v", err)
		os.Exit(1)
	}

	// Initialize JWT manager
	logger.Infof("Initializing JWT manager...")
	jwtManager, err := crypto.NewJWTManager(cfg.ServiceSecret)
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	// Event bus client (fire-and-forget; empty URL disables publishing)
	bus := eventbus.NewClient(cfg.EventBusURL)
	if cfg.EventBusURL == "" {
		logger.Warnf("RELAY_EVENT_BUS_URL not set - event publishing disabled")
	}

	// Session actor registry
	registry := actor.NewRegistry(cfg.DataDir, actor.Config{MaxQueueDepth: cfg.MaxQueueDepth}, bus, time.Now, uuid.NewString)
	defer registry.Shutdown()

	// Hibernate idle actors so thousands of sessions stay cheap
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if swept := registry.Sweep(actorMaxIdle); swept > 0 {
				logger.Debugf("Hibernated %d idle session actors", swept)
			}
		}
	}()

	// Create Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Logging middleware
	router.Use(middleware.LoggingMiddleware())

	// Root endpoint - returns plain text for client validation
	router.GET("/", func(c *gin.Context) {
		c.String(200, "Welcome to Relay Server!")
	})

	// Prometheus exposition
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(registry)
	wsHandler := handlers.NewWSHandler(registry)

	v1 := router.Group("/v1")

	// Websocket upgrade; client sockets come from browsers, the runner
	// authenticates with its per-session token
	v1.GET("/sessions/:id/ws", wsHandler.HandleWS)

	// Control surface (service-token required)
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager))
	{
		protected.POST("/sessions/:id/start", sessionHandler.StartSession)
		protected.POST("/sessions/:id/stop", sessionHandler.StopSession)
		protected.GET("/sessions/:id/status", sessionHandler.SessionStatus)
		protected.POST("/sessions/:id/prompt", sessionHandler.SubmitPrompt)
		protected.POST("/sessions/:id/clear-queue", sessionHandler.ClearQueue)
		protected.DELETE("/sessions/:id", sessionHandler.WipeSession)
	}

	// Start HTTP server
	logger.Infof("Relay Server starting on http://localhost%s", cfg.Addr)
	logger.Infof("Session data: %s", cfg.DataDir)
	logger.Infof("JWT signing enabled")

	if err := router.Run(cfg.Addr); err != nil {
		logger.Errorf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
