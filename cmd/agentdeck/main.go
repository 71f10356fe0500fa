// Package main is the entry point for the agentdeck backend.
// The server exposes the control panel API over WebSocket and HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/internal/agent/runtime"
	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/db"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	gateways "github.com/agentdeck/agentdeck/internal/gateway/websocket"
	"github.com/agentdeck/agentdeck/internal/permission"
	"github.com/agentdeck/agentdeck/internal/session/handlers"
	"github.com/agentdeck/agentdeck/internal/session/lifecycle"
	"github.com/agentdeck/agentdeck/internal/session/prompt"
	"github.com/agentdeck/agentdeck/internal/session/store"
	ws "github.com/agentdeck/agentdeck/pkg/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting agentdeck...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize event bus (in-memory by default, NATS if configured)
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...", zap.String("url", cfg.NATS.URL))
		natsEventBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsEventBus
		defer natsEventBus.Close()
		log.Info("Connected to NATS event bus")
	} else {
		log.Info("Using in-memory event bus")
		eventBus = bus.NewMemoryEventBus(log)
	}

	// 5. Initialize session store (single writer + read-only pool on WAL)
	writer, err := db.OpenSQLite(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err), zap.String("db_path", cfg.Database.Path))
	}
	reader, err := db.OpenSQLiteReader(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open read-only database", zap.Error(err), zap.String("db_path", cfg.Database.Path))
	}
	sessionStore, err := store.New(writer, reader)
	if err != nil {
		log.Fatal("Failed to initialize session store", zap.Error(err))
	}
	defer sessionStore.Close()
	log.Info("SQLite session store initialized", zap.String("db_path", cfg.Database.Path))

	// ============================================
	// SESSION SERVICE
	// ============================================
	background, bgCtx := errgroup.WithContext(ctx)

	broker := prompt.NewBroker(cfg.Sessions.InteractionTimeout, log)
	if cfg.Sessions.InteractionTimeout > 0 {
		background.Go(func() error {
			expireInteractions(bgCtx, broker, cfg.Sessions.InteractionTimeout, log)
			return nil
		})
	}

	engine := permission.NewEngine(log, permission.NewLogAuditor(log))
	agentRuntime := runtime.NewCLIRuntime(cfg.Runtime.Binary, log)
	manager := lifecycle.NewManager(sessionStore, eventBus, broker, engine, agentRuntime, cfg, log)
	log.Info("Session manager initialized",
		zap.String("runtime_binary", cfg.Runtime.Binary),
		zap.String("default_model", cfg.Runtime.DefaultModel),
	)

	// ============================================
	// WEBSOCKET GATEWAY
	// ============================================
	gateway := gateways.NewGateway(log)
	background.Go(func() error {
		gateway.Hub.Run(bgCtx)
		return nil
	})

	broadcaster := gateways.RegisterSessionStreamNotifications(ctx, eventBus, gateway.Hub, log)
	defer broadcaster.Close()

	// Replay missed output when a client rejoins a session room.
	gateway.Hub.SetReplayProvider(func(ctx context.Context, sessionID string) ([]*ws.Message, error) {
		outputs, err := manager.MarkReconnected(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		messages := make([]*ws.Message, 0, len(outputs))
		for i := range outputs {
			msg, err := ws.NewNotification(ws.ActionSessionOutput, outputs[i])
			if err != nil {
				continue
			}
			messages = append(messages, msg)
		}
		return messages, nil
	})
	gateway.Hub.SetDisconnectListener(func(sessionID string) {
		if err := manager.MarkDisconnected(context.Background(), sessionID); err != nil {
			log.Warn("failed to record session disconnect", zap.String("session_id", sessionID), zap.Error(err))
		}
	})

	handlers.RegisterWSHandlers(gateway.Dispatcher, manager, broker, log)
	log.Info("WebSocket gateway initialized")

	// ============================================
	// HTTP SERVER (WebSocket + HTTP endpoints)
	// ============================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	gateway.SetupRoutes(router)
	handlers.RegisterRoutes(router, manager, broker, sessionStore, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "agentdeck",
		})
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("Server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("API configured",
		zap.String("websocket", "/ws"),
		zap.String("health", "/health"),
		zap.String("http", "/api/v1"),
	)

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down agentdeck...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	manager.Shutdown(shutdownCtx)
	_ = background.Wait()

	log.Info("agentdeck stopped")
}

// expireInteractions periodically denies interactive requests that have
// outlived the configured timeout.
func expireInteractions(ctx context.Context, broker *prompt.Broker, timeout time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := broker.CleanupExpired(); n > 0 {
				log.Info("expired pending interactions", zap.Int("count", n))
			}
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-User-ID, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
