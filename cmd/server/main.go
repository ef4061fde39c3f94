package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/connection-hub/backend/api/handlers"
	"github.com/connection-hub/backend/internal/db"
	"github.com/connection-hub/backend/internal/logger"
	"github.com/connection-hub/backend/internal/repository"
	"github.com/connection-hub/backend/internal/runtime"
)

func main() {
	// Get configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "data/hub.db")
	hibernateAfter := getDurationEnv("HIBERNATE_AFTER", 45*time.Second)
	logLevel := logger.ParseLevel(getEnv("LOG_LEVEL", "info"))

	logger.Init(logLevel)

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory", "error", err)
		os.Exit(1)
	}

	// Initialize database
	database, err := db.InitDB(dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.CloseDB()

	// Initialize repositories
	attachmentRepo := repository.NewAttachmentRepository(database)
	instanceRepo := repository.NewInstanceRepository(database)

	// Initialize the hub runtime
	rt := runtime.New(attachmentRepo, runtime.Config{
		HibernateAfter: hibernateAfter,
	})
	defer rt.Close()

	// Initialize handlers
	hubHandler := handlers.NewHubHandler(instanceRepo, rt)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		hubHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down server")
		rt.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	logger.Info("starting server", "port", port, "hibernateAfter", hibernateAfter)
	if err := r.Run(":" + port); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns an environment variable parsed as a duration, or a
// default value.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
