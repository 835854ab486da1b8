package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/selfieapp/selfie/internal/activity"
	"github.com/selfieapp/selfie/internal/auth"
	"github.com/selfieapp/selfie/internal/config"
	"github.com/selfieapp/selfie/internal/db"
	"github.com/selfieapp/selfie/internal/health"
	"github.com/selfieapp/selfie/internal/logger"
	"github.com/selfieapp/selfie/internal/metrics"
	"github.com/selfieapp/selfie/internal/recurrence"
	"github.com/selfieapp/selfie/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

const usage = `usage:
  selfie [serve]          run the HTTP API
  selfie token <ownerId>  print a bearer token for ownerId`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LogLevel)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve":
		if err := serve(cfg, log); err != nil {
			log.WithError(err).Fatal("Server failed")
		}
	case "token":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		if err := printToken(cfg, args[1]); err != nil {
			log.WithError(err).Fatal("Failed to issue token")
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func printToken(cfg *config.Config, ownerID string) error {
	tokens := auth.NewTokenManager(cfg.Security.TokenSecret, cfg.Security.TokenMaxAge)
	token, err := tokens.Issue(ownerID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func serve(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Starting Selfie calendar service...")

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	database, err := db.New(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	m := metrics.New()

	engine := recurrence.NewEngine(database.Events(), log,
		recurrence.WithLocation(cfg.Calendar.Location),
		recurrence.WithLegacyHorizon(cfg.Calendar.LegacyHorizonMonths),
		recurrence.WithMaxOccurrences(cfg.Calendar.MaxOccurrences),
		recurrence.WithMetrics(m),
	)

	handlers := web.NewHandlers(
		cfg,
		engine,
		auth.NewTokenManager(cfg.Security.TokenSecret, cfg.Security.TokenMaxAge),
		health.NewChecker(database),
		m,
		activity.NewTracker(),
		log,
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      web.NewRouter(handlers),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     addr,
			"timezone": cfg.Calendar.Location.String(),
		}).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-quit:
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}

	log.Info("Server stopped")
	return nil
}
