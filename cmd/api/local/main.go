//go:build !lambda
// +build !lambda

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/n42group/mailmerge/internal/helpers"
	"github.com/n42group/mailmerge/internal/logger"
	"github.com/n42group/mailmerge/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Variables may come straight from the environment.
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	logger.InitLogger(helpers.StageOrDefault())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := server.Bootstrap(ctx)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer cleanup()

	r := gin.New()
	r.Use(gin.Recovery())
	server.InitializeHandlers(deps)
	server.InitializeRoutes(r)

	srv := &http.Server{
		Addr:              ":" + deps.Config.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Error starting server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
