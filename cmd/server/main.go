package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/server"
	"github.com/daveram1/EndpointAssessment/internal/store"
	"github.com/daveram1/EndpointAssessment/internal/utils"
	"github.com/daveram1/EndpointAssessment/pkg/file"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "configs/server.yaml", "Path to the server configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "server").Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadServerConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	st, err := store.Open(config.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	if config.ChecksFile != "" {
		if err := server.LoadCheckSeed(context.Background(), config.ChecksFile, fileClient, st, logger); err != nil {
			logger.Fatal().Err(err).Msg("Failed to load check definitions")
		}
	}

	sweeper := server.NewSweeper(st, config.SweepInterval(), config.OfflineThreshold(), logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start liveness sweeper")
	}

	handler := server.NewHandler(st, config, logger)
	httpServer := &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go func() {
		logger.Info().Str("addr", config.ListenAddr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := sweeper.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop sweeper")
	}
}
