package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/agent"
	"github.com/daveram1/EndpointAssessment/internal/checks"
	"github.com/daveram1/EndpointAssessment/internal/collector"
	"github.com/daveram1/EndpointAssessment/internal/platform"
	"github.com/daveram1/EndpointAssessment/internal/utils"
	"github.com/daveram1/EndpointAssessment/pkg/file"
	"github.com/daveram1/EndpointAssessment/pkg/identity"
)

// agentVersion is reported to the server at registration.
const agentVersion = "1.0.0"

func main() {
	configPath := flag.String("config", "configs/agent.yaml", "Path to the agent configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "agent").Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadAgentConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Info().
		Str("version", agentVersion).
		Str("server_url", config.ServerURL).
		Msg("Starting endpoint assessment agent")

	endpointInfo := identity.NewEndpointInfo(config.EndpointFile, fileClient)
	if err := endpointInfo.Load(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load endpoint identity")
	}

	capabilities := platform.NewHostCapabilities()
	systemCollector := collector.NewCollector(capabilities, logger)
	executor := checks.NewExecutor(capabilities, logger)

	policy := agent.RetryPolicy{
		MaxAttempts: config.Retry.MaxAttempts,
		BaseDelay:   config.BaseDelay(),
		MaxDelay:    config.MaxDelay(),
	}
	client := agent.NewClient(config.ServerURL, config.AgentSecret, policy, logger)

	// Registration blocks until the server is reachable; interruptible by
	// the shutdown signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registration := agent.NewRegistration(
		client, systemCollector, endpointInfo,
		config.HostnameOverride, agentVersion, logger,
	)
	endpointID, err := registration.EnsureRegistered(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Registration aborted")
	}

	workerPool := utils.NewWorkerPool(config.WorkerCount)
	scheduler := agent.NewScheduler(
		endpointID,
		config.CollectionInterval(),
		config.CheckTimeout(),
		client, systemCollector, executor, workerPool, logger,
	)

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	logger.Info().Msg("Agent started successfully")

	<-ctx.Done()

	logger.Info().Msg("Shutting down gracefully...")
	if err := scheduler.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop scheduler")
	}
	workerPool.Shutdown()
}
