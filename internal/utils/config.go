package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/daveram1/EndpointAssessment/pkg/file"
)

// AgentConfig is the agent's immutable runtime configuration, built once at
// startup and passed into each component constructor.
type AgentConfig struct {
	ServerURL              string `yaml:"server_url"`               // Base URL of the assessment server
	AgentSecret            string `yaml:"agent_secret"`             // Shared secret sent on every request
	CollectionIntervalSecs int    `yaml:"collection_interval_secs"` // Seconds between collection cycles
	HostnameOverride       string `yaml:"hostname_override"`        // Overrides the auto-detected hostname
	EndpointFile           string `yaml:"endpoint_file"`            // Where the endpoint identity is persisted
	CheckTimeoutSecs       int    `yaml:"check_timeout_secs"`       // Timeout for one check execution
	WorkerCount            int    `yaml:"worker_count"`             // Size of the check execution worker pool

	Retry struct {
		MaxAttempts   int `yaml:"max_attempts"`    // Attempts per transport operation
		BaseDelaySecs int `yaml:"base_delay_secs"` // Initial backoff delay
		MaxDelaySecs  int `yaml:"max_delay_secs"`  // Backoff ceiling
	} `yaml:"retry"`
}

// ServerConfig is the server's immutable runtime configuration.
type ServerConfig struct {
	ListenAddr              string `yaml:"listen_addr"`               // HTTP listen address
	AgentSecret             string `yaml:"agent_secret"`              // Shared secret agents must present
	DatabasePath            string `yaml:"database_path"`             // SQLite database file
	OfflineThresholdMinutes int    `yaml:"offline_threshold_minutes"` // Heartbeat gap before an endpoint is offline
	SweepIntervalSecs       int    `yaml:"sweep_interval_secs"`       // Seconds between liveness sweeps
	ChecksFile              string `yaml:"checks_file"`               // Optional YAML seed of check definitions
	MinAgentVersion         string `yaml:"min_agent_version"`         // Oldest agent version accepted without warning
}

// LoadAgentConfig loads and validates the agent YAML configuration.
func LoadAgentConfig(filename string, fileClient file.FileOperations) (*AgentConfig, error) {
	var config AgentConfig
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read agent config: %w", err)
	}

	if config.ServerURL == "" {
		return nil, errors.New("server_url is required")
	}
	if config.AgentSecret == "" {
		return nil, errors.New("agent_secret is required")
	}

	if config.CollectionIntervalSecs <= 0 {
		config.CollectionIntervalSecs = 300
	}
	if config.EndpointFile == "" {
		config.EndpointFile = "endpoint.json"
	}
	if config.CheckTimeoutSecs <= 0 {
		config.CheckTimeoutSecs = 30
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 5
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = 3
	}
	if config.Retry.BaseDelaySecs <= 0 {
		config.Retry.BaseDelaySecs = 1
	}
	if config.Retry.MaxDelaySecs <= 0 {
		config.Retry.MaxDelaySecs = 30
	}

	return &config, nil
}

// LoadServerConfig loads and validates the server YAML configuration.
func LoadServerConfig(filename string, fileClient file.FileOperations) (*ServerConfig, error) {
	var config ServerConfig
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if config.AgentSecret == "" {
		return nil, errors.New("agent_secret is required")
	}
	if config.DatabasePath == "" {
		return nil, errors.New("database_path is required")
	}

	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.OfflineThresholdMinutes <= 0 {
		config.OfflineThresholdMinutes = 10
	}
	if config.SweepIntervalSecs <= 0 {
		config.SweepIntervalSecs = 60
	}

	return &config, nil
}

// CollectionInterval returns the cycle interval as a duration.
func (c *AgentConfig) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalSecs) * time.Second
}

// CheckTimeout returns the per-check execution timeout as a duration.
func (c *AgentConfig) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutSecs) * time.Second
}

// BaseDelay returns the initial retry backoff as a duration.
func (c *AgentConfig) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelaySecs) * time.Second
}

// MaxDelay returns the retry backoff ceiling as a duration.
func (c *AgentConfig) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelaySecs) * time.Second
}

// OfflineThreshold returns the liveness threshold as a duration.
func (c *ServerConfig) OfflineThreshold() time.Duration {
	return time.Duration(c.OfflineThresholdMinutes) * time.Minute
}

// SweepInterval returns the sweep cadence as a duration.
func (c *ServerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}
