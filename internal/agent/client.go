// Package agent implements the agent side: the transport client speaking
// the server protocol and the scheduler driving collection cycles.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/protocol"
)

// httpTimeout bounds one HTTP request, independent of retry backoff.
const httpTimeout = 30 * time.Second

// RetryPolicy is the bounded retry schedule applied to every transport
// operation. A zero-valued policy disables retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) options(ctx context.Context) []retry.Option {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(p.BaseDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.LastErrorOnly(true),
	}
}

// Client is the authenticated HTTP client for the four protocol operations.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	policy     RetryPolicy
	logger     zerolog.Logger
}

// NewClient creates a transport client for the given server.
func NewClient(baseURL, secret string, policy RetryPolicy, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		policy:     policy,
		logger:     logger,
	}
}

// Register announces the agent to the server and returns the stable endpoint
// identifier. Safe to repeat: the server upserts by hostname.
func (c *Client) Register(ctx context.Context, req protocol.RegisterRequest) (protocol.RegisterResponse, error) {
	var response protocol.RegisterResponse
	err := c.call(ctx, http.MethodPost, "/api/agent/register", req, &response)
	return response, err
}

// Heartbeat reports liveness along with a system snapshot.
func (c *Client) Heartbeat(ctx context.Context, endpointID uuid.UUID, snapshot protocol.SystemSnapshotData) (protocol.HeartbeatResponse, error) {
	var response protocol.HeartbeatResponse
	request := protocol.HeartbeatRequest{EndpointID: endpointID, Snapshot: snapshot}
	err := c.call(ctx, http.MethodPost, "/api/agent/heartbeat", request, &response)
	return response, err
}

// FetchChecks returns the check definitions currently assigned to this agent.
func (c *Client) FetchChecks(ctx context.Context) (protocol.ChecksResponse, error) {
	var response protocol.ChecksResponse
	err := c.call(ctx, http.MethodGet, "/api/agent/checks", nil, &response)
	return response, err
}

// SubmitResults uploads a batch of check results.
func (c *Client) SubmitResults(ctx context.Context, endpointID uuid.UUID, results []protocol.AgentCheckResult) (protocol.SubmitResultsResponse, error) {
	var response protocol.SubmitResultsResponse
	request := protocol.SubmitResultsRequest{EndpointID: endpointID, Results: results}
	err := c.call(ctx, http.MethodPost, "/api/agent/results", request, &response)
	return response, err
}

// call performs one protocol operation under the retry policy.
func (c *Client) call(ctx context.Context, method, path string, body, response any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	return retry.Do(func() error {
		err := c.doOnce(ctx, method, path, payload, response)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Transport operation failed")
		}
		return err
	}, c.policy.options(ctx)...)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, response any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(protocol.SecretHeader, c.secret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(text)))
		// A 4xx will not improve on retry (bad secret, unknown endpoint,
		// malformed request); abandon the operation immediately.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Unrecoverable(err)
		}
		return err
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
