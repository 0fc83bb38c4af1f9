package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/protocol"
	"github.com/daveram1/EndpointAssessment/pkg/identity"
)

// registrationRetryDelay spaces out registration attempts when the server is
// unreachable at agent startup.
const registrationRetryDelay = 30 * time.Second

// Registrar performs the register protocol operation.
type Registrar interface {
	Register(ctx context.Context, req protocol.RegisterRequest) (protocol.RegisterResponse, error)
}

// HostInfoProvider supplies the host facts sent at registration time.
type HostInfoProvider interface {
	Hostname() string
	OSInfo() (osName, osVersion string)
	IPAddresses() []string
}

// Registration registers the agent with the server and persists the assigned
// endpoint identity across restarts.
type Registration struct {
	registrar        Registrar
	hostInfo         HostInfoProvider
	endpointInfo     identity.EndpointInfoInterface
	hostnameOverride string
	agentVersion     string
	logger           zerolog.Logger
}

// NewRegistration initializes a new Registration.
func NewRegistration(
	registrar Registrar,
	hostInfo HostInfoProvider,
	endpointInfo identity.EndpointInfoInterface,
	hostnameOverride, agentVersion string,
	logger zerolog.Logger,
) *Registration {
	return &Registration{
		registrar:        registrar,
		hostInfo:         hostInfo,
		endpointInfo:     endpointInfo,
		hostnameOverride: hostnameOverride,
		agentVersion:     agentVersion,
		logger:           logger,
	}
}

// EnsureRegistered registers with the server, retrying until it succeeds or
// ctx is cancelled, and returns the stable endpoint identifier. Registration
// is idempotent server-side, so re-registering an already-known hostname
// yields the same identifier.
func (r *Registration) EnsureRegistered(ctx context.Context) (uuid.UUID, error) {
	hostname := r.hostnameOverride
	if hostname == "" {
		hostname = r.hostInfo.Hostname()
	}

	// A stored identity never skips registration; the server upsert is what
	// keeps the ID stable. It is logged so operators can spot an unexpected
	// change in the server's answer.
	if storedID, ok := r.endpointInfo.EndpointID(); ok && r.endpointInfo.Hostname() == hostname {
		r.logger.Info().Str("endpoint_id", storedID.String()).
			Msg("Endpoint was registered before, re-registering to confirm identity")
	}

	osName, osVersion := r.hostInfo.OSInfo()
	request := protocol.RegisterRequest{
		Hostname:     hostname,
		OS:           osName,
		OSVersion:    osVersion,
		AgentVersion: r.agentVersion,
		IPAddresses:  r.hostInfo.IPAddresses(),
	}

	r.logger.Info().Str("hostname", hostname).Msg("Registering endpoint")

	for {
		response, err := r.registrar.Register(ctx, request)
		if err == nil {
			r.logger.Info().Str("endpoint_id", response.EndpointID.String()).
				Msg("Registered successfully")
			if err := r.endpointInfo.Save(response.EndpointID, hostname); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to persist endpoint identity")
			}
			return response.EndpointID, nil
		}

		r.logger.Error().Err(err).
			Dur("retry_in", registrationRetryDelay).
			Msg("Registration failed, will retry")

		select {
		case <-time.After(registrationRetryDelay):
		case <-ctx.Done():
			return uuid.Nil, fmt.Errorf("registration cancelled: %w", ctx.Err())
		}
	}
}
