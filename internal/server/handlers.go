// Package server implements the agent-facing protocol handler and the
// endpoint liveness machinery.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/protocol"
	"github.com/daveram1/EndpointAssessment/internal/store"
	"github.com/daveram1/EndpointAssessment/internal/utils"
)

// maxRequestBody caps the size of an agent request payload.
const maxRequestBody = 1 << 20

// Handler serves the four agent protocol operations.
type Handler struct {
	store  *store.Store
	config *utils.ServerConfig
	logger zerolog.Logger

	// endpointHostnames caches endpoint ID to hostname for log enrichment,
	// primed on register and on first lookup.
	endpointHostnames cmap.ConcurrentMap[string, string]

	minAgentVersion *semver.Version
}

// NewHandler creates the protocol handler.
func NewHandler(st *store.Store, config *utils.ServerConfig, logger zerolog.Logger) *Handler {
	h := &Handler{
		store:             st,
		config:            config,
		logger:            logger,
		endpointHostnames: cmap.New[string](),
	}

	if config.MinAgentVersion != "" {
		version, err := semver.NewVersion(config.MinAgentVersion)
		if err != nil {
			logger.Warn().Err(err).Str("min_agent_version", config.MinAgentVersion).
				Msg("Ignoring unparseable min_agent_version")
		} else {
			h.minAgentVersion = version
		}
	}

	return h
}

// Routes returns the HTTP mux for the agent API.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agent/register", h.handleRegister)
	mux.HandleFunc("POST /api/agent/heartbeat", h.handleHeartbeat)
	mux.HandleFunc("GET /api/agent/checks", h.handleChecks)
	mux.HandleFunc("POST /api/agent/results", h.handleResults)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	return mux
}

func (h *Handler) verifySecret(w http.ResponseWriter, r *http.Request) bool {
	provided := r.Header.Get(protocol.SecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.config.AgentSecret)) != 1 {
		h.logger.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).
			Msg("Rejected request with bad agent secret")
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid agent secret")
		return false
	}
	return true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: code, Message: message})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.verifySecret(w, r) {
		return
	}

	var req protocol.RegisterRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Hostname == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "hostname is required")
		return
	}

	h.checkAgentVersion(req.Hostname, req.AgentVersion)

	endpoint, err := h.store.UpsertEndpoint(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("hostname", req.Hostname).Msg("Failed to upsert endpoint")
		writeError(w, http.StatusInternalServerError, "persistence_error", "failed to register endpoint")
		return
	}

	h.endpointHostnames.Set(endpoint.ID.String(), endpoint.Hostname)

	h.logger.Info().
		Str("hostname", endpoint.Hostname).
		Str("endpoint_id", endpoint.ID.String()).
		Str("os", req.OS).
		Msg("Endpoint registered")

	writeJSON(w, http.StatusOK, protocol.RegisterResponse{
		EndpointID: endpoint.ID,
		Message:    "registration successful",
	})
}

// checkAgentVersion warns when an agent reports a version older than the
// configured minimum. Registration is never rejected on version alone.
func (h *Handler) checkAgentVersion(hostname, agentVersion string) {
	if h.minAgentVersion == nil {
		return
	}
	version, err := semver.NewVersion(agentVersion)
	if err != nil {
		h.logger.Warn().Str("hostname", hostname).Str("agent_version", agentVersion).
			Msg("Agent reported unparseable version")
		return
	}
	if version.LessThan(h.minAgentVersion) {
		h.logger.Warn().
			Str("hostname", hostname).
			Str("agent_version", agentVersion).
			Str("min_agent_version", h.minAgentVersion.String()).
			Msg("Agent is older than the configured minimum version")
	}
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !h.verifySecret(w, r) {
		return
	}

	var req protocol.HeartbeatRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.EndpointID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "validation_error", "endpoint_id is required")
		return
	}

	now := time.Now().UTC()
	err := h.store.RecordHeartbeat(r.Context(), req.EndpointID, req.Snapshot.Snapshot(req.EndpointID), now)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "validation_error", "unknown endpoint")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("endpoint_id", req.EndpointID.String()).
			Msg("Failed to record heartbeat")
		writeError(w, http.StatusInternalServerError, "persistence_error", "failed to record heartbeat")
		return
	}

	h.logger.Debug().
		Str("endpoint_id", req.EndpointID.String()).
		Str("hostname", h.hostnameFor(r.Context(), req.EndpointID)).
		Msg("Heartbeat recorded")

	writeJSON(w, http.StatusOK, protocol.HeartbeatResponse{Status: "ok", ServerTime: now})
}

func (h *Handler) handleChecks(w http.ResponseWriter, r *http.Request) {
	if !h.verifySecret(w, r) {
		return
	}

	defs, err := h.store.ListEnabledChecks(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list enabled checks")
		writeError(w, http.StatusInternalServerError, "persistence_error", "failed to list checks")
		return
	}

	// Global assignment: every enabled check applies to every endpoint.
	response := protocol.ChecksResponse{Checks: make([]protocol.AgentCheckDefinition, 0, len(defs))}
	for _, def := range defs {
		response.Checks = append(response.Checks, protocol.AgentCheckDefinition{
			ID:         def.ID,
			Name:       def.Name,
			CheckType:  def.CheckType,
			Parameters: def.Parameters,
			Severity:   def.Severity,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	if !h.verifySecret(w, r) {
		return
	}

	var req protocol.SubmitResultsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.EndpointID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "validation_error", "endpoint_id is required")
		return
	}

	if _, err := h.store.EndpointByID(r.Context(), req.EndpointID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "validation_error", "unknown endpoint")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to look up endpoint")
		writeError(w, http.StatusInternalServerError, "persistence_error", "failed to validate endpoint")
		return
	}

	accepted, err := h.store.InsertResults(r.Context(), req.EndpointID, req.Results)
	if err != nil {
		h.logger.Error().Err(err).Str("endpoint_id", req.EndpointID.String()).
			Msg("Failed to store check results")
		writeError(w, http.StatusInternalServerError, "persistence_error", "failed to store results")
		return
	}

	h.logger.Info().
		Str("endpoint_id", req.EndpointID.String()).
		Str("hostname", h.hostnameFor(r.Context(), req.EndpointID)).
		Int("accepted", accepted).
		Msg("Check results accepted")

	writeJSON(w, http.StatusOK, protocol.SubmitResultsResponse{Accepted: accepted})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// hostnameFor resolves an endpoint's hostname for logging, consulting the
// in-memory cache before the store.
func (h *Handler) hostnameFor(ctx context.Context, id uuid.UUID) string {
	if hostname, ok := h.endpointHostnames.Get(id.String()); ok {
		return hostname
	}
	endpoint, err := h.store.EndpointByID(ctx, id)
	if err != nil {
		return ""
	}
	h.endpointHostnames.Set(id.String(), endpoint.Hostname)
	return endpoint.Hostname
}
