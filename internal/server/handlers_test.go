package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
	"github.com/daveram1/EndpointAssessment/internal/store"
	"github.com/daveram1/EndpointAssessment/internal/utils"
)

const testSecret = "test-secret"

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	config := &utils.ServerConfig{
		AgentSecret:             testSecret,
		OfflineThresholdMinutes: 10,
	}
	return NewHandler(st, config, zerolog.Nop()), st
}

func doRequest(t *testing.T, h *Handler, method, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if secret != "" {
		req.Header.Set(protocol.SecretHeader, secret)
	}

	recorder := httptest.NewRecorder()
	h.Routes().ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&v))
	return v
}

func registerBody(hostname string) protocol.RegisterRequest {
	return protocol.RegisterRequest{
		Hostname:     hostname,
		OS:           "linux",
		OSVersion:    "6.1",
		AgentVersion: "1.0.0",
		IPAddresses:  []string{"10.0.0.5"},
	}
}

func TestHandler_RejectsBadSecret(t *testing.T) {
	h, _ := newTestHandler(t)

	paths := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/agent/register"},
		{http.MethodPost, "/api/agent/heartbeat"},
		{http.MethodGet, "/api/agent/checks"},
		{http.MethodPost, "/api/agent/results"},
	}

	for _, p := range paths {
		t.Run(p.path+" missing secret", func(t *testing.T) {
			recorder := doRequest(t, h, p.method, p.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
		t.Run(p.path+" wrong secret", func(t *testing.T) {
			recorder := doRequest(t, h, p.method, p.path, "wrong", nil)
			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
	}
}

func TestHandler_Register_Idempotent(t *testing.T) {
	h, st := newTestHandler(t)

	first := doRequest(t, h, http.MethodPost, "/api/agent/register", testSecret, registerBody("web-01"))
	require.Equal(t, http.StatusOK, first.Code)
	firstResponse := decodeResponse[protocol.RegisterResponse](t, first)

	second := doRequest(t, h, http.MethodPost, "/api/agent/register", testSecret, registerBody("web-01"))
	require.Equal(t, http.StatusOK, second.Code)
	secondResponse := decodeResponse[protocol.RegisterResponse](t, second)

	assert.Equal(t, firstResponse.EndpointID, secondResponse.EndpointID)

	endpoints, err := st.ListEndpoints(context.Background())
	require.NoError(t, err)
	assert.Len(t, endpoints, 1)
}

func TestHandler_Register_MissingHostname(t *testing.T) {
	h, _ := newTestHandler(t)

	recorder := doRequest(t, h, http.MethodPost, "/api/agent/register", testSecret,
		protocol.RegisterRequest{OS: "linux"})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandler_Register_MalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/agent/register",
		bytes.NewReader([]byte("{not json")))
	req.Header.Set(protocol.SecretHeader, testSecret)
	recorder := httptest.NewRecorder()
	h.Routes().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandler_Heartbeat(t *testing.T) {
	h, st := newTestHandler(t)

	registered := doRequest(t, h, http.MethodPost, "/api/agent/register", testSecret, registerBody("web-01"))
	endpointID := decodeResponse[protocol.RegisterResponse](t, registered).EndpointID

	heartbeat := protocol.HeartbeatRequest{
		EndpointID: endpointID,
		Snapshot: protocol.SystemSnapshotData{
			CollectedAt: time.Now().UTC(),
			CPUPercent:  42,
			OpenPorts:   []uint32{22, 443},
		},
	}
	recorder := doRequest(t, h, http.MethodPost, "/api/agent/heartbeat", testSecret, heartbeat)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decodeResponse[protocol.HeartbeatResponse](t, recorder)
	assert.Equal(t, "ok", response.Status)

	endpoint, err := st.EndpointByID(context.Background(), endpointID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, endpoint.Status)

	n, err := st.SnapshotCount(context.Background(), endpointID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHandler_Heartbeat_UnknownEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	heartbeat := protocol.HeartbeatRequest{
		EndpointID: uuid.New(),
		Snapshot:   protocol.SystemSnapshotData{CollectedAt: time.Now()},
	}
	recorder := doRequest(t, h, http.MethodPost, "/api/agent/heartbeat", testSecret, heartbeat)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandler_Checks_ReturnsOnlyEnabled(t *testing.T) {
	h, st := newTestHandler(t)
	ctx := context.Background()

	_, err := st.CreateCheck(ctx, models.CheckDefinition{
		Name:       "enabled-check",
		CheckType:  models.CheckPortOpen,
		Parameters: json.RawMessage(`{"port": 443}`),
		Severity:   models.SeverityHigh,
		Enabled:    true,
	})
	require.NoError(t, err)
	_, err = st.CreateCheck(ctx, models.CheckDefinition{
		Name:       "disabled-check",
		CheckType:  models.CheckFileExists,
		Parameters: json.RawMessage(`{"path": "/etc/passwd"}`),
		Severity:   models.SeverityLow,
		Enabled:    false,
	})
	require.NoError(t, err)

	recorder := doRequest(t, h, http.MethodGet, "/api/agent/checks", testSecret, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	response := decodeResponse[protocol.ChecksResponse](t, recorder)
	require.Len(t, response.Checks, 1)
	assert.Equal(t, "enabled-check", response.Checks[0].Name)
	assert.Equal(t, models.CheckPortOpen, response.Checks[0].CheckType)
}

func TestHandler_Results_AppendOnly(t *testing.T) {
	h, st := newTestHandler(t)

	registered := doRequest(t, h, http.MethodPost, "/api/agent/register", testSecret, registerBody("web-01"))
	endpointID := decodeResponse[protocol.RegisterResponse](t, registered).EndpointID

	submission := protocol.SubmitResultsRequest{
		EndpointID: endpointID,
		Results: []protocol.AgentCheckResult{
			{CheckID: uuid.New(), Status: models.CheckFail, Message: "port 443 is not listening", CollectedAt: time.Now().UTC()},
			{CheckID: uuid.New(), Status: models.CheckPass, Message: "file exists", CollectedAt: time.Now().UTC()},
		},
	}

	recorder := doRequest(t, h, http.MethodPost, "/api/agent/results", testSecret, submission)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 2, decodeResponse[protocol.SubmitResultsResponse](t, recorder).Accepted)

	// A duplicate submission appends more rows.
	recorder = doRequest(t, h, http.MethodPost, "/api/agent/results", testSecret, submission)
	require.Equal(t, http.StatusOK, recorder.Code)

	rows, err := st.ResultsForEndpoint(context.Background(), endpointID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestHandler_Results_UnknownEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	submission := protocol.SubmitResultsRequest{
		EndpointID: uuid.New(),
		Results: []protocol.AgentCheckResult{
			{CheckID: uuid.New(), Status: models.CheckPass, CollectedAt: time.Now()},
		},
	}
	recorder := doRequest(t, h, http.MethodPost, "/api/agent/results", testSecret, submission)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandler_Healthz_Unauthenticated(t *testing.T) {
	h, _ := newTestHandler(t)

	recorder := doRequest(t, h, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
}
