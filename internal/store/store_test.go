package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func registerRequest(hostname string) protocol.RegisterRequest {
	return protocol.RegisterRequest{
		Hostname:     hostname,
		OS:           "linux",
		OSVersion:    "6.1",
		AgentVersion: "1.0.0",
		IPAddresses:  []string{"10.0.0.5"},
	}
}

func TestUpsertEndpoint_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.UpsertEndpoint(ctx, registerRequest("web-01"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, first.Status)
	require.NotNil(t, first.LastSeen)

	// Re-registering the same hostname keeps the identifier and overwrites
	// the fields.
	updated := registerRequest("web-01")
	updated.AgentVersion = "1.1.0"
	second, err := st.UpsertEndpoint(ctx, updated)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "1.1.0", second.AgentVersion)

	endpoints, err := st.ListEndpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, endpoints, 1)
	assert.Equal(t, "1.1.0", endpoints[0].AgentVersion)
}

func TestEndpointByID_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.EndpointByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchHeartbeat_UnknownEndpoint(t *testing.T) {
	st := newTestStore(t)

	err := st.TouchHeartbeat(context.Background(), uuid.New(), time.Now())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepLiveness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	threshold := 10 * time.Minute

	stale, err := st.UpsertEndpoint(ctx, registerRequest("stale-01"))
	require.NoError(t, err)
	require.NoError(t, st.TouchHeartbeat(ctx, stale.ID, now.Add(-11*time.Minute)))

	fresh, err := st.UpsertEndpoint(ctx, registerRequest("fresh-01"))
	require.NoError(t, err)
	require.NoError(t, st.TouchHeartbeat(ctx, fresh.ID, now.Add(-1*time.Minute)))

	flipped, err := st.SweepLiveness(ctx, now, threshold)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	got, err := st.EndpointByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, got.Status)

	got, err = st.EndpointByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, got.Status)

	// Re-running the sweep with nothing newly stale changes nothing.
	flipped, err = st.SweepLiveness(ctx, now, threshold)
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestEndpointCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	online, err := st.UpsertEndpoint(ctx, registerRequest("online-01"))
	require.NoError(t, err)
	require.NoError(t, st.TouchHeartbeat(ctx, online.ID, now))

	offline, err := st.UpsertEndpoint(ctx, registerRequest("offline-01"))
	require.NoError(t, err)
	require.NoError(t, st.TouchHeartbeat(ctx, offline.ID, now.Add(-time.Hour)))
	_, err = st.SweepLiveness(ctx, now, 10*time.Minute)
	require.NoError(t, err)

	counts, err := st.EndpointCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Total)
	assert.Equal(t, int64(1), counts.Online)
	assert.Equal(t, int64(1), counts.Offline)
}

func seedCheckDefinition(t *testing.T, st *Store, name string, enabled bool) models.CheckDefinition {
	t.Helper()
	def, err := st.CreateCheck(context.Background(), models.CheckDefinition{
		Name:       name,
		CheckType:  models.CheckFileExists,
		Parameters: json.RawMessage(`{"path": "/etc/passwd"}`),
		Severity:   models.SeverityHigh,
		Enabled:    enabled,
	})
	require.NoError(t, err)
	return def
}

func TestListEnabledChecks_FiltersDisabled(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedCheckDefinition(t, st, "enabled-check", true)
	seedCheckDefinition(t, st, "disabled-check", false)

	enabled, err := st.ListEnabledChecks(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "enabled-check", enabled[0].Name)

	all, err := st.ListChecks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateAndDeleteCheck(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	def := seedCheckDefinition(t, st, "mutable-check", true)
	def.Enabled = false
	def.Severity = models.SeverityLow
	require.NoError(t, st.UpdateCheck(ctx, def))

	got, err := st.GetCheck(ctx, def.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, models.SeverityLow, got.Severity)

	require.NoError(t, st.DeleteCheck(ctx, def.ID))
	_, err = st.GetCheck(ctx, def.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertCheckByName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	def := models.CheckDefinition{
		Name:       "sshd-running",
		CheckType:  models.CheckProcessRunning,
		Parameters: json.RawMessage(`{"name": "sshd"}`),
		Severity:   models.SeverityHigh,
		Enabled:    true,
	}

	first, err := st.UpsertCheckByName(ctx, def)
	require.NoError(t, err)

	def.Severity = models.SeverityCritical
	second, err := st.UpsertCheckByName(ctx, def)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	all, err := st.ListChecks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.SeverityCritical, all[0].Severity)
}

func TestInsertResults_AppendOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	endpoint, err := st.UpsertEndpoint(ctx, registerRequest("web-01"))
	require.NoError(t, err)
	def := seedCheckDefinition(t, st, "some-check", true)

	result := protocol.AgentCheckResult{
		CheckID:     def.ID,
		Status:      models.CheckFail,
		Message:     "port 443 is not listening",
		CollectedAt: time.Now().UTC(),
	}

	accepted, err := st.InsertResults(ctx, endpoint.ID, []protocol.AgentCheckResult{result})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	// Submitting the same result again appends a second row, never updates.
	accepted, err = st.InsertResults(ctx, endpoint.ID, []protocol.AgentCheckResult{result})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	rows, err := st.ResultsForEndpoint(ctx, endpoint.ID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSnapshots_InsertAndPrune(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	endpoint, err := st.UpsertEndpoint(ctx, registerRequest("web-01"))
	require.NoError(t, err)

	old := models.SystemSnapshot{
		EndpointID:  endpoint.ID,
		CPUPercent:  12.5,
		CollectedAt: time.Now().UTC().Add(-8 * 24 * time.Hour),
	}
	recent := models.SystemSnapshot{
		EndpointID:  endpoint.ID,
		CPUPercent:  50,
		CollectedAt: time.Now().UTC(),
	}
	require.NoError(t, st.InsertSnapshot(ctx, old))
	require.NoError(t, st.InsertSnapshot(ctx, recent))

	pruned, err := st.PruneSnapshots(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	n, err := st.SnapshotCount(ctx, endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// Stored timestamps are compared as strings, so a snapshot collected on a
// whole second must still sort before a cutoff inside the next fraction of
// that second.
func TestPruneSnapshots_WholeSecondBoundary(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	endpoint, err := st.UpsertEndpoint(ctx, registerRequest("web-01"))
	require.NoError(t, err)

	collected := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	snapshot := models.SystemSnapshot{EndpointID: endpoint.ID, CollectedAt: collected}
	require.NoError(t, st.InsertSnapshot(ctx, snapshot))

	pruned, err := st.PruneSnapshots(ctx, collected.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestRecordHeartbeat(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	endpoint, err := st.UpsertEndpoint(ctx, registerRequest("web-01"))
	require.NoError(t, err)
	// Make the endpoint stale and offline first.
	require.NoError(t, st.TouchHeartbeat(ctx, endpoint.ID, now.Add(-time.Hour)))
	_, err = st.SweepLiveness(ctx, now, 10*time.Minute)
	require.NoError(t, err)

	snapshot := models.SystemSnapshot{EndpointID: endpoint.ID, CollectedAt: now}
	require.NoError(t, st.RecordHeartbeat(ctx, endpoint.ID, snapshot, now))

	got, err := st.EndpointByID(ctx, endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, got.Status)
	require.NotNil(t, got.LastSeen)
	assert.WithinDuration(t, now, *got.LastSeen, time.Second)

	n, err := st.SnapshotCount(ctx, endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecordHeartbeat_UnknownEndpoint(t *testing.T) {
	st := newTestStore(t)

	err := st.RecordHeartbeat(context.Background(), uuid.New(),
		models.SystemSnapshot{CollectedAt: time.Now()}, time.Now())

	assert.ErrorIs(t, err, ErrNotFound)
}
