package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daveram1/EndpointAssessment/internal/checks"
	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
	"github.com/daveram1/EndpointAssessment/internal/utils"
)

type fakeTransport struct {
	mu sync.Mutex

	checks     []protocol.AgentCheckDefinition
	fetchErr   error
	heartbeats []protocol.SystemSnapshotData
	submitted  [][]protocol.AgentCheckResult
}

func (f *fakeTransport) FetchChecks(context.Context) (protocol.ChecksResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return protocol.ChecksResponse{}, f.fetchErr
	}
	return protocol.ChecksResponse{Checks: f.checks}, nil
}

func (f *fakeTransport) Heartbeat(_ context.Context, _ uuid.UUID, snapshot protocol.SystemSnapshotData) (protocol.HeartbeatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, snapshot)
	return protocol.HeartbeatResponse{Status: "ok"}, nil
}

func (f *fakeTransport) SubmitResults(_ context.Context, _ uuid.UUID, results []protocol.AgentCheckResult) (protocol.SubmitResultsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, results)
	return protocol.SubmitResultsResponse{Accepted: len(results)}, nil
}

func (f *fakeTransport) submissions() [][]protocol.AgentCheckResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func (f *fakeTransport) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heartbeats)
}

type fakeCollector struct{}

func (fakeCollector) Snapshot(context.Context) protocol.SystemSnapshotData {
	return protocol.SystemSnapshotData{CollectedAt: time.Now().UTC(), CPUPercent: 12.5}
}

type fakeExecutor struct {
	execute func(ctx context.Context, def protocol.AgentCheckDefinition) checks.Outcome
}

func (f fakeExecutor) Execute(ctx context.Context, def protocol.AgentCheckDefinition) checks.Outcome {
	return f.execute(ctx, def)
}

func checkDef(name string) protocol.AgentCheckDefinition {
	return protocol.AgentCheckDefinition{
		ID:         uuid.New(),
		Name:       name,
		CheckType:  models.CheckFileExists,
		Parameters: json.RawMessage(`{"path": "/etc/hosts"}`),
		Severity:   models.SeverityMedium,
	}
}

func newTestScheduler(t *testing.T, transport *fakeTransport, executor CheckRunner) *Scheduler {
	t.Helper()
	pool := utils.NewWorkerPool(2)
	t.Cleanup(pool.Shutdown)
	return NewScheduler(uuid.New(), time.Hour, time.Second, transport, fakeCollector{}, executor, pool, zerolog.Nop())
}

func TestScheduler_RunCycle(t *testing.T) {
	transport := &fakeTransport{checks: []protocol.AgentCheckDefinition{checkDef("a"), checkDef("b")}}
	executor := fakeExecutor{execute: func(context.Context, protocol.AgentCheckDefinition) checks.Outcome {
		return checks.Outcome{Status: models.CheckPass, Message: "ok"}
	}}
	scheduler := newTestScheduler(t, transport, executor)

	scheduler.RunCycle(context.Background())

	assert.Equal(t, 1, transport.heartbeatCount())
	submissions := transport.submissions()
	require.Len(t, submissions, 1)
	assert.Len(t, submissions[0], 2)
	for _, result := range submissions[0] {
		assert.Equal(t, models.CheckPass, result.Status)
		assert.False(t, result.CollectedAt.IsZero())
	}
}

func TestScheduler_FetchFailureSkipsCycle(t *testing.T) {
	transport := &fakeTransport{fetchErr: errors.New("server unreachable")}
	executor := fakeExecutor{execute: func(context.Context, protocol.AgentCheckDefinition) checks.Outcome {
		t.Fatal("executor must not run when the fetch fails")
		return checks.Outcome{}
	}}
	scheduler := newTestScheduler(t, transport, executor)

	scheduler.RunCycle(context.Background())

	assert.Zero(t, transport.heartbeatCount())
	assert.Empty(t, transport.submissions())
}

func TestScheduler_NoChecksSkipsSubmission(t *testing.T) {
	transport := &fakeTransport{}
	executor := fakeExecutor{execute: func(context.Context, protocol.AgentCheckDefinition) checks.Outcome {
		return checks.Outcome{Status: models.CheckPass}
	}}
	scheduler := newTestScheduler(t, transport, executor)

	scheduler.RunCycle(context.Background())

	assert.Equal(t, 1, transport.heartbeatCount(), "heartbeat goes out even with no checks assigned")
	assert.Empty(t, transport.submissions())
}

func TestScheduler_BoundedConcurrency(t *testing.T) {
	defs := make([]protocol.AgentCheckDefinition, 8)
	for i := range defs {
		defs[i] = checkDef("check")
	}
	transport := &fakeTransport{checks: defs}

	var inFlight, peak atomic.Int64
	executor := fakeExecutor{execute: func(context.Context, protocol.AgentCheckDefinition) checks.Outcome {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return checks.Outcome{Status: models.CheckPass}
	}}

	scheduler := newTestScheduler(t, transport, executor)
	scheduler.RunCycle(context.Background())

	assert.LessOrEqual(t, peak.Load(), int64(2))
	submissions := transport.submissions()
	require.Len(t, submissions, 1)
	assert.Len(t, submissions[0], 8)
}

func TestScheduler_StartStop(t *testing.T) {
	transport := &fakeTransport{}
	executor := fakeExecutor{execute: func(context.Context, protocol.AgentCheckDefinition) checks.Outcome {
		return checks.Outcome{Status: models.CheckPass}
	}}
	scheduler := newTestScheduler(t, transport, executor)

	require.NoError(t, scheduler.Start())
	assert.EqualError(t, scheduler.Start(), "scheduler is already running")

	require.NoError(t, scheduler.Stop())
	assert.EqualError(t, scheduler.Stop(), "scheduler is not running")

	// The immediate first cycle ran before Stop returned.
	assert.GreaterOrEqual(t, transport.heartbeatCount(), 1)
}
