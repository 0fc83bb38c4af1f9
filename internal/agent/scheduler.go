package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/checks"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
	"github.com/daveram1/EndpointAssessment/internal/utils"
)

// Transport is the protocol surface the scheduler drives each cycle.
type Transport interface {
	FetchChecks(ctx context.Context) (protocol.ChecksResponse, error)
	Heartbeat(ctx context.Context, endpointID uuid.UUID, snapshot protocol.SystemSnapshotData) (protocol.HeartbeatResponse, error)
	SubmitResults(ctx context.Context, endpointID uuid.UUID, results []protocol.AgentCheckResult) (protocol.SubmitResultsResponse, error)
}

// SnapshotProvider supplies the system snapshot carried by heartbeats.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) protocol.SystemSnapshotData
}

// CheckRunner executes one check definition.
type CheckRunner interface {
	Execute(ctx context.Context, def protocol.AgentCheckDefinition) checks.Outcome
}

// Scheduler drives periodic collection cycles: fetch assigned checks,
// execute them with bounded concurrency, collect a snapshot, and report
// everything back. Cycles never overlap; a failed fetch skips the cycle and
// tries again at the next interval.
type Scheduler struct {
	endpointID   uuid.UUID
	interval     time.Duration
	checkTimeout time.Duration
	transport    Transport
	collector    SnapshotProvider
	executor     CheckRunner
	workerPool   *utils.WorkerPool
	logger       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler initializes a new Scheduler.
func NewScheduler(
	endpointID uuid.UUID,
	interval, checkTimeout time.Duration,
	transport Transport,
	collector SnapshotProvider,
	executor CheckRunner,
	workerPool *utils.WorkerPool,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		endpointID:   endpointID,
		interval:     interval,
		checkTimeout: checkTimeout,
		transport:    transport,
		collector:    collector,
		executor:     executor,
		workerPool:   workerPool,
		logger:       logger,
	}
}

// Start launches the collection loop in a separate goroutine. The first
// cycle runs immediately; subsequent cycles follow the configured interval.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("Scheduler is already running")
		return errors.New("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCollectionLoop()
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started successfully")
	return nil
}

// Stop cancels in-flight check executions and waits for the loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		s.logger.Warn().Msg("Scheduler is not running")
		return errors.New("scheduler is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.logger.Info().Msg("Scheduler stopped successfully")
	return nil
}

func (s *Scheduler) runCollectionLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunCycle(s.ctx)

	for {
		select {
		case <-ticker.C:
			s.RunCycle(s.ctx)
		case <-s.ctx.Done():
			s.logger.Info().Msg("Scheduler stopping gracefully")
			return
		}
	}
}

// RunCycle performs one collection cycle. Transport failures degrade
// gracefully: a failed check fetch skips the cycle, and heartbeat and result
// submission failures are independent and non-fatal.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.logger.Debug().Msg("Starting collection cycle")

	checksResponse, err := s.transport.FetchChecks(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch checks, skipping cycle")
		return
	}

	results := s.executeChecks(ctx, checksResponse.Checks)

	snapshot := s.collector.Snapshot(ctx)

	if _, err := s.transport.Heartbeat(ctx, s.endpointID, snapshot); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send heartbeat")
	} else {
		s.logger.Debug().Msg("Heartbeat sent successfully")
	}

	if len(results) > 0 {
		response, err := s.transport.SubmitResults(ctx, s.endpointID, results)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to submit check results")
		} else {
			s.logger.Info().Int("accepted", response.Accepted).Msg("Check results submitted")
		}
	}

	s.logger.Debug().Msg("Collection cycle complete")
}

// executeChecks runs the assigned checks on the worker pool. Each execution
// gets its own timeout so one stuck check cannot stall the others beyond
// that bound; a failing check never aborts its siblings.
func (s *Scheduler) executeChecks(ctx context.Context, defs []protocol.AgentCheckDefinition) []protocol.AgentCheckResult {
	if len(defs) == 0 {
		s.logger.Debug().Msg("No checks assigned")
		return nil
	}

	s.logger.Info().Int("count", len(defs)).Msg("Executing checks")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]protocol.AgentCheckResult, 0, len(defs))
	)

	for _, def := range defs {
		def := def
		wg.Add(1)
		err := s.workerPool.Submit(ctx, func() {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
			outcome := s.executor.Execute(checkCtx, def)
			cancel()

			mu.Lock()
			results = append(results, protocol.AgentCheckResult{
				CheckID:     def.ID,
				Status:      outcome.Status,
				Message:     outcome.Message,
				CollectedAt: time.Now().UTC(),
			})
			mu.Unlock()
		})
		if err != nil {
			// Shutdown while queueing; report what finished so far.
			wg.Done()
			break
		}
	}

	wg.Wait()
	return results
}
