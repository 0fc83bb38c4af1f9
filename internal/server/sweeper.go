package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/store"
)

// snapshotRetention is how long system snapshots are kept before pruning.
const snapshotRetention = 7 * 24 * time.Hour

// Sweeper periodically transitions stale endpoints to offline and prunes old
// snapshots. It runs on its own timer, independent of request handling.
type Sweeper struct {
	store     *store.Store
	interval  time.Duration
	threshold time.Duration
	logger    zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastPrune time.Time
	mu        sync.Mutex
}

// NewSweeper initializes a new Sweeper.
func NewSweeper(st *store.Store, interval, threshold time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:     st,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
	}
}

// Start launches the sweep loop in a separate goroutine.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("Sweeper is already running")
		return errors.New("sweeper is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSweepLoop()
	}()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("offline_threshold", s.threshold).
		Msg("Sweeper started successfully")
	return nil
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		s.logger.Warn().Msg("Sweeper is not running")
		return errors.New("sweeper is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.logger.Info().Msg("Sweeper stopped successfully")
	return nil
}

func (s *Sweeper) runSweepLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(s.ctx)
		case <-s.ctx.Done():
			s.logger.Info().Msg("Sweeper stopping gracefully")
			return
		}
	}
}

// Sweep runs one sweep pass: mark stale endpoints offline, log the endpoint
// counts, and prune old snapshots at most hourly. The pass is idempotent.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	flipped, err := s.store.SweepLiveness(ctx, now, s.threshold)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sweep endpoint liveness")
	} else if flipped > 0 {
		s.logger.Info().Int64("count", flipped).Msg("Marked endpoints offline")
	}

	if counts, err := s.store.EndpointCounts(ctx); err == nil {
		s.logger.Debug().
			Int64("total", counts.Total).
			Int64("online", counts.Online).
			Int64("offline", counts.Offline).
			Int64("unknown", counts.Unknown).
			Msg("Endpoint liveness counts")
	}

	if now.Sub(s.lastPrune) >= time.Hour {
		s.lastPrune = now
		pruned, err := s.store.PruneSnapshots(ctx, now.Add(-snapshotRetention))
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to prune old snapshots")
		} else if pruned > 0 {
			s.logger.Info().Int64("count", pruned).Msg("Pruned old snapshots")
		}
	}
}
