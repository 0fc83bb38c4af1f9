package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
)

// InsertResults appends a batch of check results for one endpoint inside a
// single transaction and returns how many rows were written. Results are
// append-only: resubmitting the same check/endpoint pair produces new rows.
func (s *Store) InsertResults(ctx context.Context, endpointID uuid.UUID, results []protocol.AgentCheckResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO check_results (id, endpoint_id, check_id, status, message, collected_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	accepted := 0
	for _, result := range results {
		_, err := stmt.ExecContext(ctx,
			uuid.New().String(), endpointID.String(), result.CheckID.String(),
			string(result.Status), result.Message, formatTime(result.CollectedAt), now)
		if err != nil {
			return 0, err
		}
		accepted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return accepted, nil
}

// ResultsForEndpoint returns the most recent results for one endpoint,
// newest first.
func (s *Store) ResultsForEndpoint(ctx context.Context, endpointID uuid.UUID, limit int) ([]models.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint_id, check_id, status, message, collected_at, created_at
		 FROM check_results WHERE endpoint_id = ?
		 ORDER BY collected_at DESC LIMIT ?`,
		endpointID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.CheckResult
	for rows.Next() {
		var (
			r                          models.CheckResult
			id, epID, checkID, status  string
			collectedAt, createdAt     string
		)
		err := rows.Scan(&id, &epID, &checkID, &status, &r.Message, &collectedAt, &createdAt)
		if err != nil {
			return nil, err
		}

		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if r.EndpointID, err = uuid.Parse(epID); err != nil {
			return nil, err
		}
		if r.CheckID, err = uuid.Parse(checkID); err != nil {
			return nil, err
		}
		r.Status = models.CheckStatus(status)
		r.CollectedAt = parseTime(collectedAt)
		r.CreatedAt = parseTime(createdAt)
		results = append(results, r)
	}
	return results, rows.Err()
}
