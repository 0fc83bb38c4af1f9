package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daveram1/EndpointAssessment/internal/models"
)

// RecordHeartbeat persists a heartbeat atomically: the snapshot row and the
// endpoint's last_seen/status update commit together or not at all. Returns
// ErrNotFound when the endpoint does not exist.
func (s *Store) RecordHeartbeat(ctx context.Context, endpointID uuid.UUID, snapshot models.SystemSnapshot, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM endpoints WHERE id = ?`, endpointID.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("endpoint %s: %w", endpointID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	processes, err := json.Marshal(snapshot.Processes)
	if err != nil {
		return err
	}
	ports, err := json.Marshal(snapshot.OpenPorts)
	if err != nil {
		return err
	}
	software, err := json.Marshal(snapshot.InstalledSoftware)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO system_snapshots
		 (id, endpoint_id, cpu_percent, memory_total, memory_used, disk_total, disk_used,
		  processes, open_ports, installed_software, collected_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), endpointID.String(),
		snapshot.CPUPercent, snapshot.MemoryTotal, snapshot.MemoryUsed,
		snapshot.DiskTotal, snapshot.DiskUsed,
		string(processes), string(ports), string(software),
		formatTime(snapshot.CollectedAt), formatTime(now))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE endpoints SET last_seen = ?, status = ? WHERE id = ?`,
		formatTime(now),
		string(models.NextStatus(models.StatusUnknown, nil, now, 0, models.EventHeartbeat)),
		endpointID.String())
	if err != nil {
		return err
	}

	return tx.Commit()
}
