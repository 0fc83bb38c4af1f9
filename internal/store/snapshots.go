package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/daveram1/EndpointAssessment/internal/models"
)

// InsertSnapshot appends one system snapshot. Inventories are stored as
// opaque JSON; the server never interprets them.
func (s *Store) InsertSnapshot(ctx context.Context, snapshot models.SystemSnapshot) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO system_snapshots
		 (id, endpoint_id, cpu_percent, memory_total, memory_used, disk_total, disk_used,
		  processes, open_ports, installed_software, collected_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), snapshot.EndpointID.String(),
		snapshot.CPUPercent, snapshot.MemoryTotal, snapshot.MemoryUsed,
		snapshot.DiskTotal, snapshot.DiskUsed,
		string(processes), string(ports), string(software),
		formatTime(snapshot.CollectedAt), formatTime(time.Now()))
	return err
}

// SnapshotCount returns how many snapshots are stored for an endpoint.
func (s *Store) SnapshotCount(ctx context.Context, endpointID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM system_snapshots WHERE endpoint_id = ?`,
		endpointID.String()).Scan(&n)
	return n, err
}

// PruneSnapshots deletes snapshots collected before the cutoff and returns
// how many rows were removed.
func (s *Store) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM system_snapshots WHERE collected_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
