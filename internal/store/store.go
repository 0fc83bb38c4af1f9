// Package store persists endpoints, check definitions, check results and
// system snapshots in SQLite. Every exported operation is scoped to a single
// transaction; there are no long-lived transactions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/protocol"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; serialize access through a single connection
	// so concurrent request handlers queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS endpoints (
  id TEXT PRIMARY KEY,
  hostname TEXT NOT NULL UNIQUE,
  os TEXT NOT NULL DEFAULT '',
  os_version TEXT NOT NULL DEFAULT '',
  agent_version TEXT NOT NULL DEFAULT '',
  ip_addresses TEXT NOT NULL DEFAULT '[]',
  last_seen TEXT,
  status TEXT NOT NULL DEFAULT 'unknown',
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS check_definitions (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  description TEXT NOT NULL DEFAULT '',
  check_type TEXT NOT NULL,
  parameters TEXT NOT NULL,
  severity TEXT NOT NULL DEFAULT 'medium',
  enabled INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS check_results (
  id TEXT PRIMARY KEY,
  endpoint_id TEXT NOT NULL,
  check_id TEXT NOT NULL,
  status TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  collected_at TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_endpoint ON check_results(endpoint_id, collected_at);
CREATE INDEX IF NOT EXISTS idx_results_check ON check_results(check_id);
CREATE TABLE IF NOT EXISTS system_snapshots (
  id TEXT PRIMARY KEY,
  endpoint_id TEXT NOT NULL,
  cpu_percent REAL NOT NULL DEFAULT 0,
  memory_total INTEGER NOT NULL DEFAULT 0,
  memory_used INTEGER NOT NULL DEFAULT 0,
  disk_total INTEGER NOT NULL DEFAULT 0,
  disk_used INTEGER NOT NULL DEFAULT 0,
  processes TEXT NOT NULL DEFAULT '[]',
  open_ports TEXT NOT NULL DEFAULT '[]',
  installed_software TEXT NOT NULL DEFAULT '[]',
  collected_at TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_endpoint ON system_snapshots(endpoint_id, collected_at);
`)
	return err
}

// timeFormat is fixed-width so stored timestamps compare correctly as
// strings; RFC3339Nano drops a zero fractional part, which breaks
// lexicographic ordering across second boundaries.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// UpsertEndpoint registers an endpoint keyed on hostname. An existing row is
// updated in place and keeps its identifier; a new row gets a fresh UUID.
// Either way the endpoint comes back online with last_seen refreshed.
func (s *Store) UpsertEndpoint(ctx context.Context, req protocol.RegisterRequest) (models.Endpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Endpoint{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	ipJSON, err := json.Marshal(req.IPAddresses)
	if err != nil {
		return models.Endpoint{}, err
	}

	var existingID string
	var createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM endpoints WHERE hostname = ?`, req.Hostname,
	).Scan(&existingID, &createdAt)

	endpoint := models.Endpoint{
		Hostname:     req.Hostname,
		OS:           req.OS,
		OSVersion:    req.OSVersion,
		AgentVersion: req.AgentVersion,
		IPAddresses:  req.IPAddresses,
		LastSeen:     &now,
		Status:       models.StatusOnline,
	}

	switch {
	case err == nil:
		endpoint.ID = uuid.MustParse(existingID)
		endpoint.CreatedAt = parseTime(createdAt)
		_, err = tx.ExecContext(ctx,
			`UPDATE endpoints
			 SET os = ?, os_version = ?, agent_version = ?, ip_addresses = ?, last_seen = ?, status = ?
			 WHERE id = ?`,
			req.OS, req.OSVersion, req.AgentVersion, string(ipJSON),
			formatTime(now), string(models.StatusOnline), existingID,
		)
	case errors.Is(err, sql.ErrNoRows):
		endpoint.ID = uuid.New()
		endpoint.CreatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO endpoints (id, hostname, os, os_version, agent_version, ip_addresses, last_seen, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			endpoint.ID.String(), req.Hostname, req.OS, req.OSVersion, req.AgentVersion,
			string(ipJSON), formatTime(now), string(models.StatusOnline), formatTime(now),
		)
	}
	if err != nil {
		return models.Endpoint{}, err
	}

	return endpoint, tx.Commit()
}

func scanEndpoint(row interface{ Scan(...any) error }) (models.Endpoint, error) {
	var (
		e          models.Endpoint
		id, ips    string
		lastSeen   sql.NullString
		status     string
		createdAt  string
	)
	err := row.Scan(&id, &e.Hostname, &e.OS, &e.OSVersion, &e.AgentVersion, &ips, &lastSeen, &status, &createdAt)
	if err != nil {
		return models.Endpoint{}, err
	}

	e.ID, err = uuid.Parse(id)
	if err != nil {
		return models.Endpoint{}, err
	}
	if err := json.Unmarshal([]byte(ips), &e.IPAddresses); err != nil {
		e.IPAddresses = nil
	}
	if lastSeen.Valid {
		t := parseTime(lastSeen.String)
		e.LastSeen = &t
	}
	e.Status = models.EndpointStatus(status)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

const endpointColumns = `id, hostname, os, os_version, agent_version, ip_addresses, last_seen, status, created_at`

// EndpointByID looks up one endpoint. Returns ErrNotFound when absent.
func (s *Store) EndpointByID(ctx context.Context, id uuid.UUID) (models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id.String())
	endpoint, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Endpoint{}, fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	return endpoint, err
}

// EndpointByHostname looks up one endpoint by hostname.
func (s *Store) EndpointByHostname(ctx context.Context, hostname string) (models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE hostname = ?`, hostname)
	endpoint, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Endpoint{}, fmt.Errorf("endpoint %s: %w", hostname, ErrNotFound)
	}
	return endpoint, err
}

// ListEndpoints returns all endpoints ordered by hostname.
func (s *Store) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints ORDER BY hostname`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, rows.Err()
}

// TouchHeartbeat refreshes last_seen and applies the heartbeat liveness
// transition. Returns ErrNotFound when the endpoint does not exist.
func (s *Store) TouchHeartbeat(ctx context.Context, id uuid.UUID, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET last_seen = ?, status = ? WHERE id = ?`,
		formatTime(now), string(models.NextStatus(models.StatusUnknown, nil, now, 0, models.EventHeartbeat)), id.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	return nil
}

// SweepLiveness applies the sweep liveness transition to every endpoint and
// returns how many changed status. The whole sweep runs in one transaction,
// so a heartbeat arriving mid-sweep either commits before the sweep reads or
// after it writes, never in between. Re-running the sweep when nothing has
// crossed the threshold changes nothing.
func (s *Store) SweepLiveness(ctx context.Context, now time.Time, threshold time.Duration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, status, last_seen FROM endpoints`)
	if err != nil {
		return 0, err
	}

	type transition struct {
		id   string
		next models.EndpointStatus
	}
	var transitions []transition
	for rows.Next() {
		var id, status string
		var lastSeen sql.NullString
		if err := rows.Scan(&id, &status, &lastSeen); err != nil {
			rows.Close()
			return 0, err
		}

		var seen *time.Time
		if lastSeen.Valid {
			t := parseTime(lastSeen.String)
			seen = &t
		}

		current := models.EndpointStatus(status)
		next := models.NextStatus(current, seen, now, threshold, models.EventSweep)
		if next != current {
			transitions = append(transitions, transition{id: id, next: next})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, tr := range transitions {
		if _, err := tx.ExecContext(ctx,
			`UPDATE endpoints SET status = ? WHERE id = ?`, string(tr.next), tr.id); err != nil {
			return 0, err
		}
	}

	return int64(len(transitions)), tx.Commit()
}

// EndpointCounts aggregates endpoints by liveness status.
func (s *Store) EndpointCounts(ctx context.Context) (models.EndpointCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM endpoints GROUP BY status`)
	if err != nil {
		return models.EndpointCounts{}, err
	}
	defer rows.Close()

	var counts models.EndpointCounts
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return models.EndpointCounts{}, err
		}
		counts.Total += n
		switch models.EndpointStatus(status) {
		case models.StatusOnline:
			counts.Online = n
		case models.StatusOffline:
			counts.Offline = n
		case models.StatusUnknown:
			counts.Unknown = n
		}
	}
	return counts, rows.Err()
}
