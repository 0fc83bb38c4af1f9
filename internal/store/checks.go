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

func scanCheck(row interface{ Scan(...any) error }) (models.CheckDefinition, error) {
	var (
		c                    models.CheckDefinition
		id, params           string
		checkType, severity  string
		enabled              int
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &c.Name, &c.Description, &checkType, &params, &severity, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return models.CheckDefinition{}, err
	}

	c.ID, err = uuid.Parse(id)
	if err != nil {
		return models.CheckDefinition{}, err
	}
	c.CheckType = models.CheckType(checkType)
	c.Parameters = json.RawMessage(params)
	c.Severity = models.Severity(severity)
	c.Enabled = enabled != 0
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

const checkColumns = `id, name, description, check_type, parameters, severity, enabled, created_at, updated_at`

// CreateCheck inserts a new check definition and returns it with its ID and
// timestamps populated.
func (s *Store) CreateCheck(ctx context.Context, def models.CheckDefinition) (models.CheckDefinition, error) {
	def.ID = uuid.New()
	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	enabled := 0
	if def.Enabled {
		enabled = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO check_definitions (id, name, description, check_type, parameters, severity, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID.String(), def.Name, def.Description, string(def.CheckType),
		string(def.Parameters), string(def.Severity), enabled,
		formatTime(now), formatTime(now))
	if err != nil {
		return models.CheckDefinition{}, err
	}
	return def, nil
}

// GetCheck looks up one check definition by ID.
func (s *Store) GetCheck(ctx context.Context, id uuid.UUID) (models.CheckDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM check_definitions WHERE id = ?`, id.String())
	def, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CheckDefinition{}, fmt.Errorf("check %s: %w", id, ErrNotFound)
	}
	return def, err
}

// ListChecks returns all check definitions ordered by name.
func (s *Store) ListChecks(ctx context.Context) ([]models.CheckDefinition, error) {
	return s.listChecks(ctx, `SELECT `+checkColumns+` FROM check_definitions ORDER BY name`)
}

// ListEnabledChecks returns the enabled check definitions ordered by name.
// Disabled definitions are never assigned to agents.
func (s *Store) ListEnabledChecks(ctx context.Context) ([]models.CheckDefinition, error) {
	return s.listChecks(ctx, `SELECT `+checkColumns+` FROM check_definitions WHERE enabled = 1 ORDER BY name`)
}

func (s *Store) listChecks(ctx context.Context, query string) ([]models.CheckDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []models.CheckDefinition
	for rows.Next() {
		def, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// UpdateCheck overwrites a check definition's mutable fields.
func (s *Store) UpdateCheck(ctx context.Context, def models.CheckDefinition) error {
	enabled := 0
	if def.Enabled {
		enabled = 1
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE check_definitions
		 SET name = ?, description = ?, check_type = ?, parameters = ?, severity = ?, enabled = ?, updated_at = ?
		 WHERE id = ?`,
		def.Name, def.Description, string(def.CheckType), string(def.Parameters),
		string(def.Severity), enabled, formatTime(time.Now()), def.ID.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("check %s: %w", def.ID, ErrNotFound)
	}
	return nil
}

// DeleteCheck removes a check definition.
func (s *Store) DeleteCheck(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM check_definitions WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("check %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertCheckByName creates the check definition or, when a definition with
// the same name exists, overwrites its probe fields in place. Used when
// loading the operator's check seed file at startup.
func (s *Store) UpsertCheckByName(ctx context.Context, def models.CheckDefinition) (models.CheckDefinition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.CheckDefinition{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	enabled := 0
	if def.Enabled {
		enabled = 1
	}

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM check_definitions WHERE name = ?`, def.Name).Scan(&existingID)

	switch {
	case err == nil:
		def.ID = uuid.MustParse(existingID)
		def.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`UPDATE check_definitions
			 SET description = ?, check_type = ?, parameters = ?, severity = ?, enabled = ?, updated_at = ?
			 WHERE id = ?`,
			def.Description, string(def.CheckType), string(def.Parameters),
			string(def.Severity), enabled, formatTime(now), existingID)
	case errors.Is(err, sql.ErrNoRows):
		def.ID = uuid.New()
		def.CreatedAt = now
		def.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO check_definitions (id, name, description, check_type, parameters, severity, enabled, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			def.ID.String(), def.Name, def.Description, string(def.CheckType),
			string(def.Parameters), string(def.Severity), enabled,
			formatTime(now), formatTime(now))
	}
	if err != nil {
		return models.CheckDefinition{}, err
	}

	return def, tx.Commit()
}
