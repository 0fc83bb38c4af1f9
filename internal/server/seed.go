package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/daveram1/EndpointAssessment/internal/models"
	"github.com/daveram1/EndpointAssessment/internal/store"
	"github.com/daveram1/EndpointAssessment/pkg/file"
)

// seedCheck is one check definition in the operator's YAML seed file.
type seedCheck struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	CheckType   string         `yaml:"check_type"`
	Parameters  map[string]any `yaml:"parameters"`
	Severity    string         `yaml:"severity"`
	Enabled     *bool          `yaml:"enabled"`
}

type seedFile struct {
	Checks []seedCheck `yaml:"checks"`
}

// LoadCheckSeed reads a YAML file of check definitions and upserts each by
// name, so re-running the server with an edited seed updates definitions in
// place without duplicating them.
func LoadCheckSeed(ctx context.Context, path string, fileClient file.FileOperations, st *store.Store, logger zerolog.Logger) error {
	var seed seedFile
	if err := fileClient.ReadYamlFile(path, &seed); err != nil {
		return fmt.Errorf("failed to read checks file: %w", err)
	}

	known := make(map[models.CheckType]struct{}, len(models.KnownCheckTypes))
	for _, t := range models.KnownCheckTypes {
		known[t] = struct{}{}
	}

	loaded := 0
	for _, check := range seed.Checks {
		if check.Name == "" {
			logger.Warn().Msg("Skipping seed check without a name")
			continue
		}
		checkType := models.CheckType(check.CheckType)
		if _, ok := known[checkType]; !ok {
			logger.Warn().Str("check", check.Name).Str("type", check.CheckType).
				Msg("Skipping seed check with unknown type")
			continue
		}

		params, err := json.Marshal(check.Parameters)
		if err != nil {
			logger.Warn().Err(err).Str("check", check.Name).
				Msg("Skipping seed check with unencodable parameters")
			continue
		}

		severity := models.Severity(check.Severity)
		if severity == "" {
			severity = models.SeverityMedium
		}
		enabled := true
		if check.Enabled != nil {
			enabled = *check.Enabled
		}

		def := models.CheckDefinition{
			Name:        check.Name,
			Description: check.Description,
			CheckType:   checkType,
			Parameters:  params,
			Severity:    severity,
			Enabled:     enabled,
		}
		if _, err := st.UpsertCheckByName(ctx, def); err != nil {
			return fmt.Errorf("failed to seed check %q: %w", check.Name, err)
		}
		loaded++
	}

	logger.Info().Int("count", loaded).Str("file", path).Msg("Check definitions loaded from seed file")
	return nil
}
