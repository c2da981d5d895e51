// Package sources loads and validates the scrape source definitions file.
package sources

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/balaustrada/ufcscraper/pkg/models"
)

// File is the on-disk shape of the sources definition file.
type File struct {
	Sources []models.SourceDefinition `yaml:"sources" validate:"required,min=1,dive"`
}

// Load reads and validates the sources file. Exactly one primary source must
// be defined; odds sources must declare their quote kind and book.
func Load(path string) (map[string]models.SourceDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	validate := validator.New()
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", path, err)
	}

	loaded := make(map[string]models.SourceDefinition, len(file.Sources))
	primaries := 0
	for _, source := range file.Sources {
		if _, exists := loaded[source.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", source.ID)
		}

		switch source.Role {
		case models.SourceRolePrimary:
			primaries++
		case models.SourceRoleOdds:
			if source.OddsKind != models.OddsKindMoneyline && source.OddsKind != models.OddsKindDecimal {
				return nil, fmt.Errorf("source %q: odds sources must declare odds_kind moneyline or decimal", source.ID)
			}
			if source.Sportsbook == "" && source.Extract.Sportsbook == "" {
				return nil, fmt.Errorf("source %q: odds sources must declare a sportsbook or a sportsbook path", source.ID)
			}
		default:
			return nil, fmt.Errorf("source %q: unknown role %q", source.ID, source.Role)
		}

		if err := checkPaths(source); err != nil {
			return nil, err
		}

		loaded[source.ID] = source
	}

	if primaries != 1 {
		return nil, fmt.Errorf("sources file must define exactly one primary source, found %d", primaries)
	}

	return loaded, nil
}

// Primary returns the single primary source definition
func Primary(loaded map[string]models.SourceDefinition) models.SourceDefinition {
	for _, source := range loaded {
		if source.Role == models.SourceRolePrimary {
			return source
		}
	}
	return models.SourceDefinition{}
}

func checkPaths(source models.SourceDefinition) error {
	required := map[string]string{
		"fighter_name": source.Extract.FighterName,
		"event_name":   source.Extract.EventName,
		"event_date":   source.Extract.EventDate,
	}
	if source.Role == models.SourceRoleOdds {
		required["opponent_name"] = source.Extract.OpponentName
	}

	for name, path := range required {
		if path == "" {
			return fmt.Errorf("source %q: extract path %s is required", source.ID, name)
		}
	}

	return nil
}
