package schema

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// Service validates raw unit payloads against the schema their source
// declares. Validators are built once per source.
type Service struct {
	logger     ectologger.Logger
	validators sync.Map // map[sourceID]*Validator
}

// NewService creates a new validation service over the loaded sources
func NewService(sources map[string]models.SourceDefinition, logger ectologger.Logger) *Service {
	s := &Service{logger: logger}
	for id, source := range sources {
		s.validators.Store(id, NewValidator(source.Schema))
	}
	return s
}

// ValidatePayload checks a raw payload against its source's schema. A
// payload that fails validation is bad input; it parks instead of matching.
func (s *Service) ValidatePayload(ctx context.Context, sourceID string, payload json.RawMessage) (ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.Service.ValidatePayload")
	defer span.End()

	cached, ok := s.validators.Load(sourceID)
	if !ok {
		return ValidationResult{}, errors.NewNormalizationErrorf(sourceID, "unknown source").AddSource(sourceID)
	}
	validator := cached.(*Validator)

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "", Message: "payload is not a JSON object"}},
		}, nil
	}

	result := validator.Validate(data)

	if !result.Valid {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"source_id": sourceID,
			"errors":    len(result.Errors),
		}).Debug("Payload validation failed")
	}

	return result, nil
}

// Describe renders a validation result's errors for an unresolved entry
func Describe(result ValidationResult) string {
	if result.Valid || len(result.Errors) == 0 {
		return ""
	}

	detail := result.Errors[0].Message
	if result.Errors[0].Field != "" {
		detail = result.Errors[0].Field + ": " + detail
	}
	return detail
}
