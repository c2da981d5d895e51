package schema

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/balaustrada/ufcscraper/pkg/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validating a raw payload
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator validates raw payloads against a source's declared schema
type Validator struct {
	schema models.SourceSchema
}

// NewValidator creates a new validator for a source schema
func NewValidator(schema models.SourceSchema) *Validator {
	return &Validator{schema: schema}
}

// Validate validates a decoded payload against the schema
func (v *Validator) Validate(data map[string]any) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []ValidationError{}}

	for _, required := range v.schema.Required {
		if _, exists := data[required]; !exists {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   required,
				Message: "required field is missing",
			})
		}
	}

	for fieldName, fieldDef := range v.schema.Properties {
		value, exists := data[fieldName]
		if !exists || value == nil {
			// Optional and null fields pass; required is checked above
			continue
		}

		fieldErrors := validateField(fieldName, value, fieldDef)
		if len(fieldErrors) > 0 {
			result.Valid = false
			result.Errors = append(result.Errors, fieldErrors...)
		}
	}

	return result
}

// validateField validates a single field value against its definition
func validateField(fieldName string, value any, def models.PropertyDefinition) []ValidationError {
	var errors []ValidationError

	if !isValidType(value, def.Type) {
		errors = append(errors, ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("expected type %s, got %s", def.Type, getTypeName(value)),
		})
		return errors
	}

	if def.Format != "" {
		if err := validateFormat(value, def.Format); err != nil {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: err.Error(),
			})
		}
	}

	if def.Type == "object" && def.Properties != nil {
		if objValue, ok := value.(map[string]any); ok {
			for nestedName, nestedDef := range def.Properties {
				if nestedValue, exists := objValue[nestedName]; exists && nestedValue != nil {
					nestedErrors := validateField(fieldName+"."+nestedName, nestedValue, nestedDef)
					errors = append(errors, nestedErrors...)
				}
			}
		}
	}

	if def.Type == "array" && def.Items != nil {
		if arrValue, ok := value.([]any); ok {
			for i, item := range arrValue {
				itemErrors := validateField(fmt.Sprintf("%s[%d]", fieldName, i), item, *def.Items)
				errors = append(errors, itemErrors...)
			}
		}
	}

	return errors
}

// isValidType checks if a value matches the expected JSON Schema type
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case int, int64, int32:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		rv := reflect.ValueOf(value)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	default:
		return true // unknown types pass
	}
}

// getTypeName returns the JSON type name for a Go value
func getTypeName(value any) string {
	if value == nil {
		return "null"
	}

	switch value.(type) {
	case string:
		return "string"
	case float64, float32, int, int64, int32:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return "array"
		}
		return fmt.Sprintf("%T", value)
	}
}

// validateFormat validates a value against a format constraint
func validateFormat(value any, format string) error {
	str, ok := value.(string)
	if !ok {
		return nil // format only applies to strings
	}

	switch format {
	case "date":
		if !dateRegex.MatchString(str) {
			return fmt.Errorf("invalid date format (expected YYYY-MM-DD)")
		}
	case "date-time":
		if !dateTimeRegex.MatchString(str) {
			return fmt.Errorf("invalid date-time format (expected ISO 8601)")
		}
	case "moneyline":
		if !moneylineRegex.MatchString(str) {
			return fmt.Errorf("invalid moneyline format (expected signed integer)")
		}
	case "uuid":
		if !uuidRegex.MatchString(str) {
			return fmt.Errorf("invalid UUID format")
		}
	}

	return nil
}

var (
	dateRegex      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimeRegex  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?)?$`)
	moneylineRegex = regexp.MustCompile(`^[+-]?\d+$`)
	uuidRegex      = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)
