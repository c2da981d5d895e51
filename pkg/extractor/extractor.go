// Package extractor pulls typed fields out of raw source payloads using the
// JMESPath expressions declared in the source definition.
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmespath/go-jmespath"
	"github.com/shopspring/decimal"

	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
)

// dateLayouts are tried in order when a source quotes event dates as bare
// strings. Sources disagree on formatting far more than on the date itself.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
}

// Extractor evaluates JMESPath expressions against decoded payloads.
// Compiled expressions are cached; source definitions reuse the same handful
// of paths across every unit of a batch.
type Extractor struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// New creates a new extractor
func New() *Extractor {
	return &Extractor{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Extract evaluates a JMESPath expression against data
func (e *Extractor) Extract(data any, path string) (any, error) {
	if path == "" {
		return nil, nil
	}

	compiled, err := e.getOrCompile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", path, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", path, err)
	}

	return result, nil
}

// String extracts an optional string field
func (e *Extractor) String(data any, path string) (*string, error) {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil, err
	}

	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		return &trimmed, nil
	default:
		s := fmt.Sprintf("%v", v)
		return &s, nil
	}
}

// RequiredString extracts a string field that the payload must carry
func (e *Extractor) RequiredString(data any, path string) (string, error) {
	value, err := e.String(data, path)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", errors.NewNormalizationErrorf(path, "required field is missing")
	}
	return *value, nil
}

// Int64 extracts an optional integer field, accepting JSON numbers and
// numeric strings with an optional leading sign.
func (e *Extractor) Int64(data any, path string) (*int64, error) {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil, err
	}

	switch v := value.(type) {
	case float64:
		n := int64(v)
		return &n, nil
	case int:
		n := int64(v)
		return &n, nil
	case int64:
		return &v, nil
	case string:
		trimmed := strings.TrimSpace(strings.TrimPrefix(v, "+"))
		if trimmed == "" {
			return nil, nil
		}
		n, parseErr := strconv.ParseInt(trimmed, 10, 64)
		if parseErr != nil {
			return nil, errors.NewNormalizationErrorf(v, "not an integer at %s", path)
		}
		return &n, nil
	default:
		return nil, errors.NewNormalizationErrorf(fmt.Sprintf("%v", v), "not an integer at %s", path)
	}
}

// Int extracts an optional int field
func (e *Extractor) Int(data any, path string) (*int, error) {
	value, err := e.Int64(data, path)
	if err != nil || value == nil {
		return nil, err
	}
	n := int(*value)
	return &n, nil
}

// Float extracts an optional float field
func (e *Extractor) Float(data any, path string) (*float64, error) {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil, err
	}

	switch v := value.(type) {
	case float64:
		return &v, nil
	case int:
		f := float64(v)
		return &f, nil
	case string:
		f, parseErr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if parseErr != nil {
			return nil, errors.NewNormalizationErrorf(v, "not a number at %s", path)
		}
		return &f, nil
	default:
		return nil, errors.NewNormalizationErrorf(fmt.Sprintf("%v", v), "not a number at %s", path)
	}
}

// Decimal extracts an optional decimal price. Prices go through
// shopspring/decimal rather than float64 so 1.60 survives exactly.
func (e *Extractor) Decimal(data any, path string) (*decimal.Decimal, error) {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return nil, err
	}

	switch v := value.(type) {
	case float64:
		d := decimal.NewFromFloat(v)
		return &d, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		d, parseErr := decimal.NewFromString(trimmed)
		if parseErr != nil {
			return nil, errors.NewNormalizationErrorf(v, "not a decimal at %s", path)
		}
		return &d, nil
	case json.Number:
		d, parseErr := decimal.NewFromString(v.String())
		if parseErr != nil {
			return nil, errors.NewNormalizationErrorf(v.String(), "not a decimal at %s", path)
		}
		return &d, nil
	default:
		return nil, errors.NewNormalizationErrorf(fmt.Sprintf("%v", v), "not a decimal at %s", path)
	}
}

// Time extracts an optional timestamp, trying the known source layouts
func (e *Extractor) Time(data any, path string) (*time.Time, error) {
	value, err := e.String(data, path)
	if err != nil || value == nil {
		return nil, err
	}

	for _, layout := range dateLayouts {
		if parsed, parseErr := time.Parse(layout, *value); parseErr == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}

	return nil, errors.NewNormalizationErrorf(*value, "unrecognized date format at %s", path)
}

// RequiredTime extracts a timestamp the payload must carry
func (e *Extractor) RequiredTime(data any, path string) (time.Time, error) {
	value, err := e.Time(data, path)
	if err != nil {
		return time.Time{}, err
	}
	if value == nil {
		return time.Time{}, errors.NewNormalizationErrorf(path, "required field is missing")
	}
	return *value, nil
}

// Bool extracts an optional boolean field
func (e *Extractor) Bool(data any, path string) (bool, error) {
	value, err := e.Extract(data, path)
	if err != nil || value == nil {
		return false, err
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes"), nil
	case float64:
		return v != 0, nil
	default:
		return false, nil
	}
}

// OddsEntry extracts a raw odds entry from a staged unit's payload using the
// source's declared paths.
func (e *Extractor) OddsEntry(source models.SourceDefinition, payload json.RawMessage) (models.RawOddsEntry, error) {
	data, err := decode(payload)
	if err != nil {
		return models.RawOddsEntry{}, err
	}

	paths := source.Extract
	entry := models.RawOddsEntry{
		Sportsbook: source.Sportsbook,
		Kind:       source.OddsKind,
	}

	if entry.FighterRaw, err = e.RequiredString(data, paths.FighterName); err != nil {
		return models.RawOddsEntry{}, err
	}
	if entry.OpponentRaw, err = e.RequiredString(data, paths.OpponentName); err != nil {
		return models.RawOddsEntry{}, err
	}
	if entry.EventName, err = e.RequiredString(data, paths.EventName); err != nil {
		return models.RawOddsEntry{}, err
	}
	if entry.EventDate, err = e.RequiredTime(data, paths.EventDate); err != nil {
		return models.RawOddsEntry{}, err
	}

	if paths.Sportsbook != "" {
		book, strErr := e.String(data, paths.Sportsbook)
		if strErr != nil {
			return models.RawOddsEntry{}, strErr
		}
		if book != nil {
			entry.Sportsbook = *book
		}
	}
	if entry.WeightClass, err = e.String(data, paths.WeightClass); err != nil {
		return models.RawOddsEntry{}, err
	}
	if entry.BirthYear, err = e.Int(data, paths.BirthYear); err != nil {
		return models.RawOddsEntry{}, err
	}

	switch source.OddsKind {
	case models.OddsKindMoneyline:
		fields := []struct {
			dest **int64
			path string
		}{
			{&entry.FighterOpen, paths.FighterOpen},
			{&entry.FighterCloseMin, paths.FighterCloseMin},
			{&entry.FighterCloseMax, paths.FighterCloseMax},
			{&entry.OpponentOpen, paths.OpponentOpen},
			{&entry.OpponentCloseMin, paths.OpponentCloseMin},
			{&entry.OpponentCloseMax, paths.OpponentCloseMax},
		}
		for _, field := range fields {
			if *field.dest, err = e.Int64(data, field.path); err != nil {
				return models.RawOddsEntry{}, err
			}
		}
	case models.OddsKindDecimal:
		fields := []struct {
			dest **decimal.Decimal
			path string
		}{
			{&entry.FighterDecimalOpen, paths.FighterOpen},
			{&entry.FighterDecimalClose, paths.FighterClose},
			{&entry.OpponentDecimalOpen, paths.OpponentOpen},
			{&entry.OpponentDecimalClose, paths.OpponentClose},
		}
		for _, field := range fields {
			if *field.dest, err = e.Decimal(data, field.path); err != nil {
				return models.RawOddsEntry{}, err
			}
		}
	default:
		return models.RawOddsEntry{}, errors.NewNormalizationErrorf(string(source.OddsKind), "unknown odds kind for source %s", source.ID)
	}

	return entry, nil
}

// FighterEntry extracts a fighter profile from a primary source payload
func (e *Extractor) FighterEntry(source models.SourceDefinition, payload json.RawMessage) (models.RawFighterEntry, error) {
	data, err := decode(payload)
	if err != nil {
		return models.RawFighterEntry{}, err
	}

	paths := source.Extract
	var entry models.RawFighterEntry

	if entry.Name, err = e.RequiredString(data, paths.FighterName); err != nil {
		return models.RawFighterEntry{}, err
	}
	if entry.Nickname, err = e.String(data, paths.Nickname); err != nil {
		return models.RawFighterEntry{}, err
	}
	if entry.WeightClass, err = e.String(data, paths.WeightClass); err != nil {
		return models.RawFighterEntry{}, err
	}
	if entry.DOB, err = e.Time(data, paths.DOB); err != nil {
		return models.RawFighterEntry{}, err
	}
	if entry.HeightCM, err = e.Float(data, paths.HeightCM); err != nil {
		return models.RawFighterEntry{}, err
	}
	if entry.ReachCM, err = e.Float(data, paths.ReachCM); err != nil {
		return models.RawFighterEntry{}, err
	}
	if entry.Stance, err = e.String(data, paths.Stance); err != nil {
		return models.RawFighterEntry{}, err
	}

	return entry, nil
}

// FightEntry extracts a fight from a primary source payload
func (e *Extractor) FightEntry(source models.SourceDefinition, payload json.RawMessage) (models.RawFightEntry, error) {
	data, err := decode(payload)
	if err != nil {
		return models.RawFightEntry{}, err
	}

	paths := source.Extract
	var entry models.RawFightEntry

	if entry.FighterRaw, err = e.RequiredString(data, paths.FighterName); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.OpponentRaw, err = e.RequiredString(data, paths.OpponentName); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.EventName, err = e.RequiredString(data, paths.EventName); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.EventDate, err = e.RequiredTime(data, paths.EventDate); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.Location, err = e.String(data, paths.Location); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.WeightClass, err = e.String(data, paths.WeightClass); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.TitleFight, err = e.Bool(data, paths.TitleFight); err != nil {
		return models.RawFightEntry{}, err
	}

	rounds, err := e.Int(data, paths.ScheduledRounds)
	if err != nil {
		return models.RawFightEntry{}, err
	}
	entry.ScheduledRounds = 3
	if rounds != nil {
		entry.ScheduledRounds = *rounds
	}

	gender, err := e.String(data, paths.Gender)
	if err != nil {
		return models.RawFightEntry{}, err
	}
	entry.Gender = "male"
	if gender != nil {
		entry.Gender = strings.ToLower(*gender)
	}

	if entry.WinnerRaw, err = e.String(data, paths.WinnerName); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.Result, err = e.String(data, paths.Result); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.ResultDetails, err = e.String(data, paths.ResultDetails); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.DecisionRound, err = e.Int(data, paths.DecisionRound); err != nil {
		return models.RawFightEntry{}, err
	}
	if entry.DecisionTime, err = e.String(data, paths.DecisionTime); err != nil {
		return models.RawFightEntry{}, err
	}

	return entry, nil
}

// getOrCompile retrieves a compiled expression from cache or compiles it
func (e *Extractor) getOrCompile(path string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[path]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	compiled, err := jmespath.Compile(path)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[path] = compiled
	e.mu.Unlock()

	return compiled, nil
}

func decode(payload json.RawMessage) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, errors.NewNormalizationErrorf(string(payload), "payload is not a JSON object")
	}
	return data, nil
}
