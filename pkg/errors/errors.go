package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// ReasonCode classifies why a unit of work could not be resolved. The codes
// are stable identifiers persisted on unresolved entries and reported in run
// summaries, so they must never be renamed.
type ReasonCode string

const (
	ReasonBadInput    ReasonCode = "bad_input"
	ReasonNoMatch     ReasonCode = "no_match"
	ReasonAmbiguous   ReasonCode = "ambiguous"
	ReasonConflict    ReasonCode = "conflict"
	ReasonStaleCursor ReasonCode = "stale_cursor"
	ReasonInternal    ReasonCode = "internal"
)

// ReasonOf maps any error to the reason code recorded for it. Errors outside
// the resolution taxonomy count as internal failures.
func ReasonOf(err error) ReasonCode {
	switch err.(type) {
	case *NormalizationError:
		return ReasonBadInput
	case *NoMatchError:
		return ReasonNoMatch
	case *AmbiguousMatchError:
		return ReasonAmbiguous
	case *DuplicateLinkError:
		return ReasonConflict
	case *StaleCursorError:
		return ReasonStaleCursor
	default:
		return ReasonInternal
	}
}

type NormalizationError struct {
	Input   string
	Source  string
	Message string
}

func NewNormalizationError(input string, msg string) *NormalizationError {
	return &NormalizationError{
		Input:   input,
		Message: msg,
	}
}

// NewNormalizationErrorf creates a new NormalizationError with a formatted message
func NewNormalizationErrorf(input string, format string, args ...any) *NormalizationError {
	return &NormalizationError{
		Input:   input,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *NormalizationError) Error() string {
	if e.Input == "" {
		return "cannot normalize empty name: " + e.Message
	}
	return fmt.Sprintf("cannot normalize %q: %s", e.Input, e.Message)
}

func (e *NormalizationError) AddSource(sourceID string) *NormalizationError {
	e.Source = sourceID
	return e
}

func (e *NormalizationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("reason", string(ReasonBadInput)).AddMetaValue("source_id", e.Source)
}

func IsNormalizationError(err error) bool {
	_, ok := err.(*NormalizationError)
	return ok
}

type NoMatchError struct {
	Name          string
	Source        string
	BestCandidate string
	BestScore     float64
}

func NewNoMatchError(name string) *NoMatchError {
	return &NoMatchError{Name: name}
}

func (e *NoMatchError) Error() string {
	if e.BestCandidate == "" {
		return fmt.Sprintf("no acceptable match for %q", e.Name)
	}
	return fmt.Sprintf("no acceptable match for %q: best candidate %q scored %.3f", e.Name, e.BestCandidate, e.BestScore)
}

func (e *NoMatchError) AddSource(sourceID string) *NoMatchError {
	e.Source = sourceID
	return e
}

func (e *NoMatchError) AddBest(candidate string, score float64) *NoMatchError {
	e.BestCandidate = candidate
	e.BestScore = score
	return e
}

func (e *NoMatchError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("reason", string(ReasonNoMatch)).AddMetaValue("source_id", e.Source)
}

func IsNoMatchError(err error) bool {
	_, ok := err.(*NoMatchError)
	return ok
}

type AmbiguousMatchError struct {
	Name    string
	Source  string
	Leaders []string
	Scores  []float64
}

func NewAmbiguousMatchError(name string, leaders []string, scores []float64) *AmbiguousMatchError {
	return &AmbiguousMatchError{
		Name:    name,
		Leaders: leaders,
		Scores:  scores,
	}
}

func (e *AmbiguousMatchError) Error() string {
	parts := make([]string, 0, len(e.Leaders))
	for i, leader := range e.Leaders {
		if i < len(e.Scores) {
			parts = append(parts, fmt.Sprintf("%s (%.3f)", leader, e.Scores[i]))
			continue
		}
		parts = append(parts, leader)
	}
	return fmt.Sprintf("ambiguous match for %q: %s", e.Name, strings.Join(parts, ", "))
}

func (e *AmbiguousMatchError) AddSource(sourceID string) *AmbiguousMatchError {
	e.Source = sourceID
	return e
}

func (e *AmbiguousMatchError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("reason", string(ReasonAmbiguous)).AddMetaValue("source_id", e.Source)
}

func IsAmbiguousMatchError(err error) bool {
	_, ok := err.(*AmbiguousMatchError)
	return ok
}

type DuplicateLinkError struct {
	FightID    string
	Sportsbook string
	OddsType   string
	Existing   string
	Incoming   string
}

func NewDuplicateLinkError(fightID string, sportsbook string, oddsType string) *DuplicateLinkError {
	return &DuplicateLinkError{
		FightID:    fightID,
		Sportsbook: sportsbook,
		OddsType:   oddsType,
	}
}

func (e *DuplicateLinkError) Error() string {
	msg := fmt.Sprintf("conflicting odds for fight %s from %s (%s)", e.FightID, e.Sportsbook, e.OddsType)
	if e.Existing != "" || e.Incoming != "" {
		msg += fmt.Sprintf(": kept %s, rejected %s", e.Existing, e.Incoming)
	}
	return msg
}

func (e *DuplicateLinkError) AddValues(existing string, incoming string) *DuplicateLinkError {
	e.Existing = existing
	e.Incoming = incoming
	return e
}

func (e *DuplicateLinkError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("reason", string(ReasonConflict)).AddMetaValue("fight_id", e.FightID).AddMetaValue("sportsbook", e.Sportsbook)
}

func IsDuplicateLinkError(err error) bool {
	_, ok := err.(*DuplicateLinkError)
	return ok
}

// StaleCursorError means the source cursor moved underneath a running batch,
// usually because two reconcilers raced. The run must abort without
// advancing the cursor.
type StaleCursorError struct {
	SourceID string
	Expected int64
	Found    int64
}

func NewStaleCursorError(sourceID string, expected int64, found int64) *StaleCursorError {
	return &StaleCursorError{
		SourceID: sourceID,
		Expected: expected,
		Found:    found,
	}
}

func (e *StaleCursorError) Error() string {
	return fmt.Sprintf("stale cursor for source %q: expected %d, found %d", e.SourceID, e.Expected, e.Found)
}

func (e *StaleCursorError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("reason", string(ReasonStaleCursor)).AddMetaValue("source_id", e.SourceID)
}

func IsStaleCursorError(err error) bool {
	_, ok := err.(*StaleCursorError)
	return ok
}
