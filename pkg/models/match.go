package models

// MatchStatus is the three-way outcome of resolving a source name.
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusAmbiguous MatchStatus = "ambiguous"
	MatchStatusUnmatched MatchStatus = "unmatched"
)

// MatchCandidate is one scored fighter considered during resolution. Via
// names the spelling that produced the score, either the canonical name or
// one of the fighter's aliases.
type MatchCandidate struct {
	FighterID string  `json:"fighter_id"`
	Name      string  `json:"name"`
	Via       string  `json:"via"`
	Score     float64 `json:"score"`
}

// MatchOutcome is the result of entity resolution for a single name.
// FighterID is only set when Status is matched; Candidates carries the
// near-tied leaders when Status is ambiguous so a reviewer can pick.
type MatchOutcome struct {
	Status     MatchStatus      `json:"status"`
	FighterID  string           `json:"fighter_id,omitempty"`
	Score      float64          `json:"score,omitempty"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
}

// Matched reports whether resolution produced exactly one acceptable fighter.
func (o MatchOutcome) Matched() bool {
	return o.Status == MatchStatusMatched
}
