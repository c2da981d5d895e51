package models

// LinkStatus is the three-way outcome of attaching an odds entry to a fight.
type LinkStatus string

const (
	LinkStatusLinked    LinkStatus = "linked"
	LinkStatusAmbiguous LinkStatus = "ambiguous"
	LinkStatusUnmatched LinkStatus = "unmatched"
)

// FightCandidate is one scored fight considered while linking.
type FightCandidate struct {
	FightID string  `json:"fight_id"`
	EventID string  `json:"event_id"`
	Score   float64 `json:"score"`
}

// LinkResult carries everything the assembler needs about one raw unit: the
// outcome, the fight it resolved to when linked, and the parked detail when
// it did not. Swapped reports that the entry's fighter is the fight's
// second corner, so odds values must cross over when rows are built.
type LinkResult struct {
	Status     LinkStatus       `json:"status"`
	FightID    string           `json:"fight_id,omitempty"`
	Swapped    bool             `json:"swapped,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Provenance []string         `json:"provenance,omitempty"`
	Fighter    MatchOutcome     `json:"fighter"`
	Candidates []FightCandidate `json:"candidates,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Detail     string           `json:"detail,omitempty"`

	Unit RawUnit      `json:"-"`
	Odds []LinkedOdds `json:"-"`
}

// Linked reports whether the entry resolved to exactly one fight.
func (r LinkResult) Linked() bool {
	return r.Status == LinkStatusLinked
}
