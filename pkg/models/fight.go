package models

import "time"

// Fight is an immutable pairing of two fighters on an event. Result fields
// are filled once the fight has happened; identity fields never change, so
// downstream links stay valid across re-scrapes.
type Fight struct {
	ID              string     `json:"id" db:"id"`
	EventID         string     `json:"event_id" db:"event_id"`
	FighterOneID    string     `json:"fighter_one_id" db:"fighter_one_id"`
	FighterTwoID    string     `json:"fighter_two_id" db:"fighter_two_id"`
	WeightClass     *string    `json:"weight_class,omitempty" db:"weight_class"`
	TitleFight      bool       `json:"title_fight" db:"title_fight"`
	ScheduledRounds int        `json:"scheduled_rounds" db:"scheduled_rounds"`
	Gender          string     `json:"gender" db:"gender"`
	WinnerID        *string    `json:"winner_id,omitempty" db:"winner_id"`
	Result          *string    `json:"result,omitempty" db:"result"`
	ResultDetails   *string    `json:"result_details,omitempty" db:"result_details"`
	DecisionRound   *int       `json:"decision_round,omitempty" db:"decision_round"`
	DecisionTime    *string    `json:"decision_time,omitempty" db:"decision_time"`
	SourceKey       string     `json:"source_key" db:"source_key"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// HasFighter reports whether the given fighter is in either corner.
func (f *Fight) HasFighter(fighterID string) bool {
	return f.FighterOneID == fighterID || f.FighterTwoID == fighterID
}
