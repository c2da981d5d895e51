package models

import "time"

// RawFighterEntry is one fighter profile as the primary source reports it,
// before normalization.
type RawFighterEntry struct {
	Name        string
	Nickname    *string
	WeightClass *string
	DOB         *time.Time
	HeightCM    *float64
	ReachCM     *float64
	Stance      *string
}

// RawFightEntry is one fight as the primary source reports it. The corner
// names are resolved against canonical fighters before the fight is stored.
type RawFightEntry struct {
	FighterRaw      string
	OpponentRaw     string
	EventName       string
	EventDate       time.Time
	Location        *string
	WeightClass     *string
	TitleFight      bool
	ScheduledRounds int
	Gender          string
	WinnerRaw       *string
	Result          *string
	ResultDetails   *string
	DecisionRound   *int
	DecisionTime    *string
}
