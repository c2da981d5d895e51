package models

import "time"

// Event is a card on which fights take place. Date is the announced start
// date in UTC; odds sources quote slightly different dates for the same
// card, which the linker absorbs with its date window.
type Event struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	Date           time.Time `json:"date" db:"date"`
	Location       *string   `json:"location,omitempty" db:"location"`
	SourceKey      string    `json:"source_key" db:"source_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
