package models

import (
	"time"
)

// Fighter is the canonical identity a matched source name resolves to.
// NormalizedName is the matching key; Suffix is kept off the key so that
// generational suffixes separate otherwise identical names.
type Fighter struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	NormalizedName string     `json:"normalized_name" db:"normalized_name"`
	Suffix         string     `json:"suffix,omitempty" db:"suffix"`
	Nickname       *string    `json:"nickname,omitempty" db:"nickname"`
	WeightClass    *string    `json:"weight_class,omitempty" db:"weight_class"`
	DOB            *time.Time `json:"dob,omitempty" db:"dob"`
	HeightCM       *float64   `json:"height_cm,omitempty" db:"height_cm"`
	ReachCM        *float64   `json:"reach_cm,omitempty" db:"reach_cm"`
	Stance         *string    `json:"stance,omitempty" db:"stance"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// BirthYear is the auxiliary signal used to separate near-tied candidates.
func (f *Fighter) BirthYear() *int {
	if f.DOB == nil {
		return nil
	}
	year := f.DOB.Year()
	return &year
}

// FighterAlias records a confirmed source spelling for a fighter. Aliases
// join the candidate pool on subsequent runs so a once-resolved variant
// matches exactly from then on.
type FighterAlias struct {
	ID             string    `json:"id" db:"id"`
	FighterID      string    `json:"fighter_id" db:"fighter_id"`
	SourceID       string    `json:"source_id" db:"source_id"`
	Name           string    `json:"name" db:"name"`
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	SourceKey      string    `json:"source_key" db:"source_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CreateFighterRequest is the request for registering a fighter directly
type CreateFighterRequest struct {
	Name        string     `json:"name" validate:"required"`
	Nickname    *string    `json:"nickname,omitempty"`
	WeightClass *string    `json:"weight_class,omitempty"`
	DOB         *time.Time `json:"dob,omitempty"`
	HeightCM    *float64   `json:"height_cm,omitempty"`
	ReachCM     *float64   `json:"reach_cm,omitempty"`
	Stance      *string    `json:"stance,omitempty"`
}

// CreateAliasRequest registers a confirmed source spelling for a fighter
type CreateAliasRequest struct {
	SourceID  string `json:"source_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	SourceKey string `json:"source_key,omitempty"`
}

// FighterListResponse is the response for listing fighters
type FighterListResponse struct {
	Items      []Fighter `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
