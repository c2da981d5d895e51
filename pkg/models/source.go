package models

// SourceRole splits sources into the primary stats feed, which defines
// fighters, events and fights, and odds feeds, which only attach records to
// what the primary source already defined.
type SourceRole string

const (
	SourceRolePrimary SourceRole = "primary"
	SourceRoleOdds    SourceRole = "odds"
)

// SourceDefinition describes one scrape source: its role, how to pull the
// interesting fields out of its payloads and what shape those payloads must
// have. Definitions are loaded from the sources file at startup.
type SourceDefinition struct {
	ID              string       `yaml:"id" json:"id" validate:"required"`
	Name            string       `yaml:"name" json:"name" validate:"required"`
	Role            SourceRole   `yaml:"role" json:"role" validate:"required"`
	OddsKind        OddsKind     `yaml:"odds_kind,omitempty" json:"odds_kind,omitempty"`
	Sportsbook      string       `yaml:"sportsbook,omitempty" json:"sportsbook,omitempty"`
	DateWindowHours int          `yaml:"date_window_hours,omitempty" json:"date_window_hours,omitempty"`
	Extract         ExtractPaths `yaml:"extract" json:"extract"`
	Schema          SourceSchema `yaml:"schema" json:"schema"`
}

// ExtractPaths holds JMESPath expressions into a source's raw payloads.
// Odds fields are optional; a moneyline source fills the open/close_min/
// close_max trio, a decimal source fills open/close.
type ExtractPaths struct {
	FighterName  string `yaml:"fighter_name" json:"fighter_name"`
	OpponentName string `yaml:"opponent_name" json:"opponent_name"`
	EventName    string `yaml:"event_name" json:"event_name"`
	EventDate    string `yaml:"event_date" json:"event_date"`
	Sportsbook   string `yaml:"sportsbook,omitempty" json:"sportsbook,omitempty"`
	WeightClass  string `yaml:"weight_class,omitempty" json:"weight_class,omitempty"`
	BirthYear    string `yaml:"birth_year,omitempty" json:"birth_year,omitempty"`

	FighterOpen     string `yaml:"fighter_open,omitempty" json:"fighter_open,omitempty"`
	FighterCloseMin string `yaml:"fighter_close_min,omitempty" json:"fighter_close_min,omitempty"`
	FighterCloseMax string `yaml:"fighter_close_max,omitempty" json:"fighter_close_max,omitempty"`
	FighterClose    string `yaml:"fighter_close,omitempty" json:"fighter_close,omitempty"`

	OpponentOpen     string `yaml:"opponent_open,omitempty" json:"opponent_open,omitempty"`
	OpponentCloseMin string `yaml:"opponent_close_min,omitempty" json:"opponent_close_min,omitempty"`
	OpponentCloseMax string `yaml:"opponent_close_max,omitempty" json:"opponent_close_max,omitempty"`
	OpponentClose    string `yaml:"opponent_close,omitempty" json:"opponent_close,omitempty"`

	// Primary source fighter profile fields
	Nickname string `yaml:"nickname,omitempty" json:"nickname,omitempty"`
	DOB      string `yaml:"dob,omitempty" json:"dob,omitempty"`
	HeightCM string `yaml:"height_cm,omitempty" json:"height_cm,omitempty"`
	ReachCM  string `yaml:"reach_cm,omitempty" json:"reach_cm,omitempty"`
	Stance   string `yaml:"stance,omitempty" json:"stance,omitempty"`

	// Primary source fight fields
	Location        string `yaml:"location,omitempty" json:"location,omitempty"`
	TitleFight      string `yaml:"title_fight,omitempty" json:"title_fight,omitempty"`
	ScheduledRounds string `yaml:"scheduled_rounds,omitempty" json:"scheduled_rounds,omitempty"`
	Gender          string `yaml:"gender,omitempty" json:"gender,omitempty"`
	WinnerName      string `yaml:"winner_name,omitempty" json:"winner_name,omitempty"`
	Result          string `yaml:"result,omitempty" json:"result,omitempty"`
	ResultDetails   string `yaml:"result_details,omitempty" json:"result_details,omitempty"`
	DecisionRound   string `yaml:"decision_round,omitempty" json:"decision_round,omitempty"`
	DecisionTime    string `yaml:"decision_time,omitempty" json:"decision_time,omitempty"`
}

// SourceSchema defines the shape a source's raw payloads must have before
// extraction is attempted.
type SourceSchema struct {
	Properties map[string]PropertyDefinition `yaml:"properties" json:"properties"`
	Required   []string                      `yaml:"required,omitempty" json:"required,omitempty"`
}

// PropertyDefinition defines a single property in a source payload schema
type PropertyDefinition struct {
	Type        string `yaml:"type" json:"type"` // string, number, integer, boolean, array, object
	Format      string `yaml:"format,omitempty" json:"format,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// ExcludeFromFingerprint excludes this field from change detection fingerprinting.
	// Use for fields that change on every scrape without carrying meaning
	// (e.g., scraped_at, page_revision).
	ExcludeFromFingerprint bool                          `yaml:"exclude_from_fingerprint,omitempty" json:"exclude_from_fingerprint,omitempty"`
	Items                  *PropertyDefinition           `yaml:"items,omitempty" json:"items,omitempty"`
	Properties             map[string]PropertyDefinition `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// GetFingerprintExclusions returns a set of field paths that should be excluded
// from fingerprint calculation based on the schema's ExcludeFromFingerprint settings.
func (s *SourceSchema) GetFingerprintExclusions() map[string]bool {
	exclusions := make(map[string]bool)
	collectExclusions("", s.Properties, exclusions)
	return exclusions
}

func collectExclusions(prefix string, properties map[string]PropertyDefinition, exclusions map[string]bool) {
	for name, prop := range properties {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		if prop.ExcludeFromFingerprint {
			exclusions[path] = true
		}

		if prop.Properties != nil {
			collectExclusions(path, prop.Properties, exclusions)
		}
	}
}
