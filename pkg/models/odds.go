package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// OddsKind discriminates how a source quotes prices.
type OddsKind string

const (
	OddsKindMoneyline OddsKind = "moneyline" // american integer odds, e.g. -150 / +200
	OddsKindDecimal   OddsKind = "decimal"   // european decimal odds, e.g. 1.66 / 3.10
)

// Odds type identifiers. Moneyline sources quote an opening line and a
// closing range; decimal sources quote opening and closing prices.
const (
	OddsTypeMoneylineOpen     = "moneyline_open"
	OddsTypeMoneylineCloseMin = "moneyline_close_min"
	OddsTypeMoneylineCloseMax = "moneyline_close_max"
	OddsTypeDecimalOpen       = "decimal_open"
	OddsTypeDecimalClose      = "decimal_close"
)

// RawOddsEntry is one sportsbook quote as a secondary source reports it,
// before any identity has been resolved. Entries are ephemeral: once linked
// they survive only as LinkedOdds rows.
type RawOddsEntry struct {
	FighterRaw  string
	OpponentRaw string
	EventName   string
	EventDate   time.Time
	Sportsbook  string
	Kind        OddsKind
	WeightClass *string
	BirthYear   *int

	FighterOpen      *int64
	FighterCloseMin  *int64
	FighterCloseMax  *int64
	OpponentOpen     *int64
	OpponentCloseMin *int64
	OpponentCloseMax *int64

	FighterDecimalOpen   *decimal.Decimal
	FighterDecimalClose  *decimal.Decimal
	OpponentDecimalOpen  *decimal.Decimal
	OpponentDecimalClose *decimal.Decimal
}

// LinkedOdds is one reconciled odds value attached to a fight. A row carries
// the quote for both corners; the merge identity is (fight, sportsbook,
// odds type) and the value is the corner pair.
type LinkedOdds struct {
	ID                  string           `json:"id" db:"id"`
	FightID             string           `json:"fight_id" db:"fight_id"`
	Sportsbook          string           `json:"sportsbook" db:"sportsbook"`
	OddsType            string           `json:"odds_type" db:"odds_type"`
	Kind                OddsKind         `json:"kind" db:"kind"`
	FighterOneMoneyline *int64           `json:"fighter_one_moneyline,omitempty" db:"fighter_one_moneyline"`
	FighterTwoMoneyline *int64           `json:"fighter_two_moneyline,omitempty" db:"fighter_two_moneyline"`
	FighterOneDecimal   *decimal.Decimal `json:"fighter_one_decimal,omitempty" db:"fighter_one_decimal"`
	FighterTwoDecimal   *decimal.Decimal `json:"fighter_two_decimal,omitempty" db:"fighter_two_decimal"`
	Confidence          float64          `json:"confidence" db:"confidence"`
	Provenance          pq.StringArray   `json:"provenance" db:"provenance"`
	SourceID            string           `json:"source_id" db:"source_id"`
	UnitID              string           `json:"unit_id" db:"unit_id"`
	RunID               string           `json:"run_id" db:"run_id"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
}

// MergeKey identifies the slot this record occupies in the assembled dataset.
func (o LinkedOdds) MergeKey() string {
	return o.FightID + "|" + o.Sportsbook + "|" + o.OddsType
}

// SameValue reports whether two records carry the same quote for both
// corners. Records with equal merge keys and equal values merge silently;
// unequal values are a conflict.
func (o LinkedOdds) SameValue(other LinkedOdds) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case OddsKindMoneyline:
		return int64PtrEqual(o.FighterOneMoneyline, other.FighterOneMoneyline) &&
			int64PtrEqual(o.FighterTwoMoneyline, other.FighterTwoMoneyline)
	case OddsKindDecimal:
		return decimalPtrEqual(o.FighterOneDecimal, other.FighterOneDecimal) &&
			decimalPtrEqual(o.FighterTwoDecimal, other.FighterTwoDecimal)
	default:
		return false
	}
}

// ValueString renders the corner pair for conflict reports.
func (o LinkedOdds) ValueString() string {
	switch o.Kind {
	case OddsKindMoneyline:
		return fmt.Sprintf("%s/%s", int64PtrString(o.FighterOneMoneyline), int64PtrString(o.FighterTwoMoneyline))
	case OddsKindDecimal:
		return fmt.Sprintf("%s/%s", decimalPtrString(o.FighterOneDecimal), decimalPtrString(o.FighterTwoDecimal))
	default:
		return ""
	}
}

// ImpliedProbability converts a decimal quote to its implied win chance.
func ImpliedProbability(price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).DivRound(price, 6)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func int64PtrString(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+d", *v)
}

func decimalPtrString(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return v.String()
}
