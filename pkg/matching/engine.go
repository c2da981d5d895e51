// Package matching resolves raw source names against canonical fighters.
package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/similarity"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// ViaCanonical marks a score produced against the fighter's canonical name,
// as opposed to one of its per-source aliases.
const ViaCanonical = "canonical"

// Candidate is one canonical fighter offered to the engine, together with
// the source spellings already confirmed for it.
type Candidate struct {
	Fighter models.Fighter
	Aliases []models.FighterAlias
}

// AuxSignals carries the weak signals available on the raw unit. Any of
// them may be absent; absent signals never decide anything.
type AuxSignals struct {
	WeightClass *string
	BirthYear   *int
}

// EngineConfig contains the decision thresholds. Both come from service
// configuration so matching behavior is tunable without code changes.
type EngineConfig struct {
	AcceptThreshold float64 // minimum top score to accept any match
	MarginThreshold float64 // minimum gap over the runner-up for a unique match
}

// Engine scores a raw name against a candidate set and produces a three-way
// outcome. It is a pure decision function: no storage, no side effects.
type Engine struct {
	logger ectologger.Logger
	scorer *similarity.Scorer
	config EngineConfig
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, scorer *similarity.Scorer, config EngineConfig) *Engine {
	return &Engine{
		logger: logger,
		scorer: scorer,
		config: config,
	}
}

// Match resolves a raw name against the candidate set. Every candidate is
// scored on its canonical name and on each known alias, keeping the best
// per candidate. Decision policy:
//   - top score >= accept and margin over the runner-up >= margin: Matched
//   - top score >= accept but the lead is inside the margin: the auxiliary
//     signals are consulted to separate the near-tie; if exactly one of the
//     tied candidates is consistent with them it wins, otherwise Ambiguous
//   - top score < accept: Unmatched
//
// Auxiliary signals only ever separate near-ties. They cannot promote a
// candidate that scored below the accept threshold, and when the signals
// are missing for every tied candidate the result stays Ambiguous.
func (e *Engine) Match(ctx context.Context, raw string, candidates []Candidate, signals AuxSignals) (models.MatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	name, err := names.Normalize(raw)
	if err != nil {
		return models.MatchOutcome{}, err
	}

	scored := make([]models.MatchCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		best, via := e.bestScore(name, candidate)
		scored = append(scored, models.MatchCandidate{
			FighterID: candidate.Fighter.ID,
			Name:      candidate.Fighter.Name,
			Via:       via,
			Score:     best,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) == 0 || scored[0].Score < e.config.AcceptThreshold {
		outcome := models.MatchOutcome{
			Status:     models.MatchStatusUnmatched,
			Candidates: topCandidates(scored, 5),
		}
		if len(scored) > 0 {
			outcome.Score = scored[0].Score
		}
		return outcome, nil
	}

	tied := nearTied(scored, e.config.MarginThreshold)
	if len(tied) == 1 {
		return models.MatchOutcome{
			Status:     models.MatchStatusMatched,
			FighterID:  tied[0].FighterID,
			Score:      tied[0].Score,
			Candidates: tied,
		}, nil
	}

	if winner, ok := e.breakTie(tied, candidates, name, signals); ok {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"raw_name":   raw,
			"fighter_id": winner.FighterID,
			"tied":       len(tied),
		}).Debug("Auxiliary signals separated a near-tie")
		return models.MatchOutcome{
			Status:     models.MatchStatusMatched,
			FighterID:  winner.FighterID,
			Score:      winner.Score,
			Candidates: tied,
		}, nil
	}

	return models.MatchOutcome{
		Status:     models.MatchStatusAmbiguous,
		Score:      tied[0].Score,
		Candidates: tied,
	}, nil
}

// bestScore scores the name against the candidate's canonical spelling and
// every alias, returning the best score and which spelling produced it. A
// suffix mismatch caps the score below the accept threshold: "Jones Jr" and
// "Jones" share a key on purpose, and the suffix is what separates them.
func (e *Engine) bestScore(name names.Normalized, candidate Candidate) (float64, string) {
	best := e.scorer.Score(name, names.FromKey(candidate.Fighter.NormalizedName, candidate.Fighter.Suffix))
	via := ViaCanonical

	if suffixConflict(name.Suffix, candidate.Fighter.Suffix) && best >= e.config.AcceptThreshold {
		best = e.config.AcceptThreshold - 0.01
	}

	for _, alias := range candidate.Aliases {
		score := e.scorer.Score(name, names.FromKey(alias.NormalizedName, ""))
		if score > best {
			best = score
			via = alias.Name
		}
	}

	return best, via
}

// breakTie applies the auxiliary signals to a near-tied candidate set. It
// returns a winner only when exactly one tied candidate is consistent with
// every signal that is present on both sides.
func (e *Engine) breakTie(tied []models.MatchCandidate, candidates []Candidate, name names.Normalized, signals AuxSignals) (models.MatchCandidate, bool) {
	byID := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.Fighter.ID] = c
	}

	var winner models.MatchCandidate
	consistent := 0
	for _, t := range tied {
		candidate, ok := byID[t.FighterID]
		if !ok {
			continue
		}
		if decided, agrees := signalsAgree(candidate.Fighter, name, signals); decided && agrees {
			winner = t
			consistent++
		}
	}

	if consistent == 1 {
		return winner, true
	}
	return models.MatchCandidate{}, false
}

// signalsAgree reports whether any auxiliary signal could be evaluated for
// the fighter, and whether all evaluable signals agree. Missing data on
// either side leaves a signal unevaluated rather than counting against the
// candidate.
func signalsAgree(fighter models.Fighter, name names.Normalized, signals AuxSignals) (decided bool, agrees bool) {
	agrees = true

	if signals.WeightClass != nil && fighter.WeightClass != nil {
		decided = true
		if *signals.WeightClass != *fighter.WeightClass {
			agrees = false
		}
	}

	if signals.BirthYear != nil {
		if year := fighter.BirthYear(); year != nil {
			decided = true
			diff := *signals.BirthYear - *year
			if diff < -1 || diff > 1 {
				agrees = false
			}
		}
	}

	if name.Suffix != "" || fighter.Suffix != "" {
		decided = true
		if name.Suffix != fighter.Suffix {
			agrees = false
		}
	}

	return decided, agrees
}

// suffixConflict reports whether both names carry a generational suffix and
// they disagree, or exactly one carries one.
func suffixConflict(a, b string) bool {
	return a != b
}

// nearTied returns the leaders within margin of the top score. The input
// must already be sorted descending.
func nearTied(scored []models.MatchCandidate, margin float64) []models.MatchCandidate {
	tied := scored[:1]
	for _, c := range scored[1:] {
		if scored[0].Score-c.Score < margin {
			tied = append(tied, c)
			continue
		}
		break
	}
	return tied
}

func topCandidates(scored []models.MatchCandidate, n int) []models.MatchCandidate {
	if len(scored) > n {
		scored = scored[:n]
	}
	out := make([]models.MatchCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Score > 0 {
			out = append(out, c)
		}
	}
	return out
}
