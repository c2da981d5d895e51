package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/balaustrada/ufcscraper/pkg/models"
)

// ProjectionService maintains the fight graph: fighters, fights, events and
// the sportsbook quotes attached to them. Every write uses MERGE so a replay
// of the same run leaves the graph unchanged.
type ProjectionService struct {
	client *Client
	logger ectologger.Logger
}

// NewProjectionService creates a new projection service
func NewProjectionService(client *Client, logger ectologger.Logger) *ProjectionService {
	return &ProjectionService{
		client: client,
		logger: logger,
	}
}

// ProjectFighters upserts fighter nodes
func (s *ProjectionService) ProjectFighters(ctx context.Context, fighters []models.Fighter) error {
	ctx, span := tracing.StartSpan(ctx, "graph.ProjectionService.ProjectFighters")
	defer span.End()

	if len(fighters) == 0 {
		return nil
	}

	batch := make([]map[string]any, len(fighters))
	for i, fighter := range fighters {
		props := map[string]any{
			"id":              fighter.ID,
			"name":            fighter.Name,
			"normalized_name": fighter.NormalizedName,
		}
		if fighter.Nickname != nil {
			props["nickname"] = *fighter.Nickname
		}
		if fighter.Stance != nil {
			props["stance"] = *fighter.Stance
		}
		batch[i] = props
	}

	cypher := `
		UNWIND $batch AS props
		MERGE (f:Fighter {id: props.id})
		SET f += props
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{"batch": batch})
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to project fighters")
		return fmt.Errorf("failed to project fighters: %w", err)
	}

	return nil
}

// ProjectFight upserts the fight node, its event node and the corner
// relationships: (Fighter)-[:FOUGHT_IN]->(Fight)-[:AT]->(Event)
func (s *ProjectionService) ProjectFight(ctx context.Context, fight models.Fight, event models.Event) error {
	ctx, span := tracing.StartSpan(ctx, "graph.ProjectionService.ProjectFight")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"fight_id": fight.ID,
		"event_id": event.ID,
	})

	fightProps := map[string]any{
		"id":               fight.ID,
		"scheduled_rounds": fight.ScheduledRounds,
		"title_fight":      fight.TitleFight,
		"gender":           fight.Gender,
	}
	if fight.WeightClass != nil {
		fightProps["weight_class"] = *fight.WeightClass
	}
	if fight.WinnerID != nil {
		fightProps["winner_id"] = *fight.WinnerID
	}
	if fight.Result != nil {
		fightProps["result"] = *fight.Result
	}

	eventProps := map[string]any{
		"id":   event.ID,
		"name": event.Name,
		"date": event.Date.UTC().Format("2006-01-02"),
	}
	if event.Location != nil {
		eventProps["location"] = *event.Location
	}

	cypher := `
		MERGE (fi:Fight {id: $fight_id})
		SET fi += $fight_props
		MERGE (ev:Event {id: $event_id})
		SET ev += $event_props
		MERGE (fi)-[:AT]->(ev)
		WITH fi
		MATCH (one:Fighter {id: $fighter_one_id})
		MATCH (two:Fighter {id: $fighter_two_id})
		MERGE (one)-[:FOUGHT_IN {corner: "one"}]->(fi)
		MERGE (two)-[:FOUGHT_IN {corner: "two"}]->(fi)
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{
			"fight_id":       fight.ID,
			"fight_props":    fightProps,
			"event_id":       event.ID,
			"event_props":    eventProps,
			"fighter_one_id": fight.FighterOneID,
			"fighter_two_id": fight.FighterTwoID,
		})
	})
	if err != nil {
		log.WithError(err).Error("Failed to project fight")
		return fmt.Errorf("failed to project fight: %w", err)
	}

	log.Debug("Projected fight into graph")
	return nil
}

// ProjectOdds attaches sportsbook quotes to fights:
// (Sportsbook)-[:QUOTED]->(Fight). The relationship is keyed by odds type so
// open and close quotes from the same book coexist.
func (s *ProjectionService) ProjectOdds(ctx context.Context, records []models.LinkedOdds) error {
	ctx, span := tracing.StartSpan(ctx, "graph.ProjectionService.ProjectOdds")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(records),
	})

	batch := make([]map[string]any, len(records))
	for i, record := range records {
		entry := map[string]any{
			"record_id":  record.ID,
			"fight_id":   record.FightID,
			"sportsbook": record.Sportsbook,
			"odds_type":  record.OddsType,
			"kind":       string(record.Kind),
			"confidence": record.Confidence,
			"source_id":  record.SourceID,
		}
		if record.FighterOneMoneyline != nil {
			entry["fighter_one_moneyline"] = *record.FighterOneMoneyline
		}
		if record.FighterTwoMoneyline != nil {
			entry["fighter_two_moneyline"] = *record.FighterTwoMoneyline
		}
		if record.FighterOneDecimal != nil {
			entry["fighter_one_decimal"], _ = record.FighterOneDecimal.Float64()
		}
		if record.FighterTwoDecimal != nil {
			entry["fighter_two_decimal"], _ = record.FighterTwoDecimal.Float64()
		}
		batch[i] = entry
	}

	cypher := `
		UNWIND $batch AS entry
		MERGE (sb:Sportsbook {name: entry.sportsbook})
		WITH sb, entry
		MATCH (fi:Fight {id: entry.fight_id})
		MERGE (sb)-[q:QUOTED {odds_type: entry.odds_type}]->(fi)
		SET q += entry
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{"batch": batch})
	})
	if err != nil {
		log.WithError(err).Error("Failed to project odds")
		return fmt.Errorf("failed to project odds: %w", err)
	}

	log.Debug("Projected odds into graph")
	return nil
}

// FightsForFighter returns the fights a fighter appears in, with the event
// each fight belongs to
func (s *ProjectionService) FightsForFighter(ctx context.Context, fighterID string) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.ProjectionService.FightsForFighter")
	defer span.End()

	cypher := `
		MATCH (f:Fighter {id: $fighter_id})-[:FOUGHT_IN]->(fi:Fight)-[:AT]->(ev:Event)
		RETURN fi, ev
		ORDER BY ev.date DESC
	`

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"fighter_id": fighterID})
		if err != nil {
			return nil, err
		}

		var rows []map[string]any
		for res.Next(ctx) {
			record := res.Record()
			row := map[string]any{}
			if node, ok := record.Get("fi"); ok {
				row["fight"] = node.(neo4j.Node).Props
			}
			if node, ok := record.Get("ev"); ok {
				row["event"] = node.(neo4j.Node).Props
			}
			rows = append(rows, row)
		}
		return rows, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query fights for fighter: %w", err)
	}

	rows, _ := result.([]map[string]any)
	return rows, nil
}
