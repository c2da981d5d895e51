package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/balaustrada/ufcscraper/pkg/fingerprint"
	"github.com/balaustrada/ufcscraper/pkg/kafka"
	"github.com/balaustrada/ufcscraper/pkg/metrics"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// Intake stages raw units arriving from the scrape topic. Staging is
// deliberately dumb: it fingerprints and stores, nothing more. All
// interpretation happens later, behind the cursor, where failures can be
// parked instead of lost.
type Intake struct {
	logger  ectologger.Logger
	sources map[string]models.SourceDefinition
	units   UnitStore
}

// NewIntake creates a new raw unit intake
func NewIntake(logger ectologger.Logger, sources map[string]models.SourceDefinition, units UnitStore) *Intake {
	return &Intake{
		logger:  logger,
		sources: sources,
		units:   units,
	}
}

// HandleMessage stages every unit in one envelope. Units whose payload
// fingerprint is already staged collapse silently, which is what makes
// redelivery of the same envelope safe.
func (i *Intake) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Intake.HandleMessage")
	defer span.End()

	envelope := msg.Envelope
	log := i.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": envelope.SourceID,
		"units":     len(envelope.Units),
	})

	source, ok := i.sources[envelope.SourceID]
	if !ok {
		// Unknown sources can never succeed; let the consumer commit.
		log.Warn("Dropping envelope from unknown source")
		return nil
	}

	exclusions := source.Schema.GetFingerprintExclusions()
	units := make([]*models.RawUnit, 0, len(envelope.Units))
	for _, raw := range envelope.Units {
		if raw.SourceKey == "" {
			log.WithField("kind", string(raw.Kind)).Warn("Dropping unit without source key")
			continue
		}

		fp, err := fingerprint.ForUnit(raw.Payload, exclusions)
		if err != nil {
			log.WithError(err).WithField("source_key", raw.SourceKey).Warn("Dropping unit with unfingerprintable payload")
			continue
		}

		units = append(units, &models.RawUnit{
			ID:          uuid.New().String(),
			SourceID:    envelope.SourceID,
			Kind:        raw.Kind,
			SourceKey:   raw.SourceKey,
			Payload:     raw.Payload,
			Fingerprint: fp,
			ReceivedAt:  time.Now().UTC(),
		})
	}

	if len(units) == 0 {
		return nil
	}

	staged, err := i.units.StageBatch(ctx, units)
	if err != nil {
		log.WithError(err).Error("Failed to stage raw units")
		return fmt.Errorf("failed to stage raw units: %w", err)
	}

	metrics.RecordStagedUnits(envelope.SourceID, staged, len(units)-staged)
	log.WithFields(map[string]any{
		"staged":     staged,
		"duplicates": len(units) - staged,
	}).Info("Staged raw units")

	return nil
}
