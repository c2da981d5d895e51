package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/balaustrada/ufcscraper/pkg/models"
)

// RawUnitPayload is one scraped unit inside an intake envelope.
type RawUnitPayload struct {
	Kind      models.RawUnitKind `json:"kind"`
	SourceKey string             `json:"source_key"`
	Payload   json.RawMessage    `json:"payload"`
}

// RawUnitEnvelope is the message scrapers publish to the raw units topic.
// One envelope carries a batch of units from a single source.
type RawUnitEnvelope struct {
	SourceID  string           `json:"source_id"`
	ScrapedAt time.Time        `json:"scraped_at"`
	Units     []RawUnitPayload `json:"units"`
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	Envelope *RawUnitEnvelope
}

// ParseEnvelope parses the message value as a raw unit envelope
func (m *IncomingMessage) ParseEnvelope() error {
	var envelope RawUnitEnvelope
	if err := json.Unmarshal(m.Value, &envelope); err != nil {
		return err
	}
	if envelope.SourceID == "" {
		return fmt.Errorf("envelope missing source_id")
	}
	m.Envelope = &envelope
	return nil
}

// SourceID returns the source the envelope belongs to, falling back to the
// message header when the body could not be parsed.
func (m *IncomingMessage) SourceID() string {
	if m.Envelope != nil {
		return m.Envelope.SourceID
	}
	return m.Headers["source_id"]
}
