package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/metaspn/entityresolver/internal/events"
)

// Publisher publishes resolver domain events to Hermes.
type Publisher struct {
	client  *Client
	logger  *slog.Logger
	subject string
}

// NewPublisher creates a new Hermes event publisher. subject is the base
// NATS subject events are published under; the event kind is appended
// (e.g. "resolver.events.entity_merged").
func NewPublisher(client *Client, logger *slog.Logger, subject string) *Publisher {
	return &Publisher{client: client, logger: logger, subject: subject}
}

// Publish serializes a single event and publishes it to <subject>.<kind>.
// Publishing is best-effort relative to the resolver's own write path: a
// failure here never unwinds a store mutation, it is only logged.
func (p *Publisher) Publish(_ context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.subject, event.Kind)
	if err := p.client.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.logger.Debug("published event", "subject", subject, "kind", event.Kind)
	return nil
}

// PublishBatch publishes each drained event in order, logging (but not
// aborting on) individual publish failures so one bad event doesn't
// swallow the rest of a resolve's event batch.
func (p *Publisher) PublishBatch(ctx context.Context, batch []events.Event) {
	for _, event := range batch {
		if err := p.Publish(ctx, event); err != nil {
			p.logger.Warn("event publish failed", "kind", event.Kind, "error", err)
		}
	}
}
