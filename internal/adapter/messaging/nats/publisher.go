package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"carmarket/internal/platform/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects for listing lifecycle events.
const (
	SubjectListingCreated = "listings.created"
	SubjectListingUpdated = "listings.updated"
	SubjectListingDeleted = "listings.deleted"
)

// Publisher pushes domain events to NATS as JSON.
type Publisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

func NewPublisher(url string, log *logger.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("carmarket"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Info("Connected to NATS", zap.String("url", url))
	return &Publisher{conn: conn, logger: log.Named("NATSPublisher")}, nil
}

// Publish serializes the payload and emits it on the subject. The ctx
// parameter bounds serialization only; NATS publishes are fire-and-forget.
func (p *Publisher) Publish(ctx context.Context, subject string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Error("Failed to publish event", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("nats publish: %w", err)
	}
	p.logger.Debug("Event published", zap.String("subject", subject))
	return nil
}

// Close drains pending publishes and shuts the connection down.
func (p *Publisher) Close() {
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.logger.Warn("NATS drain failed", zap.Error(err))
		}
	}
}
