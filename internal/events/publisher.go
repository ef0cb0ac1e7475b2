// Package events publishes listings to the enrichment queue. Enrichment
// itself (skill extraction, scoring) runs in a separate consumer; this side
// only hands over listings that have a full description.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// EnrichmentEvent is the payload handed to the enrichment consumer.
type EnrichmentEvent struct {
	JobID       string    `json:"job_id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	QueuedAt    time.Time `json:"queued_at"`
}

type Publisher interface {
	PublishEnrich(ctx context.Context, ev EnrichmentEvent) error
	Close()
}

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *log.Logger
}

func NewNATSPublisher(url, subject string, logger *log.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = "jobs.enrich"
	}
	conn, err := nats.Connect(url,
		nats.Name("jobradar"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) PublishEnrich(ctx context.Context, ev EnrichmentEvent) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats publisher not connected")
	}
	if ev.QueuedAt.IsZero() {
		ev.QueuedAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil && p.logger != nil {
		p.logger.Printf("[Events] drain failed | err=%v", err)
	}
}

// NoopPublisher stands in when no queue is configured; enrichment candidates
// stay unmarked and get picked up once a queue appears.
type NoopPublisher struct{}

func (NoopPublisher) PublishEnrich(context.Context, EnrichmentEvent) error {
	return fmt.Errorf("no event queue configured")
}

func (NoopPublisher) Close() {}
