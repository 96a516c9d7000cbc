// Package messaging publishes approval events to NATS.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Config holds NATS connection settings
type Config struct {
	URL           string
	SubjectPrefix string
	ClientName    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Message is the JSON document published for every event
type Message struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type"`
	RequestID  string                 `json:"request_id"`
	CompanyID  string                 `json:"company_id"`
	NewStatus  string                 `json:"new_status"`
	ActorID    string                 `json:"actor_id"`
	Recipients []string               `json:"recipients"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// conn is the subset of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher implements port.EventPublisher on a NATS connection.
// Subject convention: <prefix>.<event type>, e.g. approvals.request.approved
type Publisher struct {
	nc     conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS and returns a publisher
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}

	logger.Info("NATS connection established", zap.String("url", nc.ConnectedUrl()))
	return newPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newPublisher(nc conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "approvals"
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on
func (p *Publisher) Subject(t event.Type) string {
	return p.prefix + "." + t.String()
}

// Publish implements port.EventPublisher
func (p *Publisher) Publish(ctx context.Context, evt *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(toMessage(evt))
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}

	subject := p.Subject(evt.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	p.logger.Debug("Event published",
		zap.String("subject", subject),
		zap.String("request_id", evt.RequestID))
	return nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

func toMessage(evt *event.Event) Message {
	msg := Message{
		EventID:    evt.ID,
		EventType:  evt.Type.String(),
		RequestID:  evt.RequestID,
		CompanyID:  evt.CompanyID,
		NewStatus:  string(evt.NewStatus),
		ActorID:    evt.ActorID,
		Recipients: []string{},
		OccurredAt: evt.Timestamp,
	}

	payload := make(map[string]interface{}, len(evt.Payload))
	for k, v := range evt.Payload {
		if k == "recipients" {
			if r, ok := v.([]string); ok {
				msg.Recipients = r
			}
			continue
		}
		payload[k] = v
	}
	if len(payload) > 0 {
		msg.Payload = payload
	}
	return msg
}

// LogPublisher writes events to the log when no broker is configured
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements port.EventPublisher
func (p *LogPublisher) Publish(ctx context.Context, evt *event.Event) error {
	msg := toMessage(evt)
	p.logger.Info("Approval event",
		zap.String("event_type", msg.EventType),
		zap.String("request_id", msg.RequestID),
		zap.String("company_id", msg.CompanyID),
		zap.String("new_status", msg.NewStatus),
		zap.String("actor_id", msg.ActorID),
		zap.Strings("recipients", msg.Recipients))
	return nil
}

var (
	_ port.EventPublisher = (*Publisher)(nil)
	_ port.EventPublisher = (*LogPublisher)(nil)
)
