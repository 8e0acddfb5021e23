package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/danielpatrickdp/taste-genome/internal/logging"
)

// Subject prefixes. The profile id is appended.
const (
	SubjectEvolution = "taste.evolution"
	SubjectGating    = "taste.gating"
)

// Publisher fans out observational events. Failures never affect the caller's write.
type Publisher interface {
	PublishEvolution(ctx context.Context, entry logging.EvolutionEntry) error
	PublishGating(ctx context.Context, rec logging.GatingRecord) error
}

// #region nop
// Nop discards every event.
type Nop struct{}

func (Nop) PublishEvolution(context.Context, logging.EvolutionEntry) error { return nil }
func (Nop) PublishGating(context.Context, logging.GatingRecord) error     { return nil }
// #endregion nop

// #region nats
// publishConn is the part of *nats.Conn the publisher uses.
type publishConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes JSON events on core NATS subjects.
type NATSPublisher struct {
	conn   publishConn
	closer func()
	logger *slog.Logger
}

// Connect dials a NATS server and returns a publisher over it.
func Connect(url string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("taste-genome"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	p := newNATSPublisher(nc, logger)
	p.closer = func() {
		if err := nc.Drain(); err != nil {
			p.logger.Warn("drain NATS", "error", err)
		}
	}
	return p, nil
}

func newNATSPublisher(conn publishConn, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, logger: logger.With("component", "events")}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// PublishEvolution sends an evolution entry on taste.evolution.<profile>.
func (p *NATSPublisher) PublishEvolution(ctx context.Context, entry logging.EvolutionEntry) error {
	return p.publish(ctx, SubjectEvolution+"."+entry.ProfileID, entry)
}

// PublishGating sends a gating decision on taste.gating.<profile>.
func (p *NATSPublisher) PublishGating(ctx context.Context, rec logging.GatingRecord) error {
	return p.publish(ctx, SubjectGating+"."+rec.ProfileID, rec)
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", "subject", subject, "bytes", len(data))
	return nil
}
// #endregion nats
