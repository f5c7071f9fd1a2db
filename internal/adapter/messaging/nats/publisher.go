package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Connect dials the NATS server. An empty url disables publishing and returns nil, nil.
func Connect(url string, log zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		log.Info().Msg("NATS url not configured, event publishing disabled")
		return nil, nil
	}

	nc, err := nats.Connect(url,
		nats.Name("wallet-gateway"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connection established")
	return nc, nil
}

// Publisher implements ports.EventPublisher on a NATS connection.
// Subjects are namespaced as <prefix>.<subject>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher wraps nc. A nil connection yields a publisher that drops events.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: prefix}
}

// Publish sends payload on the namespaced subject. Delivery is fire-and-forget.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p == nil || p.nc == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.Publish(p.Subject(subject), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subject returns the fully qualified subject name.
func (p *Publisher) Subject(subject string) string {
	if p.prefix == "" {
		return subject
	}
	return p.prefix + "." + subject
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}
