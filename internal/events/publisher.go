// Package events publishes session lifecycle events to NATS.
//
// Publishing is optional: when no NATS URL is configured the publisher is a
// no-op, so the lifecycle engine never depends on broker availability. A
// failed publish is logged and swallowed for the same reason.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
)

// Subjects for session lifecycle events.
const (
	SubjectSessionStarted = "hebi.session.started"
	SubjectSessionStopped = "hebi.session.stopped"
	SubjectSessionReaped  = "hebi.session.reaped"
)

// SessionEvent is the payload published for every lifecycle transition.
type SessionEvent struct {
	Fedid     string    `json:"fedid"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Publisher publishes lifecycle events. The zero-config publisher is
// disabled and publishes nothing.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS when url is non-empty. An empty url returns
// a disabled publisher.
func NewPublisher(url string) (*Publisher, error) {
	if url == "" {
		return &Publisher{}, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("hebi-launcher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Enabled reports whether events are actually published.
func (p *Publisher) Enabled() bool {
	return p.conn != nil
}

// Close closes the NATS connection, if any.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Publish emits one session event on the given subject.
func (p *Publisher) Publish(subject, fedid, reason string) {
	if p.conn == nil {
		return
	}

	event := SessionEvent{
		Fedid:     fedid,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Lifecycle().Error().Err(err).Str("subject", subject).Msg("Failed to encode session event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		logger.Lifecycle().Warn().Err(err).Str("subject", subject).Msg("Failed to publish session event")
	}
}
