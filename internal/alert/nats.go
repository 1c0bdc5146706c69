package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes alert JSON to a NATS subject for downstream fan-out.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the NATS server. The connection reconnects
// indefinitely on its own; publish failures surface per message.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("whalewatch"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Send publishes the message as JSON.
func (s *NATSSink) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() {
	if s.conn != nil {
		s.conn.Drain()
	}
}
