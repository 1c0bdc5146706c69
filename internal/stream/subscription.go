// Package stream provides a resilient WebSocket subscription channel: a
// lazy, infinite sequence of raw JSON-RPC notification payloads that
// survives individual connection failures via reconnect with exponential
// backoff.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	initialBackoff   = 2 * time.Second
	maxBackoff       = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Request is the JSON-RPC subscription request sent after each (re)connect.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// NewRequest builds a JSON-RPC 2.0 subscription request.
func NewRequest(method string, params ...any) Request {
	return Request{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
}

type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Subscription maintains a persistent streaming connection to one endpoint.
// A failed dial, handshake, subscribe write or read is treated uniformly:
// the connection is torn down and re-established after a backoff that
// doubles per consecutive failure, capped at maxBackoff. The subscription
// only terminates when its context is cancelled.
type Subscription struct {
	endpoint string
	request  Request
	method   string // envelope method carrying notifications
	logger   *slog.Logger

	backoffMin time.Duration
	backoffMax time.Duration
}

// New creates a subscription channel for one endpoint. method names the
// notification envelope to deliver (e.g. "eth_subscription").
func New(endpoint string, request Request, method string, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{
		endpoint:   endpoint,
		request:    request,
		method:     method,
		logger:     logger.With("component", "stream", "endpoint", endpoint),
		backoffMin: initialBackoff,
		backoffMax: maxBackoff,
	}
}

// Run delivers the params payload of every matching notification to out
// until ctx is cancelled. It never returns an error other than ctx.Err().
func (s *Subscription) Run(ctx context.Context, out chan<- json.RawMessage) error {
	backoff := s.backoffMin

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streamed, err := s.connectAndStream(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if streamed > 0 {
			// A connection that delivered messages breaks the consecutive
			// failure chain.
			backoff = s.backoffMin
		}

		s.logger.Warn("subscription dropped, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.backoffMax {
			backoff = s.backoffMax
		}
	}
}

// Messages starts the subscription in a goroutine and returns its output
// channel. The channel is closed when ctx is cancelled.
func (s *Subscription) Messages(ctx context.Context) <-chan json.RawMessage {
	out := make(chan json.RawMessage, 64)
	go func() {
		defer close(out)
		_ = s.Run(ctx, out)
	}()
	return out
}

func (s *Subscription) connectAndStream(ctx context.Context, out chan<- json.RawMessage) (int, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	s.logger.Info("connecting")
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// Tear the connection down on cancellation so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(s.request); err != nil {
		return 0, err
	}
	conn.SetWriteDeadline(time.Time{})
	s.logger.Info("subscribed", "method", s.request.Method)

	streamed := 0
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("connection closed", "messages", streamed)
			return streamed, err
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue // malformed frame, not a connection failure
		}
		if env.Method != s.method {
			continue // subscription ack or unrelated notification
		}
		streamed++

		select {
		case out <- env.Params:
		case <-ctx.Done():
			return streamed, ctx.Err()
		}
	}
}
