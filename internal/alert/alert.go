// Package alert formats classification results into bounded notification
// payloads and delivers them to the configured sinks. Delivery is
// fire-and-forget: sink failures are logged and swallowed so the watch
// loops are never interrupted.
package alert

import (
	"context"
	"log/slog"
)

// Payload caps, matching the webhook sink's limits.
const (
	maxContentLen = 1900
	maxEmbeds     = 10
	maxBodyLen    = 2048
	maxFooterLen  = 256
)

// Embed colors.
const (
	ColorEVM    = 0x2ECC71
	ColorSolana = 0x5865F2
)

// Embed is one rich display block.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	URL         string       `json:"url,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedFooter is the short footer line of an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// Message is one outbound alert. Oversized fields are truncated at send
// time rather than rejected.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Sink delivers one message to an external destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans one message out to every configured sink.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sinks:  sinks,
		logger: logger.With("component", "alert"),
	}
}

// Dispatch sends msg to every sink. Failures are logged and swallowed; a
// failed sink never prevents delivery to the remaining ones.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	msg = truncate(msg)
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, msg); err != nil {
			d.logger.Error("alert delivery failed", "sink", sink.Name(), "error", err)
		}
	}
}

// Announce sends a short-form text message (learning promotions).
func (d *Dispatcher) Announce(ctx context.Context, text string) {
	d.Dispatch(ctx, Message{Content: text})
}

func truncate(msg Message) Message {
	if len(msg.Content) > maxContentLen {
		msg.Content = msg.Content[:maxContentLen]
	}
	if len(msg.Embeds) > maxEmbeds {
		msg.Embeds = msg.Embeds[:maxEmbeds]
	}
	for i := range msg.Embeds {
		if len(msg.Embeds[i].Description) > maxBodyLen {
			msg.Embeds[i].Description = msg.Embeds[i].Description[:maxBodyLen]
		}
		if f := msg.Embeds[i].Footer; f != nil && len(f.Text) > maxFooterLen {
			f.Text = f.Text[:maxFooterLen]
		}
	}
	return msg
}
