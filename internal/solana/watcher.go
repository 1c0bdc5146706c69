// Package solana watches the Solana log stream through one mention filter
// per configured program ID and whale account. Log events carry no decoded
// amount; matching a filter is what makes them alertable.
package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fullyclips/whalewatch/internal/alert"
	"github.com/fullyclips/whalewatch/internal/config"
	"github.com/fullyclips/whalewatch/internal/stream"
	"github.com/fullyclips/whalewatch/internal/watch"
)

// Display cap for the first log line.
const maxLogExcerpt = 180

// mentionFilter is one logsSubscribe subscription target.
type mentionFilter struct {
	id     string
	reason watch.Reason
}

// Watcher runs the Solana log stream watch loop.
type Watcher struct {
	cfg     config.SolanaConfig
	filters []mentionFilter
	alerts  *alert.Dispatcher
	logger  *slog.Logger
}

// NewWatcher builds a watcher with one mention filter per program ID and
// per whale account.
func NewWatcher(cfg config.SolanaConfig, whales []string, alerts *alert.Dispatcher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	filters := make([]mentionFilter, 0, len(cfg.ProgramIDs)+len(whales))
	for _, id := range cfg.ProgramIDs {
		filters = append(filters, mentionFilter{id: id, reason: watch.ReasonProgramMention})
	}
	for _, id := range whales {
		filters = append(filters, mentionFilter{id: id, reason: watch.ReasonWhaleMention})
	}

	return &Watcher{
		cfg:     cfg,
		filters: filters,
		alerts:  alerts,
		logger:  logger.With("component", "solana-watcher"),
	}
}

// Run starts one subscription goroutine per mention filter and blocks
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("starting watcher", "wss", w.cfg.WSS, "filters", len(w.filters))

	g, ctx := errgroup.WithContext(ctx)
	for _, filter := range w.filters {
		g.Go(func() error {
			return w.watchFilter(ctx, filter)
		})
	}
	return g.Wait()
}

func (w *Watcher) watchFilter(ctx context.Context, filter mentionFilter) error {
	sub := stream.New(w.cfg.WSS,
		stream.NewRequest("logsSubscribe",
			map[string]any{"mentions": []string{filter.id}},
			map[string]any{"commitment": "confirmed"},
		),
		"logsNotification", w.logger.With("mention", filter.id))

	for raw := range sub.Messages(ctx) {
		ev, ok := decodeNotification(raw)
		if !ok {
			continue
		}
		w.handleEvent(ctx, ev, filter)
	}
	return ctx.Err()
}

// logsResult tolerates both envelope layouts seen in the wild: signature
// and logs directly under params.result, or nested under result.value.
type logsResult struct {
	Signature string   `json:"signature"`
	Logs      []string `json:"logs"`
	Value     struct {
		Signature string   `json:"signature"`
		Logs      []string `json:"logs"`
	} `json:"value"`
}

func decodeNotification(raw json.RawMessage) (watch.Event, bool) {
	var p struct {
		Result logsResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return watch.Event{}, false
	}

	sig := p.Result.Signature
	logs := p.Result.Logs
	if sig == "" {
		sig = p.Result.Value.Signature
		logs = p.Result.Value.Logs
	}
	if sig == "" {
		return watch.Event{}, false
	}

	first := ""
	if len(logs) > 0 {
		first = logs[0]
		if len(first) > maxLogExcerpt {
			first = first[:maxLogExcerpt]
		}
	}

	return watch.Event{
		Chain:   "solana",
		ID:      sig,
		Excerpt: first,
	}, true
}

func (w *Watcher) handleEvent(ctx context.Context, ev watch.Event, filter mentionFilter) {
	ev.To = filter.id

	result := watch.Classification{
		Alert:   true,
		Reasons: []watch.Reason{filter.reason},
	}

	desc := fmt.Sprintf("**Signature:** `%s`\n**First log:** `%s`\n", ev.ID, ev.Excerpt)
	w.alerts.Dispatch(ctx, alert.Message{Embeds: []alert.Embed{{
		Title:       "SOLANA • Whale/DEX Mention",
		Description: desc,
		Color:       alert.ColorSolana,
		URL:         w.cfg.ExplorerTx + ev.ID,
		Footer:      &alert.EmbedFooter{Text: "logsSubscribe mention"},
	}}})
	w.logger.Info("alert sent", "signature", ev.ID, "reason", result.Reasons[0])
}
