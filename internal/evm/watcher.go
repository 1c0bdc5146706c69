// Package evm watches one EVM chain's pending-transaction stream, decodes
// router swap calls and classifies whale activity.
package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fullyclips/whalewatch/internal/alert"
	"github.com/fullyclips/whalewatch/internal/config"
	"github.com/fullyclips/whalewatch/internal/learn"
	"github.com/fullyclips/whalewatch/internal/price"
	"github.com/fullyclips/whalewatch/internal/stream"
	"github.com/fullyclips/whalewatch/internal/watch"
)

const lookupTimeout = 15 * time.Second

// Watcher runs the watch loop for one configured EVM chain.
type Watcher struct {
	name    string
	cfg     config.ChainConfig
	rules   Rules
	prices  *price.Client
	learner *learn.Learner
	alerts  *alert.Dispatcher
	logger  *slog.Logger

	rpcClient *rpc.Client
	client    *ethclient.Client
	signer    types.Signer
}

// NewWatcher creates a watcher for one chain. whales is the shared EVM
// whale set, mutated only by the learner.
func NewWatcher(name string, cfg config.ChainConfig, thresholds config.Thresholds,
	whales *watch.WhaleSet, prices *price.Client, learner *learn.Learner,
	alerts *alert.Dispatcher, logger *slog.Logger) *Watcher {

	routers := make(map[string]string, len(cfg.Routers))
	for _, r := range cfg.Routers {
		routers[strings.ToLower(r.Address)] = r.Name
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		name: name,
		cfg:  cfg,
		rules: Rules{
			Routers:   routers,
			Whales:    whales,
			MinNative: thresholds.MinNative,
			MinUSD:    thresholds.MinUSD,
		},
		prices:  prices,
		learner: learner,
		alerts:  alerts,
		logger:  logger.With("component", "evm-watcher", "chain", name),
	}
}

// Run processes the pending-transaction subscription until ctx is
// cancelled. Per-event failures are logged and skipped; only cancellation
// ends the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("starting watcher", "ws", w.cfg.WS, "routers", len(w.rules.Routers))

	if w.cfg.HTTP != "" {
		w.connectHTTP(ctx)
	} else {
		w.logger.Warn("no HTTP endpoint configured, transactions cannot be resolved")
	}
	defer w.disconnect()

	sub := stream.New(w.cfg.WS,
		stream.NewRequest("eth_subscribe", "newPendingTransactions"),
		"eth_subscription", w.logger)

	for raw := range sub.Messages(ctx) {
		hash, ok := pendingTxHash(raw)
		if !ok {
			continue
		}
		w.handleTx(ctx, hash)
	}
	return ctx.Err()
}

// connectHTTP dials the query endpoint. Failure is tolerated: the watcher
// keeps running and skips events it cannot resolve.
func (w *Watcher) connectHTTP(ctx context.Context) {
	rpcClient, err := rpc.DialContext(ctx, w.cfg.HTTP)
	if err != nil {
		w.logger.Warn("HTTP endpoint dial failed", "url", w.cfg.HTTP, "error", err)
		return
	}
	w.rpcClient = rpcClient
	w.client = ethclient.NewClient(rpcClient)

	// Best-effort boot probe.
	probeCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	chainID, err := w.client.ChainID(probeCtx)
	if err != nil {
		w.logger.Warn("HTTP connectivity probe failed", "error", err)
		w.signer = types.LatestSignerForChainID(nil)
		return
	}
	w.signer = types.LatestSignerForChainID(chainID)
	w.logger.Info("HTTP endpoint connected", "chain_id", chainID)
}

func (w *Watcher) disconnect() {
	if w.rpcClient != nil {
		w.rpcClient.Close()
	}
}

// pendingTxHash extracts the tx hash from an eth_subscription payload.
// Anything that is not a 32-byte 0x-hex string is ignored.
func pendingTxHash(raw json.RawMessage) (string, bool) {
	var p struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", false
	}
	if !strings.HasPrefix(p.Result, "0x") || len(p.Result) != 66 {
		return "", false
	}
	return p.Result, true
}

func (w *Watcher) handleTx(ctx context.Context, hash string) {
	ev, err := w.resolve(ctx, hash)
	if err != nil {
		w.logger.Debug("skipping unresolvable transaction", "tx", hash, "error", err)
		return
	}

	if _, isRouter := w.rules.Routers[ev.To]; isRouter && len(ev.Excerpt) >= 10 {
		if input, err := hexutil.Decode(ev.Excerpt); err == nil {
			ev.Swap = ParseSwap(input)
		}
	}

	rate, rateOK := w.prices.NativeUSD(ctx, w.cfg.NativeCoingecko)
	result := Classify(w.rules, *ev, rate, rateOK)
	if !result.Alert {
		return
	}

	w.alerts.Dispatch(ctx, w.formatAlert(*ev, result))
	w.logger.Info("alert sent", "tx", ev.ID, "reasons", result.Reasons)

	if w.learner != nil {
		if learned, ok := w.learner.Consider(ev.From, result.EstimatedUSD); ok {
			w.alerts.Announce(ctx, fmt.Sprintf(
				"🧠 **Auto-learned new EVM whale:** `%s` (≥%.0f USD x%d in %dh). Added to `whales_evm`.",
				learned, w.learner.MinUSD(), w.learner.Occurrences(), w.learner.WindowHours()))
		}
	}
}

// resolve fetches full transaction details, preferring the typed client
// and falling back to a raw eth_getTransactionByHash call when it fails.
func (w *Watcher) resolve(ctx context.Context, hash string) (*watch.Event, error) {
	if w.rpcClient == nil {
		return nil, fmt.Errorf("no query endpoint")
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	if ev, err := w.resolveTyped(ctx, hash); err == nil {
		return ev, nil
	}
	return w.resolveRaw(ctx, hash)
}

func (w *Watcher) resolveTyped(ctx context.Context, hash string) (*watch.Event, error) {
	tx, _, err := w.client.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		return nil, err
	}
	from, err := types.Sender(w.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}

	to := ""
	if tx.To() != nil {
		to = strings.ToLower(tx.To().Hex())
	}
	return &watch.Event{
		Chain:       w.name,
		ID:          hash,
		From:        strings.ToLower(from.Hex()),
		To:          to,
		ValueNative: weiToNative(tx.Value()),
		Excerpt:     hexutil.Encode(tx.Data()),
	}, nil
}

// rpcTransaction mirrors the raw JSON-RPC transaction fields the watcher
// needs; nodes serve it even for tx types the typed client rejects.
type rpcTransaction struct {
	From  string        `json:"from"`
	To    string        `json:"to"`
	Value *hexutil.Big  `json:"value"`
	Input hexutil.Bytes `json:"input"`
}

func (w *Watcher) resolveRaw(ctx context.Context, hash string) (*watch.Event, error) {
	var tx *rpcTransaction
	if err := w.rpcClient.CallContext(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction not found")
	}

	value := 0.0
	if tx.Value != nil {
		value = weiToNative(tx.Value.ToInt())
	}
	return &watch.Event{
		Chain:       w.name,
		ID:          hash,
		From:        strings.ToLower(tx.From),
		To:          strings.ToLower(tx.To),
		ValueNative: value,
		Excerpt:     tx.Input.String(),
	}, nil
}

func weiToNative(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}

func (w *Watcher) formatAlert(ev watch.Event, result watch.Classification) alert.Message {
	usd := ""
	if result.EstimatedUSD != nil {
		usd = fmt.Sprintf(" (~$%.0f)", *result.EstimatedUSD)
	}

	desc := fmt.Sprintf("**From:** `%s`\n**To:** %s (`%s`)\n**Value:** %.4f %s%s\n",
		ev.From, w.rules.RouterName(ev.To), ev.To, ev.ValueNative, w.cfg.NativeSymbol, usd)
	if ev.Swap != nil {
		desc += fmt.Sprintf("**Method:** %s • **TokenOut:** `%s`\n", ev.Swap.Method, ev.Swap.TokenOut)
	}

	return alert.Message{Embeds: []alert.Embed{{
		Title:       fmt.Sprintf("%s • Possible Whale Buy", strings.ToUpper(w.name)),
		Description: desc,
		Color:       alert.ColorEVM,
		URL:         w.cfg.Explorer + ev.ID,
		Footer:      &alert.EmbedFooter{Text: ev.ID},
	}}}
}
