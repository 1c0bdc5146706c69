package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fullyclips/whalewatch/internal/alert"
	"github.com/fullyclips/whalewatch/internal/config"
)

func TestNewRequiresSources(t *testing.T) {
	if _, err := New(&config.Config{}, alert.NewDispatcher(nil), nil); err == nil {
		t.Error("expected error for empty configuration")
	}

	cfg := &config.Config{
		Chains: map[string]config.ChainConfig{
			"ethereum": {WS: "wss://unused", Explorer: "https://etherscan.io/tx/"},
		},
	}
	if _, err := New(cfg, alert.NewDispatcher(nil), nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := &config.Config{
		Chains: map[string]config.ChainConfig{
			"ethereum": {WS: "wss://unused", Explorer: "https://etherscan.io/tx/"},
		},
	}
	sup, err := New(cfg, alert.NewDispatcher(nil), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}
}
