// Package supervisor owns one concurrent watch loop per configured source
// and aggregates fatal top-level failures. Transient failures never reach
// it: the watch loops recover transport, decode, lookup and delivery
// errors themselves.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fullyclips/whalewatch/internal/alert"
	"github.com/fullyclips/whalewatch/internal/config"
	"github.com/fullyclips/whalewatch/internal/evm"
	"github.com/fullyclips/whalewatch/internal/learn"
	"github.com/fullyclips/whalewatch/internal/price"
	"github.com/fullyclips/whalewatch/internal/solana"
	"github.com/fullyclips/whalewatch/internal/watch"
)

// Supervisor wires the watchers together from configuration.
type Supervisor struct {
	cfg    *config.Config
	alerts *alert.Dispatcher
	logger *slog.Logger
}

// New creates a supervisor. The configuration must have at least one
// source; callers check HasSources before building one.
func New(cfg *config.Config, alerts *alert.Dispatcher, logger *slog.Logger) (*Supervisor, error) {
	if !cfg.HasSources() {
		return nil, fmt.Errorf("no chains configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		alerts: alerts,
		logger: logger.With("component", "supervisor"),
	}, nil
}

// Run starts every watch loop and blocks until ctx is cancelled or a loop
// fails fatally.
func (s *Supervisor) Run(ctx context.Context) error {
	whalesEVM := watch.NewWhaleSetFold(s.cfg.WhalesEVM)
	prices := price.New(s.logger)

	var learner *learn.Learner
	if s.cfg.Autolearn.Enabled {
		var writer learn.ConfigWriter
		if s.cfg.Autolearn.PersistToConfig {
			writer = s.cfg
		}
		learner = learn.New(s.cfg.Autolearn, whalesEVM, writer, s.logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	for name, chain := range s.cfg.Chains {
		w := evm.NewWatcher(name, chain, s.cfg.Thresholds,
			whalesEVM, prices, learner, s.alerts, s.logger)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	if s.cfg.Solana != nil {
		w := solana.NewWatcher(*s.cfg.Solana, s.cfg.WhalesSolana, s.alerts, s.logger)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	s.logger.Info("all watchers started",
		"evm_chains", len(s.cfg.Chains),
		"solana", s.cfg.Solana != nil,
	)
	return g.Wait()
}
