package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fullyclips/whalewatch/internal/alert"
	"github.com/fullyclips/whalewatch/internal/config"
	"github.com/fullyclips/whalewatch/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	level := parseLogLevel(*logLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *configPath == "" {
		logger.Error("missing required -config flag")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"chains", len(cfg.Chains),
		"solana", cfg.Solana != nil,
		"whales_evm", len(cfg.WhalesEVM),
		"whales_solana", len(cfg.WhalesSolana),
		"autolearn", cfg.Autolearn.Enabled,
	)

	var sinks []alert.Sink
	if cfg.Alerts.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhookSink(cfg.Alerts.WebhookURL))
	} else {
		logger.Warn("no webhook configured, webhook alerts disabled")
	}
	if cfg.Alerts.NATS.URL != "" {
		natsSink, err := alert.NewNATSSink(cfg.Alerts.NATS.URL, cfg.Alerts.NATS.Subject)
		if err != nil {
			logger.Error("failed to connect NATS sink", "url", cfg.Alerts.NATS.URL, "error", err)
			os.Exit(1)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
	}
	dispatcher := alert.NewDispatcher(logger, sinks...)

	sup, err := supervisor.New(cfg, dispatcher, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
