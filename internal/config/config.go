// Package config loads and validates the durable watcher configuration and
// handles the merge-rewrite of the learned whale list.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// Router is one recognized DEX router contract.
type Router struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// ChainConfig identifies one watched EVM source.
type ChainConfig struct {
	// WebSocket RPC endpoint (for eth_subscribe)
	WS string `yaml:"ws"`

	// HTTP RPC endpoint (for eth_getTransactionByHash)
	HTTP string `yaml:"http"`

	// Explorer URL prefix, tx hash appended
	Explorer string `yaml:"explorer"`

	NativeSymbol    string `yaml:"native_symbol"`
	NativeCoingecko string `yaml:"native_coingecko"`

	Routers []Router `yaml:"routers"`
}

// SolanaConfig identifies the Solana log stream source.
type SolanaConfig struct {
	HTTP       string   `yaml:"http"`
	WSS        string   `yaml:"wss"`
	ExplorerTx string   `yaml:"explorer_tx"`
	ProgramIDs []string `yaml:"program_ids"`
}

// Thresholds gates EVM alerting.
type Thresholds struct {
	MinUSD    float64 `yaml:"min_usd"`
	MinNative float64 `yaml:"min_native"`
}

// Autolearn configures promotion of repeat large actors into the whale set.
type Autolearn struct {
	Enabled         bool    `yaml:"enabled"`
	MinUSD          float64 `yaml:"min_usd"`
	Occurrences     int     `yaml:"occurrences"`
	WindowHours     int     `yaml:"window_hours"`
	MaxNewPerDay    int     `yaml:"max_new_per_day"`
	StateFile       string  `yaml:"state_file"`
	PersistToConfig bool    `yaml:"persist_to_config"`
}

// Window returns the sliding learning window as a duration.
func (a Autolearn) Window() time.Duration {
	return time.Duration(a.WindowHours) * time.Hour
}

// NATSConfig configures the optional alert fan-out sink.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Alerts configures delivery sinks.
type Alerts struct {
	WebhookURL string     `yaml:"webhook_url"`
	NATS       NATSConfig `yaml:"nats"`
}

// Config is the durable configuration document, read once at startup.
// Immutable afterwards except for AppendWhaleEVM.
type Config struct {
	Chains       map[string]ChainConfig `yaml:"chains"`
	Solana       *SolanaConfig          `yaml:"solana"`
	WhalesEVM    []string               `yaml:"whales_evm"`
	WhalesSolana []string               `yaml:"whales_solana"`
	Thresholds   Thresholds             `yaml:"thresholds"`
	Autolearn    Autolearn              `yaml:"autolearn"`
	Alerts       Alerts                 `yaml:"alerts"`

	// Path the document was loaded from, kept for persist-to-config.
	Path string `yaml:"-"`
}

// Load reads, defaults and validates the configuration document.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		Thresholds: Thresholds{MinUSD: 50000, MinNative: 10},
		Autolearn: Autolearn{
			MinUSD:       250000,
			Occurrences:  3,
			WindowHours:  24,
			MaxNewPerDay: 5,
			StateFile:    "autolearn_state.json",
		},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.Path = path

	if cfg.Alerts.WebhookURL == "" {
		cfg.Alerts.WebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, chain := range c.Chains {
		if chain.WS == "" {
			return fmt.Errorf("chain %s: ws endpoint is required", name)
		}
		if chain.Explorer == "" {
			return fmt.Errorf("chain %s: explorer is required", name)
		}
		cc := chain
		if cc.NativeSymbol == "" {
			cc.NativeSymbol = "ETH"
		}
		if cc.NativeCoingecko == "" {
			cc.NativeCoingecko = "ethereum"
		}
		c.Chains[name] = cc
	}

	if c.Solana != nil {
		if c.Solana.WSS == "" {
			return fmt.Errorf("solana: wss endpoint is required")
		}
		if c.Solana.ExplorerTx == "" {
			c.Solana.ExplorerTx = "https://solscan.io/tx/"
		}
		for _, id := range c.Solana.ProgramIDs {
			if _, err := solana.PublicKeyFromBase58(id); err != nil {
				return fmt.Errorf("solana: program id %q: %w", id, err)
			}
		}
		for _, id := range c.WhalesSolana {
			if _, err := solana.PublicKeyFromBase58(id); err != nil {
				return fmt.Errorf("solana: whale %q: %w", id, err)
			}
		}
	}

	return nil
}

// HasSources reports whether at least one watchable source is configured.
func (c *Config) HasSources() bool {
	return len(c.Chains) > 0 || c.Solana != nil
}

// AppendWhaleEVM merges a newly learned address into whales_evm in the
// durable document, preserving all other fields and the address's original
// case. Membership is checked case-insensitively; a duplicate is a no-op.
func (c *Config) AppendWhaleEVM(address string) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("read config for merge: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config for merge: %w", err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	var list []any
	if raw, ok := doc["whales_evm"].([]any); ok {
		list = raw
	}
	for _, entry := range list {
		if s, ok := entry.(string); ok && strings.EqualFold(s, address) {
			return nil
		}
	}
	doc["whales_evm"] = append(list, address)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.Path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
