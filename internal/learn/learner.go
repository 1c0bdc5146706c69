// Package learn promotes repeat large actors into the whale set. Each
// address moves unknown -> counted(n) -> promoted based on a sliding window
// of qualifying events, a per-day promotion quota, and a learning threshold
// distinct from the alert threshold. Counter state is persisted so pending
// promotions survive restarts.
package learn

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fullyclips/whalewatch/internal/config"
	"github.com/fullyclips/whalewatch/internal/watch"
)

// State is the persisted learning document.
type State struct {
	// Counters holds qualifying-event unix timestamps per lower-cased
	// address, pruned lazily to the window on each evaluation.
	Counters map[string][]int64 `json:"counters"`

	// Day is the local calendar date the daily quota applies to.
	Day string `json:"day"`

	// AddedToday counts promotions on Day.
	AddedToday int `json:"added_today"`
}

// ConfigWriter persists a promoted address into the durable configuration.
type ConfigWriter interface {
	AppendWhaleEVM(address string) error
}

// Learner tracks qualifying events and promotes addresses. All state
// mutation and state-file writes happen under one mutex, giving the
// single-writer discipline the concurrent per-chain watchers need.
type Learner struct {
	cfg     config.Autolearn
	whales  *watch.WhaleSet
	persist ConfigWriter
	logger  *slog.Logger

	mu    sync.Mutex
	state State
	now   func() time.Time
}

// New creates a learner, loading persisted state from cfg.StateFile. A
// read failure falls back to empty state and is logged, never fatal.
// persist may be nil when promotions should not be written back to the
// configuration document.
func New(cfg config.Autolearn, whales *watch.WhaleSet, persist ConfigWriter, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Learner{
		cfg:     cfg,
		whales:  whales,
		persist: persist,
		logger:  logger.With("component", "autolearn"),
		now:     time.Now,
	}
	l.state = State{Counters: make(map[string][]int64), Day: l.today(l.now())}
	l.load()
	return l
}

// Consider evaluates one qualifying-alert sender. It returns the address
// (original case) and true exactly when this event promoted it.
func (l *Learner) Consider(address string, estUSD *float64) (string, bool) {
	if !l.cfg.Enabled || address == "" {
		return "", false
	}
	addr := strings.ToLower(address)
	if l.whales.Contains(addr) {
		return "", false
	}
	if estUSD == nil || *estUSD < l.cfg.MinUSD {
		return "", false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window()).Unix()

	kept := l.state.Counters[addr][:0]
	for _, ts := range l.state.Counters[addr] {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now.Unix())
	l.state.Counters[addr] = kept

	l.resetDayIfNeeded(now)

	promoted := false
	if len(kept) >= l.cfg.Occurrences && l.state.AddedToday < l.cfg.MaxNewPerDay {
		l.whales.AddFold(address)
		l.state.AddedToday++
		promoted = true

		if l.persist != nil {
			if err := l.persist.AppendWhaleEVM(address); err != nil {
				l.logger.Error("persist promotion to config failed", "address", addr, "error", err)
			}
		}
		l.logger.Info("promoted address to whale set",
			"address", addr,
			"occurrences", len(kept),
			"added_today", l.state.AddedToday,
		)
	}

	l.save()
	if promoted {
		return address, true
	}
	return "", false
}

// Snapshot returns a copy of the current state, for inspection.
func (l *Learner) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := State{
		Counters:   make(map[string][]int64, len(l.state.Counters)),
		Day:        l.state.Day,
		AddedToday: l.state.AddedToday,
	}
	for addr, ts := range l.state.Counters {
		out.Counters[addr] = append([]int64(nil), ts...)
	}
	return out
}

// MinUSD returns the configured learning threshold.
func (l *Learner) MinUSD() float64 { return l.cfg.MinUSD }

// Occurrences returns the configured occurrence count.
func (l *Learner) Occurrences() int { return l.cfg.Occurrences }

// WindowHours returns the configured window in hours.
func (l *Learner) WindowHours() int { return l.cfg.WindowHours }

func (l *Learner) today(now time.Time) string {
	return now.Format("2006-01-02")
}

func (l *Learner) resetDayIfNeeded(now time.Time) {
	today := l.today(now)
	if l.state.Day != today {
		l.state.Day = today
		l.state.AddedToday = 0
	}
}

func (l *Learner) load() {
	data, err := os.ReadFile(l.cfg.StateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("read state file failed, starting empty", "file", l.cfg.StateFile, "error", err)
		}
		return
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		l.logger.Warn("parse state file failed, starting empty", "file", l.cfg.StateFile, "error", err)
		return
	}
	if loaded.Counters == nil {
		loaded.Counters = make(map[string][]int64)
	}
	if loaded.Day == "" {
		loaded.Day = l.today(l.now())
	}
	l.state = loaded
	l.logger.Info("loaded learning state",
		"file", l.cfg.StateFile,
		"addresses", len(loaded.Counters),
		"added_today", loaded.AddedToday,
	)
}

// save writes the state document via a temp file and rename, so a partial
// write can lose the latest increment but never corrupts prior state.
func (l *Learner) save() {
	data, err := json.Marshal(l.state)
	if err != nil {
		l.logger.Error("marshal state failed", "error", err)
		return
	}

	tmp := fmt.Sprintf("%s.tmp", l.cfg.StateFile)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		l.logger.Error("write state failed", "file", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, l.cfg.StateFile); err != nil {
		l.logger.Error("replace state failed", "file", l.cfg.StateFile, "error", err)
	}
}
