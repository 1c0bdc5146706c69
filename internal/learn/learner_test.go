package learn

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fullyclips/whalewatch/internal/config"
	"github.com/fullyclips/whalewatch/internal/watch"
)

const learnAddr = "0xBEEF000000000000000000000000000000000001"

// addrKey is how Consider keys the counter map.
func addrKey(addr string) string { return strings.ToLower(addr) }

func learnConfig(t *testing.T) config.Autolearn {
	t.Helper()
	return config.Autolearn{
		Enabled:      true,
		MinUSD:       250000,
		Occurrences:  3,
		WindowHours:  24,
		MaxNewPerDay: 5,
		StateFile:    filepath.Join(t.TempDir(), "state.json"),
	}
}

func newTestLearner(t *testing.T, cfg config.Autolearn, whales *watch.WhaleSet) (*Learner, *time.Time) {
	t.Helper()
	l := New(cfg, whales, nil, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	l.now = func() time.Time { return now }
	l.state.Day = l.today(now)
	return l, &now
}

func usd(v float64) *float64 { return &v }

func TestConsiderPromotesOnKthEvent(t *testing.T) {
	l, now := newTestLearner(t, learnConfig(t), watch.NewWhaleSetFold(nil))

	for i := 0; i < 2; i++ {
		if _, promoted := l.Consider(learnAddr, usd(300000)); promoted {
			t.Fatalf("promoted after %d events, want 3", i+1)
		}
		*now = now.Add(time.Hour)
	}

	learned, promoted := l.Consider(learnAddr, usd(300000))
	if !promoted {
		t.Fatal("expected promotion on 3rd qualifying event")
	}
	if learned != learnAddr {
		t.Errorf("learned = %s, want original-case %s", learned, learnAddr)
	}
	if !l.whales.ContainsFold(learnAddr) {
		t.Error("promoted address missing from whale set")
	}
	if got := l.Snapshot().AddedToday; got != 1 {
		t.Errorf("added_today = %d, want 1", got)
	}
}

func TestConsiderIgnoresKnownWhales(t *testing.T) {
	whales := watch.NewWhaleSetFold([]string{learnAddr})
	l, _ := newTestLearner(t, learnConfig(t), whales)

	for i := 0; i < 5; i++ {
		if _, promoted := l.Consider(learnAddr, usd(500000)); promoted {
			t.Fatal("re-promoted an existing whale")
		}
	}
	if counters := l.Snapshot().Counters; len(counters) != 0 {
		t.Errorf("counters = %v, want none for an existing whale", counters)
	}
}

func TestConsiderBelowThreshold(t *testing.T) {
	l, _ := newTestLearner(t, learnConfig(t), watch.NewWhaleSetFold(nil))

	if _, promoted := l.Consider(learnAddr, usd(249999)); promoted {
		t.Fatal("promoted below learning threshold")
	}
	if _, promoted := l.Consider(learnAddr, nil); promoted {
		t.Fatal("promoted without a fiat estimate")
	}
	if counters := l.Snapshot().Counters; len(counters) != 0 {
		t.Errorf("counters = %v, want none below threshold", counters)
	}
}

func TestConsiderPrunesOutsideWindow(t *testing.T) {
	l, now := newTestLearner(t, learnConfig(t), watch.NewWhaleSetFold(nil))

	l.Consider(learnAddr, usd(300000))
	l.Consider(learnAddr, usd(300000))

	// The gap pushes the first two events out of the 24h window, so the
	// third event counts alone.
	*now = now.Add(25 * time.Hour)
	if _, promoted := l.Consider(learnAddr, usd(300000)); promoted {
		t.Fatal("promotion fired on pruned events")
	}
	if got := len(l.Snapshot().Counters[addrKey(learnAddr)]); got != 1 {
		t.Errorf("counter length = %d, want 1 after pruning", got)
	}
}

func TestDailyQuota(t *testing.T) {
	cfg := learnConfig(t)
	cfg.Occurrences = 1
	cfg.MaxNewPerDay = 2
	l, now := newTestLearner(t, cfg, watch.NewWhaleSetFold(nil))

	addrs := []string{
		"0x0001000000000000000000000000000000000000",
		"0x0002000000000000000000000000000000000000",
		"0x0003000000000000000000000000000000000000",
	}

	for i, addr := range addrs[:2] {
		if _, promoted := l.Consider(addr, usd(300000)); !promoted {
			t.Fatalf("address %d not promoted under quota", i)
		}
	}

	// Quota exhausted: the third address stays counted, not promoted.
	if _, promoted := l.Consider(addrs[2], usd(300000)); promoted {
		t.Fatal("promotion exceeded the daily quota")
	}
	if l.whales.ContainsFold(addrs[2]) {
		t.Fatal("quota-blocked address entered the whale set")
	}

	// Next day the quota reopens and the retry succeeds.
	*now = now.Add(24 * time.Hour)
	if _, promoted := l.Consider(addrs[2], usd(300000)); !promoted {
		t.Fatal("expected promotion after the day rolled over")
	}
	if got := l.Snapshot().AddedToday; got != 1 {
		t.Errorf("added_today = %d after reset, want 1", got)
	}
}

func TestStateRoundTrip(t *testing.T) {
	cfg := learnConfig(t)
	l, now := newTestLearner(t, cfg, watch.NewWhaleSetFold(nil))

	l.Consider(learnAddr, usd(300000))
	*now = now.Add(time.Hour)
	l.Consider(learnAddr, usd(300000))
	before := l.Snapshot()

	reloaded := New(cfg, watch.NewWhaleSetFold(nil), nil, nil)
	after := reloaded.Snapshot()

	if after.Day != before.Day || after.AddedToday != before.AddedToday {
		t.Errorf("day/added_today = %s/%d, want %s/%d",
			after.Day, after.AddedToday, before.Day, before.AddedToday)
	}
	got := after.Counters[addrKey(learnAddr)]
	want := before.Counters[addrKey(learnAddr)]
	if len(got) != len(want) {
		t.Fatalf("counter length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("timestamp %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLoadCorruptStateFallsBackEmpty(t *testing.T) {
	cfg := learnConfig(t)
	if err := os.WriteFile(cfg.StateFile, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(cfg, watch.NewWhaleSetFold(nil), nil, nil)
	if got := len(l.Snapshot().Counters); got != 0 {
		t.Errorf("counters = %d, want empty state after corrupt read", got)
	}
}

func TestDisabledLearnerDoesNothing(t *testing.T) {
	cfg := learnConfig(t)
	cfg.Enabled = false
	l, _ := newTestLearner(t, cfg, watch.NewWhaleSetFold(nil))

	if _, promoted := l.Consider(learnAddr, usd(1e9)); promoted {
		t.Fatal("disabled learner promoted an address")
	}
	if _, err := os.Stat(cfg.StateFile); !os.IsNotExist(err) {
		t.Error("disabled learner wrote state")
	}
}

func TestStateDocumentShape(t *testing.T) {
	cfg := learnConfig(t)
	l, _ := newTestLearner(t, cfg, watch.NewWhaleSetFold(nil))
	l.Consider(learnAddr, usd(300000))

	data, err := os.ReadFile(cfg.StateFile)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Counters   map[string][]int64 `json:"counters"`
		Day        string             `json:"day"`
		AddedToday int                `json:"added_today"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("state document not parseable: %v", err)
	}
	if doc.Day == "" || len(doc.Counters) != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}
}
