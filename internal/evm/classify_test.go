package evm

import (
	"testing"

	"github.com/fullyclips/whalewatch/internal/watch"
)

const (
	routerAddr = "0xabcd000000000000000000000000000000000001"
	whaleAddr  = "0xAAAA000000000000000000000000000000000002"
	plainAddr  = "0x1111100000000000000000000000000000000003"
)

func testRules() Rules {
	return Rules{
		Routers:   map[string]string{routerAddr: "TestRouter"},
		Whales:    watch.NewWhaleSetFold([]string{whaleAddr}),
		MinNative: 10,
		MinUSD:    50000,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		event       watch.Event
		rate        float64
		rateOK      bool
		wantAlert   bool
		wantReasons []watch.Reason
	}{
		{
			name:      "non-router destination never alertable",
			event:     watch.Event{From: whaleAddr, To: plainAddr, ValueNative: 10000},
			rate:      2000,
			rateOK:    true,
			wantAlert: false,
		},
		{
			name:        "value exactly at native threshold is alertable",
			event:       watch.Event{From: plainAddr, To: routerAddr, ValueNative: 10},
			wantAlert:   true,
			wantReasons: []watch.Reason{watch.ReasonLargeNative},
		},
		{
			name:      "value just below native threshold is not",
			event:     watch.Event{From: plainAddr, To: routerAddr, ValueNative: 9.999999},
			wantAlert: false,
		},
		{
			name:        "whale sender to router",
			event:       watch.Event{From: whaleAddr, To: routerAddr, ValueNative: 0.1},
			wantAlert:   true,
			wantReasons: []watch.Reason{watch.ReasonWhale},
		},
		{
			name: "zero-value swap call is alertable via swap-detected",
			event: watch.Event{
				From: plainAddr, To: routerAddr, ValueNative: 0,
				Swap: &watch.SwapDescriptor{DEX: "V3", Method: "exactInputSingle"},
			},
			wantAlert:   true,
			wantReasons: []watch.Reason{watch.ReasonSwapDetected},
		},
		{
			name:      "both thresholds fail without swap",
			event:     watch.Event{From: plainAddr, To: routerAddr, ValueNative: 5},
			rate:      2000,
			rateOK:    true,
			wantAlert: false, // 5*2000=10000 < 50000 and 5 < 10
		},
		{
			name:        "fiat threshold met",
			event:       watch.Event{From: plainAddr, To: routerAddr, ValueNative: 5},
			rate:        20000,
			rateOK:      true,
			wantAlert:   true,
			wantReasons: []watch.Reason{watch.ReasonLargeFiat},
		},
		{
			name:      "no rate disables the fiat rule",
			event:     watch.Event{From: plainAddr, To: routerAddr, ValueNative: 5},
			rateOK:    false,
			wantAlert: false,
		},
		{
			name:      "router address matched case-insensitively",
			event:     watch.Event{From: plainAddr, To: "0xABCD000000000000000000000000000000000001", ValueNative: 10},
			wantAlert: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify(testRules(), tt.event, tt.rate, tt.rateOK)

			if result.Alert != tt.wantAlert {
				t.Errorf("alert = %v, want %v (reasons %v)", result.Alert, tt.wantAlert, result.Reasons)
			}
			for _, reason := range tt.wantReasons {
				if !result.HasReason(reason) {
					t.Errorf("missing reason %s, got %v", reason, result.Reasons)
				}
			}
		})
	}
}

func TestClassifyEstimatedUSD(t *testing.T) {
	result := Classify(testRules(), watch.Event{From: plainAddr, To: routerAddr, ValueNative: 30}, 2000, true)
	if result.EstimatedUSD == nil {
		t.Fatal("expected fiat estimate")
	}
	if got := *result.EstimatedUSD; got != 60000 {
		t.Errorf("estimated usd = %v, want 60000", got)
	}
	if !result.HasReason(watch.ReasonLargeFiat) || !result.HasReason(watch.ReasonLargeNative) {
		t.Errorf("reasons = %v, want large-fiat and large-native", result.Reasons)
	}

	noRate := Classify(testRules(), watch.Event{From: plainAddr, To: routerAddr, ValueNative: 30}, 0, false)
	if noRate.EstimatedUSD != nil {
		t.Errorf("estimated usd = %v, want nil without a rate", *noRate.EstimatedUSD)
	}
}
