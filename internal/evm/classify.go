package evm

import (
	"strings"

	"github.com/fullyclips/whalewatch/internal/watch"
)

// Rules holds the per-chain classification inputs. Router addresses are
// keyed lower-cased.
type Rules struct {
	Routers   map[string]string // lower-cased address -> router name
	Whales    *watch.WhaleSet
	MinNative float64
	MinUSD    float64
}

// RouterName resolves the display name of a router destination, or
// "Router" when unnamed.
func (r Rules) RouterName(to string) string {
	if name, ok := r.Routers[strings.ToLower(to)]; ok && name != "" {
		return name
	}
	return "Router"
}

// Classify evaluates one normalized event. Pure: no I/O, no mutation.
//
// An event is alertable iff its destination is a known router AND at least
// one of: the sender is a known whale, native value meets MinNative,
// estimated fiat value meets MinUSD, or a swap descriptor was decoded.
// Both thresholds are inclusive. Without a rate the fiat rule and the fiat
// estimate are absent, never an error.
func Classify(rules Rules, ev watch.Event, rate float64, rateOK bool) watch.Classification {
	var result watch.Classification

	if rateOK {
		est := ev.ValueNative * rate
		result.EstimatedUSD = &est
	}

	if _, isRouter := rules.Routers[strings.ToLower(ev.To)]; !isRouter {
		// Router membership is a hard filter: even a whale sender is not
		// alertable against an unknown destination.
		return result
	}

	if rules.Whales.ContainsFold(ev.From) {
		result.Reasons = append(result.Reasons, watch.ReasonWhale)
	}
	if ev.ValueNative >= rules.MinNative {
		result.Reasons = append(result.Reasons, watch.ReasonLargeNative)
	}
	if result.EstimatedUSD != nil && *result.EstimatedUSD >= rules.MinUSD {
		result.Reasons = append(result.Reasons, watch.ReasonLargeFiat)
	}
	if ev.Swap != nil {
		result.Reasons = append(result.Reasons, watch.ReasonSwapDetected)
	}

	result.Alert = len(result.Reasons) > 0
	return result
}
