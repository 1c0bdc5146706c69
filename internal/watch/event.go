// Package watch holds the core domain types shared by the per-chain
// watchers: normalized events, classification results and the whale set.
package watch

import (
	"strings"
	"sync"
)

// Reason explains why an event was classified as alertable.
type Reason string

const (
	ReasonWhale          Reason = "whale"
	ReasonLargeNative    Reason = "large-native"
	ReasonLargeFiat      Reason = "large-fiat"
	ReasonSwapDetected   Reason = "swap-detected"
	ReasonWhaleMention   Reason = "whale-mention"
	ReasonProgramMention Reason = "program-mention"
)

// SwapDescriptor is the decoded input/output asset pair of a recognized
// router swap call.
type SwapDescriptor struct {
	DEX      string
	Method   string
	TokenIn  string
	TokenOut string
}

// Event is a normalized record of one observed transaction or log
// notification. ValueNative is zero for Solana log events, which carry no
// decoded amount.
type Event struct {
	Chain       string
	ID          string // tx hash or signature
	From        string
	To          string // destination address or mentioned account
	ValueNative float64
	Excerpt     string // raw log/input excerpt for display
	Swap        *SwapDescriptor
}

// Classification is the outcome of evaluating one event against the
// configured thresholds. EstimatedUSD is nil when no rate was available.
type Classification struct {
	Alert        bool
	Reasons      []Reason
	EstimatedUSD *float64
}

// HasReason reports whether r is among the classification reasons.
func (c Classification) HasReason(r Reason) bool {
	for _, have := range c.Reasons {
		if have == r {
			return true
		}
	}
	return false
}

// WhaleSet is the mutable set of addresses currently treated as known
// whales for one source. EVM sets are built with lower-cased members and
// queried through ContainsFold; Solana identifiers are base58 and
// case-significant, so they use Contains.
type WhaleSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

// NewWhaleSet builds a set from the given members, preserving their case.
func NewWhaleSet(members []string) *WhaleSet {
	s := &WhaleSet{members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return s
}

// NewWhaleSetFold builds a set with every member lower-cased, for
// case-insensitive EVM address membership.
func NewWhaleSetFold(members []string) *WhaleSet {
	s := &WhaleSet{members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		s.members[strings.ToLower(m)] = struct{}{}
	}
	return s
}

// Contains reports case-sensitive membership.
func (s *WhaleSet) Contains(addr string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[addr]
	return ok
}

// ContainsFold reports membership of the lower-cased address.
func (s *WhaleSet) ContainsFold(addr string) bool {
	return s.Contains(strings.ToLower(addr))
}

// AddFold inserts the lower-cased address. It returns false if the address
// was already a member.
func (s *WhaleSet) AddFold(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(addr)
	if _, ok := s.members[key]; ok {
		return false
	}
	s.members[key] = struct{}{}
	return true
}

// Len returns the current member count.
func (s *WhaleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}
