package ingestion

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"wallet-credit-lab/internal/domain"
)

// Summary describes a loaded event log for data-quality reporting.
type Summary struct {
	Events         int
	Wallets        int
	ActionCounts   map[domain.ActionKind]int
	UnknownActions map[string]int // raw action name -> count, for events parsed as ActionOther
	NonEVMWallets  []string       // wallet ids that are not 20-byte hex addresses, sorted
	FirstTimestamp int64
	LastTimestamp  int64
}

// Summarize computes a Summary. Non-EVM wallet ids are reported, not rejected:
// the scorer treats wallet ids as opaque strings.
func Summarize(events []domain.RawEvent) Summary {
	s := Summary{
		Events:         len(events),
		ActionCounts:   make(map[domain.ActionKind]int),
		UnknownActions: make(map[string]int),
	}

	wallets := make(map[string]struct{})
	nonEVM := make(map[string]struct{})
	for i, ev := range events {
		wallets[ev.Wallet] = struct{}{}
		if !common.IsHexAddress(ev.Wallet) {
			nonEVM[ev.Wallet] = struct{}{}
		}
		s.ActionCounts[ev.Action]++
		if ev.Action == domain.ActionOther {
			s.UnknownActions[ev.RawAction]++
		}
		if i == 0 || ev.Timestamp < s.FirstTimestamp {
			s.FirstTimestamp = ev.Timestamp
		}
		if i == 0 || ev.Timestamp > s.LastTimestamp {
			s.LastTimestamp = ev.Timestamp
		}
	}

	s.Wallets = len(wallets)
	for w := range nonEVM {
		s.NonEVMWallets = append(s.NonEVMWallets, w)
	}
	sort.Strings(s.NonEVMWallets)
	return s
}
