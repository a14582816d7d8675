// Package repayment pairs borrows with repays and aggregates repayment latency.
package repayment

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"wallet-credit-lab/internal/domain"
)

// Policy selects which repay satisfies a borrow.
type Policy int

const (
	// MatchEarliest picks the earliest repay of the same wallet and asset,
	// even when it precedes the borrow. Latencies may be negative.
	MatchEarliest Policy = iota

	// MatchCausal only considers repays at or after the borrow.
	MatchCausal
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case MatchEarliest:
		return "earliest"
	case MatchCausal:
		return "causal"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// PolicyFromCausal maps a causal-matching toggle to a Policy.
func PolicyFromCausal(causal bool) Policy {
	if causal {
		return MatchCausal
	}
	return MatchEarliest
}

// Result holds the outcome of matching one event batch.
type Result struct {
	// Observations are in borrow input order.
	Observations []domain.RepaymentObservation

	Matched   int
	Unmatched int

	// UnmatchedByWallet counts borrows that found no repay, per wallet.
	UnmatchedByWallet map[string]int

	// NegativeLatencies counts matches where the repay preceded the borrow.
	NegativeLatencies int
}

type repayKey struct {
	wallet string
	asset  string
}

// Match pairs every borrow with a repay of the same wallet and asset.
// Repays are never consumed: one repay can satisfy any number of borrows.
// Among repays with equal timestamps the one earlier in the input wins.
func Match(events []domain.NormalizedEvent, policy Policy) Result {
	repays := indexRepays(events)

	res := Result{UnmatchedByWallet: make(map[string]int)}
	for _, ev := range events {
		if ev.Action != domain.ActionBorrow {
			continue
		}

		candidates := repays[repayKey{wallet: ev.Wallet, asset: ev.AssetSymbol}]
		repay, ok := pick(candidates, ev, policy)
		if !ok {
			res.Unmatched++
			res.UnmatchedByWallet[ev.Wallet]++
			continue
		}

		hours := repay.Timestamp.Sub(ev.Timestamp).Hours()
		if hours < 0 {
			res.NegativeLatencies++
		}
		res.Matched++
		res.Observations = append(res.Observations, domain.RepaymentObservation{
			Wallet:         ev.Wallet,
			RepaymentHours: hours,
			BorrowValueUSD: ev.ValueUSD,
		})
	}
	return res
}

// indexRepays groups repays by (wallet, asset), each group ordered by
// timestamp then input position.
func indexRepays(events []domain.NormalizedEvent) map[repayKey][]domain.NormalizedEvent {
	out := make(map[repayKey][]domain.NormalizedEvent)
	for _, ev := range events {
		if ev.Action != domain.ActionRepay {
			continue
		}
		k := repayKey{wallet: ev.Wallet, asset: ev.AssetSymbol}
		out[k] = append(out[k], ev)
	}
	for _, group := range out {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})
	}
	return out
}

func pick(candidates []domain.NormalizedEvent, borrow domain.NormalizedEvent, policy Policy) (domain.NormalizedEvent, bool) {
	if len(candidates) == 0 {
		return domain.NormalizedEvent{}, false
	}
	if policy != MatchCausal {
		return candidates[0], true
	}

	i := sort.Search(len(candidates), func(i int) bool {
		return !candidates[i].Timestamp.Before(borrow.Timestamp)
	})
	if i == len(candidates) {
		return domain.NormalizedEvent{}, false
	}
	return candidates[i], true
}

// Aggregate computes per-wallet repayment statistics from observations.
// StdHours is the sample standard deviation and is 0 below two observations.
func Aggregate(obs []domain.RepaymentObservation) map[string]domain.RepaymentStats {
	hours := make(map[string][]float64)
	borrowed := make(map[string]float64)
	for _, o := range obs {
		hours[o.Wallet] = append(hours[o.Wallet], o.RepaymentHours)
		borrowed[o.Wallet] += o.BorrowValueUSD
	}

	out := make(map[string]domain.RepaymentStats, len(hours))
	for wallet, hs := range hours {
		s := domain.RepaymentStats{
			MeanHours:     stat.Mean(hs, nil),
			TotalBorrowed: borrowed[wallet],
			Matched:       len(hs),
		}
		if len(hs) >= 2 {
			s.StdHours = stat.StdDev(hs, nil)
		}
		out[wallet] = s
	}
	return out
}

// Stats aggregates the result's observations and attaches unmatched counts.
func (r Result) Stats() map[string]domain.RepaymentStats {
	out := Aggregate(r.Observations)
	for wallet, n := range r.UnmatchedByWallet {
		s := out[wallet]
		s.Unmatched = n
		out[wallet] = s
	}
	return out
}

// Apply returns a copy of table with repayment columns filled from stats.
// Wallets absent from stats get zeros.
func Apply(table *domain.WalletTable, stats map[string]domain.RepaymentStats) *domain.WalletTable {
	return table.Map(func(rec *domain.WalletFeatures) {
		s := stats[rec.Wallet]
		rec.MeanRepaymentHours = s.MeanHours
		rec.RepaymentStdHours = s.StdHours
		rec.TotalBorrowed = s.TotalBorrowed
	})
}
