// Package verification checks that scoring runs are reproducible: stored runs
// are replayed from the event log and compared wallet by wallet.
package verification

import (
	"context"
	"math"
	"sort"

	"wallet-credit-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 feature comparisons.
const FloatTolerance = 1e-9

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single wallet.
type VerificationResult struct {
	Wallet        string            // verified wallet
	Match         bool              // true if all fields match
	Divergences   []FieldDivergence // list of divergent fields
	StoredScore   int               // score from stored run
	ReplayedScore int               // score from replayed run
}

// VerificationReport contains results for a run.
type VerificationReport struct {
	RunID            string               // stored run id
	ReplayedRunID    string               // run id derived by the replay
	TotalWallets     int                  // wallets in stored or replayed run
	MatchedWallets   int                  // wallets that matched exactly
	DivergentWallets int                  // wallets with divergences
	Results          []VerificationResult // individual results, ordered by wallet
}

// OK reports whether the replay reproduced the stored run.
func (r *VerificationReport) OK() bool {
	return r.DivergentWallets == 0 && r.RunID == r.ReplayedRunID
}

// Verifier replays stored runs.
type Verifier interface {
	// VerifyRun replays the stored run and compares every wallet.
	VerifyRun(ctx context.Context, runID string) (*VerificationReport, error)
}

// CompareScores compares stored and replayed score mappings wallet by wallet.
// Wallets present on only one side diverge on field "Present".
func CompareScores(stored, replayed map[string]int) []VerificationResult {
	wallets := make(map[string]struct{}, len(stored))
	for w := range stored {
		wallets[w] = struct{}{}
	}
	for w := range replayed {
		wallets[w] = struct{}{}
	}
	sorted := make([]string, 0, len(wallets))
	for w := range wallets {
		sorted = append(sorted, w)
	}
	sort.Strings(sorted)

	results := make([]VerificationResult, 0, len(sorted))
	for _, w := range sorted {
		s, inStored := stored[w]
		r, inReplayed := replayed[w]
		res := VerificationResult{Wallet: w, StoredScore: s, ReplayedScore: r}

		if inStored != inReplayed {
			res.Divergences = append(res.Divergences, FieldDivergence{
				Field:    "Present",
				Expected: inStored,
				Actual:   inReplayed,
			})
		} else if s != r {
			res.Divergences = append(res.Divergences, FieldDivergence{
				Field:    "CreditScore",
				Expected: s,
				Actual:   r,
			})
		}
		res.Match = len(res.Divergences) == 0
		results = append(results, res)
	}
	return results
}

// CompareWalletFeatures compares two feature records and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareWalletFeatures(stored, replayed *domain.WalletFeatures) []FieldDivergence {
	var divergences []FieldDivergence

	add := func(field string, expected, actual interface{}) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}
	floatField := func(field string, expected, actual float64) {
		if !floatEquals(expected, actual) {
			add(field, expected, actual)
		}
	}

	if stored.Wallet != replayed.Wallet {
		add("Wallet", stored.Wallet, replayed.Wallet)
	}
	if stored.TxCount != replayed.TxCount {
		add("TxCount", stored.TxCount, replayed.TxCount)
	}
	floatField("TotalValue", stored.TotalValue, replayed.TotalValue)
	if stored.AgeDays != replayed.AgeDays {
		add("AgeDays", stored.AgeDays, replayed.AgeDays)
	}
	floatField("TxFreq", stored.TxFreq, replayed.TxFreq)

	kinds := make(map[domain.ActionKind]struct{})
	for k := range stored.ActionRatios {
		kinds[k] = struct{}{}
	}
	for k := range replayed.ActionRatios {
		kinds[k] = struct{}{}
	}
	sortedKinds := make([]string, 0, len(kinds))
	for k := range kinds {
		sortedKinds = append(sortedKinds, string(k))
	}
	sort.Strings(sortedKinds)
	for _, k := range sortedKinds {
		kind := domain.ActionKind(k)
		floatField("Ratio."+k, stored.Ratio(kind), replayed.Ratio(kind))
	}

	floatField("MeanRepaymentHours", stored.MeanRepaymentHours, replayed.MeanRepaymentHours)
	floatField("RepaymentStdHours", stored.RepaymentStdHours, replayed.RepaymentStdHours)
	floatField("TotalBorrowed", stored.TotalBorrowed, replayed.TotalBorrowed)
	floatField("HourOfDay", stored.HourOfDay, replayed.HourOfDay)
	floatField("DayOfWeek", stored.DayOfWeek, replayed.DayOfWeek)

	if stored.Anomalous != replayed.Anomalous {
		add("Anomalous", stored.Anomalous, replayed.Anomalous)
	}
	floatField("BaseScore", stored.Breakdown.BaseScore, replayed.Breakdown.BaseScore)
	if stored.CreditScore != replayed.CreditScore {
		add("CreditScore", stored.CreditScore, replayed.CreditScore)
	}

	return divergences
}

// floatEquals compares two floats with tolerance.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= FloatTolerance
}
