// Package scoring combines wallet features into a base score and rescales the
// population to integer credit scores.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"wallet-credit-lab/internal/domain"
)

// ErrNonFiniteScore is returned when a wallet's base score is NaN or infinite,
// e.g. after a negative amount drives the activity logarithm below zero.
// Min-max scaling is undefined for such a population, so the run fails.
var ErrNonFiniteScore = errors.New("non-finite base score")

// Score range and fallbacks.
const (
	MinScore = 0
	MaxScore = 1000

	// DefaultDegenerateScore is assigned to every wallet when all base scores
	// are equal, including a single-wallet population.
	DefaultDegenerateScore = 500

	// NeutralRepaymentScore applies when a wallet has no positive mean
	// repayment latency.
	NeutralRepaymentScore = 50

	AnomalyPenalty = -100
)

// Config controls rescaling.
type Config struct {
	DegenerateScore int
}

// DefaultConfig returns the default composer configuration.
func DefaultConfig() Config {
	return Config{DegenerateScore: DefaultDegenerateScore}
}

// Breakdown computes the additive score terms for one wallet.
func Breakdown(rec *domain.WalletFeatures) domain.ScoreBreakdown {
	b := domain.ScoreBreakdown{
		ActivityScore:      math.Log(1+float64(rec.TxCount)+rec.TotalValue/1e6) * 10,
		LongevityScore:     math.Min(float64(rec.AgeDays)*0.5, 100),
		RepaymentScore:     NeutralRepaymentScore,
		LiquidationPenalty: rec.Ratio(domain.ActionLiquidation) * -200,
		RiskPenalty:        (rec.Ratio(domain.ActionBorrow) * -50) * math.Log(1+rec.TotalBorrowed/1e4),
	}
	if rec.MeanRepaymentHours > 0 {
		b.RepaymentScore = 100 / (1 + math.Log(1+rec.MeanRepaymentHours))
	}
	if rec.Anomalous {
		b.AnomalyPenalty = AnomalyPenalty
	}
	b.BaseScore = b.ActivityScore + b.LongevityScore + b.RepaymentScore +
		b.LiquidationPenalty + b.RiskPenalty + b.AnomalyPenalty
	return b
}

// Outcome reports how a population was rescaled.
type Outcome struct {
	Min, Max   float64
	Degenerate bool
}

// Compose fills the score breakdown and credit score of every wallet.
// The input table is not modified.
func Compose(table *domain.WalletTable, cfg Config) (*domain.WalletTable, Outcome, error) {
	withBase := table.Map(func(rec *domain.WalletFeatures) {
		rec.Breakdown = Breakdown(rec)
	})

	base := make(map[string]float64, withBase.Len())
	for _, rec := range withBase.Records() {
		base[rec.Wallet] = rec.Breakdown.BaseScore
	}
	scores, outcome, err := Rescale(base, cfg)
	if err != nil {
		return nil, Outcome{}, err
	}

	return withBase.Map(func(rec *domain.WalletFeatures) {
		rec.CreditScore = scores[rec.Wallet]
	}), outcome, nil
}

// Rescale maps base scores linearly onto [MinScore, MaxScore]: the minimum
// goes to 0, the maximum to 1000. Values are rounded half to even and clamped.
// When every base score is equal each wallet gets cfg.DegenerateScore.
// A NaN or infinite base score fails with ErrNonFiniteScore naming the
// lexicographically first such wallet.
func Rescale(base map[string]float64, cfg Config) (map[string]int, Outcome, error) {
	out := make(map[string]int, len(base))
	if len(base) == 0 {
		return out, Outcome{}, nil
	}

	wallets := make([]string, 0, len(base))
	for w := range base {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	var o Outcome
	for i, w := range wallets {
		v := base[w]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, Outcome{}, fmt.Errorf("wallet %s: base score %v: %w", w, v, ErrNonFiniteScore)
		}
		if i == 0 {
			o.Min, o.Max = v, v
			continue
		}
		o.Min = math.Min(o.Min, v)
		o.Max = math.Max(o.Max, v)
	}

	span := o.Max - o.Min
	if span == 0 {
		o.Degenerate = true
		for _, w := range wallets {
			out[w] = clamp(cfg.DegenerateScore)
		}
		return out, o, nil
	}

	scale := (MaxScore - MinScore) / span
	if math.IsInf(scale, 0) {
		return nil, Outcome{}, fmt.Errorf("base score span %v: %w", span, ErrNonFiniteScore)
	}
	for _, w := range wallets {
		scaled := base[w]*scale - o.Min*scale + MinScore
		out[w] = clamp(int(math.RoundToEven(scaled)))
	}
	return out, o, nil
}

func clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
