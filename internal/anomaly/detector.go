// Package anomaly flags wallets whose temporal activity pattern is an outlier
// in the population, using an isolation forest.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"wallet-credit-lab/internal/domain"
)

// ErrModelFit is returned when the forest cannot be fitted: fewer than two
// wallets, a feature matrix with no variance, or non-finite features.
// Callers treat it as "no wallet is anomalous".
var ErrModelFit = errors.New("anomaly model fit failed")

// FeatureColumns names the matrix columns, in order.
var FeatureColumns = []string{"tx_freq", "hour_of_day", "day_of_week"}

// Defaults. Changing any of these changes every wallet's score.
const (
	DefaultContamination = 0.05
	DefaultTrees         = 100
	DefaultMaxSamples    = 256
	DefaultSeed          = 42
)

// Config holds the forest parameters.
type Config struct {
	Contamination float64 // expected anomalous fraction, in (0, 0.5]
	Trees         int
	MaxSamples    int
	Seed          int64
	Workers       int // concurrent tree fitting; does not affect results
}

// DefaultConfig returns the reference model parameters.
func DefaultConfig() Config {
	return Config{
		Contamination: DefaultContamination,
		Trees:         DefaultTrees,
		MaxSamples:    DefaultMaxSamples,
		Seed:          DefaultSeed,
		Workers:       1,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %v", c.Contamination)
	}
	if c.Trees < 1 {
		return fmt.Errorf("trees must be >= 1, got %d", c.Trees)
	}
	if c.MaxSamples < 2 {
		return fmt.Errorf("max samples must be >= 2, got %d", c.MaxSamples)
	}
	return nil
}

// Result is the detector output.
type Result struct {
	Flags     map[string]bool
	Scores    map[string]float64 // anomaly score per wallet, higher is more anomalous
	Threshold float64            // wallets scoring above this are flagged
}

// Flagged returns the number of flagged wallets.
func (r Result) Flagged() int {
	n := 0
	for _, f := range r.Flags {
		if f {
			n++
		}
	}
	return n
}

// Matrix builds the feature matrix in the table's wallet order. NaN is
// treated as a missing value and replaced by 0.
func Matrix(table *domain.WalletTable) ([]string, [][]float64) {
	wallets := table.Wallets()
	rows := make([][]float64, len(wallets))
	for i, w := range wallets {
		rec := table.Get(w)
		rows[i] = []float64{
			fillMissing(rec.TxFreq),
			fillMissing(rec.HourOfDay),
			fillMissing(rec.DayOfWeek),
		}
	}
	return wallets, rows
}

func fillMissing(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Detect fits a forest over the table and flags outliers. A wallet is flagged
// when its negated score lies strictly below the Contamination percentile of
// all negated scores.
//
// On ErrModelFit the returned Result still has a false flag for every wallet.
func Detect(ctx context.Context, table *domain.WalletTable, cfg Config) (Result, error) {
	wallets, rows := Matrix(table)

	res := Result{
		Flags:  make(map[string]bool, len(wallets)),
		Scores: make(map[string]float64, len(wallets)),
	}
	for _, w := range wallets {
		res.Flags[w] = false
	}

	if err := cfg.Validate(); err != nil {
		return res, err
	}
	if err := checkMatrix(rows); err != nil {
		return res, err
	}

	forest, err := Fit(ctx, rows, cfg)
	if err != nil {
		return res, err
	}

	neg := make([]float64, len(rows))
	for i, row := range rows {
		s := forest.Score(row)
		res.Scores[wallets[i]] = s
		neg[i] = -s
	}

	offset := Percentile(neg, 100*cfg.Contamination)
	res.Threshold = -offset
	for i, w := range wallets {
		res.Flags[w] = neg[i] < offset
	}
	return res, nil
}

func checkMatrix(rows [][]float64) error {
	if len(rows) < 2 {
		return fmt.Errorf("%w: need at least 2 wallets, got %d", ErrModelFit, len(rows))
	}
	varies := false
	for i, row := range rows {
		for d, v := range row {
			if math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite %s in row %d", ErrModelFit, FeatureColumns[d], i)
			}
			if v != rows[0][d] {
				varies = true
			}
		}
	}
	if !varies {
		return fmt.Errorf("%w: feature matrix has no variance", ErrModelFit)
	}
	return nil
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

// Apply returns a copy of table with the anomaly flag set from flags.
func Apply(table *domain.WalletTable, flags map[string]bool) *domain.WalletTable {
	return table.Map(func(rec *domain.WalletFeatures) {
		rec.Anomalous = flags[rec.Wallet]
	})
}
