package reporting

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/ingestion"
	"wallet-credit-lab/internal/pipeline"
	"wallet-credit-lab/internal/storage"
)

// Generator produces reports from score mappings or stored runs.
type Generator struct {
	scoreStore   storage.ScoreStore   // used by Generate
	featureStore storage.FeatureStore // optional
	now          func() time.Time     // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. Both stores may be nil when
// only FromScores and FromResult are used.
func NewGenerator(scoreStore storage.ScoreStore, featureStore storage.FeatureStore) *Generator {
	return &Generator{
		scoreStore:   scoreStore,
		featureStore: featureStore,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report for a stored run, or the latest run when runID is empty.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	if g.scoreStore == nil {
		return nil, fmt.Errorf("no score store configured")
	}

	var run *domain.ScoreRun
	var err error
	if runID == "" {
		run, err = g.scoreStore.LatestRun(ctx)
	} else {
		run, err = g.scoreStore.GetByRun(ctx, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %q: %w", runID, err)
	}

	var records []*domain.WalletFeatures
	if g.featureStore != nil {
		records, err = g.featureStore.GetByRun(ctx, run.RunID)
		if err != nil {
			return nil, fmt.Errorf("load features for run %s: %w", run.RunID, err)
		}
	}

	report := g.build(run.RunID, run.Scores, domain.NewWalletTable(records))
	return report, nil
}

// FromScores builds a report from a bare wallet -> score mapping.
func (g *Generator) FromScores(runID string, scores map[string]int) *Report {
	return g.build(runID, scores, nil)
}

// FromResult builds a report from a pipeline result. summary may be nil.
func (g *Generator) FromResult(res *pipeline.Result, summary *ingestion.Summary) *Report {
	r := g.build(res.Metadata.RunID, res.Scores, res.Table)
	r.Summary.Events = res.Metadata.Events
	r.Summary.Degenerate = res.Metadata.Degenerate

	r.DataQuality.UnmatchedBorrows = res.Metadata.UnmatchedBorrows
	r.DataQuality.NegativeLatencies = res.Metadata.NegativeLatencies
	r.DataQuality.ModelFitError = res.Metadata.ModelFitError
	if res.Metadata.Degenerate && res.Metadata.Wallets > 0 {
		r.DataQuality.Warnings = append(r.DataQuality.Warnings,
			fmt.Sprintf("all base scores equal (%.4f); every wallet received the fallback score", res.Metadata.MinBase))
	}
	if summary != nil {
		r.DataQuality.NonEVMWallets = summary.NonEVMWallets
		r.DataQuality.UnknownActions = summary.UnknownActions
	}
	return r
}

func (g *Generator) build(runID string, scores map[string]int, table *domain.WalletTable) *Report {
	wallets := make([]string, 0, len(scores))
	for w := range scores {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	r := &Report{
		GeneratedAt: g.now(),
		RunID:       runID,
		Buckets:     Histogram(scores),
		Bands:       BandCounts(scores),
		Wallets:     make([]WalletRow, 0, len(wallets)),
	}

	values := make([]float64, 0, len(wallets))
	for i, w := range wallets {
		score := scores[w]
		values = append(values, float64(score))
		if i == 0 || score < r.Summary.MinScore {
			r.Summary.MinScore = score
		}
		if i == 0 || score > r.Summary.MaxScore {
			r.Summary.MaxScore = score
		}

		row := WalletRow{Wallet: w, Score: score, Band: BandFor(score)}
		if table != nil {
			if rec := table.Get(w); rec != nil {
				row.HasFeatures = true
				row.BaseScore = rec.Breakdown.BaseScore
				row.Anomalous = rec.Anomalous
				row.TxCount = rec.TxCount
				row.TotalValue = rec.TotalValue
				if rec.Anomalous {
					r.Summary.Anomalies++
				}
			}
		}
		r.Wallets = append(r.Wallets, row)
	}

	r.Summary.Wallets = len(wallets)
	if len(values) > 0 {
		r.Summary.MeanScore = stat.Mean(values, nil)
		r.Summary.MedianScore = median(values)
	}
	if len(values) > 1 {
		r.Summary.StdDevScore = stat.StdDev(values, nil)
	}
	return r
}

// Histogram counts scores into BucketCount buckets of width BucketWidth.
func Histogram(scores map[string]int) []BucketRow {
	rows := make([]BucketRow, BucketCount)
	for i := range rows {
		rows[i] = BucketRow{
			Lower: i * BucketWidth,
			Upper: (i + 1) * BucketWidth,
			Band:  BandFor(i * BucketWidth),
		}
	}
	for _, s := range scores {
		rows[BucketIndex(s)].Count++
	}
	return rows
}

// BandCounts counts scores per risk band.
func BandCounts(scores map[string]int) []BandRow {
	rows := []BandRow{
		{Band: RiskHigh, Range: "0-" + itoa(MediumRiskMin-1)},
		{Band: RiskMedium, Range: itoa(MediumRiskMin) + "-" + itoa(LowRiskMin-1)},
		{Band: RiskLow, Range: itoa(LowRiskMin) + "-1000"},
	}
	for _, s := range scores {
		switch BandFor(s) {
		case RiskHigh:
			rows[0].Count++
		case RiskMedium:
			rows[1].Count++
		case RiskLow:
			rows[2].Count++
		}
	}
	if len(scores) > 0 {
		for i := range rows {
			rows[i].Share = float64(rows[i].Count) / float64(len(scores))
		}
	}
	return rows
}

// median of values; values is sorted in place.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
