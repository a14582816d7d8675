package reporting

import "time"

// Histogram layout: ten equal-width buckets over [0, 1000].
const (
	BucketCount = 10
	BucketWidth = 100
)

// Risk band thresholds.
const (
	MediumRiskMin = 400
	LowRiskMin    = 800
)

// RiskBand classifies a credit score.
type RiskBand string

const (
	RiskHigh   RiskBand = "high"
	RiskMedium RiskBand = "medium"
	RiskLow    RiskBand = "low"
)

// Bands lists risk bands from riskiest to safest.
var Bands = []RiskBand{RiskHigh, RiskMedium, RiskLow}

// BandFor returns the risk band of a score.
func BandFor(score int) RiskBand {
	switch {
	case score < MediumRiskMin:
		return RiskHigh
	case score < LowRiskMin:
		return RiskMedium
	default:
		return RiskLow
	}
}

// BucketIndex returns the histogram bucket of a score.
// Score 1000 falls into the last bucket; out-of-range scores are clamped.
func BucketIndex(score int) int {
	i := score / BucketWidth
	if i < 0 {
		return 0
	}
	if i >= BucketCount {
		return BucketCount - 1
	}
	return i
}

// Report represents the score distribution report.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string

	// Summary
	Summary Summary

	// Distribution
	Buckets []BucketRow // BucketCount rows, ascending
	Bands   []BandRow   // high, medium, low

	// Data Quality
	DataQuality DataQualitySection

	// Per-wallet rows, sorted by wallet
	Wallets []WalletRow
}

// Summary contains population statistics.
type Summary struct {
	Wallets     int
	Events      int // 0 when unknown
	MeanScore   float64
	StdDevScore float64
	MedianScore float64
	MinScore    int
	MaxScore    int
	Anomalies   int
	Degenerate  bool
}

// BucketRow is one histogram bucket [Lower, Upper).
type BucketRow struct {
	Lower int
	Upper int // the last bucket includes Upper
	Count int
	Band  RiskBand
}

// Label renders the bucket range.
func (b BucketRow) Label() string {
	return itoa(b.Lower) + "-" + itoa(b.Upper)
}

// BandRow counts wallets per risk band.
type BandRow struct {
	Band  RiskBand
	Range string
	Count int
	Share float64 // fraction of wallets, 0 when empty
}

// DataQualitySection lists non-fatal input and model issues.
type DataQualitySection struct {
	NonEVMWallets     []string
	UnknownActions    map[string]int
	UnmatchedBorrows  int
	NegativeLatencies int
	ModelFitError     string
	Warnings          []string
}

// HasIssues reports whether any issue was recorded.
func (d DataQualitySection) HasIssues() bool {
	return len(d.NonEVMWallets) > 0 || len(d.UnknownActions) > 0 ||
		d.UnmatchedBorrows > 0 || d.NegativeLatencies > 0 ||
		d.ModelFitError != "" || len(d.Warnings) > 0
}

// WalletRow is one wallet's line in the CSV export.
type WalletRow struct {
	Wallet      string
	Score       int
	Band        RiskBand
	HasFeatures bool // false when only the score is known
	BaseScore   float64
	Anomalous   bool
	TxCount     int
	TotalValue  float64
}
