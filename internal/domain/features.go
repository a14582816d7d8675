package domain

import "sort"

// ScoreBreakdown holds the additive terms of a wallet's base score.
type ScoreBreakdown struct {
	ActivityScore      float64
	LongevityScore     float64
	RepaymentScore     float64
	LiquidationPenalty float64
	RiskPenalty        float64
	AnomalyPenalty     float64
	BaseScore          float64 // sum of the six terms above
}

// WalletFeatures is the per-wallet feature record.
// Each pipeline stage returns a copy with its own columns filled in.
type WalletFeatures struct {
	Wallet     string
	TxCount    int
	TotalValue float64 // USD
	AgeDays    int     // whole days between first and last event
	TxFreq     float64 // TxCount / (AgeDays + 1)

	// ActionRatios holds value_usd(kind) / TotalValue per tracked action kind.
	ActionRatios map[ActionKind]float64

	MeanRepaymentHours float64
	RepaymentStdHours  float64
	TotalBorrowed      float64 // USD value of borrows that found a repay

	HourOfDay float64 // mean hour 0-23
	DayOfWeek float64 // mean weekday, Monday=0 .. Sunday=6

	Anomalous   bool
	Breakdown   ScoreBreakdown
	CreditScore int
}

// Ratio returns the value ratio for kind, 0 if untracked or absent.
func (w *WalletFeatures) Ratio(kind ActionKind) float64 {
	return w.ActionRatios[kind]
}

// Clone returns a deep copy.
func (w *WalletFeatures) Clone() *WalletFeatures {
	c := *w
	if w.ActionRatios != nil {
		c.ActionRatios = make(map[ActionKind]float64, len(w.ActionRatios))
		for k, v := range w.ActionRatios {
			c.ActionRatios[k] = v
		}
	}
	return &c
}

// WalletTable is an arena of feature records indexed by wallet id.
// Iteration order is the sorted wallet id order.
type WalletTable struct {
	wallets []string
	records map[string]*WalletFeatures
}

// NewWalletTable builds a table from records. Later duplicates replace earlier ones.
func NewWalletTable(records []*WalletFeatures) *WalletTable {
	t := &WalletTable{records: make(map[string]*WalletFeatures, len(records))}
	for _, r := range records {
		if _, exists := t.records[r.Wallet]; !exists {
			t.wallets = append(t.wallets, r.Wallet)
		}
		t.records[r.Wallet] = r
	}
	sort.Strings(t.wallets)
	return t
}

// Len returns the number of wallets.
func (t *WalletTable) Len() int {
	return len(t.wallets)
}

// Wallets returns wallet ids in sorted order.
func (t *WalletTable) Wallets() []string {
	out := make([]string, len(t.wallets))
	copy(out, t.wallets)
	return out
}

// Get returns the record for wallet, or nil.
func (t *WalletTable) Get(wallet string) *WalletFeatures {
	return t.records[wallet]
}

// Records returns records in sorted wallet order.
func (t *WalletTable) Records() []*WalletFeatures {
	out := make([]*WalletFeatures, len(t.wallets))
	for i, w := range t.wallets {
		out[i] = t.records[w]
	}
	return out
}

// Map returns a new table with fn applied to a clone of every record.
// The receiver is left untouched.
func (t *WalletTable) Map(fn func(*WalletFeatures)) *WalletTable {
	out := &WalletTable{
		wallets: t.Wallets(),
		records: make(map[string]*WalletFeatures, len(t.records)),
	}
	for _, w := range t.wallets {
		c := t.records[w].Clone()
		fn(c)
		out.records[w] = c
	}
	return out
}

// Scores returns the wallet -> credit score mapping.
func (t *WalletTable) Scores() map[string]int {
	out := make(map[string]int, len(t.wallets))
	for _, w := range t.wallets {
		out[w] = t.records[w].CreditScore
	}
	return out
}
