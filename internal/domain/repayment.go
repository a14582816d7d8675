package domain

// RepaymentObservation pairs one borrow with its matched repay.
// Observations are consumed immediately by aggregation and never stored.
type RepaymentObservation struct {
	Wallet         string
	RepaymentHours float64 // repay time - borrow time; negative if the repay came first
	BorrowValueUSD float64
}

// RepaymentStats are per-wallet aggregates over matched borrows.
type RepaymentStats struct {
	MeanHours     float64 // 0 if no matched borrow
	StdHours      float64 // sample stddev, 0 if fewer than 2 observations
	TotalBorrowed float64 // USD value of matched borrows
	Matched       int
	Unmatched     int // borrows with no repay of the same asset
}
