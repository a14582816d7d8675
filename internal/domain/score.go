package domain

// ScoreRun is the persisted output of one scoring run.
type ScoreRun struct {
	RunID     string         // deterministic run identifier
	CreatedAt int64          // Unix timestamp in milliseconds
	Scores    map[string]int // wallet -> credit score
}

// WalletScore is a single wallet's score from a run.
type WalletScore struct {
	RunID     string
	Wallet    string
	Score     int
	CreatedAt int64 // Unix timestamp in milliseconds
}
