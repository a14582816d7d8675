package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-credit-lab/internal/config"
	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/scoring"
)

// 2021-08-17 was a Tuesday.
var base = time.Date(2021, 8, 17, 0, 0, 0, 0, time.UTC)

func raw(wallet string, action domain.ActionKind, at time.Duration, amount float64, asset string) domain.RawEvent {
	return domain.RawEvent{
		Wallet:    wallet,
		Action:    action,
		RawAction: string(action),
		Timestamp: base.Add(at).Unix(),
		Payload: map[string]any{
			"amount":        amount,
			"assetPriceUSD": 1.0,
			"assetSymbol":   asset,
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newPipeline() *Pipeline {
	return New(config.DefaultScoring()).WithClock(fixedClock)
}

// mixedPopulation returns events for wallets with clearly different profiles.
func mixedPopulation() []domain.RawEvent {
	var events []domain.RawEvent
	// Long-lived steady depositor that repays quickly.
	for d := 0; d < 200; d += 10 {
		events = append(events, raw("0xsteady", domain.ActionDeposit, time.Duration(d)*24*time.Hour+10*time.Hour, 5000, "USDC"))
	}
	events = append(events,
		raw("0xsteady", domain.ActionBorrow, 24*time.Hour, 1000, "USDC"),
		raw("0xsteady", domain.ActionRepay, 26*time.Hour, 1000, "USDC"),
	)
	// Heavy borrower that got liquidated.
	events = append(events,
		raw("0xliquidated", domain.ActionDeposit, 0, 100, "WETH"),
		raw("0xliquidated", domain.ActionBorrow, time.Hour, 5000, "USDC"),
		raw("0xliquidated", domain.ActionLiquidation, 48*time.Hour, 40000, "USDC"),
	)
	// Single deposit, no history.
	events = append(events, raw("0xnew", domain.ActionDeposit, 5*time.Hour, 10, "DAI"))
	// Zero-value activity.
	events = append(events,
		raw("0xzero", domain.ActionDeposit, 3*time.Hour, 0, "DAI"),
		raw("0xzero", domain.ActionRedeem, 4*time.Hour, 0, "DAI"),
	)
	return events
}

func TestRun_KeySetMatchesInputWallets(t *testing.T) {
	events := mixedPopulation()

	res, err := newPipeline().Run(context.Background(), events)
	require.NoError(t, err)

	want := map[string]bool{}
	for _, ev := range events {
		want[ev.Wallet] = true
	}
	assert.Len(t, res.Scores, len(want))
	for w := range want {
		_, ok := res.Scores[w]
		assert.True(t, ok, "missing score for %s", w)
	}
	assert.Equal(t, len(events), res.Metadata.Events)
	assert.Equal(t, len(want), res.Metadata.Wallets)
}

func TestRun_ScoresInRangeWithMinAndMaxPinned(t *testing.T) {
	res, err := newPipeline().Run(context.Background(), mixedPopulation())
	require.NoError(t, err)
	require.False(t, res.Metadata.Degenerate)

	var minWallet, maxWallet string
	minBase, maxBase := math.Inf(1), math.Inf(-1)
	for _, rec := range res.Table.Records() {
		assert.GreaterOrEqual(t, rec.CreditScore, 0)
		assert.LessOrEqual(t, rec.CreditScore, 1000)
		if rec.Breakdown.BaseScore < minBase {
			minBase, minWallet = rec.Breakdown.BaseScore, rec.Wallet
		}
		if rec.Breakdown.BaseScore > maxBase {
			maxBase, maxWallet = rec.Breakdown.BaseScore, rec.Wallet
		}
	}

	assert.Equal(t, 0, res.Scores[minWallet])
	assert.Equal(t, 1000, res.Scores[maxWallet])
	assert.Equal(t, "0xliquidated", minWallet)
	assert.Equal(t, "0xsteady", maxWallet)
}

func TestRun_Idempotent(t *testing.T) {
	events := mixedPopulation()

	first, err := newPipeline().Run(context.Background(), events)
	require.NoError(t, err)

	cfg := config.DefaultScoring()
	cfg.Workers = 1
	second, err := New(cfg).WithClock(fixedClock).Run(context.Background(), events)
	require.NoError(t, err)

	a, err := MarshalScores(first.Scores)
	require.NoError(t, err)
	b, err := MarshalScores(second.Scores)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a, b), "outputs differ:\n%s\n%s", a, b)
	assert.Equal(t, first.Metadata.RunID, second.Metadata.RunID)
}

func TestRun_RunIDDependsOnParams(t *testing.T) {
	events := mixedPopulation()

	first, err := newPipeline().Run(context.Background(), events)
	require.NoError(t, err)

	cfg := config.DefaultScoring()
	cfg.Seed = 7
	second, err := New(cfg).Run(context.Background(), events)
	require.NoError(t, err)

	assert.NotEqual(t, first.Metadata.RunID, second.Metadata.RunID)
	assert.Equal(t, int64(7), second.Metadata.Params.Seed)
	assert.Equal(t, fixedClock(), first.Metadata.CreatedAt)
}

func TestRun_SingleWalletDepositThenBorrow(t *testing.T) {
	events := []domain.RawEvent{
		raw("W", domain.ActionDeposit, 0, 100, "USDC"),
		raw("W", domain.ActionBorrow, 2*time.Hour, 50, "USDC"),
	}

	res, err := newPipeline().Run(context.Background(), events)
	require.NoError(t, err)

	rec := res.Table.Get("W")
	require.NotNil(t, rec)
	assert.InDelta(t, 50.0/150.0, rec.Ratio(domain.ActionBorrow), 1e-12)
	assert.Equal(t, 0.0, rec.MeanRepaymentHours)
	assert.Equal(t, 50.0, rec.Breakdown.RepaymentScore)

	assert.Equal(t, map[string]int{"W": 500}, res.Scores)
	assert.True(t, res.Metadata.Degenerate)
	assert.Equal(t, 1, res.Metadata.UnmatchedBorrows)
	assert.NotEmpty(t, res.Metadata.ModelFitError, "a single wallet cannot fit the anomaly model")
}

func TestRun_ZeroBorrowWalletIsNeutral(t *testing.T) {
	res, err := newPipeline().Run(context.Background(), mixedPopulation())
	require.NoError(t, err)

	rec := res.Table.Get("0xnew")
	assert.Equal(t, 0.0, rec.MeanRepaymentHours)
	assert.Equal(t, 50.0, rec.Breakdown.RepaymentScore)
}

func TestRun_ZeroTotalValueHasZeroRatios(t *testing.T) {
	res, err := newPipeline().Run(context.Background(), mixedPopulation())
	require.NoError(t, err)

	rec := res.Table.Get("0xzero")
	assert.Equal(t, 0.0, rec.TotalValue)
	for _, kind := range domain.DefaultTrackedActions {
		r := rec.Ratio(kind)
		assert.False(t, math.IsNaN(r))
		assert.Equal(t, 0.0, r, "ratio for %s", kind)
	}
}

func TestRun_EarliestRepaySelected(t *testing.T) {
	events := []domain.RawEvent{
		raw("W", domain.ActionBorrow, 0, 100, "USDC"),
		raw("W", domain.ActionRepay, 10*time.Hour, 100, "USDC"),
		raw("W", domain.ActionRepay, 5*time.Hour, 100, "USDC"),
		raw("X", domain.ActionDeposit, 0, 1, "DAI"),
	}

	res, err := newPipeline().Run(context.Background(), events)
	require.NoError(t, err)

	assert.Equal(t, 5.0, res.Table.Get("W").MeanRepaymentHours)
	assert.Equal(t, 100.0, res.Table.Get("W").TotalBorrowed)
}

func TestRun_CausalMatchingSkipsEarlierRepay(t *testing.T) {
	events := []domain.RawEvent{
		raw("W", domain.ActionRepay, 0, 100, "USDC"),
		raw("W", domain.ActionBorrow, 2*time.Hour, 100, "USDC"),
		raw("W", domain.ActionRepay, 6*time.Hour, 100, "USDC"),
	}

	res, err := newPipeline().Run(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, -2.0, res.Table.Get("W").MeanRepaymentHours)
	assert.Equal(t, 1, res.Metadata.NegativeLatencies)

	cfg := config.DefaultScoring()
	cfg.CausalRepayMatching = true
	res, err = New(cfg).Run(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Table.Get("W").MeanRepaymentHours)
	assert.Equal(t, "causal", res.Metadata.Params.MatchPolicy)
}

// anomalyPopulation returns 19 wallets active mid-week during office hours
// and one wallet firing dozens of transactions in the small hours of a Sunday.
func anomalyPopulation() []domain.RawEvent {
	var events []domain.RawEvent
	for i := 0; i < 19; i++ {
		w := fmt.Sprintf("0xregular%02d", i)
		for j := 0; j < 4; j++ {
			at := time.Duration(j*(1+i%3))*24*time.Hour + time.Duration(10+(i+j)%3)*time.Hour
			events = append(events, raw(w, domain.ActionDeposit, at, float64(100+i), "USDC"))
		}
	}
	// base+5 days is a Sunday.
	sunday := 5 * 24 * time.Hour
	for j := 0; j < 60; j++ {
		at := sunday + time.Duration(1+j%4)*time.Hour + time.Duration(j)*time.Second
		events = append(events, raw("0xbot", domain.ActionDeposit, at, 1, "USDC"))
	}
	return events
}

func TestRun_FlagsSingleInjectedOutlier(t *testing.T) {
	res, err := newPipeline().Run(context.Background(), anomalyPopulation())
	require.NoError(t, err)

	assert.Empty(t, res.Metadata.ModelFitError)
	assert.Equal(t, 20, res.Metadata.Wallets)
	assert.Equal(t, 1, res.Metadata.Anomalies)
	assert.True(t, res.Table.Get("0xbot").Anomalous)
	assert.Equal(t, -100.0, res.Table.Get("0xbot").Breakdown.AnomalyPenalty)
}

func TestRun_ModelFitFailureIsAbsorbed(t *testing.T) {
	// Same timing and frequency, different values: no feature variance.
	events := []domain.RawEvent{
		raw("a", domain.ActionDeposit, 10*time.Hour, 100, "USDC"),
		raw("b", domain.ActionDeposit, 10*time.Hour, 5000, "USDC"),
	}

	res, err := newPipeline().Run(context.Background(), events)
	require.NoError(t, err)

	assert.NotEmpty(t, res.Metadata.ModelFitError)
	assert.Equal(t, 0, res.Metadata.Anomalies)
	assert.Len(t, res.Scores, 2)
	assert.Equal(t, 0, res.Scores["a"])
	assert.Equal(t, 1000, res.Scores["b"])
}

func TestRun_InputErrorIsFatal(t *testing.T) {
	events := mixedPopulation()
	events[3].Payload = map[string]any{"amount": "not-a-number"}

	res, err := newPipeline().Run(context.Background(), events)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, domain.ErrInput))

	var inputErr *domain.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, 3, inputErr.Index)
	assert.Equal(t, "amount", inputErr.Field)
}

func TestRun_NegativeAmountFailsInsteadOfFlatteningScores(t *testing.T) {
	events := append(mixedPopulation(), raw("0xneg", domain.ActionDeposit, 7*time.Hour, -5e6, "DAI"))

	res, err := newPipeline().Run(context.Background(), events)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, scoring.ErrNonFiniteScore)
	assert.Contains(t, err.Error(), "0xneg")
}

func TestRun_OutOfRangeAmountIsInputError(t *testing.T) {
	events := mixedPopulation()
	events[2].Payload = map[string]any{"amount": json.Number("1e400")}

	res, err := newPipeline().Run(context.Background(), events)
	require.Error(t, err)
	assert.Nil(t, res)

	var inputErr *domain.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, 2, inputErr.Index)
	assert.Equal(t, "amount", inputErr.Field)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := config.DefaultScoring()
	cfg.Trees = 0

	_, err := New(cfg).Run(context.Background(), mixedPopulation())
	assert.Error(t, err)
}

func TestRun_EmptyInput(t *testing.T) {
	res, err := newPipeline().Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
}

func TestScoreFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "events.json")
	output := filepath.Join(dir, "out", "scores.json")

	log := `[
  {"userWallet": "0xa", "action": "deposit", "timestamp": 1629178166,
   "actionData": {"amount": "100", "assetPriceUSD": "1", "assetSymbol": "USDC"}},
  {"userWallet": "0xb", "action": "borrow", "timestamp": 1629181766,
   "actionData": {"amount": "5", "assetPriceUSD": "1", "assetSymbol": "USDC"}}
]`
	require.NoError(t, os.WriteFile(input, []byte(log), 0644))

	res, err := newPipeline().ScoreFile(context.Background(), input, output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	want, err := MarshalScores(res.Scores)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))
}

func TestScoreFile_NoOutputOnInputError(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "events.json")
	output := filepath.Join(dir, "scores.json")

	log := `[{"userWallet": "0xa", "action": "deposit", "timestamp": 1,
	          "actionData": {"amount": true}}]`
	require.NoError(t, os.WriteFile(input, []byte(log), 0644))

	_, err := newPipeline().ScoreFile(context.Background(), input, output)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInput))

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "output must not exist after a failed run")
}
