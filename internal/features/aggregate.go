// Package features turns normalized events into per-wallet behavioral features.
package features

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"wallet-credit-lab/internal/domain"
)

// Options configures aggregation.
type Options struct {
	// TrackedActions lists the action kinds that get a value-ratio feature.
	// Defaults to domain.DefaultTrackedActions.
	TrackedActions []domain.ActionKind

	// Workers bounds concurrent per-wallet aggregation. Defaults to 1.
	Workers int
}

const day = 24 * time.Hour

// Aggregate groups events by wallet and computes one feature record per wallet.
// Repayment, anomaly and score columns are left zero for later stages.
// Output is independent of Workers: each wallet's record is written to its own
// slot and the table is keyed by wallet id.
func Aggregate(ctx context.Context, events []domain.NormalizedEvent, opts Options) (*domain.WalletTable, error) {
	tracked := opts.TrackedActions
	if len(tracked) == 0 {
		tracked = domain.DefaultTrackedActions
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	groups := GroupByWallet(events)
	wallets := make([]string, 0, len(groups))
	for w := range groups {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	records := make([]*domain.WalletFeatures, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, wallet := range wallets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = aggregateWallet(wallet, groups[wallet], tracked)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return domain.NewWalletTable(records), nil
}

// GroupByWallet partitions events by wallet, keeping input order within a wallet.
func GroupByWallet(events []domain.NormalizedEvent) map[string][]domain.NormalizedEvent {
	groups := make(map[string][]domain.NormalizedEvent)
	for _, ev := range events {
		groups[ev.Wallet] = append(groups[ev.Wallet], ev)
	}
	return groups
}

// aggregateWallet computes features for one wallet. events must be non-empty.
func aggregateWallet(wallet string, events []domain.NormalizedEvent, tracked []domain.ActionKind) *domain.WalletFeatures {
	rec := &domain.WalletFeatures{
		Wallet:       wallet,
		TxCount:      len(events),
		ActionRatios: make(map[domain.ActionKind]float64, len(tracked)),
	}

	first, last := events[0].Timestamp, events[0].Timestamp
	valueByAction := make(map[domain.ActionKind]float64)
	hours := make([]float64, len(events))
	weekdays := make([]float64, len(events))

	for i, ev := range events {
		rec.TotalValue += ev.ValueUSD
		valueByAction[ev.Action] += ev.ValueUSD

		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}

		hours[i] = float64(ev.Timestamp.Hour())
		weekdays[i] = float64(MondayFirstWeekday(ev.Timestamp))
	}

	rec.AgeDays = int(last.Sub(first) / day)
	rec.TxFreq = float64(rec.TxCount) / float64(rec.AgeDays+1)

	for _, kind := range tracked {
		rec.ActionRatios[kind] = Ratio(valueByAction[kind], rec.TotalValue)
	}

	rec.HourOfDay = stat.Mean(hours, nil)
	rec.DayOfWeek = stat.Mean(weekdays, nil)

	return rec
}

// Ratio returns part/total, or 0 when total is 0.
func Ratio(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return part / total
}

// MondayFirstWeekday returns the day of week with Monday=0 .. Sunday=6.
func MondayFirstWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
