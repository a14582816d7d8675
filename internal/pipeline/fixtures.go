package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

// fixtureStart is 2021-08-16 00:00:00 UTC, a Monday.
const fixtureStart = int64(1629072000)

// FixtureEvents returns a deterministic sample event log: regular borrowers
// that repay, depositors, one liquidated wallet and one burst trader.
func FixtureEvents() []domain.RawEvent {
	var events []domain.RawEvent
	add := func(wallet, action string, ts int64, amount, price string) {
		events = append(events, domain.RawEvent{
			Wallet:    wallet,
			Action:    domain.ParseAction(action),
			RawAction: action,
			Timestamp: ts,
			Payload: map[string]any{
				domain.PayloadAmount:        json.Number(amount),
				domain.PayloadAssetPriceUSD: json.Number(price),
				domain.PayloadAssetSymbol:   "USDC",
			},
		})
	}

	const hour, day = int64(3600), int64(86400)
	for i := 0; i < 16; i++ {
		wallet := fmt.Sprintf("0x%040x", i+1)
		base := fixtureStart + int64(i)*day + 9*hour
		add(wallet, "deposit", base, fmt.Sprint(1000+100*i), "1")
		add(wallet, "borrow", base+2*hour, fmt.Sprint(200+10*i), "1")
		add(wallet, "repay", base+int64(4+i%5)*hour, fmt.Sprint(200+10*i), "1")
		if i%3 == 0 {
			add(wallet, "redeemUnderlying", base+10*day, "500", "1")
		}
	}

	for i := 0; i < 4; i++ {
		wallet := fmt.Sprintf("0x%040x", 100+i)
		add(wallet, "deposit", fixtureStart+int64(i)*day+14*hour, fmt.Sprint(5000*(i+1)), "1")
	}

	liquidated := fmt.Sprintf("0x%040x", 200)
	add(liquidated, "deposit", fixtureStart+10*hour, "100", "1")
	add(liquidated, "borrow", fixtureStart+11*hour, "5000", "1")
	add(liquidated, "liquidationCall", fixtureStart+3*day, "40000", "1")

	burst := fmt.Sprintf("0x%040x", 300)
	for i := int64(0); i < 40; i++ {
		add(burst, "deposit", fixtureStart+5*day+3*hour+i*60, "10", "1")
	}

	return events
}

// LoadFixtures seeds an event store with FixtureEvents.
func LoadFixtures(ctx context.Context, store storage.EventStore) error {
	if err := store.InsertBulk(ctx, FixtureEvents()); err != nil {
		return fmt.Errorf("load fixture events: %w", err)
	}
	return nil
}
