package normalization

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wallet-credit-lab/internal/domain"
)

func TestNormalize_DefaultsForMissingFields(t *testing.T) {
	raw := []domain.RawEvent{
		{Wallet: "w1", Action: domain.ActionDeposit, Timestamp: 1629178166, Payload: nil},
		{Wallet: "w1", Action: domain.ActionBorrow, Timestamp: 1629178200, Payload: map[string]any{"amount": nil}},
	}

	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}

	for i, ev := range got {
		if ev.Amount != 0 {
			t.Errorf("event %d: expected amount 0, got %v", i, ev.Amount)
		}
		if ev.AssetPriceUSD != 1 {
			t.Errorf("event %d: expected price 1, got %v", i, ev.AssetPriceUSD)
		}
		if ev.ValueUSD != 0 {
			t.Errorf("event %d: expected value 0, got %v", i, ev.ValueUSD)
		}
		if ev.AssetSymbol != domain.UnknownAsset {
			t.Errorf("event %d: expected symbol %q, got %q", i, domain.UnknownAsset, ev.AssetSymbol)
		}
		if ev.Index != i {
			t.Errorf("event %d: expected index %d, got %d", i, i, ev.Index)
		}
	}
}

func TestNormalize_ParsesNumericForms(t *testing.T) {
	raw := []domain.RawEvent{
		{Wallet: "w1", Timestamp: 0, Payload: map[string]any{
			"amount":        json.Number("2000000000"),
			"assetPriceUSD": "0.5",
			"assetSymbol":   "USDC",
		}},
		{Wallet: "w2", Timestamp: 0, Payload: map[string]any{
			"amount":        "1e3",
			"assetPriceUSD": 2.0,
		}},
		{Wallet: "w3", Timestamp: 0, Payload: map[string]any{
			"amount":        int64(7),
			"assetPriceUSD": json.Number("3"),
		}},
	}

	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	tests := []struct {
		amount, price, value float64
		symbol               string
	}{
		{2e9, 0.5, 1e9, "USDC"},
		{1000, 2, 2000, domain.UnknownAsset},
		{7, 3, 21, domain.UnknownAsset},
	}
	for i, tt := range tests {
		if got[i].Amount != tt.amount || got[i].AssetPriceUSD != tt.price || got[i].ValueUSD != tt.value {
			t.Errorf("event %d: got amount=%v price=%v value=%v, want %v/%v/%v",
				i, got[i].Amount, got[i].AssetPriceUSD, got[i].ValueUSD, tt.amount, tt.price, tt.value)
		}
		if got[i].AssetSymbol != tt.symbol {
			t.Errorf("event %d: got symbol %q, want %q", i, got[i].AssetSymbol, tt.symbol)
		}
	}
}

func TestNormalize_TimestampIsUTC(t *testing.T) {
	raw := []domain.RawEvent{{Wallet: "w1", Timestamp: 1629178166}}

	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := time.Date(2021, 8, 17, 5, 29, 26, 0, time.UTC)
	if !got[0].Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, got[0].Timestamp)
	}
	if got[0].Timestamp.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", got[0].Timestamp.Location())
	}
}

func TestNormalize_InvalidNumbersFailRun(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		field   string
	}{
		{"non-numeric amount", map[string]any{"amount": "lots"}, domain.PayloadAmount},
		{"empty amount", map[string]any{"amount": ""}, domain.PayloadAmount},
		{"bool price", map[string]any{"assetPriceUSD": true}, domain.PayloadAssetPriceUSD},
		{"object amount", map[string]any{"amount": map[string]any{"v": 1}}, domain.PayloadAmount},
		{"numeric symbol", map[string]any{"assetSymbol": json.Number("5")}, domain.PayloadAssetSymbol},
		{"amount beyond float64", map[string]any{"amount": json.Number("1e400")}, domain.PayloadAmount},
		{"price beyond float64 as string", map[string]any{"assetPriceUSD": "-1e309"}, domain.PayloadAssetPriceUSD},
		{"value overflows", map[string]any{"amount": "1e200", "assetPriceUSD": "1e200"}, domain.PayloadAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []domain.RawEvent{
				{Wallet: "ok", Timestamp: 1},
				{Wallet: "bad", Timestamp: 2, Payload: tt.payload},
			}

			got, err := Normalize(raw)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got != nil {
				t.Error("expected no partial output on error")
			}
			if !errors.Is(err, domain.ErrInput) {
				t.Errorf("expected ErrInput, got %v", err)
			}

			var inputErr *domain.InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("expected *domain.InputError, got %T", err)
			}
			if inputErr.Index != 1 || inputErr.Wallet != "bad" || inputErr.Field != tt.field {
				t.Errorf("unexpected error location: %+v", inputErr)
			}
		})
	}
}

func TestNormalize_PreservesOrderAndLength(t *testing.T) {
	raw := []domain.RawEvent{
		{Wallet: "b", Action: domain.ActionRepay, Timestamp: 30},
		{Wallet: "a", Action: domain.ActionDeposit, Timestamp: 10},
		{Wallet: "b", Action: domain.ActionRepay, Timestamp: 30},
	}

	got, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(got) != len(raw) {
		t.Fatalf("expected %d events, got %d", len(raw), len(got))
	}
	for i := range raw {
		if got[i].Wallet != raw[i].Wallet || got[i].Action != raw[i].Action {
			t.Errorf("event %d out of order: got %s/%s", i, got[i].Wallet, got[i].Action)
		}
	}
}
