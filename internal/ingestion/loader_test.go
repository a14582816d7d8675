package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage/memory"
)

func TestDecode(t *testing.T) {
	input := `[
	  {"userWallet": "0xa", "action": "deposit", "timestamp": 1629178166,
	   "actionData": {"amount": "2000000000", "assetPriceUSD": "0.0000005", "assetSymbol": "USDC"},
	   "txHash": "0xabc"},
	  {"userWallet": "0xb", "action": "LiquidationCall", "timestamp": 1629178200,
	   "actionData": "{\"amount\": 5}"},
	  {"userWallet": "0xc", "action": "flashloan", "timestamp": 1629178300, "actionData": null},
	  {"userWallet": "0xd", "action": "repay", "timestamp": 1629178400}
	]`

	events, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	first := events[0]
	if first.Wallet != "0xa" || first.Action != domain.ActionDeposit || first.Timestamp != 1629178166 || first.TxHash != "0xabc" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.Payload["amount"] != "2000000000" {
		t.Errorf("expected string amount to be kept verbatim, got %#v", first.Payload["amount"])
	}

	// String-encoded payloads decode like objects; numbers stay json.Number.
	if events[1].Action != domain.ActionLiquidation || events[1].RawAction != "LiquidationCall" {
		t.Errorf("unexpected action parse: %+v", events[1])
	}
	if events[1].Payload["amount"] != json.Number("5") {
		t.Errorf("expected json.Number(5), got %#v", events[1].Payload["amount"])
	}

	if events[2].Action != domain.ActionOther || events[2].Payload != nil {
		t.Errorf("expected other action with nil payload, got %+v", events[2])
	}
	if events[3].Payload != nil {
		t.Errorf("expected nil payload for absent actionData, got %#v", events[3].Payload)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		index int
		field string
	}{
		{"not an array", `{"userWallet": "0xa"}`, -1, ""},
		{"truncated", `[{"userWallet": "0xa"`, -1, ""},
		{"missing wallet", `[{"action": "deposit", "timestamp": 1}]`, 0, "userWallet"},
		{"missing timestamp", `[{"userWallet": "0xa", "action": "deposit"}]`, 0, "timestamp"},
		{"fractional timestamp", `[{"userWallet": "0xa", "timestamp": 1}, {"userWallet": "0xb", "timestamp": 1.5}]`, 1, "timestamp"},
		{"payload not a mapping", `[{"userWallet": "0xa", "timestamp": 1, "actionData": [1, 2]}]`, 0, "actionData"},
		{"payload string not json", `[{"userWallet": "0xa", "timestamp": 1, "actionData": "amount=5"}]`, 0, "actionData"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrInput) {
				t.Errorf("expected ErrInput, got %v", err)
			}
			var inputErr *domain.InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("expected *InputError, got %T", err)
			}
			if inputErr.Index != tt.index || inputErr.Field != tt.field {
				t.Errorf("expected index=%d field=%q, got index=%d field=%q", tt.index, tt.field, inputErr.Index, inputErr.Field)
			}
		})
	}
}

func TestDecodePayload_EmptyString(t *testing.T) {
	payload, err := DecodePayload(json.RawMessage(`"  "`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != nil {
		t.Errorf("expected nil payload, got %#v", payload)
	}
}

func TestDecodePayload_PythonDictString(t *testing.T) {
	raw := json.RawMessage(`"{'amount': '2_000', 'assetSymbol': 'USDC', 'assetPriceUSD': 1.5e0, 'note': 'it\\'s', 'stable': True, 'pool': None}"`)
	payload, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if payload["amount"] != "2_000" {
		t.Errorf("quoted amount should keep its text, got %#v", payload["amount"])
	}
	if payload["assetSymbol"] != "USDC" {
		t.Errorf("assetSymbol = %#v", payload["assetSymbol"])
	}
	if payload["assetPriceUSD"] != json.Number("1.5e0") {
		t.Errorf("assetPriceUSD = %#v", payload["assetPriceUSD"])
	}
	if payload["note"] != "it's" {
		t.Errorf("note = %#v", payload["note"])
	}
	if payload["stable"] != true {
		t.Errorf("stable = %#v", payload["stable"])
	}
	if v, ok := payload["pool"]; !ok || v != nil {
		t.Errorf("pool = %#v (present %v)", v, ok)
	}
}

func TestDecodePayload_PythonDictErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bare name", `"{'amount': amount}"`},
		{"unterminated string", `"{'amount': '10}"`},
		{"python literal in object form", `{'amount': '10'}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePayload(json.RawMessage(tt.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(`[{"userWallet": "0xa", "action": "borrow", "timestamp": 10}]`), 0644); err != nil {
		t.Fatal(err)
	}

	events, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Action != domain.ActionBorrow {
		t.Errorf("unexpected events: %+v", events)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput for missing file, got %v", err)
	}
}

func TestLoadStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	if err := store.InsertBulk(ctx, []domain.RawEvent{
		{Wallet: "0xb", Action: domain.ActionDeposit, RawAction: "deposit", Timestamp: 2},
		{Wallet: "0xa", Action: domain.ActionRepay, RawAction: "repay", Timestamp: 1},
	}); err != nil {
		t.Fatal(err)
	}

	events, err := LoadStore(ctx, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 || events[0].Wallet != "0xb" || events[1].Wallet != "0xa" {
		t.Errorf("expected insertion order, got %+v", events)
	}
}
