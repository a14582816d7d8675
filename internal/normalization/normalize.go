package normalization

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wallet-credit-lab/internal/domain"
)

// Defaults applied when a payload field is absent.
const (
	DefaultAmount        = 0.0
	DefaultAssetPriceUSD = 1.0
)

// Normalize converts raw events into normalized events, one per input,
// preserving order. A present but non-numeric or out-of-range amount or
// price, or a non-string asset symbol, fails the whole run with a *domain.InputError.
func Normalize(raw []domain.RawEvent) ([]domain.NormalizedEvent, error) {
	out := make([]domain.NormalizedEvent, len(raw))
	for i := range raw {
		ev, err := NormalizeEvent(i, raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// NormalizeEvent normalizes a single event at input position index.
func NormalizeEvent(index int, ev domain.RawEvent) (domain.NormalizedEvent, error) {
	amount, err := numberField(ev.Payload, domain.PayloadAmount, DefaultAmount)
	if err != nil {
		return domain.NormalizedEvent{}, fieldError(index, ev, domain.PayloadAmount, err)
	}
	price, err := numberField(ev.Payload, domain.PayloadAssetPriceUSD, DefaultAssetPriceUSD)
	if err != nil {
		return domain.NormalizedEvent{}, fieldError(index, ev, domain.PayloadAssetPriceUSD, err)
	}
	symbol, err := stringField(ev.Payload, domain.PayloadAssetSymbol, domain.UnknownAsset)
	if err != nil {
		return domain.NormalizedEvent{}, fieldError(index, ev, domain.PayloadAssetSymbol, err)
	}
	value := amount * price
	if !finite(value) {
		return domain.NormalizedEvent{}, fieldError(index, ev, domain.PayloadAmount,
			fmt.Errorf("value %v * %v overflows float64", amount, price))
	}

	return domain.NormalizedEvent{
		Index:         index,
		Wallet:        ev.Wallet,
		Action:        ev.Action,
		Timestamp:     time.Unix(ev.Timestamp, 0).UTC(),
		Amount:        amount,
		AssetPriceUSD: price,
		ValueUSD:      value,
		AssetSymbol:   symbol,
	}, nil
}

func fieldError(index int, ev domain.RawEvent, field string, err error) error {
	return &domain.InputError{Index: index, Wallet: ev.Wallet, Field: field, Err: err}
}

// numberField reads a numeric payload field. Absent and null fields yield def.
func numberField(payload map[string]any, key string, def float64) (float64, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return def, nil
	}

	switch n := v.(type) {
	case json.Number:
		return parseDecimal(string(n))
	case string:
		return parseDecimal(n)
	case float64:
		if !finite(n) {
			return 0, fmt.Errorf("non-finite number %v", n)
		}
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty numeric value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	f := d.InexactFloat64()
	if !finite(f) {
		return 0, fmt.Errorf("%q is outside the float64 range", s)
	}
	return f, nil
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// stringField reads a string payload field. Absent and null fields yield def.
func stringField(payload map[string]any, key, def string) (string, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}
