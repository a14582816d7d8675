package idhash

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"

	"wallet-credit-lab/internal/domain"
)

// ComputeRunID derives a run identifier from the normalized input and the
// model parameters. Identical input and parameters yield the same id.
// Returns base58-encoded SHA256.
func ComputeRunID(events []domain.NormalizedEvent, params string) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "params|%s\n", params)
	for _, ev := range events {
		_, _ = fmt.Fprintf(h, "%d|%s|%s|%d|%s|%s|%s\n",
			ev.Index,
			ev.Wallet,
			ev.Action,
			ev.Timestamp.Unix(),
			strconv.FormatFloat(ev.Amount, 'g', -1, 64),
			strconv.FormatFloat(ev.AssetPriceUSD, 'g', -1, 64),
			ev.AssetSymbol,
		)
	}
	return base58.Encode(h.Sum(nil))
}
