package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders per-wallet rows as CSV string.
// Feature columns are empty for wallets without stored features.
func RenderCSV(rows []WalletRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("wallet,credit_score,risk_band,base_score,anomalous,tx_count,total_value_usd\n")

	// Rows
	for _, r := range rows {
		if !r.HasFeatures {
			sb.WriteString(fmt.Sprintf("%s,%d,%s,,,,\n", csvField(r.Wallet), r.Score, r.Band))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%.6f,%t,%d,%.6f\n",
			csvField(r.Wallet),
			r.Score,
			r.Band,
			r.BaseScore,
			r.Anomalous,
			r.TxCount,
			r.TotalValue,
		))
	}

	return sb.String()
}

// RenderBucketsCSV renders the histogram as CSV string.
func RenderBucketsCSV(buckets []BucketRow) string {
	var sb strings.Builder
	sb.WriteString("lower,upper,risk_band,wallets\n")
	for _, b := range buckets {
		sb.WriteString(fmt.Sprintf("%d,%d,%s,%d\n", b.Lower, b.Upper, b.Band, b.Count))
	}
	return sb.String()
}

// csvField quotes s if it contains a delimiter, quote or newline.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
