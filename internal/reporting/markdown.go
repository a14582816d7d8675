package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Wallet Credit Score Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Wallets | %d |\n", r.Summary.Wallets))
	if r.Summary.Events > 0 {
		sb.WriteString(fmt.Sprintf("| Events | %d |\n", r.Summary.Events))
	}
	sb.WriteString(fmt.Sprintf("| Mean Score | %.2f |\n", r.Summary.MeanScore))
	sb.WriteString(fmt.Sprintf("| Median Score | %.2f |\n", r.Summary.MedianScore))
	sb.WriteString(fmt.Sprintf("| Std Dev | %.2f |\n", r.Summary.StdDevScore))
	sb.WriteString(fmt.Sprintf("| Min Score | %d |\n", r.Summary.MinScore))
	sb.WriteString(fmt.Sprintf("| Max Score | %d |\n", r.Summary.MaxScore))
	sb.WriteString(fmt.Sprintf("| Anomalous Wallets | %d |\n", r.Summary.Anomalies))
	if r.Summary.Degenerate {
		sb.WriteString("| Degenerate Scaling | yes |\n")
	}
	sb.WriteString("\n")

	// Risk Bands
	sb.WriteString("## Risk Bands\n\n")
	sb.WriteString("| Band | Range | Wallets | Share |\n")
	sb.WriteString("|------|-------|---------|-------|\n")
	for _, b := range r.Bands {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.1f%% |\n", b.Band, b.Range, b.Count, b.Share*100))
	}
	sb.WriteString("\n")

	// Distribution
	sb.WriteString("## Score Distribution\n\n")
	sb.WriteString("| Bucket | Band | Wallets |\n")
	sb.WriteString("|--------|------|---------|\n")
	for _, b := range r.Buckets {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", b.Label(), b.Band, b.Count))
	}
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	dq := r.DataQuality
	if !dq.HasIssues() {
		sb.WriteString("No data quality issues recorded.\n\n")
		return sb.String()
	}

	if dq.UnmatchedBorrows > 0 {
		sb.WriteString(fmt.Sprintf("- Borrows without a matching repay: %d\n", dq.UnmatchedBorrows))
	}
	if dq.NegativeLatencies > 0 {
		sb.WriteString(fmt.Sprintf("- Borrows matched to an earlier repay (negative latency): %d\n", dq.NegativeLatencies))
	}
	if dq.ModelFitError != "" {
		sb.WriteString(fmt.Sprintf("- Anomaly model not fitted, no wallet flagged: %s\n", dq.ModelFitError))
	}
	for _, w := range dq.Warnings {
		sb.WriteString(fmt.Sprintf("- %s\n", w))
	}
	sb.WriteString("\n")

	if len(dq.UnknownActions) > 0 {
		sb.WriteString("### Untracked Actions\n\n")
		sb.WriteString("| Action | Events |\n")
		sb.WriteString("|--------|--------|\n")
		actions := make([]string, 0, len(dq.UnknownActions))
		for a := range dq.UnknownActions {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", a, dq.UnknownActions[a]))
		}
		sb.WriteString("\n")
	}

	if len(dq.NonEVMWallets) > 0 {
		sb.WriteString(fmt.Sprintf("### Non-EVM Wallet IDs (%d)\n\n", len(dq.NonEVMWallets)))
		for _, w := range dq.NonEVMWallets {
			sb.WriteString(fmt.Sprintf("- `%s`\n", w))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
