package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"wallet-credit-lab/internal/observability"
)

// Output file names.
const (
	MarkdownFile  = "REPORT.md"
	WalletCSVFile = "wallet_scores.csv"
	BucketCSVFile = "score_buckets.csv"
	HistogramFile = "score_histogram.png"
)

// WriteAll writes the Markdown report, the CSV exports and the histogram PNG
// into dir. Every file is attempted; the returned error joins all failures.
func WriteAll(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		observability.RecordReport(err)
		return err
	}

	var errs []error
	write := func(name string, data []byte) {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
		}
	}

	write(MarkdownFile, []byte(RenderMarkdown(r)))
	write(WalletCSVFile, []byte(RenderCSV(r.Wallets)))
	write(BucketCSVFile, []byte(RenderBucketsCSV(r.Buckets)))

	var png bytes.Buffer
	if err := RenderHistogramPNG(&png, r.Buckets); err != nil {
		errs = append(errs, err)
	} else {
		write(HistogramFile, png.Bytes())
	}

	err := errors.Join(errs...)
	observability.RecordReport(err)
	return err
}
