package verification

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/pipeline"
)

// DeterminismReport is the outcome of scoring the same input repeatedly.
type DeterminismReport struct {
	Runs      int
	RunID     string
	Digest    string // SHA256 of the first run's serialized output
	Identical bool

	// FirstDivergence is the first run whose output differs from run 0, or -1.
	FirstDivergence int
	Results         []VerificationResult // wallet diff against run 0 when not identical
}

// CheckDeterminism runs the pipeline runs times over raw and compares the
// serialized score mappings byte for byte.
func CheckDeterminism(ctx context.Context, p *pipeline.Pipeline, raw []domain.RawEvent, runs int) (*DeterminismReport, error) {
	if runs < 2 {
		return nil, fmt.Errorf("determinism check needs at least 2 runs, got %d", runs)
	}

	report := &DeterminismReport{Runs: runs, Identical: true, FirstDivergence: -1}

	var first *pipeline.Result
	var firstBytes []byte
	for i := 0; i < runs; i++ {
		res, err := p.Run(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
		out, err := pipeline.MarshalScores(res.Scores)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			first, firstBytes = res, out
			sum := sha256.Sum256(out)
			report.Digest = hex.EncodeToString(sum[:])
			report.RunID = res.Metadata.RunID
			continue
		}

		if !bytes.Equal(firstBytes, out) || res.Metadata.RunID != first.Metadata.RunID {
			report.Identical = false
			report.FirstDivergence = i
			report.Results = CompareScores(first.Scores, res.Scores)
			break
		}
	}
	return report, nil
}
