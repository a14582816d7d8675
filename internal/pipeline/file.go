package pipeline

import (
	"context"
	"fmt"

	"wallet-credit-lab/internal/ingestion"
	"wallet-credit-lab/internal/logging"
)

// ScoreFile loads the event log at inputPath, scores it and writes the score
// mapping to outputPath. Nothing is written unless the whole run succeeds.
func (p *Pipeline) ScoreFile(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	raw, err := ingestion.LoadFile(inputPath)
	if err != nil {
		return nil, err
	}
	logging.L(ctx).Info().Str("path", inputPath).Int("events", len(raw)).Msg("event log loaded")

	res, err := p.Run(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err := WriteScores(outputPath, res.Scores); err != nil {
		return nil, fmt.Errorf("write scores: %w", err)
	}
	return res, nil
}
