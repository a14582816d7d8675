package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

// ScoreStore implements storage.ScoreStore using PostgreSQL.
type ScoreStore struct {
	pool *Pool
}

// NewScoreStore creates a new ScoreStore.
func NewScoreStore(pool *Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScoreStore = (*ScoreStore)(nil)

// InsertRun stores a run and all of its wallet scores in one transaction.
// Returns ErrDuplicateKey if run_id exists.
func (s *ScoreStore) InsertRun(ctx context.Context, run *domain.ScoreRun) (err error) {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_run", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO score_runs (run_id, created_at, wallet_count)
		VALUES ($1, $2, $3)
	`, run.RunID, run.CreatedAt, len(run.Scores))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert score run: %w", err)
	}

	wallets := make([]string, 0, len(run.Scores))
	for w := range run.Scores {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	rows := make([][]any, len(wallets))
	for i, w := range wallets {
		rows[i] = []any{run.RunID, w, run.Scores[w]}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"wallet_scores"},
		[]string{"run_id", "wallet", "score"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy wallet scores: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ScoreStore) GetByRun(ctx context.Context, runID string) (run *domain.ScoreRun, err error) {
	defer func(start time.Time) { observe("get_run", start, err) }(time.Now())

	run = &domain.ScoreRun{RunID: runID}
	err = s.pool.QueryRow(ctx, `
		SELECT created_at FROM score_runs WHERE run_id = $1
	`, runID).Scan(&run.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get score run: %w", err)
	}

	if run.Scores, err = s.loadScores(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRun retrieves the run with the greatest created_at.
// Ties go to the run inserted last.
func (s *ScoreStore) LatestRun(ctx context.Context) (run *domain.ScoreRun, err error) {
	defer func(start time.Time) { observe("latest_run", start, err) }(time.Now())

	run = &domain.ScoreRun{}
	err = s.pool.QueryRow(ctx, `
		SELECT run_id, created_at FROM score_runs
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`).Scan(&run.RunID, &run.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest run: %w", err)
	}

	if run.Scores, err = s.loadScores(ctx, run.RunID); err != nil {
		return nil, err
	}
	return run, nil
}

// GetLatest retrieves a wallet's score from the latest run that scored it.
func (s *ScoreStore) GetLatest(ctx context.Context, wallet string) (score *domain.WalletScore, err error) {
	defer func(start time.Time) { observe("get_latest_score", start, err) }(time.Now())

	score = &domain.WalletScore{Wallet: wallet}
	err = s.pool.QueryRow(ctx, `
		SELECT ws.run_id, ws.score, r.created_at
		FROM wallet_scores ws
		JOIN score_runs r ON r.run_id = ws.run_id
		WHERE ws.wallet = $1
		ORDER BY r.created_at DESC, r.seq DESC
		LIMIT 1
	`, wallet).Scan(&score.RunID, &score.Score, &score.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest score: %w", err)
	}
	return score, nil
}

func (s *ScoreStore) loadScores(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, score FROM wallet_scores WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query wallet scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int)
	for rows.Next() {
		var (
			wallet string
			score  int
		)
		if err := rows.Scan(&wallet, &score); err != nil {
			return nil, fmt.Errorf("scan wallet score: %w", err)
		}
		scores[wallet] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet scores: %w", err)
	}
	return scores, nil
}
