package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/storage"
)

// FeatureStore implements storage.FeatureStore using ClickHouse.
type FeatureStore struct {
	conn *Conn
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(conn *Conn) *FeatureStore {
	return &FeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

const featureColumns = `
	run_id, wallet, tx_count, total_value, age_days, tx_freq, action_ratios,
	mean_repayment_hours, repayment_std_hours, total_borrowed,
	hour_of_day, day_of_week, anomalous,
	activity_score, longevity_score, repayment_score,
	liquidation_penalty, risk_penalty, anomaly_penalty, base_score,
	credit_score
`

// InsertBulk adds records for a run. Fails entire batch on duplicate (run_id, wallet).
// MergeTree does not enforce uniqueness, so duplicates are checked before the insert.
func (s *FeatureStore) InsertBulk(ctx context.Context, runID string, records []*domain.WalletFeatures) (err error) {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_features", start, err) }(time.Now())

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Wallet == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[r.Wallet]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.Wallet] = struct{}{}
	}

	existing, err := s.walletsForRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("check existing: %w", err)
	}
	for w := range seen {
		if _, exists := existing[w]; exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO wallet_features ("+featureColumns+")")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		b := r.Breakdown
		err = batch.Append(
			runID, r.Wallet, uint32(r.TxCount), r.TotalValue, uint32(r.AgeDays), r.TxFreq, ratiosToMap(r.ActionRatios),
			r.MeanRepaymentHours, r.RepaymentStdHours, r.TotalBorrowed,
			r.HourOfDay, r.DayOfWeek, r.Anomalous,
			b.ActivityScore, b.LongevityScore, b.RepaymentScore,
			b.LiquidationPenalty, b.RiskPenalty, b.AnomalyPenalty, b.BaseScore,
			uint16(r.CreditScore),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRun retrieves records for a run, ordered by wallet ASC.
func (s *FeatureStore) GetByRun(ctx context.Context, runID string) (records []*domain.WalletFeatures, err error) {
	defer func(start time.Time) { observe("get_features", start, err) }(time.Now())

	rows, err := s.conn.Query(ctx, "SELECT "+featureColumns+`
		FROM wallet_features
		WHERE run_id = ?
		ORDER BY wallet ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query features by run: %w", err)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

func (s *FeatureStore) walletsForRun(ctx context.Context, runID string) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx, "SELECT wallet FROM wallet_features WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out[w] = struct{}{}
	}
	return out, rows.Err()
}

func scanFeatures(rows driver.Rows) ([]*domain.WalletFeatures, error) {
	var result []*domain.WalletFeatures
	for rows.Next() {
		var (
			runID       string
			r           domain.WalletFeatures
			txCount     uint32
			ageDays     uint32
			ratios      map[string]float64
			creditScore uint16
		)
		b := &r.Breakdown
		if err := rows.Scan(
			&runID, &r.Wallet, &txCount, &r.TotalValue, &ageDays, &r.TxFreq, &ratios,
			&r.MeanRepaymentHours, &r.RepaymentStdHours, &r.TotalBorrowed,
			&r.HourOfDay, &r.DayOfWeek, &r.Anomalous,
			&b.ActivityScore, &b.LongevityScore, &b.RepaymentScore,
			&b.LiquidationPenalty, &b.RiskPenalty, &b.AnomalyPenalty, &b.BaseScore,
			&creditScore,
		); err != nil {
			return nil, fmt.Errorf("scan feature record: %w", err)
		}
		r.TxCount = int(txCount)
		r.AgeDays = int(ageDays)
		r.ActionRatios = mapToRatios(ratios)
		r.CreditScore = int(creditScore)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature records: %w", err)
	}
	return result, nil
}

func ratiosToMap(ratios map[domain.ActionKind]float64) map[string]float64 {
	out := make(map[string]float64, len(ratios))
	for k, v := range ratios {
		out[string(k)] = v
	}
	return out
}

func mapToRatios(m map[string]float64) map[domain.ActionKind]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[domain.ActionKind]float64, len(m))
	for k, v := range m {
		out[domain.ActionKind(k)] = v
	}
	return out
}
