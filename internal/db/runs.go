package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrRunNotFound is returned when no summary exists for a run ID
var ErrRunNotFound = errors.New("run not found")

// Querier is the subset of pgxpool.Pool used by the repository
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RunSummary is the persisted record of one pipeline run. It carries counts
// and categories only; holdings and identity data are never stored.
type RunSummary struct {
	RunID               uuid.UUID         `json:"run_id"`
	State               string            `json:"state"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	HoldingsCount       int               `json:"holdings_count"`
	SkippedRows         int               `json:"skipped_rows"`
	TotalValue          decimal.Decimal   `json:"total_value"`
	RiskCategory        string            `json:"risk_category,omitempty"`
	RiskScore           int               `json:"risk_score"`
	Sentiment           string            `json:"sentiment,omitempty"`
	StageStatus         map[string]string `json:"stage_status"`
	RecommendationCount int               `json:"recommendation_count"`
	StartedAt           time.Time         `json:"started_at"`
	CompletedAt         time.Time         `json:"completed_at"`
}

// Duration returns the wall time of the run
func (s RunSummary) Duration() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}

// RunRepository stores run summaries in the analysis_runs table
type RunRepository struct {
	db Querier
}

// NewRunRepository creates a repository over the given pool
func NewRunRepository(db Querier) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `run_id::text, state, failure_reason, holdings_count, skipped_rows,
		total_value::text, risk_category, risk_score, sentiment, stage_status,
		recommendation_count, started_at, completed_at`

// SaveRun inserts a run summary. Saving the same run twice is a no-op.
func (r *RunRepository) SaveRun(ctx context.Context, s RunSummary) error {
	status := s.StageStatus
	if status == nil {
		status = map[string]string{}
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal stage status: %w", err)
	}

	query := `
		INSERT INTO analysis_runs (
			run_id, state, failure_reason, holdings_count, skipped_rows,
			total_value, risk_category, risk_score, sentiment, stage_status,
			recommendation_count, started_at, completed_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (run_id) DO NOTHING
	`

	_, err = r.db.Exec(ctx, query,
		s.RunID.String(),
		s.State,
		s.FailureReason,
		s.HoldingsCount,
		s.SkippedRows,
		s.TotalValue.StringFixed(2),
		s.RiskCategory,
		s.RiskScore,
		s.Sentiment,
		statusJSON,
		s.RecommendationCount,
		s.StartedAt,
		s.CompletedAt,
		s.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run summary: %w", err)
	}
	return nil
}

// GetRun returns the summary for one run
func (r *RunRepository) GetRun(ctx context.Context, runID uuid.UUID) (*RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs WHERE run_id = $1`

	s, err := scanRun(r.db.QueryRow(ctx, query, runID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return s, nil
}

// RecentRuns returns the most recently started runs, newest first
func (r *RunRepository) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM analysis_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*RunSummary, error) {
	var (
		s          RunSummary
		runID      string
		totalValue string
		statusJSON []byte
	)
	err := row.Scan(
		&runID,
		&s.State,
		&s.FailureReason,
		&s.HoldingsCount,
		&s.SkippedRows,
		&totalValue,
		&s.RiskCategory,
		&s.RiskScore,
		&s.Sentiment,
		&statusJSON,
		&s.RecommendationCount,
		&s.StartedAt,
		&s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	if s.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
		return nil, fmt.Errorf("invalid total value %q: %w", totalValue, err)
	}
	s.StageStatus = map[string]string{}
	if len(statusJSON) > 0 {
		if err := json.Unmarshal(statusJSON, &s.StageStatus); err != nil {
			return nil, fmt.Errorf("invalid stage status: %w", err)
		}
	}
	return &s, nil
}
