package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runColumnNames = []string{
	"run_id", "state", "failure_reason", "holdings_count", "skipped_rows",
	"total_value", "risk_category", "risk_score", "sentiment", "stage_status",
	"recommendation_count", "started_at", "completed_at",
}

func sampleRun() RunSummary {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return RunSummary{
		RunID:               uuid.MustParse("7f1c1c3e-3c1e-4c59-9a53-0b0f2b1d9a11"),
		State:               "complete",
		HoldingsCount:       2,
		SkippedRows:         1,
		TotalValue:          decimal.RequireFromString("1000"),
		RiskCategory:        "moderate",
		RiskScore:           5,
		Sentiment:           "Neutral",
		StageStatus:         map[string]string{"market": "fallback", "advisor": "success"},
		RecommendationCount: 4,
		StartedAt:           started,
		CompletedAt:         started.Add(1500 * time.Millisecond),
	}
}

func TestSaveRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRunRepository(mock)
	run := sampleRun()

	mock.ExpectExec("INSERT INTO analysis_runs").
		WithArgs(
			run.RunID.String(), "complete", "", 2, 1, "1000.00", "moderate", 5, "Neutral",
			[]byte(`{"advisor":"success","market":"fallback"}`),
			4, run.StartedAt, run.CompletedAt, int64(1500),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunNilStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	run.StageStatus = nil
	run.State = "failed"
	run.FailureReason = "password_required"

	mock.ExpectExec("INSERT INTO analysis_runs").
		WithArgs(
			pgxmock.AnyArg(), "failed", "password_required", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			[]byte(`{}`),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewRunRepository(mock).SaveRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO analysis_runs").
		WillReturnError(errors.New("connection reset"))

	err = NewRunRepository(mock).SaveRun(context.Background(), sampleRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert run summary")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := sampleRun()
	rows := pgxmock.NewRows(runColumnNames).AddRow(
		run.RunID.String(), "complete", "", 2, 1, "1000.00", "moderate", 5, "Neutral",
		[]byte(`{"advisor":"success","market":"fallback"}`), 4, run.StartedAt, run.CompletedAt,
	)
	mock.ExpectQuery("SELECT (.+) FROM analysis_runs WHERE run_id").
		WithArgs(run.RunID.String()).
		WillReturnRows(rows)

	got, err := NewRunRepository(mock).GetRun(context.Background(), run.RunID)
	require.NoError(t, err)

	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, "complete", got.State)
	assert.True(t, decimal.RequireFromString("1000").Equal(got.TotalValue))
	assert.Equal(t, run.StageStatus, got.StageStatus)
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM analysis_runs WHERE run_id").
		WithArgs(id.String()).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewRunRepository(mock).GetRun(context.Background(), id)
	assert.ErrorIs(t, err, ErrRunNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	first := sampleRun()
	second := sampleRun()
	second.RunID = uuid.MustParse("0b8a3f47-5a3c-4f1d-8e69-3c2a4b5d6e7f")
	second.State = "failed"

	rows := pgxmock.NewRows(runColumnNames).
		AddRow(first.RunID.String(), "complete", "", 2, 1, "1000.00", "moderate", 5, "Neutral",
			[]byte(`{}`), 4, first.StartedAt, first.CompletedAt).
		AddRow(second.RunID.String(), "failed", "parse_error", 0, 0, "0.00", "", 0, "",
			[]byte(`{}`), 0, second.StartedAt, second.CompletedAt)

	mock.ExpectQuery("SELECT (.+) FROM analysis_runs ORDER BY started_at DESC").
		WithArgs(20).
		WillReturnRows(rows)

	runs, err := NewRunRepository(mock).RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.RunID, runs[0].RunID)
	assert.Equal(t, "parse_error", runs[1].FailureReason)
	assert.True(t, runs[1].TotalValue.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
