//nolint:goconst // Test files use repeated strings for clarity
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/finadvisor/internal/advisor"
	"github.com/ajitpratap0/finadvisor/internal/db"
	"github.com/ajitpratap0/finadvisor/internal/extractor"
	"github.com/ajitpratap0/finadvisor/internal/portfolio"
	"github.com/ajitpratap0/finadvisor/internal/risk"
	"github.com/ajitpratap0/finadvisor/internal/stage"
)

// Answers worth one point each: total 5, moderate
var moderateAnswers = []string{"45_60", "3_5_years", "up_to_10_pct", "1_3_years", "stable"}

type fakeExtractor struct {
	portfolio *portfolio.Portfolio
	err       error
}

func (f fakeExtractor) Extract(ctx context.Context, _ extractor.Document) (*portfolio.Portfolio, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.portfolio, nil
}

type fakeReasoner struct {
	response string
	err      error
}

func (f fakeReasoner) Reason(context.Context, string, string) (string, error) {
	return f.response, f.err
}

func (f fakeReasoner) Model() string { return "fake-model" }

type fakeAudit struct {
	mu   sync.Mutex
	runs []db.RunSummary
	err  error
}

func (f *fakeAudit) SaveRun(_ context.Context, s db.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, s)
	return f.err
}

func (f *fakeAudit) saved() []db.RunSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.RunSummary(nil), f.runs...)
}

func acmeBond() *portfolio.Portfolio {
	return portfolio.New([]portfolio.Holding{
		{Category: portfolio.CategoryEquity, Identifier: "ACME", Units: decimal.NewFromInt(6), CurrentValue: decimal.NewFromInt(600)},
		{Category: portfolio.CategoryDebt, Identifier: "BOND1", Units: decimal.NewFromInt(4), CurrentValue: decimal.NewFromInt(400)},
	}, nil)
}

func staticMarket(outlook portfolio.MarketOutlook) stage.External[portfolio.MarketOutlook] {
	return stage.Funcs[portfolio.MarketOutlook]{
		StageName:    StageMarket,
		FetchFunc:    func(context.Context) (portfolio.MarketOutlook, error) { return outlook, nil },
		FallbackFunc: portfolio.NeutralOutlook,
	}
}

func blockingMarket() stage.External[portfolio.MarketOutlook] {
	return stage.Funcs[portfolio.MarketOutlook]{
		StageName: StageMarket,
		FetchFunc: func(ctx context.Context) (portfolio.MarketOutlook, error) {
			<-ctx.Done()
			return portfolio.MarketOutlook{}, ctx.Err()
		},
		FallbackFunc: portfolio.NeutralOutlook,
	}
}

const advisorJSON = `{"recommendations":[{"goal":"Add a short-term debt fund","rationale":"Moderate profile","action":"Move 10% into debt"}]}`

func TestExecute_FromPortfolio(t *testing.T) {
	audit := &fakeAudit{}
	p := New(Config{}, Dependencies{
		Market:  staticMarket(portfolio.MarketOutlook{Sentiment: portfolio.SentimentBullish, Watch: []string{"IT"}}),
		Advisor: advisor.New(fakeReasoner{response: advisorJSON}),
		Audit:   audit,
	})

	run := p.NewRun()
	result, err := run.Execute(context.Background(), Request{Portfolio: acmeBond(), Answers: moderateAnswers})
	require.NoError(t, err)

	assert.Equal(t, StateComplete, run.State())
	assert.Equal(t, StateComplete, result.State)
	assert.Equal(t, run.ID(), result.RunID)

	assert.InDelta(t, 60.0, result.Allocation[portfolio.CategoryEquity], 0.001)
	assert.InDelta(t, 40.0, result.Allocation[portfolio.CategoryDebt], 0.001)
	assert.Equal(t, portfolio.RiskProfile{Category: portfolio.RiskModerate, Score: 5}, result.Risk)
	assert.Equal(t, portfolio.SentimentBullish, result.Outlook.Sentiment)

	require.NotEmpty(t, result.Recommendations)
	first := result.Recommendations[0]
	assert.Equal(t, portfolio.SourceAnalyzer, first.Source)
	assert.Contains(t, first.Goal, "equity")

	last := result.Recommendations[len(result.Recommendations)-1]
	assert.Equal(t, portfolio.SourceAdvisor, last.Source)
	assert.Equal(t, "Add a short-term debt fund", last.Goal)

	assert.Equal(t, map[string]stage.Status{
		StageAnalysis: stage.StatusSuccess,
		StageMarket:   stage.StatusSuccess,
		StageRisk:     stage.StatusSuccess,
		StageAdvisor:  stage.StatusSuccess,
	}, result.StageStatus)
	assert.Equal(t, []string{StageAnalysis, StageMarket, StageRisk, StageAdvisor}, result.CompletedStages)
	assert.Equal(t, 100.0, result.Progress)
	assert.False(t, result.Degraded())

	require.Len(t, result.TopHoldings, 2)
	assert.Equal(t, "ACME", result.TopHoldings[0].Identifier)

	saved := audit.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "complete", saved[0].State)
	assert.Equal(t, 2, saved[0].HoldingsCount)
	assert.Equal(t, "moderate", saved[0].RiskCategory)
	assert.Equal(t, run.ID(), saved[0].RunID.String())
}

func TestExecute_MarketTimeoutFallsBack(t *testing.T) {
	p := New(Config{
		MarketPolicy: stage.Policy{Timeout: 20 * time.Millisecond},
	}, Dependencies{
		Market:  blockingMarket(),
		Advisor: advisor.New(fakeReasoner{response: advisorJSON}),
	})

	run := p.NewRun()
	result, err := run.Execute(context.Background(), Request{Portfolio: acmeBond(), Answers: moderateAnswers})
	require.NoError(t, err)

	assert.Equal(t, StateComplete, result.State)
	assert.Equal(t, portfolio.SentimentNeutral, result.Outlook.Sentiment)
	assert.Empty(t, result.Outlook.Watch)
	assert.NotNil(t, result.Outlook.Watch)
	assert.Equal(t, stage.StatusFallback, result.StageStatus[StageMarket])
	assert.Contains(t, result.StageErrors[StageMarket], "deadline exceeded")
	assert.True(t, result.Degraded())
}

func TestExecute_AdvisorUnavailable(t *testing.T) {
	p := New(Config{}, Dependencies{
		Market:  staticMarket(portfolio.NeutralOutlook()),
		Advisor: advisor.New(fakeReasoner{err: errors.New("gateway down")}),
	})

	result, err := p.Execute(context.Background(), Request{Portfolio: acmeBond(), Answers: moderateAnswers})
	require.NoError(t, err)

	assert.Equal(t, stage.StatusFallback, result.StageStatus[StageAdvisor])
	var fallbacks int
	for _, rec := range result.Recommendations {
		if rec.Source == portfolio.SourceFallback {
			fallbacks++
		}
	}
	assert.Equal(t, 3, fallbacks)
}

func TestExecute_FromDocument(t *testing.T) {
	statement := "Equity Holdings\n" +
		"ISIN          Company Name    Quantity    Market Value\n" +
		"INE002A01018  Reliance        10          600\n" +
		"Bonds\n" +
		"GOI 2030 7.26%    400\n" +
		"Junk row    -\n"

	p := New(Config{}, Dependencies{
		Extractor: extractor.New(extractor.RuleNone),
		Market:    staticMarket(portfolio.NeutralOutlook()),
	})

	run := p.NewRun()
	result, err := run.Execute(context.Background(), Request{
		Document: &extractor.Document{Content: []byte(statement)},
		Answers:  moderateAnswers,
	})
	require.NoError(t, err)

	require.Len(t, result.Portfolio.Holdings, 2)
	assert.InDelta(t, 60.0, result.Allocation[portfolio.CategoryEquity], 0.001)
	assert.Equal(t, stage.StatusSuccess, result.StageStatus[StageExtraction])
	assert.Equal(t, stage.StatusFallback, result.StageStatus[StageAdvisor])
	assert.Equal(t, StageExtraction, result.CompletedStages[0])
	assert.Equal(t, 100.0, result.Progress)
}

func TestExecute_ExtractionFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{name: "password required", err: extractor.ErrPasswordRequired, reason: "password_required"},
		{name: "empty document", err: &extractor.ParseError{Reason: extractor.ReasonEmpty}, reason: "parse_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &fakeAudit{}
			p := New(Config{}, Dependencies{
				Extractor: fakeExtractor{err: tt.err},
				Audit:     audit,
			})

			run := p.NewRun()
			result, err := run.Execute(context.Background(), Request{
				Document: &extractor.Document{Content: []byte("x")},
				Answers:  moderateAnswers,
			})

			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrPipelineFailed)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, StateFailed, run.State())

			saved := audit.saved()
			require.Len(t, saved, 1)
			assert.Equal(t, "failed", saved[0].State)
			assert.Equal(t, tt.reason, saved[0].FailureReason)
			assert.Equal(t, "failed", saved[0].StageStatus[StageExtraction])
		})
	}
}

func TestExecute_EmptyPortfolioCompletes(t *testing.T) {
	p := New(Config{}, Dependencies{
		Extractor: fakeExtractor{portfolio: portfolio.New(nil, nil)},
	})

	result, err := p.Execute(context.Background(), Request{
		Document: &extractor.Document{Content: []byte("x")},
		Answers:  moderateAnswers,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Portfolio.Holdings)
	assert.Empty(t, result.TopHoldings)
	require.NotEmpty(t, result.Recommendations)
	assert.True(t, strings.HasPrefix(result.Recommendations[0].Goal, "No holdings found"))
}

func TestExecute_RunConsumed(t *testing.T) {
	run := New(Config{}, Dependencies{}).NewRun()
	req := Request{Portfolio: acmeBond(), Answers: moderateAnswers}

	_, err := run.Execute(context.Background(), req)
	require.NoError(t, err)

	_, err = run.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrRunConsumed)
}

func TestExecute_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "no input", req: Request{Answers: moderateAnswers}, want: ErrInvalidRequest},
		{
			name: "both inputs",
			req:  Request{Portfolio: acmeBond(), Document: &extractor.Document{}, Answers: moderateAnswers},
			want: ErrInvalidRequest,
		},
		{name: "missing answers", req: Request{Portfolio: acmeBond()}, want: risk.ErrInvalidInput},
		{
			name: "unknown choice",
			req:  Request{Portfolio: acmeBond(), Answers: []string{"45_60", "3_5_years", "all_in", "1_3_years", "stable"}},
			want: risk.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &fakeAudit{}
			run := New(Config{}, Dependencies{Audit: audit}).NewRun()

			result, err := run.Execute(context.Background(), tt.req)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateIdle, run.State())
			assert.Empty(t, audit.saved())
		})
	}
}

func TestExecute_CanceledDuringContextGathering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	market := stage.Funcs[portfolio.MarketOutlook]{
		StageName: StageMarket,
		FetchFunc: func(stageCtx context.Context) (portfolio.MarketOutlook, error) {
			cancel()
			<-stageCtx.Done()
			return portfolio.MarketOutlook{}, stageCtx.Err()
		},
		FallbackFunc: portfolio.NeutralOutlook,
	}

	audit := &fakeAudit{}
	p := New(Config{}, Dependencies{Market: market, Audit: audit})
	run := p.NewRun()

	result, err := run.Execute(ctx, Request{Portfolio: acmeBond(), Answers: moderateAnswers})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, run.State().Terminal())
	assert.Empty(t, audit.saved())
}

func TestExecute_RunTimeout(t *testing.T) {
	p := New(Config{RunTimeout: 30 * time.Millisecond}, Dependencies{Market: blockingMarket()})

	_, err := p.Execute(context.Background(), Request{Portfolio: acmeBond(), Answers: moderateAnswers})
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_AuditFailureIsBestEffort(t *testing.T) {
	audit := &fakeAudit{err: errors.New("db down")}
	p := New(Config{}, Dependencies{Audit: audit})

	result, err := p.Execute(context.Background(), Request{Portfolio: acmeBond(), Answers: moderateAnswers})
	require.NoError(t, err)
	assert.Equal(t, StateComplete, result.State)
	assert.Len(t, audit.saved(), 1)
}

func TestExecute_ConcurrentRunsAreIsolated(t *testing.T) {
	p := New(Config{}, Dependencies{Market: staticMarket(portfolio.NeutralOutlook())})

	const runs = 8
	results := make([]*Result, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Execute(context.Background(), Request{Portfolio: acmeBond(), Answers: moderateAnswers})
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for _, res := range results {
		require.NotNil(t, res)
		ids[res.RunID] = true
		assert.InDelta(t, 60.0, res.Allocation[portfolio.CategoryEquity], 0.001)
	}
	assert.Len(t, ids, runs)
}

func TestDescribe(t *testing.T) {
	p := New(Config{}, Dependencies{Advisor: advisor.New(fakeReasoner{})})

	stages := p.Describe()
	require.Len(t, stages, 5)
	assert.Equal(t, StageExtraction, stages[0].Name)
	assert.Equal(t, StageAdvisor, stages[4].Name)
	assert.Equal(t, "fake-model", stages[4].Model)
	assert.True(t, stages[2].External)
	assert.False(t, stages[3].External)
}

func TestFetchOutlook(t *testing.T) {
	p := New(Config{MarketPolicy: stage.Policy{Timeout: 10 * time.Millisecond}}, Dependencies{Market: blockingMarket()})

	out := p.FetchOutlook(context.Background())
	assert.Equal(t, stage.StatusFallback, out.Status)
	assert.Equal(t, portfolio.NeutralOutlook(), out.Value)
}
