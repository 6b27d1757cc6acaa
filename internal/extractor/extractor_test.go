package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

const sampleStatement = `Consolidated Account Statement
Equity Holdings
ISIN          Company Name         Quantity    Market Value (Rs.)
INE002A01018  Reliance Industries  10          ₹ 25,000.50
INE040A01034  HDFC Bank            5           8,000
Total                                          33,000.50
Mutual Fund Folios
Scheme Name                 Units       NAV      Value
Axis Bluechip Fund          100.5       45.20    4,542.60
Parag Parikh Flexi Cap      12          60       -
Bonds
GOI 2030 7.26%    1,00,000
`

// fakeUnlocker simulates an encrypted document opened by a single password
type fakeUnlocker struct {
	encrypted bool
	password  string
	err       error
	attempts  []string
}

func (f *fakeUnlocker) Unlock(content []byte, password string) ([]byte, error) {
	f.attempts = append(f.attempts, password)
	if f.err != nil {
		return nil, f.err
	}
	if !f.encrypted || password == f.password {
		return content, nil
	}
	return nil, ErrWrongPassword
}

type fakeRows struct {
	rows [][]string
	err  error
}

func (f fakeRows) Rows([]byte) ([][]string, error) {
	return f.rows, f.err
}

var fakePDF = []byte("%PDF-1.7 not a real document")

func TestExtract_PlainTextStatement(t *testing.T) {
	e := New(RuleNone, WithUnlocker(&fakeUnlocker{}))

	p, err := e.Extract(context.Background(), Document{Content: []byte(sampleStatement)})
	require.NoError(t, err)

	require.Len(t, p.Holdings, 4)

	assert.Equal(t, portfolio.CategoryEquity, p.Holdings[0].Category)
	assert.Equal(t, "INE002A01018", p.Holdings[0].Identifier)
	assert.Equal(t, "Reliance Industries", p.Holdings[0].Name)
	assert.True(t, p.Holdings[0].Units.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "25000.5", p.Holdings[0].CurrentValue.String())

	assert.Equal(t, "INE040A01034", p.Holdings[1].Identifier)

	assert.Equal(t, portfolio.CategoryMutualFund, p.Holdings[2].Category)
	assert.Equal(t, "Axis Bluechip Fund", p.Holdings[2].Identifier)
	assert.Equal(t, "100.5", p.Holdings[2].Units.String())
	assert.Equal(t, "4542.6", p.Holdings[2].CurrentValue.String())

	assert.Equal(t, portfolio.CategoryDebt, p.Holdings[3].Category)
	assert.Equal(t, "GOI 2030 7.26%", p.Holdings[3].Identifier)
	assert.True(t, p.Holdings[3].CurrentValue.Equal(decimal.NewFromInt(100000)))

	assert.Equal(t, "137543.1", p.TotalValue.String())

	require.Equal(t, 1, p.SkippedRows)
	assert.Equal(t, 10, p.Skipped[0].Line)
	assert.Equal(t, SkipInvalidValue, p.Skipped[0].Reason)
}

func TestExtract_Passwords(t *testing.T) {
	rows := fakeRows{rows: [][]string{
		{"Equity"},
		{"ACME", "10", "600"},
	}}

	tests := []struct {
		name         string
		unlocker     *fakeUnlocker
		rule         PasswordRule
		doc          Document
		wantErr      error
		wantAttempts []string
	}{
		{
			name:         "protected without password or identity",
			unlocker:     &fakeUnlocker{encrypted: true, password: "ABCDE1234F"},
			rule:         RuleNone,
			doc:          Document{Content: fakePDF},
			wantErr:      ErrPasswordRequired,
			wantAttempts: []string{""},
		},
		{
			name:         "default password derived from identity",
			unlocker:     &fakeUnlocker{encrypted: true, password: "ABCDE1234F"},
			rule:         RulePAN,
			doc:          Document{Content: fakePDF, Identity: Identity{PAN: "abcde1234f"}},
			wantAttempts: []string{"ABCDE1234F"},
		},
		{
			name:         "wrong default falls through to empty password",
			unlocker:     &fakeUnlocker{encrypted: true, password: "other"},
			rule:         RulePANLower,
			doc:          Document{Content: fakePDF, Identity: Identity{PAN: "ABCDE1234F"}},
			wantErr:      ErrPasswordRequired,
			wantAttempts: []string{"abcde1234f", ""},
		},
		{
			name:         "supplied password is the only attempt",
			unlocker:     &fakeUnlocker{encrypted: true, password: "secret"},
			rule:         RulePAN,
			doc:          Document{Content: fakePDF, Password: "wrong", Identity: Identity{PAN: "ABCDE1234F"}},
			wantErr:      ErrPasswordRequired,
			wantAttempts: []string{"wrong"},
		},
		{
			name:         "supplied password opens",
			unlocker:     &fakeUnlocker{encrypted: true, password: "secret"},
			rule:         RuleNone,
			doc:          Document{Content: fakePDF, Password: "secret"},
			wantAttempts: []string{"secret"},
		},
		{
			name:         "unencrypted passes through",
			unlocker:     &fakeUnlocker{},
			rule:         RuleNone,
			doc:          Document{Content: fakePDF},
			wantAttempts: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.rule, WithUnlocker(tt.unlocker), WithPDFRowReader(rows))

			p, err := e.Extract(context.Background(), tt.doc)

			assert.Equal(t, tt.wantAttempts, tt.unlocker.attempts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, IsParseError(err), "password errors are not parse errors")
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			require.Len(t, p.Holdings, 1)
			assert.Equal(t, "ACME", p.Holdings[0].Identifier)
		})
	}
}

func TestExtract_DocumentErrors(t *testing.T) {
	t.Run("empty content", func(t *testing.T) {
		e := New(RuleNone, WithUnlocker(&fakeUnlocker{}))
		_, err := e.Extract(context.Background(), Document{Content: []byte("  \n")})

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, ReasonEmpty, pe.Reason)
	})

	t.Run("unlocker failure is unreadable", func(t *testing.T) {
		e := New(RuleNone, WithUnlocker(&fakeUnlocker{err: errors.New("xref table broken")}))
		_, err := e.Extract(context.Background(), Document{Content: fakePDF})

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, ReasonUnreadable, pe.Reason)
		assert.NotErrorIs(t, err, ErrPasswordRequired)
	})

	t.Run("row reader failure is unreadable", func(t *testing.T) {
		e := New(RuleNone,
			WithUnlocker(&fakeUnlocker{}),
			WithPDFRowReader(fakeRows{err: errors.New("bad stream")}))
		_, err := e.Extract(context.Background(), Document{Content: fakePDF})

		assert.True(t, IsParseError(err))
	})

	t.Run("decrypted document without holdings", func(t *testing.T) {
		e := New(RuleNone,
			WithUnlocker(&fakeUnlocker{}),
			WithPDFRowReader(fakeRows{rows: [][]string{{"Statement of account"}, {"Nothing to report"}}}))
		p, err := e.Extract(context.Background(), Document{Content: fakePDF})

		require.NoError(t, err)
		assert.True(t, p.IsEmpty())
		assert.True(t, p.TotalValue.IsZero())
		assert.Equal(t, 0, p.SkippedRows)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e := New(RuleNone, WithUnlocker(&fakeUnlocker{}))
		_, err := e.Extract(ctx, Document{Content: []byte(sampleStatement)})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseRows(t *testing.T) {
	t.Run("header category from header cells when title is unknown", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Holdings as on 31-Mar-2024"},
			{"ISIN", "Name of Equity Share", "Qty", "Value"},
			{"INE001", "Alpha Ltd", "3", "300"},
		})

		require.Len(t, p.Holdings, 1)
		assert.Equal(t, portfolio.CategoryEquity, p.Holdings[0].Category)
		assert.Equal(t, "Alpha Ltd", p.Holdings[0].Name)
	})

	t.Run("table under unrecognized title is other", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Gold"},
			{"ISIN", "Units", "Value"},
			{"IN0020160084", "2", "12,000"},
		})

		require.Len(t, p.Holdings, 1)
		assert.Equal(t, portfolio.CategoryOther, p.Holdings[0].Category)
	})

	t.Run("wrapped name cell continues the holding above", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Equity"},
			{"ISIN", "Company Name", "Quantity", "Market Value"},
			{"INE002A01018", "Reliance Industries", "10", "25,000"},
			{"Limited"},
			{"INE040A01034", "HDFC Bank", "5", "8,000"},
		})

		require.Len(t, p.Holdings, 2)
		assert.Equal(t, "Reliance Industries Limited", p.Holdings[0].Name)
		assert.Equal(t, "INE002A01018", p.Holdings[0].Identifier)
		assert.Equal(t, "HDFC Bank", p.Holdings[1].Name)
		assert.True(t, p.TotalValue.Equal(decimal.NewFromInt(33000)))
		assert.Equal(t, 0, p.SkippedRows)
	})

	t.Run("wrapped scheme name extends the identifier", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Scheme Name", "Units", "Value"},
			{"Axis Bluechip Fund", "10", "500"},
			{"Direct Growth"},
			{"Mirae Large Cap", "2", "100"},
		})

		require.Len(t, p.Holdings, 2)
		assert.Equal(t, "Axis Bluechip Fund Direct Growth", p.Holdings[0].Identifier)
		assert.Equal(t, "Mirae Large Cap", p.Holdings[1].Identifier)
	})

	t.Run("unknown title before a header starts a new table", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Equity"},
			{"ISIN", "Company Name", "Quantity", "Value"},
			{"INE001", "Alpha", "1", "100"},
			{"Gold"},
			{"ISIN", "Units", "Value"},
			{"IN0020160084", "2", "12,000"},
		})

		require.Len(t, p.Holdings, 2)
		assert.Equal(t, "Alpha", p.Holdings[0].Name)
		assert.Equal(t, portfolio.CategoryEquity, p.Holdings[0].Category)
		assert.Equal(t, portfolio.CategoryOther, p.Holdings[1].Category)
	})

	t.Run("headerless rows under unrecognized title are other", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Portfolio Summary"},
			{"SGB 2028", "5", "30,000"},
			{"Silver ETF", "abc"},
		})

		require.Len(t, p.Holdings, 1)
		assert.Equal(t, portfolio.CategoryOther, p.Holdings[0].Category)
		assert.Equal(t, "SGB 2028", p.Holdings[0].Identifier)
		assert.True(t, p.Holdings[0].Units.Equal(decimal.NewFromInt(5)))
		require.Equal(t, 1, p.SkippedRows)
		assert.Equal(t, 3, p.Skipped[0].Line)
	})

	t.Run("rows outside any table are ignored", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Statement Date", "01-04-2024"},
			{"Investor", "A. Person"},
		})

		assert.True(t, p.IsEmpty())
		assert.Equal(t, 0, p.SkippedRows)
	})

	t.Run("subtotals ignored and not counted", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Equity"},
			{"TotalEnergies", "1", "100"},
			{"Grand Total", "100"},
			{"Sub-Total:", "100"},
		})

		require.Len(t, p.Holdings, 1)
		assert.Equal(t, "TotalEnergies", p.Holdings[0].Identifier)
		assert.Equal(t, 0, p.SkippedRows)
	})

	t.Run("negative and short rows are skipped", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Debt"},
			{"ISIN", "Units", "Value"},
			{"BOND1", "1", "(250)"},
			{"BOND3", "1"},
			{"BOND4", "x", "10"},
		})

		assert.True(t, p.IsEmpty())
		require.Equal(t, 3, p.SkippedRows)
		assert.Equal(t, SkipNegativeValue, p.Skipped[0].Reason)
		assert.Equal(t, SkipMissingColumns, p.Skipped[1].Reason)
		assert.Equal(t, SkipInvalidUnits, p.Skipped[2].Reason)
	})

	t.Run("source order preserved", func(t *testing.T) {
		p := ParseRows([][]string{
			{"Equity"},
			{"ZED", "1", "10"},
			{"ALPHA", "1", "1000"},
		})

		require.Len(t, p.Holdings, 2)
		assert.Equal(t, "ZED", p.Holdings[0].Identifier)
		assert.Equal(t, "ALPHA", p.Holdings[1].Identifier)
	})
}

func TestClassifySection(t *testing.T) {
	tests := []struct {
		title string
		want  portfolio.Category
		found bool
	}{
		{"Equity Mutual Fund Holdings", portfolio.CategoryMutualFund, true},
		{"MF Folio Details", portfolio.CategoryMutualFund, true},
		{"Debt Scheme", portfolio.CategoryMutualFund, true},
		{"Corporate Bonds", portfolio.CategoryDebt, true},
		{"Government Securities", portfolio.CategoryDebt, true},
		{"NSDL Demat Account", portfolio.CategoryEquity, true},
		{"Equities", portfolio.CategoryEquity, true},
		{"Account Summary", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := classifySection(tt.title)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupCells(t *testing.T) {
	texts := []pdf.Text{
		{S: "600", X: 200, W: 15},
		{S: "INE", X: 10, W: 15},
		{S: "002", X: 25, W: 15},
		{S: "10", X: 120, W: 10},
	}

	assert.Equal(t, []string{"INE002", "10", "600"}, groupCells(texts, DefaultCellGap))
	assert.Nil(t, groupCells(nil, DefaultCellGap))
}

func TestTextRowReader(t *testing.T) {
	rows, err := TextRowReader{}.Rows([]byte("A\tB  C\n\n  single cell  \n"))
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"A", "B", "C"}, rows[0])
	assert.Nil(t, rows[1])
	assert.Equal(t, []string{"single cell"}, rows[2])
}
