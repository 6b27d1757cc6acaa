// Package extractor turns a holdings statement into a portfolio: it decrypts
// the document when needed, reads its text rows, classifies each table into a
// holding category and normalizes table rows into holdings.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/finadvisor/internal/config"
	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// Row-level skip reasons
const (
	SkipInvalidValue   = "invalid value"
	SkipNegativeValue  = "negative value"
	SkipInvalidUnits   = "invalid units"
	SkipMissingColumns = "missing columns"
	SkipMissingID      = "missing identifier"
)

var pdfMagic = []byte("%PDF-")

// Document is a statement submitted for extraction. It is owned by the
// extractor for the duration of one call and never persisted.
type Document struct {
	Content  []byte
	Password string
	Identity Identity
}

// Extractor parses statements into portfolios. It holds no per-call state and
// is safe for concurrent use.
type Extractor struct {
	rule     PasswordRule
	unlocker Unlocker
	pdfRows  RowReader
	textRows RowReader
	logger   zerolog.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithUnlocker replaces the pdfcpu unlocker
func WithUnlocker(u Unlocker) Option {
	return func(e *Extractor) { e.unlocker = u }
}

// WithPDFRowReader replaces the PDF text reader
func WithPDFRowReader(r RowReader) Option {
	return func(e *Extractor) { e.pdfRows = r }
}

// WithTextRowReader replaces the plain-text reader
func WithTextRowReader(r RowReader) Option {
	return func(e *Extractor) { e.textRows = r }
}

// New creates an extractor using rule for the default password attempt
func New(rule PasswordRule, opts ...Option) *Extractor {
	e := &Extractor{
		rule:     rule,
		textRows: TextRowReader{},
		logger:   config.NewLogger("extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.unlocker == nil {
		e.unlocker = NewPDFUnlocker()
	}
	if e.pdfRows == nil {
		e.pdfRows = PDFRowReader{}
	}
	return e
}

// Extract decrypts and parses doc. It returns ErrPasswordRequired when no
// credential opens the document and a *ParseError when the document is empty
// or unreadable. A readable document without recognized holdings yields an
// empty portfolio and no error.
func (e *Extractor) Extract(ctx context.Context, doc Document) (*portfolio.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(doc.Content)) == 0 {
		return nil, &ParseError{Reason: ReasonEmpty}
	}

	var rows [][]string
	if bytes.HasPrefix(doc.Content, pdfMagic) {
		result, err := unlock(e.unlocker, doc.Content, candidatePasswords(doc, e.rule))
		if err != nil {
			return nil, err
		}
		if result.status == statusPasswordRequired {
			e.logger.Info().
				Bool("password_supplied", doc.Password != "").
				Msg("Document requires a password")
			return nil, ErrPasswordRequired
		}
		e.logger.Debug().Int("attempt", result.attempt).Msg("Document unlocked")

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err = e.pdfRows.Rows(result.content)
		if err != nil {
			return nil, &ParseError{Reason: ReasonUnreadable, Err: err}
		}
	} else {
		var err error
		rows, err = e.textRows.Rows(doc.Content)
		if err != nil {
			return nil, &ParseError{Reason: ReasonUnreadable, Err: err}
		}
	}

	p := ParseRows(rows)
	if p.SkippedRows > 0 {
		e.logger.Warn().
			Int("skipped_rows", p.SkippedRows).
			Str("reasons", skipSummary(p)).
			Msg("Rows skipped during normalization")
	}

	e.logger.Info().
		Int("rows", len(rows)).
		Int("holdings", len(p.Holdings)).
		Int("skipped_rows", p.SkippedRows).
		Str("total_value", p.TotalValue.StringFixed(2)).
		Msg("Statement extracted")

	return p, nil
}

// tableState tracks the section a row belongs to
type tableState struct {
	category portfolio.Category
	cols     columns
	// header is set once a column header row opened the table
	header bool
	// open is set when rows should be read as holdings
	open bool
}

// ParseRows classifies and normalizes rows into a portfolio, preserving source order.
//
// A single-cell text row matching the section vocabulary opens a headerless
// table of that category. Inside a headered table any other single-cell row
// is the wrapped tail of the holding directly above it and the table stays
// open, unless a column header follows, in which case it titles the next
// table. Elsewhere it is a title that opens a headerless table of category
// other. A column header row opens a table whose category comes from the
// preceding title, then the header itself, else other. Rows outside a table
// are ignored, as are subtotal rows. Rows that fail normalization are skipped
// and recorded.
func ParseRows(rows [][]string) *portfolio.Portfolio {
	var (
		holdings  []portfolio.Holding
		skipped   []portfolio.SkippedRow
		lastTitle string
		state     tableState
	)
	// last indexes the holding read from the previous non-empty row, or -1
	last := -1

	for i, cells := range rows {
		line := i + 1
		if len(cells) == 0 {
			continue
		}
		prev := last
		last = -1

		if len(cells) == 1 {
			text := cells[0]
			if IsNumeric(text) || isSubtotal(cells) {
				continue
			}
			if cat, ok := classifySection(text); ok {
				lastTitle = text
				state = tableState{category: cat, cols: noColumns(), open: true}
				continue
			}
			if state.header && !headerFollows(rows, i+1) {
				if prev >= 0 {
					appendWrapped(&holdings[prev], text, state.cols)
					last = prev
				}
				continue
			}
			lastTitle = text
			state = tableState{category: portfolio.CategoryOther, cols: noColumns(), open: true}
			continue
		}

		if cols, ok := detectHeader(cells); ok {
			cat, found := classifySection(lastTitle)
			if !found {
				cat, found = classifySection(strings.Join(cells, " "))
			}
			if !found {
				cat = portfolio.CategoryOther
			}
			state = tableState{category: cat, cols: cols, header: true, open: true}
			continue
		}

		if !state.open || isSubtotal(cells) {
			continue
		}

		h, reason := normalizeRow(cells, state)
		if reason != "" {
			skipped = append(skipped, portfolio.SkippedRow{
				Line:   line,
				Text:   strings.Join(cells, " | "),
				Reason: reason,
			})
			continue
		}
		holdings = append(holdings, h)
		last = len(holdings) - 1
	}

	return portfolio.New(holdings, skipped)
}

// headerFollows reports whether the next non-empty row from start is a column header
func headerFollows(rows [][]string, start int) bool {
	for _, cells := range rows[start:] {
		if len(cells) == 0 {
			continue
		}
		_, ok := detectHeader(cells)
		return ok
	}
	return false
}

// appendWrapped joins a wrapped cell onto the field the name column fills
func appendWrapped(h *portfolio.Holding, text string, cols columns) {
	if cols.identifier >= 0 || h.Name != "" {
		h.Name = strings.TrimSpace(h.Name + " " + text)
		return
	}
	h.Identifier = strings.TrimSpace(h.Identifier + " " + text)
}

// normalizeRow builds a holding from a data row, or returns why it cannot
func normalizeRow(cells []string, state tableState) (portfolio.Holding, string) {
	if state.header {
		return normalizeWithColumns(cells, state.category, state.cols)
	}
	return normalizePositional(cells, state.category)
}

func normalizeWithColumns(cells []string, cat portfolio.Category, cols columns) (portfolio.Holding, string) {
	if cols.value >= len(cells) || (cols.units >= 0 && cols.units >= len(cells)) {
		return portfolio.Holding{}, SkipMissingColumns
	}

	h := portfolio.Holding{Category: cat}
	switch {
	case cols.identifier >= 0 && cols.identifier < len(cells):
		h.Identifier = cells[cols.identifier]
		if cols.name >= 0 && cols.name < len(cells) {
			h.Name = cells[cols.name]
		}
	case cols.name >= 0 && cols.name < len(cells):
		h.Identifier = cells[cols.name]
	default:
		h.Identifier, h.Name = leadingText(cells)
	}
	if strings.TrimSpace(h.Identifier) == "" {
		return portfolio.Holding{}, SkipMissingID
	}

	value, reason := parseValue(cells[cols.value])
	if reason != "" {
		return portfolio.Holding{}, reason
	}
	h.CurrentValue = value

	h.Units = decimal.Zero
	if cols.units >= 0 {
		units, err := ParseAmount(cells[cols.units])
		if err != nil || units.IsNegative() {
			return portfolio.Holding{}, SkipInvalidUnits
		}
		h.Units = units
	}
	return h, ""
}

// normalizePositional reads rows of a table without a column header: value
// is the last cell and units the nearest numeric cell before it.
func normalizePositional(cells []string, cat portfolio.Category) (portfolio.Holding, string) {
	h := portfolio.Holding{Category: cat, Units: decimal.Zero}
	h.Identifier, h.Name = leadingText(cells[:len(cells)-1])
	if h.Identifier == "" {
		return portfolio.Holding{}, SkipMissingID
	}

	value, reason := parseValue(cells[len(cells)-1])
	if reason != "" {
		return portfolio.Holding{}, reason
	}
	h.CurrentValue = value

	for i := len(cells) - 2; i >= 0; i-- {
		if units, err := ParseAmount(cells[i]); err == nil {
			if units.IsNegative() {
				return portfolio.Holding{}, SkipInvalidUnits
			}
			h.Units = units
			break
		}
	}
	return h, ""
}

func parseValue(raw string) (decimal.Decimal, string) {
	value, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, SkipInvalidValue
	}
	if value.IsNegative() {
		return decimal.Zero, SkipNegativeValue
	}
	return value, ""
}

// leadingText returns the first two non-numeric cells as identifier and name
func leadingText(cells []string) (string, string) {
	var id, name string
	for _, c := range cells {
		if IsNumeric(c) {
			continue
		}
		if id == "" {
			id = c
			continue
		}
		name = c
		break
	}
	return id, name
}

// skipSummary renders skip reasons with counts, e.g. "invalid value=2"
func skipSummary(p *portfolio.Portfolio) string {
	counts := make(map[string]int)
	for _, s := range p.Skipped {
		counts[s.Reason]++
	}
	parts := make([]string, 0, len(counts))
	for reason, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
