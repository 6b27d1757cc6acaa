package extractor

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// RowReader turns document content into rows of cells
type RowReader interface {
	Rows(content []byte) ([][]string, error)
}

// DefaultCellGap is the horizontal gap, in points, that starts a new cell
const DefaultCellGap = 6.0

// PDFRowReader reads text rows from a decrypted PDF, grouping text runs
// into cells by the horizontal gap between them.
type PDFRowReader struct {
	CellGap float64
}

// Rows implements RowReader
func (r PDFRowReader) Rows(content []byte) (rows [][]string, err error) {
	// ledongthuc/pdf panics on some malformed streams
	defer func() {
		if rec := recover(); rec != nil {
			rows = nil
			err = fmt.Errorf("pdf reader panic: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	gap := r.CellGap
	if gap <= 0 {
		gap = DefaultCellGap
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		textRows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		for _, row := range textRows {
			if cells := groupCells(row.Content, gap); len(cells) > 0 {
				rows = append(rows, cells)
			}
		}
	}
	return rows, nil
}

// groupCells joins text runs left to right, splitting where the gap exceeds gap
func groupCells(texts []pdf.Text, gap float64) []string {
	if len(texts) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var cells []string
	var current strings.Builder
	end := sorted[0].X

	flush := func() {
		if cell := strings.TrimSpace(current.String()); cell != "" {
			cells = append(cells, cell)
		}
		current.Reset()
	}

	for _, t := range sorted {
		if current.Len() > 0 && t.X-end > gap {
			flush()
		}
		current.WriteString(t.S)
		end = t.X + t.W
	}
	flush()
	return cells
}

var cellSeparator = regexp.MustCompile(`\t+|\s{2,}`)

// TextRowReader reads plain-text statements: one row per line, cells
// separated by tabs or runs of two or more spaces.
type TextRowReader struct{}

// Rows implements RowReader
func (TextRowReader) Rows(content []byte) ([][]string, error) {
	var rows [][]string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rows = append(rows, splitCells(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	return rows, nil
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	parts := cellSeparator.Split(line, -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}
