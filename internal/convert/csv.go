package convert

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVConverter renders a CSV file as a Markdown table. The first record is
// the header row; short rows are padded so the table stays rectangular.
type CSVConverter struct{}

func (c *CSVConverter) Convert(r io.Reader, filename string) (*Source, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	src := &Source{Title: baseTitle(filename), Format: "csv"}
	if len(records) == 0 {
		return src, nil
	}

	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}

	var b strings.Builder
	writeHeading(&b, 1, src.Title)
	writeRow(&b, records[0], width)
	b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, rec := range records[1:] {
		writeRow(&b, rec, width)
	}
	src.Markdown = []byte(b.String())
	return src, nil
}

func writeRow(b *strings.Builder, cells []string, width int) {
	b.WriteByte('|')
	for i := range width {
		cell := ""
		if i < len(cells) {
			cell = escapeCell(cells[i])
		}
		b.WriteString(" " + cell + " |")
	}
	b.WriteByte('\n')
}

// escapeCell keeps a value inside one table cell.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
