// Package table re-derives the shape of Markdown tables from their source
// lines instead of trusting the tokenizer's lenient table grammar.
package table

import (
	"regexp"
	"slices"
	"strings"
)

// DefaultAlignment pads alignment arrays shorter than the observed width.
const DefaultAlignment = "left"

// Shape is the structural classification of one table.
type Shape struct {
	ColumnCount    int      `json:"column_count"`
	ColumnCounts   []int    `json:"column_counts"`
	RowCounts      []int    `json:"-"`
	IsRagged       bool     `json:"is_ragged"`
	IsPure         bool     `json:"is_pure"`
	MalformedLines []int    `json:"malformed_line_numbers"`
	Alignments     []string `json:"column_alignment"`
}

var (
	listMarker = regexp.MustCompile(`^\s{0,3}([-+*]|\d{1,9}[.)])\s+`)
	sepCell    = regexp.MustCompile(`^\s*:?-+:?\s*$`)
)

// StripPrefix removes blockquote markers, one list marker and indentation.
func StripPrefix(line string) string {
	for {
		t := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(t, ">") {
			line = t[1:]
			continue
		}
		if loc := listMarker.FindStringIndex(t); loc != nil {
			t = t[loc[1]:]
		}
		return strings.TrimSpace(t)
	}
}

// escapedAt reports whether the byte at i is preceded by an odd number of
// backslashes.
func escapedAt(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func hasUnescapedPipe(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '|' && !escapedAt(s, i) {
			return true
		}
	}
	return false
}

// IsSeparator reports whether line is a header delimiter row.
func IsSeparator(line string) bool {
	s := strings.TrimSpace(line)
	if !strings.Contains(s, "-") {
		return false
	}
	s = strings.TrimPrefix(s, "|")
	if strings.HasSuffix(s, "|") && !escapedAt(s, len(s)-1) {
		s = s[:len(s)-1]
	}
	for _, cell := range strings.Split(s, "|") {
		if !sepCell.MatchString(cell) {
			return false
		}
	}
	return true
}

// SeparatorAlignments parses alignments from a delimiter row.
func SeparatorAlignments(line string) []string {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "|")
	s = strings.TrimSuffix(s, "|")
	var out []string
	for _, cell := range strings.Split(s, "|") {
		c := strings.TrimSpace(cell)
		left, right := strings.HasPrefix(c, ":"), strings.HasSuffix(c, ":")
		switch {
		case left && right:
			out = append(out, "center")
		case right:
			out = append(out, "right")
		case left:
			out = append(out, "left")
		default:
			out = append(out, "")
		}
	}
	return out
}

// wellFormed reports whether s starts and ends with an unescaped pipe.
func wellFormed(s string) bool {
	return len(s) >= 2 && s[0] == '|' && s[len(s)-1] == '|' && !escapedAt(s, len(s)-1)
}

// SplitRow splits a |...| row into trimmed cells. Escaped pipes become
// literal pipes in cell content.
func SplitRow(line string) []string {
	s := strings.TrimSpace(line)
	if !wellFormed(s) {
		return nil
	}
	s = s[1 : len(s)-1]
	var cells []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && s[i+1] == '|' {
			cur.WriteByte('|')
			i++
			continue
		}
		if c == '|' {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

// Classify inspects the source lines of one table. startLine is the
// document line of lines[0] and is used for MalformedLines. alignments
// may be nil, in which case they are read from the delimiter row.
func Classify(startLine int, lines []string, alignments []string) Shape {
	var sh Shape
	sh.MalformedLines = []int{}
	sawSeparator := false
	for i, raw := range lines {
		s := StripPrefix(raw)
		if s == "" {
			continue
		}
		if !sawSeparator && IsSeparator(s) {
			sawSeparator = true
			if alignments == nil {
				alignments = SeparatorAlignments(s)
			}
			continue
		}
		if !hasUnescapedPipe(s) {
			continue
		}
		if !wellFormed(s) {
			sh.MalformedLines = append(sh.MalformedLines, startLine+i)
			continue
		}
		sh.RowCounts = append(sh.RowCounts, len(SplitRow(s)))
	}

	for _, n := range sh.RowCounts {
		if !slices.Contains(sh.ColumnCounts, n) {
			sh.ColumnCounts = append(sh.ColumnCounts, n)
		}
		sh.ColumnCount = max(sh.ColumnCount, n)
	}
	slices.Sort(sh.ColumnCounts)
	if sh.ColumnCounts == nil {
		sh.ColumnCounts = []int{}
	}

	sh.IsRagged = sh.ColumnCount > 0 && len(sh.ColumnCounts) > 1
	sh.IsPure = len(sh.MalformedLines) == 0 && !sh.IsRagged
	sh.Alignments = Resize(alignments, sh.ColumnCount)
	return sh
}

// Resize pads or truncates alignments to n columns, filling gaps with
// DefaultAlignment.
func Resize(al []string, n int) []string {
	out := make([]string, n)
	for i := range out {
		if i < len(al) && al[i] != "" {
			out[i] = al[i]
		} else {
			out[i] = DefaultAlignment
		}
	}
	return out
}
