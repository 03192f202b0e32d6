package table

import (
	"slices"
	"testing"
)

func TestClassify_Ragged(t *testing.T) {
	lines := []string{
		"| a | b |",
		"|---|---|",
		"| 1 | 2 |",
		"| 1 | 2 | 3 |",
		"| 1 |",
	}
	sh := Classify(10, lines, nil)
	if !sh.IsRagged || sh.IsPure {
		t.Errorf("ragged=%v pure=%v", sh.IsRagged, sh.IsPure)
	}
	if !slices.Equal(sh.ColumnCounts, []int{1, 2, 3}) {
		t.Errorf("column counts = %v", sh.ColumnCounts)
	}
	if !slices.Equal(sh.RowCounts, []int{2, 2, 3, 1}) {
		t.Errorf("row counts = %v", sh.RowCounts)
	}
	if sh.ColumnCount != 3 || len(sh.Alignments) != 3 {
		t.Errorf("width = %d, alignments = %v", sh.ColumnCount, sh.Alignments)
	}
}

func TestClassify_Pure(t *testing.T) {
	lines := []string{
		"| Name | Value |",
		"|:-----|------:|",
		"| a \\| b | 1 |",
	}
	sh := Classify(0, lines, nil)
	if !sh.IsPure || sh.IsRagged {
		t.Errorf("got %+v", sh)
	}
	if !slices.Equal(sh.Alignments, []string{"left", "right"}) {
		t.Errorf("alignments = %v", sh.Alignments)
	}
}

func TestClassify_Malformed(t *testing.T) {
	lines := []string{
		"| a | b |",
		"|---|---|",
		"1 | 2",
		"| 3 | 4 |",
		"plain continuation without pipes",
	}
	sh := Classify(5, lines, []string{"center", "center"})
	if sh.IsPure {
		t.Error("table with malformed line reported pure")
	}
	if sh.IsRagged {
		t.Error("should not be ragged")
	}
	if !slices.Equal(sh.MalformedLines, []int{7}) {
		t.Errorf("malformed = %v", sh.MalformedLines)
	}
}

func TestClassify_AlignmentResize(t *testing.T) {
	sh := Classify(0, []string{"| a | b | c |", "| 1 | 2 | 3 |"}, []string{"right"})
	if !slices.Equal(sh.Alignments, []string{"right", "left", "left"}) {
		t.Errorf("padded = %v", sh.Alignments)
	}
	sh = Classify(0, []string{"| a |"}, []string{"center", "right", "left"})
	if !slices.Equal(sh.Alignments, []string{"center"}) {
		t.Errorf("truncated = %v", sh.Alignments)
	}
}

func TestClassify_ZeroColumns(t *testing.T) {
	sh := Classify(0, []string{"", "no pipes here"}, nil)
	if sh.IsRagged || sh.ColumnCount != 0 {
		t.Errorf("got %+v", sh)
	}
}

func TestClassify_QuotedAndListed(t *testing.T) {
	lines := []string{
		"> | a | b |",
		"> |---|---|",
		"> | 1 | 2 |",
	}
	if sh := Classify(0, lines, nil); !sh.IsPure || sh.ColumnCount != 2 {
		t.Errorf("blockquote: %+v", sh)
	}
	lines = []string{
		"- | a | b |",
		"  |---|---|",
		"  | 1 | 2 |",
	}
	if sh := Classify(0, lines, nil); !sh.IsPure || sh.ColumnCount != 2 {
		t.Errorf("list: %+v", sh)
	}
}

func TestSplitRow(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"| a | b |", []string{"a", "b"}},
		{"|a\\|b|c|", []string{"a|b", "c"}},
		{"| |", []string{""}},
		{"a | b", nil},
		{"| a \\|", nil},
	}
	for _, tt := range tests {
		if got := SplitRow(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("SplitRow(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
