// Package section builds the document outline from headings and answers
// "which section contains line N" in O(log n).
package section

import (
	"sort"
)

// NoEnd marks a section that extends to the end of the document.
const NoEnd = -1

// Section is a heading and the lines it governs. Lines are 0-indexed and
// EndLine is inclusive.
type Section struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Level     int    `json:"level"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	ParentID  string `json:"parent_id,omitempty"`
}

// Heading is the input to Build.
type Heading struct {
	ID    string
	Title string
	Level int
	Line  int
}

// Build turns headings (sorted by line) into sections. Each section ends on
// the line before the next heading of the same or higher level, or on
// lastLine. Parents are the nearest preceding heading of a lower level.
func Build(headings []Heading, lastLine int) []Section {
	out := make([]Section, len(headings))
	var stack []int
	for i, h := range headings {
		out[i] = Section{ID: h.ID, Title: h.Title, Level: h.Level, StartLine: h.Line, EndLine: max(lastLine, h.Line)}
		for len(stack) > 0 && out[stack[len(stack)-1]].Level >= h.Level {
			closed := stack[len(stack)-1]
			out[closed].EndLine = max(h.Line-1, out[closed].StartLine)
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			out[i].ParentID = out[stack[len(stack)-1]].ID
		}
		stack = append(stack, i)
	}
	return out
}

// Index answers line lookups over sections sorted by StartLine that do not
// overlap at a given level.
type Index struct {
	sections []Section
}

// NewIndex copies sections and sorts them by start line.
func NewIndex(sections []Section) *Index {
	s := make([]Section, len(sections))
	copy(s, sections)
	sort.SliceStable(s, func(i, j int) bool { return s[i].StartLine < s[j].StartLine })
	return &Index{sections: s}
}

// Lookup returns the section whose start is the rightmost one at or before
// line, provided line also falls on or before its end. Negative lines,
// an empty index, and lines in gaps return false.
func (ix *Index) Lookup(line int) (Section, bool) {
	if line < 0 || len(ix.sections) == 0 {
		return Section{}, false
	}
	i := sort.Search(len(ix.sections), func(i int) bool { return ix.sections[i].StartLine > line }) - 1
	if i < 0 {
		return Section{}, false
	}
	s := ix.sections[i]
	if s.EndLine != NoEnd && line > s.EndLine {
		return Section{}, false
	}
	return s, true
}

// Len returns the number of indexed sections.
func (ix *Index) Len() int { return len(ix.sections) }
