// Package doctree builds a section outline from a parse result.
package doctree

import (
	"strings"

	"github.com/dgallion1/mdguard/internal/parser"
)

// DocTree is the root of a document outline.
type DocTree struct {
	Title    string     `json:"title"`
	Children []*DocNode `json:"children"`
}

// DocNode is one section. Text holds the section's own lines, excluding
// its subsections; an untitled node holds text before the first heading.
type DocNode struct {
	SectionID string     `json:"section_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Level     int        `json:"level,omitempty"`
	Text      string     `json:"text,omitempty"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Children  []*DocNode `json:"children,omitempty"`
}

// Chunk is a sized text segment with structural context, ready for
// embedding.
type Chunk struct {
	Text       string   `json:"text"`
	Index      int      `json:"index"`
	SectionID  string   `json:"section_id,omitempty"`
	Breadcrumb []string `json:"breadcrumb,omitempty"`
	LineStart  int      `json:"line_start"`
	LineEnd    int      `json:"line_end"`
}

// FromResult turns the sections of r into a tree. The first level-1
// heading becomes the title when title is empty.
func FromResult(title string, r *parser.Result) *DocTree {
	tree := &DocTree{Title: title}
	lines := r.Content.Lines
	secs := r.Structure.Sections

	body := func(start, end int) string {
		start, end = max(start, 0), min(end, len(lines))
		if start >= end {
			return ""
		}
		return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	}

	first := len(lines)
	if len(secs) > 0 {
		first = secs[0].StartLine
	}
	if t := body(0, first); t != "" {
		tree.Children = append(tree.Children, &DocNode{Text: t, StartLine: 0, EndLine: first - 1})
	}

	byID := make(map[string]*DocNode, len(secs))
	for i, s := range secs {
		// Own text runs to the next section start, whatever its level.
		ownEnd := s.EndLine + 1
		if i+1 < len(secs) && secs[i+1].StartLine < ownEnd {
			ownEnd = secs[i+1].StartLine
		}
		node := &DocNode{
			SectionID: s.ID,
			Title:     s.Title,
			Level:     s.Level,
			Text:      body(s.StartLine+1, ownEnd),
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		}
		byID[s.ID] = node
		if parent, ok := byID[s.ParentID]; ok && s.ParentID != "" {
			parent.Children = append(parent.Children, node)
		} else {
			tree.Children = append(tree.Children, node)
		}
		if tree.Title == "" && s.Level == 1 {
			tree.Title = s.Title
		}
	}
	return tree
}

// Walk calls fn for every node in document order with its heading path.
func (t *DocTree) Walk(fn func(n *DocNode, breadcrumb []string)) {
	var visit func(n *DocNode, bc []string)
	visit = func(n *DocNode, bc []string) {
		if n.Title != "" {
			bc = append(bc[:len(bc):len(bc)], n.Title)
		}
		fn(n, bc)
		for _, c := range n.Children {
			visit(c, bc)
		}
	}
	for _, c := range t.Children {
		visit(c, nil)
	}
}
