package doctree

import (
	"context"
	"testing"

	"github.com/dgallion1/mdguard/internal/parser"
	"github.com/dgallion1/mdguard/internal/profile"
)

const outlineDoc = `Preamble text.

# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.

## Section B

Section B content.
`

func TestFromResult(t *testing.T) {
	doc, err := parser.Parse(context.Background(), []byte(outlineDoc), profile.Strict)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tree := FromResult("", &doc.Result)

	if tree.Title != "Title" {
		t.Errorf("title = %q", tree.Title)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected preamble + h1, got %d children", len(tree.Children))
	}
	if tree.Children[0].Text != "Preamble text." || tree.Children[0].Title != "" {
		t.Errorf("preamble = %+v", tree.Children[0])
	}

	h1 := tree.Children[1]
	if h1.Text != "Intro text." {
		t.Errorf("h1 text = %q", h1.Text)
	}
	if len(h1.Children) != 2 {
		t.Fatalf("expected 2 h2 children, got %d", len(h1.Children))
	}
	a := h1.Children[0]
	if a.Title != "Section A" || a.Text != "Section A content." || len(a.Children) != 1 {
		t.Errorf("section A = %+v", a)
	}
	if a.Children[0].Text != "Subsection A1 content." {
		t.Errorf("A1 text = %q", a.Children[0].Text)
	}
	if h1.Children[1].Text != "Section B content." {
		t.Errorf("B text = %q", h1.Children[1].Text)
	}
}

func TestWalkBreadcrumbs(t *testing.T) {
	tree := &DocTree{Children: []*DocNode{
		{Title: "A", Children: []*DocNode{{Title: "A1"}, {Title: "A2"}}},
		{Title: "B"},
	}}
	var got []string
	tree.Walk(func(n *DocNode, bc []string) {
		got = append(got, joinPath(bc))
	})
	want := []string{"A", "A/A1", "A/A2", "B"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func joinPath(bc []string) string {
	out := ""
	for i, s := range bc {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}
