package collect

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/dgallion1/mdguard/internal/budget"
	"github.com/dgallion1/mdguard/internal/errs"
	"github.com/dgallion1/mdguard/internal/normalize"
	"github.com/dgallion1/mdguard/internal/profile"
	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

func linkTokens(n int) []token.Token {
	toks := make([]token.Token, n)
	for i := range toks {
		toks[i] = token.Token{
			Type:    token.LinkOpen,
			Tag:     "a",
			Nesting: token.Self,
			Attrs:   map[string]string{"href": "https://example.com"},
		}
	}
	return toks
}

func runOne(t *testing.T, toks []token.Token, c warehouse.Collector) *warehouse.Results {
	t.Helper()
	w := warehouse.New(toks)
	if err := w.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestLinksCap(t *testing.T) {
	tests := []struct {
		n         int
		want      int
		truncated bool
	}{
		{n: 100, want: 100},
		{n: MaxLinks, want: MaxLinks},
		{n: 15000, want: MaxLinks, truncated: true},
	}
	for _, tt := range tests {
		l := NewLinks(profile.MustLookup(profile.Strict))
		runOne(t, linkTokens(tt.n), l)
		got := l.Result()
		if len(got.Items) != tt.want {
			t.Errorf("n=%d: got %d links, want %d", tt.n, len(got.Items), tt.want)
		}
		if got.Truncated != tt.truncated {
			t.Errorf("n=%d: truncated = %v, want %v", tt.n, got.Truncated, tt.truncated)
		}
	}
}

// parse runs the full collector set over real markdown.
func parse(t *testing.T, md string, p profile.Name) (*Set, *warehouse.Results) {
	t.Helper()
	th := profile.MustLookup(p)
	toks, err := token.FromMarkdown([]byte(md), token.Options{Plugins: th.Plugins()})
	if err != nil {
		t.Fatalf("FromMarkdown: %v", err)
	}
	uris, err := budget.NewURIs(th)
	if err != nil {
		t.Fatalf("NewURIs: %v", err)
	}
	set := NewSet(Config{
		Thresholds: th,
		Lines:      normalize.Lines(md),
		URIs:       uris,
		Cells:      budget.NewCells(th),
	})
	w := warehouse.New(toks)
	if err := set.Register(w); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return set, res
}

func TestHeadingSlugsAreUnique(t *testing.T) {
	set, _ := parse(t, "# Intro\n\n## Intro\n\n# Intro\n\n# Intro 1\n", profile.Strict)
	got := set.Headings.Result().Items
	want := []string{"intro", "intro-1", "intro-2", "intro-1-1"}
	if len(got) != len(want) {
		t.Fatalf("got %d headings, want %d", len(got), len(want))
	}
	for i, h := range got {
		if h.ID != want[i] {
			t.Errorf("heading %d id = %q, want %q", i, h.ID, want[i])
		}
	}
	if got[1].Level != 2 || got[1].Line != 2 {
		t.Errorf("heading 1 = %+v, want level 2 at line 2", got[1])
	}
}

func TestLinksClassified(t *testing.T) {
	md := "[ok](https://example.com) [bad](javascript:alert(1)) [up](../../etc/passwd) [tel](tel:123)\n"
	set, _ := parse(t, md, profile.Strict)
	links := set.Links.Result().Items
	if len(links) != 4 {
		t.Fatalf("got %d links, want 4", len(links))
	}
	if !links[0].Allowed || links[0].Scheme != "https" {
		t.Errorf("https link = %+v", links[0])
	}
	if !links[1].Dangerous || links[1].Allowed {
		t.Errorf("javascript link = %+v", links[1])
	}
	if !links[2].PathTraversal {
		t.Errorf("traversal link = %+v", links[2])
	}
	if links[3].Allowed {
		t.Errorf("tel link allowed under strict: %+v", links[3])
	}
}

func TestDataURIStrictIsSizeError(t *testing.T) {
	md := "![x](data:image/png;base64,iVBORw0KGgo=)\n"
	_, res := parse(t, md, profile.Strict)
	if !res.Failed("images") {
		t.Fatal("images collector did not fail under strict")
	}
	var se *errs.SizeError
	if !errors.As(res.Errors[0].Err, &se) {
		t.Fatalf("error = %v, want SizeError", res.Errors[0].Err)
	}
	if se.Dimension != budget.DimDataURIBytes {
		t.Errorf("dimension = %q", se.Dimension)
	}
}

func TestDataURIModerate(t *testing.T) {
	big := strings.Repeat("A", 20000)
	md := "![small](data:image/png;base64,AAAA)\n\n" +
		"![big](data:image/png;base64," + big + ")\n\n" +
		"![svg](data:image/svg+xml;base64,PHN2Zz4=)\n"
	set, res := parse(t, md, profile.Moderate)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected collector errors: %+v", res.Errors)
	}
	imgs := set.Images.Result().Items
	if len(imgs) != 3 {
		t.Fatalf("got %d images, want 3", len(imgs))
	}
	if imgs[0].Blocked || !imgs[0].Allowed {
		t.Errorf("small image = %+v", imgs[0])
	}
	if !imgs[1].Blocked || imgs[1].BlockReason != "data_uri_too_large" {
		t.Errorf("big image = %+v", imgs[1])
	}
	if !imgs[2].Blocked || !imgs[2].Dangerous {
		t.Errorf("svg image = %+v", imgs[2])
	}
	if len(set.Images.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2", set.Images.Warnings)
	}
}

func TestRaggedTable(t *testing.T) {
	md := "| a | b |\n|---|:-:|\n| 1 | 2 | 3 |\n| 4 |\n"
	set, _ := parse(t, md, profile.Strict)
	tables := set.Tables.Result().Items
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}
	tb := tables[0]
	if !tb.IsRagged || tb.IsPure {
		t.Errorf("ragged=%v pure=%v, want ragged impure", tb.IsRagged, tb.IsPure)
	}
	if tb.ColumnCount != 3 {
		t.Errorf("column count = %d, want 3", tb.ColumnCount)
	}
	want := []string{"left", "center", "left"}
	for i, a := range want {
		if tb.ColumnAlignment[i] != a {
			t.Errorf("alignment[%d] = %q, want %q", i, tb.ColumnAlignment[i], a)
		}
	}
	if tb.Headers[0] != "a" || tb.Headers[1] != "b" {
		t.Errorf("headers = %v", tb.Headers)
	}
	if tb.StartLine != 0 || tb.EndLine != 3 {
		t.Errorf("lines = %d..%d, want 0..3", tb.StartLine, tb.EndLine)
	}
}

func TestPipelessTableKeepsAlignment(t *testing.T) {
	set, _ := parse(t, "a | b\n--|:-:\n1 | 2\n", profile.Permissive)
	tables := set.Tables.Result().Items
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}
	tb := tables[0]
	if tb.ColumnCount != 2 {
		t.Errorf("column count = %d, want 2", tb.ColumnCount)
	}
	if !slices.Equal(tb.ColumnAlignment, []string{"left", "center"}) {
		t.Errorf("alignment = %v, want [left center]", tb.ColumnAlignment)
	}
	if tb.IsPure || len(tb.MalformedLineNumbers) != 2 {
		t.Errorf("pure=%v malformed=%v", tb.IsPure, tb.MalformedLineNumbers)
	}
}

func TestTableCellBudget(t *testing.T) {
	th := profile.MustLookup(profile.Strict)
	cells := &budget.Counter{Dimension: budget.DimTableCells, Max: 5, Profile: th.Profile}
	md := "| a | b |\n|---|---|\n| 1 | 2 |\n| 3 | 4 |\n"
	toks, err := token.FromMarkdown([]byte(md), token.Options{Plugins: th.Plugins()})
	if err != nil {
		t.Fatal(err)
	}
	tables := NewTables(normalize.Lines(md), cells)
	res := runOne(t, toks, tables)
	if !res.Failed("tables") {
		t.Fatal("expected cell budget failure")
	}
	if !errors.Is(res.Errors[0].Err, errs.ErrSizeExceeded) {
		t.Errorf("error = %v", res.Errors[0].Err)
	}
}

func TestListsNestedAndTasks(t *testing.T) {
	md := "- [x] done\n- [ ] todo\n  1. inner\n  2. more\n"
	set, _ := parse(t, md, profile.Moderate)
	lists := set.Lists.Result().Items
	if len(lists) != 2 {
		t.Fatalf("got %d lists, want 2", len(lists))
	}
	outer := lists[0]
	if outer.Ordered || outer.Depth != 1 || len(outer.Items) != 2 {
		t.Fatalf("outer = %+v", outer)
	}
	if outer.Items[0].Checked == nil || !*outer.Items[0].Checked {
		t.Errorf("item 0 checked = %v", outer.Items[0].Checked)
	}
	if outer.Items[1].Text != "todo" {
		t.Errorf("item 1 text = %q, want nested list cut off", outer.Items[1].Text)
	}
	inner := lists[1]
	if !inner.Ordered || inner.Start != 1 || inner.Depth != 2 || len(inner.Items) != 2 {
		t.Errorf("inner = %+v", inner)
	}
}

func TestBlocksAndFootnotes(t *testing.T) {
	md := "> quote\n> > nested\n\n```go\nfmt.Println()\n```\n\n<div onclick=\"x()\">hi</div>\n\nSee[^n].\n\n[^n]: note text\n"
	set, _ := parse(t, md, profile.Moderate)

	bq := set.Blockquotes.Result().Items
	if len(bq) != 2 || bq[1].Depth != 2 {
		t.Errorf("blockquotes = %+v", bq)
	}
	code := set.Code.Result().Items
	if len(code) != 1 || code[0].Language != "go" || !code[0].Fenced || code[0].StartLine != 3 || code[0].EndLine != 5 {
		t.Errorf("code = %+v", code)
	}
	html := set.HTML.Result().Items
	if len(html) != 1 || len(html[0].Findings.EventHandlers) == 0 {
		t.Errorf("html = %+v", html)
	}
	fn := set.Footnotes.Result().Items
	if len(fn) != 1 || fn[0].Label != "n" || fn[0].References != 1 || fn[0].Text != "note text" {
		t.Errorf("footnotes = %+v", fn)
	}
}
