package token

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Options controls tokenization.
type Options struct {
	// Plugins names the goldmark extensions to enable
	// (table, strikethrough, footnote, tasklist, linkify).
	Plugins []string

	// OnToken is called before each token is appended. A non-nil error
	// stops tokenization and is returned from FromMarkdown.
	OnToken func() error
}

var extenders = map[string]goldmark.Extender{
	"table":         extension.Table,
	"strikethrough": extension.Strikethrough,
	"footnote":      extension.Footnote,
	"tasklist":      extension.TaskList,
	"linkify":       extension.Linkify,
}

// FromMarkdown parses src with goldmark and flattens the AST into a token
// stream. Unknown plugin names are ignored.
func FromMarkdown(src []byte, opts Options) ([]Token, error) {
	var exts []goldmark.Extender
	for _, name := range opts.Plugins {
		if e, ok := extenders[name]; ok {
			exts = append(exts, e)
		}
	}
	md := goldmark.New(goldmark.WithExtensions(exts...))
	doc := md.Parser().Parse(text.NewReader(src))

	w := &walker{
		src:        src,
		lineStarts: lineStarts(src),
		onToken:    opts.OnToken,
		footnotes:  map[int]string{},
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if fn, ok := n.(*extast.Footnote); ok && entering {
			w.footnotes[fn.Index] = string(fn.Ref)
		}
		return ast.WalkContinue, nil
	})

	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		if _, err := w.block(c); err != nil {
			return nil, err
		}
	}
	return w.out, nil
}

type walker struct {
	src        []byte
	lineStarts []int
	onToken    func() error
	out        []Token
	level      int
	cursor     int // first source line not yet claimed by a leaf block
	blockLine  int // start line of the enclosing leaf block, for inline maps
	footnotes  map[int]string
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (w *walker) lineOf(offset int) int {
	return sort.Search(len(w.lineStarts), func(i int) bool { return w.lineStarts[i] > offset }) - 1
}

func (w *walker) segLines(seg text.Segment) (int, int) {
	last := seg.Stop - 1
	if last < seg.Start {
		last = seg.Start
	}
	return w.lineOf(seg.Start), w.lineOf(last)
}

func (w *walker) linesSpan(lines *text.Segments) *LineSpan {
	if lines == nil || lines.Len() == 0 {
		return nil
	}
	start, _ := w.segLines(lines.At(0))
	_, end := w.segLines(lines.At(lines.Len() - 1))
	return &LineSpan{Start: start, End: end + 1}
}

func (w *walker) sourceLine(n int) string {
	if n < 0 || n >= len(w.lineStarts) {
		return ""
	}
	end := len(w.src)
	if n+1 < len(w.lineStarts) {
		end = w.lineStarts[n+1]
	}
	return strings.TrimRight(string(w.src[w.lineStarts[n]:end]), "\n")
}

// stripContainer removes blockquote markers and indentation.
func stripContainer(line string) string {
	for {
		t := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(t, ">") {
			return t
		}
		line = t[1:]
	}
}

func isThematicBreak(line string) bool {
	s := strings.ReplaceAll(strings.ReplaceAll(stripContainer(line), " ", ""), "\t", "")
	if len(s) < 3 {
		return false
	}
	c := s[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	return strings.Count(s, string(c)) == len(s)
}

func isFence(line string) bool {
	s := stripContainer(line)
	return strings.HasPrefix(s, "```") || strings.HasPrefix(s, "~~~")
}

func (w *walker) emit(t Token) (int, error) {
	if w.onToken != nil {
		if err := w.onToken(); err != nil {
			return -1, err
		}
	}
	t.Level = w.level
	if t.Nesting == Close {
		w.level--
		t.Level = w.level
	}
	w.out = append(w.out, t)
	if t.Nesting == Open {
		w.level++
	}
	return len(w.out) - 1, nil
}

func (w *walker) claim(span *LineSpan) {
	if span != nil && span.End > w.cursor {
		w.cursor = span.End
	}
}

func union(a, b *LineSpan) *LineSpan {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &LineSpan{Start: min(a.Start, b.Start), End: max(a.End, b.End)}
}

// container emits open, children, close and patches the open token's map
// with the union of the children's spans.
func (w *walker) container(n ast.Node, open Token, closeType string) (*LineSpan, error) {
	open.Nesting = Open
	idx, err := w.emit(open)
	if err != nil {
		return nil, err
	}
	var span *LineSpan
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		s, err := w.block(c)
		if err != nil {
			return nil, err
		}
		span = union(span, s)
	}
	if span != nil {
		cp := *span
		w.out[idx].Map = &cp
	}
	if _, err := w.emit(Token{Type: closeType, Tag: open.Tag, Nesting: Close, Markup: open.Markup}); err != nil {
		return nil, err
	}
	return span, nil
}

// leaf emits open, inline children, close for a block with its own lines.
func (w *walker) leaf(n ast.Node, span *LineSpan, openType, closeType, tag, markup string) (*LineSpan, error) {
	w.claim(span)
	if span != nil {
		w.blockLine = span.Start
	}
	if _, err := w.emit(Token{Type: openType, Tag: tag, Nesting: Open, Map: span, Markup: markup}); err != nil {
		return nil, err
	}
	if err := w.inlines(n); err != nil {
		return nil, err
	}
	if _, err := w.emit(Token{Type: closeType, Tag: tag, Nesting: Close, Markup: markup}); err != nil {
		return nil, err
	}
	return span, nil
}

func (w *walker) block(n ast.Node) (*LineSpan, error) {
	switch node := n.(type) {
	case *ast.Heading:
		span := w.linesSpan(node.Lines())
		if span != nil {
			first := node.Lines().At(0)
			if !bytes.ContainsRune(w.src[w.lineStarts[span.Start]:first.Start], '#') {
				span.End++ // setext underline
			}
		}
		return w.leaf(node, span, HeadingOpen, HeadingClose, "h"+strconv.Itoa(node.Level), strings.Repeat("#", node.Level))

	case *ast.Paragraph:
		return w.leaf(node, w.linesSpan(node.Lines()), ParagraphOpen, ParagraphClose, "p", "")

	case *ast.TextBlock:
		span := w.linesSpan(node.Lines())
		w.claim(span)
		if span != nil {
			w.blockLine = span.Start
		}
		return span, w.inlines(node)

	case *ast.ThematicBreak:
		var span *LineSpan
		for l := w.cursor; l < len(w.lineStarts); l++ {
			if isThematicBreak(w.sourceLine(l)) {
				span = &LineSpan{Start: l, End: l + 1}
				break
			}
		}
		w.claim(span)
		_, err := w.emit(Token{Type: HR, Tag: "hr", Nesting: Self, Map: span})
		return span, err

	case *ast.FencedCodeBlock:
		return w.fence(node)

	case *ast.CodeBlock:
		span := w.linesSpan(node.Lines())
		w.claim(span)
		_, err := w.emit(Token{Type: CodeBlock, Tag: "code", Nesting: Self, Map: span, Content: w.rawLines(node.Lines())})
		return span, err

	case *ast.HTMLBlock:
		span := w.linesSpan(node.Lines())
		content := w.rawLines(node.Lines())
		if node.HasClosure() {
			cl := node.ClosureLine
			content += string(cl.Value(w.src))
			_, end := w.segLines(cl)
			span = union(span, &LineSpan{Start: w.lineOf(cl.Start), End: end + 1})
		}
		w.claim(span)
		_, err := w.emit(Token{Type: HTMLBlock, Nesting: Self, Map: span, Content: content})
		return span, err

	case *ast.Blockquote:
		return w.container(node, Token{Type: BlockquoteOpen, Tag: "blockquote", Markup: ">"}, BlockquoteClose)

	case *ast.List:
		open := Token{Type: BulletListOpen, Tag: "ul", Markup: string(node.Marker)}
		closeType := BulletListClose
		if node.IsOrdered() {
			open = Token{Type: OrderedListOpen, Tag: "ol", Markup: string(node.Marker)}
			closeType = OrderedListClose
			if node.Start != 1 {
				open.Attrs = map[string]string{"start": strconv.Itoa(node.Start)}
			}
		}
		return w.container(node, open, closeType)

	case *ast.ListItem:
		return w.container(node, Token{Type: ListItemOpen, Tag: "li"}, ListItemClose)

	case *extast.Table:
		return w.table(node)

	case *extast.FootnoteList:
		return w.container(node, Token{Type: FootnoteBlockOpen}, FootnoteBlockClose)

	case *extast.Footnote:
		attrs := map[string]string{"label": string(node.Ref), "id": strconv.Itoa(node.Index)}
		return w.container(node, Token{Type: FootnoteOpen, Attrs: attrs}, FootnoteClose)

	default:
		var span *LineSpan
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			s, err := w.block(c)
			if err != nil {
				return nil, err
			}
			span = union(span, s)
		}
		return span, nil
	}
}

func (w *walker) rawLines(lines *text.Segments) string {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(w.src))
	}
	return buf.String()
}

func (w *walker) fence(node *ast.FencedCodeBlock) (*LineSpan, error) {
	start := -1
	if node.Info != nil {
		start = w.lineOf(node.Info.Segment.Start)
	} else if node.Lines().Len() > 0 {
		start = w.lineOf(node.Lines().At(0).Start) - 1
	} else {
		for l := w.cursor; l < len(w.lineStarts); l++ {
			if isFence(w.sourceLine(l)) {
				start = l
				break
			}
		}
	}
	var span *LineSpan
	markup := ""
	if start >= 0 {
		if open := stripContainer(w.sourceLine(start)); open != "" {
			markup = open[:len(open)-len(strings.TrimLeft(open, open[:1]))]
		}
		end := start + 1
		if content := w.linesSpan(node.Lines()); content != nil {
			end = content.End
		}
		if markup != "" && end < len(w.lineStarts) && strings.HasPrefix(stripContainer(w.sourceLine(end)), markup) {
			end++
		}
		span = &LineSpan{Start: start, End: end}
	}
	w.claim(span)
	info := ""
	if node.Info != nil {
		info = strings.TrimSpace(string(node.Info.Segment.Value(w.src)))
	}
	_, err := w.emit(Token{
		Type:    Fence,
		Tag:     "code",
		Nesting: Self,
		Map:     span,
		Info:    info,
		Content: w.rawLines(node.Lines()),
		Markup:  markup,
	})
	return span, err
}

var alignNames = map[extast.Alignment]string{
	extast.AlignLeft:   "left",
	extast.AlignRight:  "right",
	extast.AlignCenter: "center",
}

func (w *walker) table(node *extast.Table) (*LineSpan, error) {
	idx, err := w.emit(Token{Type: TableOpen, Tag: "table", Nesting: Open})
	if err != nil {
		return nil, err
	}
	var span *LineSpan
	inBody := false
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		header := false
		switch c.(type) {
		case *extast.TableHeader:
			header = true
			if _, err := w.emit(Token{Type: THeadOpen, Tag: "thead", Nesting: Open}); err != nil {
				return nil, err
			}
		case *extast.TableRow:
			if !inBody {
				inBody = true
				if _, err := w.emit(Token{Type: TBodyOpen, Tag: "tbody", Nesting: Open}); err != nil {
					return nil, err
				}
			}
		default:
			continue
		}
		rs, err := w.row(c, header)
		if err != nil {
			return nil, err
		}
		if header && rs != nil {
			rs = &LineSpan{Start: rs.Start, End: rs.End + 1} // delimiter row
		}
		span = union(span, rs)
		if header {
			if _, err := w.emit(Token{Type: THeadClose, Tag: "thead", Nesting: Close}); err != nil {
				return nil, err
			}
		}
	}
	if inBody {
		if _, err := w.emit(Token{Type: TBodyClose, Tag: "tbody", Nesting: Close}); err != nil {
			return nil, err
		}
	}
	if span != nil {
		cp := *span
		w.out[idx].Map = &cp
	}
	w.claim(span)
	_, err = w.emit(Token{Type: TableClose, Tag: "table", Nesting: Close})
	return span, err
}

func (w *walker) row(r ast.Node, header bool) (*LineSpan, error) {
	idx, err := w.emit(Token{Type: TROpen, Tag: "tr", Nesting: Open})
	if err != nil {
		return nil, err
	}
	openType, closeType, tag := TDOpen, TDClose, "td"
	if header {
		openType, closeType, tag = THOpen, THClose, "th"
	}
	var span *LineSpan
	for c := r.FirstChild(); c != nil; c = c.NextSibling() {
		cell, ok := c.(*extast.TableCell)
		if !ok {
			continue
		}
		cs := w.linesSpan(cell.Lines())
		span = union(span, cs)
		var attrs map[string]string
		if a, ok := alignNames[cell.Alignment]; ok {
			attrs = map[string]string{"align": a}
		}
		if cs != nil {
			w.blockLine = cs.Start
		}
		if _, err := w.emit(Token{Type: openType, Tag: tag, Nesting: Open, Map: cs, Attrs: attrs}); err != nil {
			return nil, err
		}
		if err := w.inlines(cell); err != nil {
			return nil, err
		}
		if _, err := w.emit(Token{Type: closeType, Tag: tag, Nesting: Close}); err != nil {
			return nil, err
		}
	}
	if span != nil {
		cp := *span
		w.out[idx].Map = &cp
	}
	_, err = w.emit(Token{Type: TRClose, Tag: "tr", Nesting: Close})
	return span, err
}

func (w *walker) inlines(n ast.Node) error {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if err := w.inline(c); err != nil {
			return err
		}
	}
	return nil
}

// inlineMap returns the line of the first text segment under n, falling
// back to the enclosing block's first line.
func (w *walker) inlineMap(n ast.Node) *LineSpan {
	line := -1
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			line = w.lineOf(t.Segment.Start)
			return ast.WalkStop, nil
		case *ast.RawHTML:
			if t.Segments.Len() > 0 {
				line = w.lineOf(t.Segments.At(0).Start)
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	if line < 0 {
		line = w.blockLine
	}
	return &LineSpan{Start: line, End: line + 1}
}

func (w *walker) plainText(n ast.Node) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(w.src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.Label(w.src))
		case *ast.RawHTML:
			for i := 0; i < t.Segments.Len(); i++ {
				seg := t.Segments.At(i)
				buf.Write(seg.Value(w.src))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func (w *walker) inline(n ast.Node) error {
	var err error
	switch node := n.(type) {
	case *ast.Text:
		_, err = w.emit(Token{Type: Text, Nesting: Self, Map: w.inlineMap(node), Content: string(node.Value(w.src))})
		if err == nil && node.HardLineBreak() {
			_, err = w.emit(Token{Type: Hardbreak, Tag: "br", Nesting: Self})
		} else if err == nil && node.SoftLineBreak() {
			_, err = w.emit(Token{Type: Softbreak, Tag: "br", Nesting: Self})
		}

	case *ast.String:
		_, err = w.emit(Token{Type: Text, Nesting: Self, Map: w.inlineMap(node), Content: string(node.Value)})

	case *ast.CodeSpan:
		_, err = w.emit(Token{Type: CodeInline, Tag: "code", Nesting: Self, Map: w.inlineMap(node), Content: w.plainText(node), Markup: "`"})

	case *ast.Emphasis:
		typ, closeType, tag, markup := EmOpen, EmClose, "em", "*"
		if node.Level >= 2 {
			typ, closeType, tag, markup = StrongOpen, StrongClose, "strong", "**"
		}
		err = w.wrap(node, Token{Type: typ, Tag: tag, Markup: markup}, closeType)

	case *extast.Strikethrough:
		err = w.wrap(node, Token{Type: StrikeOpen, Tag: "s", Markup: "~~"}, StrikeClose)

	case *ast.Link:
		attrs := map[string]string{"href": string(node.Destination)}
		if len(node.Title) > 0 {
			attrs["title"] = string(node.Title)
		}
		err = w.wrap(node, Token{Type: LinkOpen, Tag: "a", Attrs: attrs, Map: w.inlineMap(node)}, LinkClose)

	case *ast.AutoLink:
		href := string(node.URL(w.src))
		info := "url"
		if node.AutoLinkType == ast.AutoLinkEmail {
			info = "email"
			if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
				href = "mailto:" + href
			}
		}
		m := w.inlineMap(node)
		if _, err = w.emit(Token{Type: LinkOpen, Tag: "a", Nesting: Open, Map: m, Info: info, Markup: "autolink", Attrs: map[string]string{"href": href}}); err != nil {
			return err
		}
		if _, err = w.emit(Token{Type: Text, Nesting: Self, Map: m, Content: string(node.Label(w.src))}); err != nil {
			return err
		}
		_, err = w.emit(Token{Type: LinkClose, Tag: "a", Nesting: Close, Markup: "autolink"})

	case *ast.Image:
		attrs := map[string]string{"src": string(node.Destination)}
		if len(node.Title) > 0 {
			attrs["title"] = string(node.Title)
		}
		_, err = w.emit(Token{Type: Image, Tag: "img", Nesting: Self, Map: w.inlineMap(node), Content: w.plainText(node), Attrs: attrs})

	case *ast.RawHTML:
		_, err = w.emit(Token{Type: HTMLInline, Nesting: Self, Map: w.inlineMap(node), Content: w.plainText(node)})

	case *extast.TaskCheckBox:
		_, err = w.emit(Token{Type: TaskCheckbox, Tag: "input", Nesting: Self, Map: w.inlineMap(node),
			Attrs: map[string]string{"checked": strconv.FormatBool(node.IsChecked)}})

	case *extast.FootnoteLink:
		_, err = w.emit(Token{Type: FootnoteRef, Nesting: Self, Map: w.inlineMap(node),
			Attrs: map[string]string{"id": strconv.Itoa(node.Index), "label": w.footnotes[node.Index]}})

	case *extast.FootnoteBacklink:
		// rendering artifact

	default:
		err = w.inlines(node)
	}
	return err
}

func (w *walker) wrap(n ast.Node, open Token, closeType string) error {
	open.Nesting = Open
	if _, err := w.emit(open); err != nil {
		return err
	}
	if err := w.inlines(n); err != nil {
		return err
	}
	_, err := w.emit(Token{Type: closeType, Tag: open.Tag, Nesting: Close, Markup: open.Markup})
	return err
}
