package collect

import (
	"strings"

	"github.com/dgallion1/mdguard/internal/security"
	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// Paragraph is one paragraph of prose.
type Paragraph struct {
	Text      string `json:"text"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type Paragraphs struct {
	accept
	c capped[Paragraph]
}

// NewParagraphs collects paragraph text and line spans.
func NewParagraphs() *Paragraphs { return &Paragraphs{c: newCapped[Paragraph](MaxParagraphs)} }

// Name identifies the collector in errors and quarantine reasons.
func (p *Paragraphs) Name() string { return "paragraphs" }

// Interest routes paragraph_open tokens here.
func (p *Paragraphs) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.ParagraphOpen}}
}

func (p *Paragraphs) OnToken(idx int, tok token.Token, w *warehouse.Warehouse) error {
	if p.c.full() {
		return nil
	}
	p.c.add(Paragraph{
		Text:      strings.TrimSpace(w.TextBetween(idx, w.PairOf(idx))),
		StartLine: tok.StartLine(),
		EndLine:   endLine(tok),
	})
	return nil
}

func (p *Paragraphs) Finalize(*warehouse.Warehouse) (any, error) { return p.c.result(), nil }

// Result returns the collected paragraphs so far.
func (p *Paragraphs) Result() Result[Paragraph] { return p.c.result() }

// CodeBlock is a fenced or indented code block. Line numbers include the
// fences.
type CodeBlock struct {
	Language  string `json:"language,omitempty"`
	Info      string `json:"info,omitempty"`
	Content   string `json:"content"`
	Fenced    bool   `json:"fenced"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type CodeBlocks struct {
	accept
	c capped[CodeBlock]
}

// NewCodeBlocks collects fenced and indented code blocks.
func NewCodeBlocks() *CodeBlocks { return &CodeBlocks{c: newCapped[CodeBlock](MaxCodeBlocks)} }

// Name identifies the collector in errors and quarantine reasons.
func (c *CodeBlocks) Name() string { return "code_blocks" }

// Interest routes fence and code_block tokens here.
func (c *CodeBlocks) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.Fence, token.CodeBlock}}
}

func (c *CodeBlocks) OnToken(_ int, tok token.Token, _ *warehouse.Warehouse) error {
	if c.c.full() {
		return nil
	}
	lang, _, _ := strings.Cut(tok.Info, " ")
	c.c.add(CodeBlock{
		Language:  lang,
		Info:      tok.Info,
		Content:   tok.Content,
		Fenced:    tok.Type == token.Fence,
		StartLine: tok.StartLine(),
		EndLine:   endLine(tok),
	})
	return nil
}

func (c *CodeBlocks) Finalize(*warehouse.Warehouse) (any, error) { return c.c.result(), nil }

// Result returns the collected code blocks so far.
func (c *CodeBlocks) Result() Result[CodeBlock] { return c.c.result() }

// Blockquote is one quoted block; Depth 1 is outermost.
type Blockquote struct {
	Text      string `json:"text"`
	Depth     int    `json:"depth"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type Blockquotes struct {
	accept
	c capped[Blockquote]
}

// NewBlockquotes collects blockquotes, nested ones included.
func NewBlockquotes() *Blockquotes { return &Blockquotes{c: newCapped[Blockquote](MaxBlockquotes)} }

// Name identifies the collector in errors and quarantine reasons.
func (b *Blockquotes) Name() string { return "blockquotes" }

// Interest routes blockquote_open tokens here.
func (b *Blockquotes) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.BlockquoteOpen}}
}

func (b *Blockquotes) OnToken(idx int, tok token.Token, w *warehouse.Warehouse) error {
	if b.c.full() {
		return nil
	}
	depth := 1
	for p := w.Parent(idx); p >= 0; p = w.Parent(p) {
		if w.Token(p).Type == token.BlockquoteOpen {
			depth++
		}
	}
	b.c.add(Blockquote{
		Text:      strings.TrimSpace(w.TextBetween(idx, w.PairOf(idx))),
		Depth:     depth,
		StartLine: tok.StartLine(),
		EndLine:   endLine(tok),
	})
	return nil
}

func (b *Blockquotes) Finalize(*warehouse.Warehouse) (any, error) { return b.c.result(), nil }

// Result returns the collected blockquotes so far.
func (b *Blockquotes) Result() Result[Blockquote] { return b.c.result() }

// HTMLFragment is a raw HTML block or inline tag.
type HTMLFragment struct {
	Inline    bool                  `json:"inline"`
	Content   string                `json:"content"`
	StartLine int                   `json:"start_line"`
	EndLine   int                   `json:"end_line"`
	Findings  security.HTMLFindings `json:"findings"`
}

type HTMLBlocks struct {
	accept
	c capped[HTMLFragment]
}

// NewHTMLBlocks collects raw HTML blocks and inline HTML with their findings.
func NewHTMLBlocks() *HTMLBlocks { return &HTMLBlocks{c: newCapped[HTMLFragment](MaxHTML)} }

// Name identifies the collector in errors and quarantine reasons.
func (h *HTMLBlocks) Name() string { return "html" }

// Interest routes html_block and html_inline tokens here.
func (h *HTMLBlocks) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.HTMLBlock, token.HTMLInline}}
}

func (h *HTMLBlocks) OnToken(_ int, tok token.Token, _ *warehouse.Warehouse) error {
	if h.c.full() {
		return nil
	}
	h.c.add(HTMLFragment{
		Inline:    tok.Type == token.HTMLInline,
		Content:   tok.Content,
		StartLine: tok.StartLine(),
		EndLine:   endLine(tok),
		Findings:  security.InspectHTML(tok.Content),
	})
	return nil
}

func (h *HTMLBlocks) Finalize(*warehouse.Warehouse) (any, error) { return h.c.result(), nil }

// Result returns the collected HTML fragments so far.
func (h *HTMLBlocks) Result() Result[HTMLFragment] { return h.c.result() }

// Footnote is a footnote definition; References counts its uses.
type Footnote struct {
	Label      string `json:"label"`
	Text       string `json:"text"`
	Line       int    `json:"line"`
	References int    `json:"references"`
}

type Footnotes struct {
	accept
	c    capped[Footnote]
	refs map[string]int
}

// NewFootnotes collects footnote definitions.
func NewFootnotes() *Footnotes {
	return &Footnotes{c: newCapped[Footnote](MaxFootnotes), refs: map[string]int{}}
}

// Name identifies the collector in errors and quarantine reasons.
func (f *Footnotes) Name() string { return "footnotes" }

// Interest routes footnote_open and footnote_ref tokens here.
func (f *Footnotes) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.FootnoteOpen, token.FootnoteRef}}
}

func (f *Footnotes) OnToken(idx int, tok token.Token, w *warehouse.Warehouse) error {
	if tok.Type == token.FootnoteRef {
		f.refs[tok.Attr("label")]++
		return nil
	}
	if f.c.full() {
		return nil
	}
	f.c.add(Footnote{
		Label: tok.Attr("label"),
		Text:  strings.TrimSpace(w.TextBetween(idx, w.PairOf(idx))),
		Line:  tok.StartLine(),
	})
	return nil
}

func (f *Footnotes) Finalize(*warehouse.Warehouse) (any, error) {
	for i := range f.c.items {
		f.c.items[i].References = f.refs[f.c.items[i].Label]
	}
	return f.c.result(), nil
}

// Result returns the collected footnotes so far.
func (f *Footnotes) Result() Result[Footnote] { return f.c.result() }
