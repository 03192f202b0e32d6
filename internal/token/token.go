// Package token defines the flat token stream the warehouse indexes and the
// adapter that produces it from a goldmark AST.
package token

import "strings"

// Nesting says whether a token opens, closes, or is self-contained.
type Nesting int

const (
	Close Nesting = -1
	Self  Nesting = 0
	Open  Nesting = 1
)

// LineSpan is a 0-indexed source line range; End is exclusive.
type LineSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line falls inside the span.
func (s *LineSpan) Contains(line int) bool {
	return s != nil && line >= s.Start && line < s.End
}

// Token is one element of the stream. Tokens are not modified after
// FromMarkdown returns.
type Token struct {
	Type    string            `json:"type"`
	Tag     string            `json:"tag"`
	Nesting Nesting           `json:"nesting"`
	Level   int               `json:"level"`
	Map     *LineSpan         `json:"map,omitempty"`
	Info    string            `json:"info,omitempty"`
	Content string            `json:"content,omitempty"`
	Markup  string            `json:"markup,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Attr returns the named attribute or "".
func (t *Token) Attr(name string) string {
	if t.Attrs == nil {
		return ""
	}
	return t.Attrs[name]
}

// StartLine returns the first source line or -1 when the token has no map.
func (t *Token) StartLine() int {
	if t.Map == nil {
		return -1
	}
	return t.Map.Start
}

// Token types.
const (
	HeadingOpen        = "heading_open"
	HeadingClose       = "heading_close"
	ParagraphOpen      = "paragraph_open"
	ParagraphClose     = "paragraph_close"
	Text               = "text"
	CodeInline         = "code_inline"
	Softbreak          = "softbreak"
	Hardbreak          = "hardbreak"
	EmOpen             = "em_open"
	EmClose            = "em_close"
	StrongOpen         = "strong_open"
	StrongClose        = "strong_close"
	StrikeOpen         = "s_open"
	StrikeClose        = "s_close"
	LinkOpen           = "link_open"
	LinkClose          = "link_close"
	Image              = "image"
	HTMLInline         = "html_inline"
	HTMLBlock          = "html_block"
	Fence              = "fence"
	CodeBlock          = "code_block"
	HR                 = "hr"
	BlockquoteOpen     = "blockquote_open"
	BlockquoteClose    = "blockquote_close"
	BulletListOpen     = "bullet_list_open"
	BulletListClose    = "bullet_list_close"
	OrderedListOpen    = "ordered_list_open"
	OrderedListClose   = "ordered_list_close"
	ListItemOpen       = "list_item_open"
	ListItemClose      = "list_item_close"
	TaskCheckbox       = "task_checkbox"
	TableOpen          = "table_open"
	TableClose         = "table_close"
	THeadOpen          = "thead_open"
	THeadClose         = "thead_close"
	TBodyOpen          = "tbody_open"
	TBodyClose         = "tbody_close"
	TROpen             = "tr_open"
	TRClose            = "tr_close"
	THOpen             = "th_open"
	THClose            = "th_close"
	TDOpen             = "td_open"
	TDClose            = "td_close"
	FootnoteRef        = "footnote_ref"
	FootnoteBlockOpen  = "footnote_block_open"
	FootnoteBlockClose = "footnote_block_close"
	FootnoteOpen       = "footnote_open"
	FootnoteClose      = "footnote_close"
)

// CloseOf maps an _open type to its _close type.
func CloseOf(openType string) string {
	if base, ok := strings.CutSuffix(openType, "_open"); ok {
		return base + "_close"
	}
	return ""
}
