package parser

import (
	"github.com/dgallion1/mdguard/internal/budget"
	"github.com/dgallion1/mdguard/internal/collect"
	"github.com/dgallion1/mdguard/internal/profile"
	"github.com/dgallion1/mdguard/internal/section"
	"github.com/dgallion1/mdguard/internal/security"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// Result is the structured, security-annotated output of Parse.
type Result struct {
	Content   Content   `json:"content"`
	Structure Structure `json:"structure"`
	Mappings  Mappings  `json:"mappings"`
	Metadata  Metadata  `json:"metadata"`
}

// Content holds the decoded input. Raw is the text before line-ending and
// composition normalization; Lines are normalized.
type Content struct {
	Raw   string   `json:"raw"`
	Lines []string `json:"lines"`
}

type Structure struct {
	Sections    []section.Section      `json:"sections"`
	Headings    []collect.Heading      `json:"headings"`
	Links       []collect.Link         `json:"links"`
	Images      []collect.Image        `json:"images"`
	Tables      []collect.Table        `json:"tables"`
	CodeBlocks  []collect.CodeBlock    `json:"code_blocks"`
	Lists       []collect.List         `json:"lists"`
	Blockquotes []collect.Blockquote   `json:"blockquotes"`
	Footnotes   []collect.Footnote     `json:"footnotes"`
	HTMLBlocks  []collect.HTMLFragment `json:"html_blocks"`
	Paragraphs  []collect.Paragraph    `json:"paragraphs"`
}

// Line kinds used in Mappings.LineToType.
const (
	LineBlank      = "blank"
	LineCode       = "code"
	LineHeading    = "heading"
	LineTable      = "table"
	LineHTML       = "html"
	LineBlockquote = "blockquote"
	LineList       = "list"
	LineProse      = "prose"
)

// Mappings index the normalized lines. LineToSection holds "" for lines
// outside every section.
type Mappings struct {
	LineToType    []string   `json:"line_to_type"`
	LineToSection []string   `json:"line_to_section"`
	CodeBlocks    []CodeSpan `json:"code_blocks"`
	CodeLines     []int      `json:"code_lines"`
}

// CodeSpan is the inclusive line range of one code block.
type CodeSpan struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Language  string `json:"language,omitempty"`
}

type Metadata struct {
	Security          Security       `json:"security"`
	Quarantined       bool           `json:"quarantined"`
	QuarantineReasons []string       `json:"quarantine_reasons"`
	NodeCounts        map[string]int `json:"node_counts"`
	TotalLines        int            `json:"total_lines"`
	Encoding          string         `json:"encoding"`
	Confidence        float64        `json:"encoding_confidence"`
}

type Security struct {
	ProfileUsed profile.Name `json:"profile_used"`
	Statistics  Statistics   `json:"statistics"`
	Warnings    []string     `json:"warnings"`
}

// Statistics are the named signals the guard layer interprets. The raw
// pattern flags are inlined so has_script etc. sit at the top level.
type Statistics struct {
	security.PatternStats

	Unicode         security.UnicodeReport `json:"unicode"`
	PromptInjection InjectionStats         `json:"prompt_injection"`

	PathTraversal      bool        `json:"has_path_traversal"`
	PathTraversalCount int         `json:"path_traversal_count"`
	DisallowedSchemes  []string    `json:"disallowed_schemes,omitempty"`
	DangerousLinks     int         `json:"dangerous_links"`
	DangerousImages    int         `json:"dangerous_images"`
	BlockedImages      int         `json:"blocked_images"`
	RawHTML            int         `json:"raw_html"`
	SuspiciousHTML     int         `json:"suspicious_html"`
	RaggedTables       int         `json:"ragged_tables"`
	DataURIs           budget.URIs `json:"data_uris"`

	Truncated       []string                   `json:"truncated,omitempty"`
	CollectorErrors []warehouse.CollectorError `json:"collector_errors,omitempty"`
}

// InjectionStats holds one injection verdict per text category.
type InjectionStats struct {
	Content   security.PromptInjectionCheck `json:"content"`
	Links     security.PromptInjectionCheck `json:"links"`
	Images    security.PromptInjectionCheck `json:"images"`
	Code      security.PromptInjectionCheck `json:"code"`
	Tables    security.PromptInjectionCheck `json:"tables"`
	Footnotes security.PromptInjectionCheck `json:"footnotes"`
}

// Any reports whether any category is suspected.
func (s InjectionStats) Any() bool {
	return s.Content.Suspected || s.Links.Suspected || s.Images.Suspected ||
		s.Code.Suspected || s.Tables.Suspected || s.Footnotes.Suspected
}

// Suspected lists the categories with a suspected verdict.
func (s InjectionStats) Suspected() []string {
	var out []string
	for _, c := range []struct {
		name  string
		check security.PromptInjectionCheck
	}{
		{"content", s.Content}, {"links", s.Links}, {"images", s.Images},
		{"code", s.Code}, {"tables", s.Tables}, {"footnotes", s.Footnotes},
	} {
		if c.check.Suspected {
			out = append(out, c.name)
		}
	}
	return out
}
