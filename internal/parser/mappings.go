package parser

import (
	"strings"

	"github.com/dgallion1/mdguard/internal/section"
	"github.com/dgallion1/mdguard/internal/token"
)

// lineKinds lists block token types in ascending precedence. Later kinds
// overwrite earlier ones; code also claims blank lines.
var lineKinds = []struct {
	typ  string
	kind string
}{
	{token.ListItemOpen, LineList},
	{token.BlockquoteOpen, LineBlockquote},
	{token.HeadingOpen, LineHeading},
	{token.TableOpen, LineTable},
	{token.HTMLBlock, LineHTML},
	{token.CodeBlock, LineCode},
	{token.Fence, LineCode},
}

func buildMappings(lines []string, toks []token.Token, ix *section.Index) Mappings {
	m := Mappings{
		LineToType:    make([]string, len(lines)),
		LineToSection: make([]string, len(lines)),
		CodeBlocks:    []CodeSpan{},
		CodeLines:     []int{},
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			m.LineToType[i] = LineBlank
		} else {
			m.LineToType[i] = LineProse
		}
		if s, ok := ix.Lookup(i); ok {
			m.LineToSection[i] = s.ID
		}
	}

	byType := map[string][]int{}
	for i := range toks {
		if toks[i].Map != nil {
			byType[toks[i].Type] = append(byType[toks[i].Type], i)
		}
	}
	for _, lk := range lineKinds {
		for _, ti := range byType[lk.typ] {
			span := toks[ti].Map
			for l := max(span.Start, 0); l < min(span.End, len(lines)); l++ {
				if lk.kind == LineCode || m.LineToType[l] != LineBlank {
					m.LineToType[l] = lk.kind
				}
			}
		}
	}

	// Code blocks in document order.
	for i := range toks {
		t := &toks[i]
		if (t.Type != token.Fence && t.Type != token.CodeBlock) || t.Map == nil {
			continue
		}
		lang, _, _ := strings.Cut(t.Info, " ")
		m.CodeBlocks = append(m.CodeBlocks, CodeSpan{StartLine: t.Map.Start, EndLine: t.Map.End - 1, Language: lang})
	}
	for l, kind := range m.LineToType {
		if kind == LineCode {
			m.CodeLines = append(m.CodeLines, l)
		}
	}
	return m
}
