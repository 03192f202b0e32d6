package parser

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/mdguard/internal/budget"
	"github.com/dgallion1/mdguard/internal/collect"
	"github.com/dgallion1/mdguard/internal/profile"
	"github.com/dgallion1/mdguard/internal/security"
)

// assessSecurity folds raw pattern statistics, collector findings and the
// text validators into one Security record.
func assessSecurity(th profile.Thresholds, raw security.PatternStats, text string, set *collect.Set, uris *budget.URIs) Security {
	sec := Security{ProfileUsed: th.Profile, Warnings: []string{}}
	st := &sec.Statistics
	st.PatternStats = raw
	st.DataURIs = *uris

	for _, h := range set.HTML.Result().Items {
		st.RawHTML++
		st.Merge(h.Findings.Stats())
		if h.Findings.Suspicious() {
			st.SuspiciousHTML++
			sec.Warnings = append(sec.Warnings, fmt.Sprintf("suspicious raw HTML at line %d", h.StartLine))
		}
	}

	links := set.Links.Result().Items
	for _, l := range links {
		markScheme(st, l.Scheme)
		if l.Dangerous {
			st.DangerousLinks++
			sec.Warnings = append(sec.Warnings, fmt.Sprintf("link with dangerous scheme %q at line %d", l.Scheme, l.Line))
		} else if !l.Allowed {
			addScheme(st, l.Scheme)
			sec.Warnings = append(sec.Warnings, fmt.Sprintf("link with disallowed scheme %q at line %d", l.Scheme, l.Line))
		}
		if l.PathTraversal {
			st.PathTraversalCount++
		}
	}
	images := set.Images.Result().Items
	for _, im := range images {
		if im.DataURI == nil {
			markScheme(st, im.Scheme)
		}
		if im.Dangerous {
			st.DangerousImages++
		}
		if im.Blocked {
			st.BlockedImages++
		}
		if im.DataURI == nil && !im.Allowed && !im.Dangerous {
			addScheme(st, im.Scheme)
		}
		if im.PathTraversal {
			st.PathTraversalCount++
		}
	}
	st.PathTraversal = st.PathTraversalCount > 0
	if st.PathTraversal {
		sec.Warnings = append(sec.Warnings, fmt.Sprintf("%d link or image targets look like path traversal", st.PathTraversalCount))
	}

	for _, t := range set.Tables.Result().Items {
		if t.IsRagged || len(t.MalformedLineNumbers) > 0 {
			st.RaggedTables++
			sec.Warnings = append(sec.Warnings, fmt.Sprintf("table at line %d is not well-formed", t.StartLine))
		}
	}

	st.Unicode = security.ScanUnicode(text, th.MaxUnicodeScanRunes)
	if st.Unicode.ScanLimitExceeded {
		sec.Warnings = append(sec.Warnings, fmt.Sprintf("unicode scan stopped after %d runes", st.Unicode.ScannedRunes))
	}
	if st.Unicode.BiDiControls > 0 {
		sec.Warnings = append(sec.Warnings, fmt.Sprintf("%d bidi control characters", st.Unicode.BiDiControls))
	}

	st.PromptInjection = scanInjection(th, text, set)
	for _, cat := range st.PromptInjection.Suspected() {
		sec.Warnings = append(sec.Warnings, "possible prompt injection in "+cat)
	}
	return sec
}

func markScheme(st *Statistics, scheme string) {
	switch scheme {
	case "javascript":
		st.HasJavaScriptScheme = true
	case "vbscript":
		st.HasVBScriptScheme = true
	case "file":
		st.HasFileScheme = true
	case "data":
		st.HasDataURI = true
	}
}

func addScheme(st *Statistics, scheme string) {
	if scheme != "" && !slices.Contains(st.DisallowedSchemes, scheme) {
		st.DisallowedSchemes = append(st.DisallowedSchemes, scheme)
	}
}

// scanInjection checks the document text and each auxiliary text category
// separately, each with its own scan window.
func scanInjection(th profile.Thresholds, text string, set *collect.Set) InjectionStats {
	opt := security.WithProfile(string(th.Profile))

	var linkTexts, imageTexts, codeTexts, tableTexts, noteTexts []string
	for _, l := range set.Links.Result().Items {
		linkTexts = append(linkTexts, l.Title, l.Text)
	}
	for _, im := range set.Images.Result().Items {
		imageTexts = append(imageTexts, im.Alt, im.Title)
	}
	for _, c := range set.Code.Result().Items {
		codeTexts = append(codeTexts, c.Content)
	}
	for _, t := range set.Tables.Result().Items {
		tableTexts = append(tableTexts, strings.Join(t.Headers, " | "))
		for _, row := range t.Rows {
			tableTexts = append(tableTexts, strings.Join(row, " | "))
		}
	}
	for _, f := range set.Footnotes.Result().Items {
		noteTexts = append(noteTexts, f.Text)
	}

	return InjectionStats{
		Content:   security.CheckPromptInjection(text, opt),
		Links:     security.ScanAll(linkTexts, opt),
		Images:    security.ScanAll(imageTexts, opt),
		Code:      security.ScanAll(codeTexts, opt),
		Tables:    security.ScanAll(tableTexts, opt),
		Footnotes: security.ScanAll(noteTexts, opt),
	}
}
