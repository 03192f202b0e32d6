package security

import (
	"regexp"
)

// PatternStats names the dangerous constructs found in raw text. The scan
// runs on decoded text before line-ending and composition normalization.
type PatternStats struct {
	HasScript           bool     `json:"has_script"`
	HasEventHandlers    bool     `json:"has_event_handlers"`
	HasJavaScriptScheme bool     `json:"has_javascript_scheme"`
	HasVBScriptScheme   bool     `json:"has_vbscript_scheme"`
	HasDataURI          bool     `json:"has_data_uri"`
	HasDangerousDataURI bool     `json:"has_dangerous_data_uri"`
	HasFileScheme       bool     `json:"has_file_scheme"`
	HasCSSScript        bool     `json:"has_css_script"`
	HasMetaRefresh      bool     `json:"has_meta_refresh"`
	HasFrameLike        bool     `json:"has_frame_like"`
	HasStyleTag         bool     `json:"has_style_tag"`
	EventHandlers       []string `json:"event_handlers,omitempty"`
}

var (
	scriptTagRe    = regexp.MustCompile(`(?i)<\s*/?\s*script\b`)
	eventHandlerRe = regexp.MustCompile(`(?is)<[a-z][^>]*?[\s/"'](on[a-z]{2,})\s*=`)
	jsSchemeRe     = regexp.MustCompile(`(?i)j[\s\x00]*a[\s\x00]*v[\s\x00]*a[\s\x00]*s[\s\x00]*c[\s\x00]*r[\s\x00]*i[\s\x00]*p[\s\x00]*t[\s\x00]*:`)
	vbSchemeRe     = regexp.MustCompile(`(?i)v[\s\x00]*b[\s\x00]*s[\s\x00]*c[\s\x00]*r[\s\x00]*i[\s\x00]*p[\s\x00]*t[\s\x00]*:`)
	dataURIRe      = regexp.MustCompile(`(?i)\bdata\s*:\s*[a-z]+/[a-z0-9.+-]+\s*[;,]`)
	dangerDataRe   = regexp.MustCompile(`(?i)\bdata\s*:\s*(text/html|text/javascript|application/(x-)?javascript|application/xhtml\+xml|image/svg\+xml)`)
	fileSchemeRe   = regexp.MustCompile(`(?i)\bfile\s*:\s*/`)
	cssScriptRe    = regexp.MustCompile(`(?i)expression\s*\(|url\s*\(\s*['"]?\s*(javascript|vbscript)\s*:|behavior\s*:|-moz-binding|@import\s+['"]?\s*(javascript|vbscript)\s*:`)
	metaRefreshRe  = regexp.MustCompile(`(?i)<\s*meta\b[^>]*http-equiv\s*=\s*["']?\s*refresh`)
	frameLikeRe    = regexp.MustCompile(`(?i)<\s*(iframe|frame|frameset|object|embed|applet)\b`)
	styleTagRe     = regexp.MustCompile(`(?i)<\s*style\b`)
)

// ScanPatterns runs the raw-text pattern detectors over text.
func ScanPatterns(text string) PatternStats {
	st := PatternStats{
		HasScript:           scriptTagRe.MatchString(text),
		HasJavaScriptScheme: jsSchemeRe.MatchString(text),
		HasVBScriptScheme:   vbSchemeRe.MatchString(text),
		HasDataURI:          dataURIRe.MatchString(text),
		HasDangerousDataURI: dangerDataRe.MatchString(text),
		HasFileScheme:       fileSchemeRe.MatchString(text),
		HasCSSScript:        cssScriptRe.MatchString(text),
		HasMetaRefresh:      metaRefreshRe.MatchString(text),
		HasFrameLike:        frameLikeRe.MatchString(text),
		HasStyleTag:         styleTagRe.MatchString(text),
	}
	seen := map[string]bool{}
	for _, m := range eventHandlerRe.FindAllStringSubmatch(text, 50) {
		st.HasEventHandlers = true
		if !seen[m[1]] {
			seen[m[1]] = true
			st.EventHandlers = append(st.EventHandlers, m[1])
		}
	}
	return st
}

// Merge folds other into st.
func (st *PatternStats) Merge(other PatternStats) {
	st.HasScript = st.HasScript || other.HasScript
	st.HasEventHandlers = st.HasEventHandlers || other.HasEventHandlers
	st.HasJavaScriptScheme = st.HasJavaScriptScheme || other.HasJavaScriptScheme
	st.HasVBScriptScheme = st.HasVBScriptScheme || other.HasVBScriptScheme
	st.HasDataURI = st.HasDataURI || other.HasDataURI
	st.HasDangerousDataURI = st.HasDangerousDataURI || other.HasDangerousDataURI
	st.HasFileScheme = st.HasFileScheme || other.HasFileScheme
	st.HasCSSScript = st.HasCSSScript || other.HasCSSScript
	st.HasMetaRefresh = st.HasMetaRefresh || other.HasMetaRefresh
	st.HasFrameLike = st.HasFrameLike || other.HasFrameLike
	st.HasStyleTag = st.HasStyleTag || other.HasStyleTag
	for _, h := range other.EventHandlers {
		dup := false
		for _, e := range st.EventHandlers {
			if e == h {
				dup = true
				break
			}
		}
		if !dup {
			st.EventHandlers = append(st.EventHandlers, h)
		}
	}
}

// Dangerous reports whether any script-capable construct was found.
func (st PatternStats) Dangerous() bool {
	return st.HasScript || st.HasJavaScriptScheme || st.HasVBScriptScheme || st.HasDangerousDataURI
}
