package security

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLFindings summarizes a raw HTML fragment.
type HTMLFindings struct {
	Tags          []string `json:"tags,omitempty"`
	Script        bool     `json:"script"`
	Style         bool     `json:"style"`
	FrameLike     bool     `json:"frame_like"`
	MetaRefresh   bool     `json:"meta_refresh"`
	Form          bool     `json:"form"`
	EventHandlers []string `json:"event_handlers,omitempty"`
	DangerousURLs []string `json:"dangerous_urls,omitempty"`
	CSSScript     bool     `json:"css_script"`
}

// Suspicious reports whether anything beyond plain markup was found.
func (f HTMLFindings) Suspicious() bool {
	return f.Script || f.FrameLike || f.MetaRefresh || f.CSSScript ||
		len(f.EventHandlers) > 0 || len(f.DangerousURLs) > 0
}

var urlAttrs = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"xlink:href": true, "data": true, "poster": true, "background": true, "srcset": true,
}

var frameTags = map[string]bool{
	"iframe": true, "frame": true, "frameset": true, "object": true, "embed": true, "applet": true,
}

// InspectHTML tokenizes fragment with the x/net/html tokenizer, so
// character references in attribute values are decoded before checking.
func InspectHTML(fragment string) HTMLFindings {
	var f HTMLFindings
	seenTag := map[string]bool{}
	seenHandler := map[string]bool{}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// Malformed input still gets the raw pattern scan.
				f.merge(ScanPatterns(fragment))
			}
			return f
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		name := strings.ToLower(tok.Data)
		if !seenTag[name] {
			seenTag[name] = true
			f.Tags = append(f.Tags, name)
		}
		switch {
		case name == "script":
			f.Script = true
		case name == "style":
			f.Style = true
		case frameTags[name]:
			f.FrameLike = true
		case name == "form":
			f.Form = true
		}
		for _, a := range tok.Attr {
			key := strings.ToLower(a.Key)
			val := a.Val
			switch {
			case strings.HasPrefix(key, "on"):
				if !seenHandler[key] {
					seenHandler[key] = true
					f.EventHandlers = append(f.EventHandlers, key)
				}
			case urlAttrs[key]:
				if IsDangerousScheme(SchemeOf(val)) {
					f.DangerousURLs = append(f.DangerousURLs, val)
				}
			case key == "style":
				if cssScriptRe.MatchString(val) {
					f.CSSScript = true
				}
			case key == "http-equiv" && name == "meta":
				if strings.EqualFold(strings.TrimSpace(val), "refresh") {
					f.MetaRefresh = true
				}
			}
		}
	}
}

func (f *HTMLFindings) merge(st PatternStats) {
	f.Script = f.Script || st.HasScript
	f.FrameLike = f.FrameLike || st.HasFrameLike
	f.MetaRefresh = f.MetaRefresh || st.HasMetaRefresh
	f.CSSScript = f.CSSScript || st.HasCSSScript
	f.EventHandlers = append(f.EventHandlers, st.EventHandlers...)
}

// Stats converts findings into pattern statistics.
func (f HTMLFindings) Stats() PatternStats {
	st := PatternStats{
		HasScript:        f.Script,
		HasStyleTag:      f.Style,
		HasFrameLike:     f.FrameLike,
		HasMetaRefresh:   f.MetaRefresh,
		HasCSSScript:     f.CSSScript,
		HasEventHandlers: len(f.EventHandlers) > 0,
		EventHandlers:    f.EventHandlers,
	}
	for _, u := range f.DangerousURLs {
		switch SchemeOf(u) {
		case "javascript":
			st.HasJavaScriptScheme = true
		case "vbscript":
			st.HasVBScriptScheme = true
		case "file":
			st.HasFileScheme = true
		case "data":
			st.HasDataURI = true
			st.HasDangerousDataURI = true
		}
	}
	return st
}
