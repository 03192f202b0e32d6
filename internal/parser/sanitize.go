package parser

import (
	"regexp"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/dgallion1/mdguard/internal/profile"
	"github.com/dgallion1/mdguard/internal/security"
	"github.com/dgallion1/mdguard/internal/token"
)

// Policy controls Sanitize. An empty Profile means the document's own.
type Policy struct {
	Profile            profile.Name `json:"profile,omitempty"`
	StripDataURIImages bool         `json:"strip_data_uri_images"`
	AllowHTML          bool         `json:"allow_html"`
}

// Sanitized is the outcome of Sanitize.
type Sanitized struct {
	SanitizedText string   `json:"sanitized_text"`
	Blocked       bool     `json:"blocked"`
	Reasons       []string `json:"reasons"`
}

var (
	scriptElemRe = regexp.MustCompile(`(?is)<\s*script\b[^>]*>.*?<\s*/\s*script\s*>`)
	scriptOpenRe = regexp.MustCompile(`(?is)<\s*/?\s*script\b[^>]*>?`)
	eventAttrRe  = regexp.MustCompile(`(?i)[\s/]on[a-z]{2,}\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	// [text](dest "title") and ![alt](dest "title"). Destinations may hold
	// one level of balanced parentheses; nested brackets are not supported.
	inlineLinkRe = regexp.MustCompile(`(!?)\[([^\]\n]*)\]\(\s*<?((?:[^()\s<>]|\([^()\s]*\))*)>?(?:\s+(?:"[^"\n]*"|'[^'\n]*'))?\s*\)`)
	autolinkRe   = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9+.\-]{1,31}:[^\s<>]*)>`)
)

// Sanitize removes executable and disallowed content from the normalized
// text on a best-effort basis. Raw HTML blocks are dropped, or scrubbed
// with bluemonday when the policy allows HTML. The result is blocked when
// a re-scan still finds script constructs or prompt injection.
func (d *Document) Sanitize(pol Policy) (Sanitized, error) {
	th := d.th
	if pol.Profile != "" {
		var err error
		if th, err = profile.Lookup(pol.Profile); err != nil {
			return Sanitized{}, err
		}
	}
	maxData, err := profile.MaxDataURIBytes(string(th.Profile))
	if err != nil {
		return Sanitized{}, err
	}

	var reasons []string
	note := func(r string) {
		if !slices.Contains(reasons, r) {
			reasons = append(reasons, r)
		}
	}

	text := d.replaceHTMLBlocks(th, pol.AllowHTML, note)

	if scriptElemRe.MatchString(text) || scriptOpenRe.MatchString(text) {
		text = scriptElemRe.ReplaceAllString(text, "")
		text = scriptOpenRe.ReplaceAllString(text, "")
		note("script_removed")
	}
	if eventAttrRe.MatchString(text) {
		text = eventAttrRe.ReplaceAllString(text, "")
		note("event_handler_removed")
	}

	text = inlineLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineLinkRe.FindStringSubmatch(m)
		image, label, dest := sub[1] == "!", sub[2], sub[3]
		scheme := security.SchemeOf(dest)
		if image {
			if data, ok := security.ParseDataURI(dest); ok {
				switch {
				case !data.ImageMediaType():
					note("dangerous_data_uri_image_removed")
					return ""
				case pol.StripDataURIImages:
					note("data_uri_image_removed")
					return ""
				case data.Size > maxData:
					note("oversized_data_uri_image_removed")
					return ""
				}
				return m
			}
			if security.IsDangerousScheme(scheme) || (scheme != "" && !th.SchemeAllowed(scheme)) {
				note("disallowed_scheme_image_removed")
				return ""
			}
			return m
		}
		if security.IsDangerousScheme(scheme) || (scheme != "" && !th.SchemeAllowed(scheme)) {
			note("disallowed_scheme_link_removed")
			return label
		}
		return m
	})
	text = autolinkRe.ReplaceAllStringFunc(text, func(m string) string {
		scheme := security.SchemeOf(m[1 : len(m)-1])
		if security.IsDangerousScheme(scheme) || !th.SchemeAllowed(scheme) {
			note("disallowed_scheme_link_removed")
			return ""
		}
		return m
	})

	out := Sanitized{SanitizedText: text, Reasons: reasons}
	if out.Reasons == nil {
		out.Reasons = []string{}
	}
	if st := security.ScanPatterns(text); st.HasScript || st.HasJavaScriptScheme || st.HasVBScriptScheme {
		out.Blocked = true
		out.Reasons = append(out.Reasons, "residual_script")
	}
	if c := security.CheckPromptInjection(text, security.WithProfile(string(th.Profile))); c.Suspected {
		out.Blocked = true
		out.Reasons = append(out.Reasons, "prompt_injection:"+string(c.Reason))
	}
	if out.Blocked {
		d.log.Warn("sanitized text still unsafe", "profile", th.Profile, "reasons", out.Reasons)
	}
	return out, nil
}

// replaceHTMLBlocks rebuilds the text with every html_block span dropped
// or scrubbed.
func (d *Document) replaceHTMLBlocks(th profile.Thresholds, allow bool, note func(string)) string {
	lines := strings.Split(d.text, "\n")
	var pol *bluemonday.Policy
	if allow {
		pol = bluemonday.UGCPolicy()
		pol.AllowURLSchemes(th.AllowedSchemes()...)
	}

	type span struct{ start, end int }
	var spans []span
	for i := range d.tokens {
		t := &d.tokens[i]
		if t.Type == token.HTMLBlock && t.Map != nil {
			spans = append(spans, span{t.Map.Start, min(t.Map.End, len(lines))})
		}
	}
	if len(spans) == 0 {
		return d.text
	}

	out := make([]string, 0, len(lines))
	next := 0
	for _, s := range spans {
		if s.start < next {
			continue
		}
		out = append(out, lines[next:s.start]...)
		if pol != nil {
			block := strings.Join(lines[s.start:s.end], "\n")
			if clean := strings.TrimSpace(pol.Sanitize(block)); clean != "" {
				out = append(out, clean)
			}
			note("html_block_sanitized")
		} else {
			note("html_block_removed")
		}
		next = s.end
	}
	out = append(out, lines[next:]...)
	return strings.Join(out, "\n")
}
