// Package guard turns a finished parse result into a usage decision for
// retrieval pipelines. It only reads statistics; it never re-analyzes text.
package guard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/mdguard/internal/errs"
	"github.com/dgallion1/mdguard/internal/parser"
)

// Severity is ordered: a higher value is worse.
type Severity int

const (
	None Severity = iota
	Low
	Medium
	High
	Critical
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < None || s > Critical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	for i, n := range severityNames {
		if strings.EqualFold(string(b), n) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}

// Unicode risk score thresholds.
const (
	UnicodeWarnScore   = 1
	UnicodeMediumScore = 10
)

// Decision is the verdict for one document. Build it with ForRAG.
type Decision struct {
	Severity         Severity `json:"severity"`
	Blocked          bool     `json:"blocked"`
	SafeForEmbedding bool     `json:"safe_for_embedding"`
	SafeForTools     bool     `json:"safe_for_tools"`
	Reasons          []string `json:"reasons"`
	Warnings         []string `json:"warnings"`
}

type builder struct {
	d Decision
}

func (b *builder) raise(s Severity) {
	if s > b.d.Severity {
		b.d.Severity = s
	}
}

func (b *builder) reason(s Severity, r string) {
	b.raise(s)
	b.d.Reasons = append(b.d.Reasons, r)
}

func (b *builder) warn(s Severity, w string) {
	b.raise(s)
	b.d.Warnings = append(b.d.Warnings, w)
}

// ForRAG interprets r. Every check escalates independently and the final
// severity is the maximum observed. A nil result is critical.
func ForRAG(r *parser.Result) Decision {
	b := &builder{d: Decision{SafeForEmbedding: true, SafeForTools: true, Reasons: []string{}, Warnings: []string{}}}
	if r == nil {
		b.reason(Critical, "no parse result")
		b.d.SafeForEmbedding, b.d.SafeForTools = false, false
		b.d.Blocked = true
		return b.d
	}
	md := r.Metadata
	st := md.Security.Statistics

	if md.Quarantined {
		b.reason(Critical, "quarantined: "+strings.Join(md.QuarantineReasons, ", "))
		b.d.SafeForEmbedding, b.d.SafeForTools = false, false
	}

	if cats := st.PromptInjection.Suspected(); len(cats) > 0 {
		b.reason(High, "prompt injection suspected in "+strings.Join(cats, ", "))
		b.d.SafeForEmbedding, b.d.SafeForTools = false, false
	}

	if st.HasScript {
		b.reason(High, "script tag")
		b.d.SafeForEmbedding, b.d.SafeForTools = false, false
	}
	var schemes []string
	if st.HasJavaScriptScheme {
		schemes = append(schemes, "javascript")
	}
	if st.HasVBScriptScheme {
		schemes = append(schemes, "vbscript")
	}
	if st.HasDangerousDataURI {
		schemes = append(schemes, "data (non-image)")
	}
	if st.HasFileScheme {
		schemes = append(schemes, "file")
	}
	if len(schemes) > 0 || st.DangerousLinks > 0 {
		if len(schemes) == 0 {
			schemes = append(schemes, "dangerous link")
		}
		b.reason(High, "dangerous scheme: "+strings.Join(schemes, ", "))
		b.d.SafeForEmbedding, b.d.SafeForTools = false, false
	}

	medium := func(hit bool, r string) {
		if hit {
			b.reason(Medium, r)
			b.d.SafeForTools = false
		}
	}
	medium(st.HasEventHandlers, "inline event handlers")
	medium(st.PathTraversal, "path traversal pattern")
	medium(st.HasFrameLike, "frame-like element")
	medium(st.HasMetaRefresh, "meta refresh")
	medium(st.HasCSSScript, "script in CSS")

	u := st.Unicode
	if u.ScanLimitExceeded {
		b.warn(Medium, "unicode scan limit exceeded")
	}
	if u.BiDiControls > 0 {
		b.warn(Medium, fmt.Sprintf("%d bidi control characters", u.BiDiControls))
	}
	if u.Confusables > 0 || u.MixedScriptWords > 0 {
		b.warn(Low, fmt.Sprintf("%d confusable characters, %d mixed-script words", u.Confusables, u.MixedScriptWords))
	}
	switch {
	case u.RiskScore >= UnicodeMediumScore:
		b.warn(Medium, fmt.Sprintf("unicode risk score %d", u.RiskScore))
	case u.RiskScore >= UnicodeWarnScore:
		b.warn(Low, fmt.Sprintf("unicode risk score %d", u.RiskScore))
	}

	b.d.Blocked = b.d.Severity >= High
	return b.d
}

// ForError is the verdict for a document that Parse refused with a fatal
// error. Refused malicious content is critical; an exceeded ceiling is high.
func ForError(err error) Decision {
	d := Decision{Blocked: true, Reasons: []string{}, Warnings: []string{}}
	var se *errs.SecurityError
	var ze *errs.SizeError
	switch {
	case errors.As(err, &se):
		d.Severity = Critical
		d.Reasons = append(d.Reasons, "refused: "+se.Pattern)
	case errors.As(err, &ze):
		d.Severity = High
		d.Reasons = append(d.Reasons, fmt.Sprintf("size ceiling: %s %d > %d", ze.Dimension, ze.Actual, ze.Limit))
	default:
		d.Severity = Critical
		if err != nil {
			d.Reasons = append(d.Reasons, err.Error())
		}
	}
	return d
}
