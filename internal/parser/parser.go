// Package parser is the processing kernel: it normalizes untrusted
// Markdown, tokenizes it, runs every collector through one warehouse pass
// under the profile's budgets and assembles the security-annotated Result.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/mdguard/internal/budget"
	"github.com/dgallion1/mdguard/internal/collect"
	"github.com/dgallion1/mdguard/internal/errs"
	"github.com/dgallion1/mdguard/internal/normalize"
	"github.com/dgallion1/mdguard/internal/profile"
	"github.com/dgallion1/mdguard/internal/section"
	"github.com/dgallion1/mdguard/internal/security"
	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// DefaultCollectorTimeout bounds each collector's cumulative dispatch time.
const DefaultCollectorTimeout = 2 * time.Second

type options struct {
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// Option configures Parse.
type Option func(*options)

// WithLogger sets the logger for collector failures and quarantine notes.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithCollectorTimeout overrides DefaultCollectorTimeout. Zero disables it.
func WithCollectorTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithClock replaces time.Now for collector timeout accounting.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Document is a parsed document. It keeps the normalized text and token
// spans that Sanitize needs.
type Document struct {
	Result

	th     profile.Thresholds
	text   string
	tokens []token.Token
	log    *slog.Logger
}

// Parse runs the full kernel over content.
//
// Size ceilings are hard errors under every profile. Under strict, a raw
// script tag is a *errs.SecurityError. Everything else is reported in the
// returned Result.
func Parse(ctx context.Context, content []byte, p profile.Name, opts ...Option) (*Document, error) {
	o := options{log: slog.New(slog.DiscardHandler), timeout: DefaultCollectorTimeout}
	for _, fn := range opts {
		fn(&o)
	}

	th, err := profile.Lookup(p)
	if err != nil {
		return nil, err
	}
	if err := budget.Check(budget.DimContentBytes, len(content), th.MaxContentBytes, th.Profile); err != nil {
		return nil, err
	}

	decoded := normalize.Decode(content)

	// Patterns are matched before normalization so that neither line-ending
	// nor composition rewriting can hide them.
	rawStats := security.ScanPatterns(decoded.Text)
	if th.Profile == profile.Strict && rawStats.HasScript {
		return nil, &errs.SecurityError{Pattern: "script_tag", Profile: string(th.Profile), Detail: "raw <script> element"}
	}

	text := normalize.Text(decoded.Text)
	lines := normalize.Lines(text)
	if err := budget.Check(budget.DimLines, len(lines), th.MaxLines, th.Profile); err != nil {
		return nil, err
	}

	nodes := budget.NewNodes(th)
	toks, err := token.FromMarkdown([]byte(text), token.Options{
		Plugins: th.Plugins(),
		OnToken: func() error { return nodes.Add(1) },
	})
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	uris, err := budget.NewURIs(th)
	if err != nil {
		return nil, err
	}
	set := collect.NewSet(collect.Config{
		Thresholds: th,
		Lines:      lines,
		URIs:       uris,
		Cells:      budget.NewCells(th),
		Log:        o.log,
	})

	wopts := []warehouse.Option{warehouse.WithLogger(o.log), warehouse.WithCollectorTimeout(o.timeout)}
	if o.now != nil {
		wopts = append(wopts, warehouse.WithClock(o.now))
	}
	w := warehouse.New(toks, wopts...)
	if err := set.Register(w); err != nil {
		return nil, err
	}
	res, err := w.Run(ctx)
	if err != nil {
		return nil, err
	}
	// Budget overflows inside collectors are document-level failures, not
	// collector faults.
	for _, ce := range res.Errors {
		if errs.IsFatal(ce.Err) {
			var se *errs.SizeError
			if errors.As(ce.Err, &se) {
				return nil, se
			}
			return nil, ce.Err
		}
	}

	doc := &Document{th: th, text: text, tokens: toks, log: o.log}
	r := &doc.Result
	r.Content = Content{Raw: decoded.Text, Lines: lines}
	r.Structure = structureOf(set)

	headings := make([]section.Heading, 0, len(r.Structure.Headings))
	for _, h := range r.Structure.Headings {
		headings = append(headings, section.Heading{ID: h.ID, Title: h.Text, Level: h.Level, Line: h.Line})
	}
	r.Structure.Sections = section.Build(headings, len(lines)-1)
	r.Mappings = buildMappings(lines, toks, section.NewIndex(r.Structure.Sections))

	r.Metadata = Metadata{
		NodeCounts: w.Counts(),
		TotalLines: len(lines),
		Encoding:   decoded.Encoding,
		Confidence: decoded.Confidence,
	}
	r.Metadata.Security = assessSecurity(th, rawStats, text, set, uris)
	r.Metadata.Security.Warnings = append(r.Metadata.Security.Warnings, set.Images.Warnings...)
	quarantine(r, set, res)

	if r.Metadata.Quarantined {
		o.log.Warn("document quarantined", "profile", th.Profile, "reasons", r.Metadata.QuarantineReasons)
	}
	return doc, nil
}

// ParseString is Parse with a profile given by name; the name is validated
// by profile.Parse.
func ParseString(ctx context.Context, content []byte, name string, opts ...Option) (*Document, error) {
	p, err := profile.Parse(name)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, content, p, opts...)
}

// Profile returns the thresholds the document was parsed under.
func (d *Document) Profile() profile.Thresholds { return d.th }

// Text returns the normalized document text.
func (d *Document) Text() string { return d.text }

func structureOf(set *collect.Set) Structure {
	return Structure{
		Headings:    set.Headings.Result().Items,
		Paragraphs:  set.Paragraphs.Result().Items,
		Links:       set.Links.Result().Items,
		Images:      set.Images.Result().Items,
		Tables:      set.Tables.Result().Items,
		CodeBlocks:  set.Code.Result().Items,
		Lists:       set.Lists.Result().Items,
		Blockquotes: set.Blockquotes.Result().Items,
		HTMLBlocks:  set.HTML.Result().Items,
		Footnotes:   set.Footnotes.Result().Items,
	}
}

// quarantine flags results that are incomplete: a collector failed, timed
// out or dropped items at its cap.
func quarantine(r *Result, set *collect.Set, res *warehouse.Results) {
	reasons := []string{}
	for _, ce := range res.Errors {
		if ce.TimedOut {
			reasons = append(reasons, "collector_timeout:"+ce.Collector)
		} else {
			reasons = append(reasons, "collector_error:"+ce.Collector)
		}
	}
	truncated := []struct {
		name string
		hit  bool
	}{
		{"headings", set.Headings.Result().Truncated},
		{"paragraphs", set.Paragraphs.Result().Truncated},
		{"links", set.Links.Result().Truncated},
		{"images", set.Images.Result().Truncated},
		{"code_blocks", set.Code.Result().Truncated},
		{"lists", set.Lists.Result().Truncated},
		{"tables", set.Tables.Result().Truncated},
		{"blockquotes", set.Blockquotes.Result().Truncated},
		{"html", set.HTML.Result().Truncated},
		{"footnotes", set.Footnotes.Result().Truncated},
	}
	for _, t := range truncated {
		if t.hit {
			reasons = append(reasons, "truncated:"+t.name)
			r.Metadata.Security.Statistics.Truncated = append(r.Metadata.Security.Statistics.Truncated, t.name)
		}
	}
	r.Metadata.Security.Statistics.CollectorErrors = res.Errors
	r.Metadata.Quarantined = len(reasons) > 0
	r.Metadata.QuarantineReasons = reasons
}
