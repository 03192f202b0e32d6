// Package collect implements the per-feature warehouse collectors. Every
// collector enforces a hard cardinality cap and reports truncation instead
// of accumulating without bound.
package collect

import (
	"log/slog"

	"github.com/dgallion1/mdguard/internal/budget"
	"github.com/dgallion1/mdguard/internal/profile"
	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// Per-document feature caps.
const (
	MaxLinks       = 10000
	MaxImages      = 5000
	MaxHeadings    = 5000
	MaxCodeBlocks  = 2000
	MaxTables      = 1000
	MaxListItems   = 50000
	MaxParagraphs  = 50000
	MaxHTML        = 5000
	MaxBlockquotes = 5000
	MaxFootnotes   = 5000
)

// Result is the finalized output of a collector.
type Result[T any] struct {
	Items     []T  `json:"items"`
	Truncated bool `json:"truncated"`
}

type capped[T any] struct {
	max       int
	items     []T
	truncated bool
}

func newCapped[T any](max int) capped[T] {
	return capped[T]{max: max, items: []T{}}
}

// full reports whether the cap is reached, marking truncation if so.
func (c *capped[T]) full() bool {
	if len(c.items) >= c.max {
		c.truncated = true
		return true
	}
	return false
}

func (c *capped[T]) add(v T) {
	if !c.full() {
		c.items = append(c.items, v)
	}
}

func (c *capped[T]) result() Result[T] {
	return Result[T]{Items: c.items, Truncated: c.truncated}
}

// accept is the default ShouldProcess.
type accept struct{}

func (accept) ShouldProcess(token.Token, *warehouse.Warehouse) bool { return true }

// endLine converts a token map to an inclusive last line.
func endLine(t token.Token) int {
	if t.Map == nil {
		return -1
	}
	return t.Map.End - 1
}

// Config carries the per-document state collectors need.
type Config struct {
	Thresholds profile.Thresholds
	// Lines is the normalized document, used to re-read table sources.
	Lines []string
	URIs  *budget.URIs
	Cells *budget.Counter
	Log   *slog.Logger
}

// Set is the standard collector line-up, in registration order.
type Set struct {
	Headings    *Headings
	Paragraphs  *Paragraphs
	Links       *Links
	Images      *Images
	Code        *CodeBlocks
	Lists       *Lists
	Tables      *Tables
	Blockquotes *Blockquotes
	HTML        *HTMLBlocks
	Footnotes   *Footnotes
}

// NewSet builds a fresh set of collectors for one document.
func NewSet(cfg Config) *Set {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	return &Set{
		Headings:    NewHeadings(),
		Paragraphs:  NewParagraphs(),
		Links:       NewLinks(cfg.Thresholds),
		Images:      NewImages(cfg.Thresholds, cfg.URIs, cfg.Log),
		Code:        NewCodeBlocks(),
		Lists:       NewLists(),
		Tables:      NewTables(cfg.Lines, cfg.Cells),
		Blockquotes: NewBlockquotes(),
		HTML:        NewHTMLBlocks(),
		Footnotes:   NewFootnotes(),
	}
}

// All returns the collectors in registration order.
func (s *Set) All() []warehouse.Collector {
	return []warehouse.Collector{
		s.Headings, s.Paragraphs, s.Links, s.Images, s.Code,
		s.Lists, s.Tables, s.Blockquotes, s.HTML, s.Footnotes,
	}
}

// Register adds every collector to w.
func (s *Set) Register(w *warehouse.Warehouse) error {
	for _, c := range s.All() {
		if err := w.Register(c); err != nil {
			return err
		}
	}
	return nil
}
