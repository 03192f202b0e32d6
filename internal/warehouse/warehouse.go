// Package warehouse indexes a token stream once and fans tokens out to
// registered collectors in a single pass.
//
// Collectors only ever see a *Warehouse. It exposes indexed lookups and
// bounded windows, never the backing token slice, so no collector can
// re-scan the whole stream.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/mdguard/internal/token"
)

// ErrAlreadyRun is returned by Register and Run after dispatch has happened.
var ErrAlreadyRun = errors.New("warehouse: already dispatched")

// ErrNotPointer is returned by Register for collectors that are not
// non-nil pointers. Registration is deduplicated by pointer identity.
var ErrNotPointer = errors.New("warehouse: collector must be a non-nil pointer")

// ErrCollectorTimeout is recorded against a collector that exceeded its
// cumulative dispatch budget.
var ErrCollectorTimeout = errors.New("collector timed out")

// Interest describes which tokens a collector wants. A token matches when
// its type is in Types or its tag is in Tags, and Predicate (if set)
// accepts it.
type Interest struct {
	Types     []string
	Tags      []string
	Predicate func(token.Token) bool
}

// Collector extracts one feature from the stream.
type Collector interface {
	Name() string
	Interest() Interest
	// ShouldProcess is consulted once per matching token before OnToken.
	ShouldProcess(tok token.Token, w *Warehouse) bool
	OnToken(idx int, tok token.Token, w *Warehouse) error
	Finalize(w *Warehouse) (any, error)
}

// CollectorError records a failure isolated to one collector.
type CollectorError struct {
	Collector string `json:"collector"`
	Phase     string `json:"phase"` // dispatch or finalize
	Err       error  `json:"-"`
	Message   string `json:"error"`
	TimedOut  bool   `json:"timed_out"`
}

func (e CollectorError) Error() string {
	return fmt.Sprintf("collector %s (%s): %v", e.Collector, e.Phase, e.Err)
}

func (e CollectorError) Unwrap() error { return e.Err }

// Results holds finalized collector output in registration order.
type Results struct {
	Order  []string
	byName map[string]any
	Errors []CollectorError
}

// Get returns a collector's finalized value.
func (r *Results) Get(name string) (any, bool) {
	v, ok := r.byName[name]
	return v, ok
}

// Failed reports whether the named collector recorded any error.
func (r *Results) Failed(name string) bool {
	for _, e := range r.Errors {
		if e.Collector == name {
			return true
		}
	}
	return false
}

// Option configures a Warehouse.
type Option func(*Warehouse)

// WithCollectorTimeout bounds the cumulative time each collector may spend
// in ShouldProcess/OnToken. The check runs after every invocation, so one
// slow call can overrun the bound before it is observed.
func WithCollectorTimeout(d time.Duration) Option {
	return func(w *Warehouse) { w.timeout = d }
}

// WithLogger sets the logger used for collector failures.
func WithLogger(l *slog.Logger) Option {
	return func(w *Warehouse) { w.log = l }
}

// WithClock replaces time.Now for timeout accounting.
func WithClock(now func() time.Time) Option {
	return func(w *Warehouse) { w.now = now }
}

// Warehouse owns a token stream and its indices. It is not safe for
// concurrent use; each document gets its own.
type Warehouse struct {
	tokens []token.Token
	byType map[string][]int
	pairs  []int

	treeBuilt bool
	parent    []int
	children  map[int][]int

	collectors []Collector
	seen       map[Collector]struct{}
	ran        bool

	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// New indexes tokens in one pass.
func New(tokens []token.Token, opts ...Option) *Warehouse {
	w := &Warehouse{
		tokens: tokens,
		byType: make(map[string][]int),
		pairs:  make([]int, len(tokens)),
		seen:   make(map[Collector]struct{}),
		log:    slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, o := range opts {
		o(w)
	}

	var stack []int
	for i := range tokens {
		t := &tokens[i]
		w.byType[t.Type] = append(w.byType[t.Type], i)
		w.pairs[i] = -1
		switch t.Nesting {
		case token.Open:
			stack = append(stack, i)
		case token.Close:
			// Pop to the nearest matching open; unmatched closes stay unpaired.
			for j := len(stack) - 1; j >= 0; j-- {
				if token.CloseOf(tokens[stack[j]].Type) == t.Type {
					w.pairs[stack[j]] = i
					w.pairs[i] = stack[j]
					stack = stack[:j]
					break
				}
			}
		}
	}
	return w
}

// Len returns the number of tokens.
func (w *Warehouse) Len() int { return len(w.tokens) }

// Token returns a copy of token i.
func (w *Warehouse) Token(i int) token.Token { return w.tokens[i] }

// ByType returns the ordered indices of all tokens of type typ.
func (w *Warehouse) ByType(typ string) []int { return slices.Clone(w.byType[typ]) }

// Count returns how many tokens of type typ exist.
func (w *Warehouse) Count(typ string) int { return len(w.byType[typ]) }

// Counts returns token counts per type.
func (w *Warehouse) Counts() map[string]int {
	out := make(map[string]int, len(w.byType))
	for k, v := range w.byType {
		out[k] = len(v)
	}
	return out
}

// PairOf returns the matching open/close index for i, or -1.
func (w *Warehouse) PairOf(i int) int {
	if i < 0 || i >= len(w.pairs) {
		return -1
	}
	return w.pairs[i]
}

func (w *Warehouse) buildTree() {
	if w.treeBuilt {
		return
	}
	w.treeBuilt = true
	w.parent = make([]int, len(w.tokens))
	w.children = make(map[int][]int)
	stack := []int{-1}
	for i := range w.tokens {
		t := &w.tokens[i]
		if t.Nesting == token.Close && w.pairs[i] >= 0 {
			for len(stack) > 1 && stack[len(stack)-1] != w.pairs[i] {
				stack = stack[:len(stack)-1]
			}
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			w.parent[i] = stack[len(stack)-1]
			continue
		}
		p := stack[len(stack)-1]
		w.parent[i] = p
		w.children[p] = append(w.children[p], i)
		if t.Nesting == token.Open && w.pairs[i] >= 0 {
			stack = append(stack, i)
		}
	}
}

// Parent returns the index of the innermost open token enclosing i, or -1.
func (w *Warehouse) Parent(i int) int {
	w.buildTree()
	if i < 0 || i >= len(w.parent) {
		return -1
	}
	return w.parent[i]
}

// Children returns the direct children of open token i (-1 for top level).
// Close tokens are not listed as children.
func (w *Warehouse) Children(i int) []int {
	w.buildTree()
	return slices.Clone(w.children[i])
}

// IndicesBetween returns indices of type typ in [start, end).
func (w *Warehouse) IndicesBetween(typ string, start, end int) []int {
	idx := w.byType[typ]
	lo := sort.SearchInts(idx, start)
	hi := sort.SearchInts(idx, end)
	if lo >= hi {
		return nil
	}
	return slices.Clone(idx[lo:hi])
}

// TokensBetween returns copies of tokens in [start, end), clamped.
func (w *Warehouse) TokensBetween(start, end int) []token.Token {
	start = max(start, 0)
	end = min(end, len(w.tokens))
	if start >= end {
		return nil
	}
	return slices.Clone(w.tokens[start:end])
}

// TextBetween joins the text content of inline tokens in (open, close).
func (w *Warehouse) TextBetween(open, close int) string {
	var sb strings.Builder
	for i := max(open+1, 0); i < min(close, len(w.tokens)); i++ {
		t := &w.tokens[i]
		switch t.Type {
		case token.Text, token.CodeInline:
			sb.WriteString(t.Content)
		case token.Image:
			sb.WriteString(t.Content)
		case token.Softbreak, token.Hardbreak:
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Register adds a collector. Registering the same collector again is a no-op.
// Collectors must be pointers.
func (w *Warehouse) Register(c Collector) error {
	if w.ran {
		return ErrAlreadyRun
	}
	if c == nil {
		return ErrNotPointer
	}
	if v := reflect.ValueOf(c); v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("%w: got %T", ErrNotPointer, c)
	}
	if _, dup := w.seen[c]; dup {
		return nil
	}
	w.seen[c] = struct{}{}
	w.collectors = append(w.collectors, c)
	return nil
}

type route struct {
	byType map[string][]int
	byTag  map[string][]int
	preds  []func(token.Token) bool
}

func (w *Warehouse) routes() route {
	r := route{
		byType: make(map[string][]int),
		byTag:  make(map[string][]int),
		preds:  make([]func(token.Token) bool, len(w.collectors)),
	}
	for ci, c := range w.collectors {
		in := c.Interest()
		for _, t := range in.Types {
			r.byType[t] = append(r.byType[t], ci)
		}
		for _, t := range in.Tags {
			r.byTag[t] = append(r.byTag[t], ci)
		}
		r.preds[ci] = in.Predicate
	}
	return r
}

// candidates merges the type and tag routes in registration order.
func (r route) candidates(t *token.Token, buf []int) []int {
	buf = buf[:0]
	a, b := r.byType[t.Type], r.byTag[t.Tag]
	if t.Tag == "" {
		b = nil
	}
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			buf = append(buf, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			buf = append(buf, b[j])
			j++
		default:
			buf = append(buf, a[i])
			i++
			j++
		}
	}
	return buf
}

// Run dispatches every token to matching collectors, then finalizes them,
// both in registration order. Collector failures are isolated and
// reported in Results.Errors; only context cancellation aborts the run.
func (w *Warehouse) Run(ctx context.Context) (*Results, error) {
	if w.ran {
		return nil, ErrAlreadyRun
	}
	w.ran = true

	r := w.routes()
	n := len(w.collectors)
	spent := make([]time.Duration, n)
	dead := make([]bool, n)
	res := &Results{byName: make(map[string]any, n)}
	fail := func(ci int, phase string, err error, timedOut bool) {
		name := w.collectors[ci].Name()
		res.Errors = append(res.Errors, CollectorError{
			Collector: name, Phase: phase, Err: err, Message: err.Error(), TimedOut: timedOut,
		})
		w.log.Warn("collector failed", "collector", name, "phase", phase, "timed_out", timedOut, "error", err)
	}

	var buf []int
	for i := range w.tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok := w.tokens[i]
		buf = r.candidates(&tok, buf)
		for _, ci := range buf {
			if dead[ci] {
				continue
			}
			if p := r.preds[ci]; p != nil && !p(tok) {
				continue
			}
			start := w.now()
			err := w.invoke(w.collectors[ci], i, tok)
			spent[ci] += w.now().Sub(start)
			if err != nil {
				fail(ci, "dispatch", err, false)
				dead[ci] = true
				continue
			}
			if w.timeout > 0 && spent[ci] > w.timeout {
				fail(ci, "dispatch", fmt.Errorf("%w after %s (limit %s)", ErrCollectorTimeout, spent[ci], w.timeout), true)
				dead[ci] = true
			}
		}
	}

	for ci, c := range w.collectors {
		v, err := w.finalize(c)
		if err != nil {
			fail(ci, "finalize", err, false)
		}
		res.Order = append(res.Order, c.Name())
		res.byName[c.Name()] = v
	}
	return res, nil
}

func (w *Warehouse) invoke(c Collector, i int, tok token.Token) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if !c.ShouldProcess(tok, w) {
		return nil
	}
	return c.OnToken(i, tok, w)
}

func (w *Warehouse) finalize(c Collector) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return c.Finalize(w)
}
