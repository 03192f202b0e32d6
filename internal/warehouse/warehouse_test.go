package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/mdguard/internal/token"
)

func open(typ, tag string) token.Token {
	return token.Token{Type: typ, Tag: tag, Nesting: token.Open}
}

func closeTok(typ, tag string) token.Token {
	return token.Token{Type: typ, Tag: tag, Nesting: token.Close}
}

func text(s string) token.Token {
	return token.Token{Type: token.Text, Content: s}
}

// doc: <p>a <a>link</a></p><p>b</p>
func sampleTokens() []token.Token {
	return []token.Token{
		open(token.ParagraphOpen, "p"),      // 0
		text("a "),                          // 1
		open(token.LinkOpen, "a"),           // 2
		text("link"),                        // 3
		closeTok(token.LinkClose, "a"),      // 4
		closeTok(token.ParagraphClose, "p"), // 5
		open(token.ParagraphOpen, "p"),      // 6
		text("b"),                           // 7
		closeTok(token.ParagraphClose, "p"), // 8
	}
}

type recorder struct {
	name     string
	interest Interest
	seen     []int
	log      *[]string
	failOn   int
	panicOn  int
}

func (r *recorder) Name() string       { return r.name }
func (r *recorder) Interest() Interest { return r.interest }
func (r *recorder) ShouldProcess(token.Token, *Warehouse) bool {
	return true
}
func (r *recorder) OnToken(idx int, tok token.Token, w *Warehouse) error {
	if r.panicOn > 0 && idx == r.panicOn {
		panic("boom")
	}
	if r.failOn > 0 && idx == r.failOn {
		return errors.New("bad token")
	}
	r.seen = append(r.seen, idx)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	return nil
}
func (r *recorder) Finalize(*Warehouse) (any, error) { return len(r.seen), nil }

func TestIndices(t *testing.T) {
	w := New(sampleTokens())
	if got := w.ByType(token.Text); len(got) != 3 {
		t.Fatalf("ByType(text) = %v", got)
	}
	if w.PairOf(0) != 5 || w.PairOf(5) != 0 || w.PairOf(2) != 4 || w.PairOf(1) != -1 {
		t.Errorf("pairs wrong: %d %d %d", w.PairOf(0), w.PairOf(5), w.PairOf(2))
	}
	if got := w.IndicesBetween(token.Text, 0, 6); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("IndicesBetween = %v", got)
	}
	if got := w.IndicesBetween(token.Text, 8, 100); got != nil {
		t.Errorf("IndicesBetween past end = %v", got)
	}
	if got := w.TextBetween(2, 4); got != "link" {
		t.Errorf("TextBetween = %q", got)
	}
	if got := w.TokensBetween(-5, 2); len(got) != 2 {
		t.Errorf("TokensBetween clamp = %d", len(got))
	}
}

func TestTree(t *testing.T) {
	w := New(sampleTokens())
	if got := w.Children(-1); len(got) != 2 || got[0] != 0 || got[1] != 6 {
		t.Errorf("top level = %v", got)
	}
	if got := w.Children(0); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("children(0) = %v", got)
	}
	if w.Parent(3) != 2 || w.Parent(2) != 0 || w.Parent(7) != 6 || w.Parent(0) != -1 {
		t.Errorf("parents: %d %d %d %d", w.Parent(3), w.Parent(2), w.Parent(7), w.Parent(0))
	}
}

func TestUnmatchedClose(t *testing.T) {
	w := New([]token.Token{closeTok(token.ParagraphClose, "p"), open(token.ParagraphOpen, "p")})
	if w.PairOf(0) != -1 || w.PairOf(1) != -1 {
		t.Error("unmatched tokens should stay unpaired")
	}
}

func TestDispatchOrderAndIdempotentRegistration(t *testing.T) {
	var order []string
	a := &recorder{name: "a", interest: Interest{Types: []string{token.Text}}, log: &order}
	b := &recorder{name: "b", interest: Interest{Tags: []string{"a"}, Types: []string{token.Text}}, log: &order}
	w := New(sampleTokens())
	for _, c := range []Collector{a, b, a} {
		if err := w.Register(c); err != nil {
			t.Fatal(err)
		}
	}
	res, err := w.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(a.seen) != 3 {
		t.Errorf("a invoked %d times, want 3", len(a.seen))
	}
	// b matches three text tokens plus link_open/link_close by tag.
	if len(b.seen) != 5 {
		t.Errorf("b invoked %d times, want 5", len(b.seen))
	}
	want := []string{"a", "b", "b", "a", "b", "b", "a", "b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if len(res.Order) != 2 || res.Order[0] != "a" || res.Order[1] != "b" {
		t.Errorf("finalize order = %v", res.Order)
	}
	if v, _ := res.Get("a"); v.(int) != 3 {
		t.Errorf("a result = %v", v)
	}
	if err := w.Register(&recorder{name: "late"}); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("late register: %v", err)
	}
}

// valueCollector has a value receiver and a slice field, so it is not
// usable as a map key.
type valueCollector struct{ names []string }

func (valueCollector) Name() string                               { return "value" }
func (valueCollector) Interest() Interest                         { return Interest{Types: []string{token.Text}} }
func (valueCollector) ShouldProcess(token.Token, *Warehouse) bool { return true }
func (valueCollector) OnToken(int, token.Token, *Warehouse) error { return nil }
func (valueCollector) Finalize(*Warehouse) (any, error)           { return nil, nil }

func TestRegisterRejectsNonPointer(t *testing.T) {
	w := New(sampleTokens())
	if err := w.Register(valueCollector{names: []string{"a"}}); !errors.Is(err, ErrNotPointer) {
		t.Errorf("value collector: err = %v, want ErrNotPointer", err)
	}
	if err := w.Register(nil); !errors.Is(err, ErrNotPointer) {
		t.Errorf("nil collector: err = %v, want ErrNotPointer", err)
	}
	var typedNil *recorder
	if err := w.Register(typedNil); !errors.Is(err, ErrNotPointer) {
		t.Errorf("typed nil: err = %v, want ErrNotPointer", err)
	}
	if err := w.Register(&valueCollector{}); err != nil {
		t.Errorf("pointer to value collector: %v", err)
	}
}

func TestPredicate(t *testing.T) {
	c := &recorder{name: "p", interest: Interest{
		Types:     []string{token.Text},
		Predicate: func(tok token.Token) bool { return tok.Content == "b" },
	}}
	w := New(sampleTokens())
	_ = w.Register(c)
	if _, err := w.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(c.seen) != 1 || c.seen[0] != 7 {
		t.Errorf("seen = %v", c.seen)
	}
}

func TestCollectorIsolation(t *testing.T) {
	bad := &recorder{name: "bad", interest: Interest{Types: []string{token.Text}}, failOn: 1}
	boom := &recorder{name: "boom", interest: Interest{Types: []string{token.Text}}, panicOn: 3}
	good := &recorder{name: "good", interest: Interest{Types: []string{token.Text}}}
	w := New(sampleTokens())
	for _, c := range []Collector{bad, boom, good} {
		_ = w.Register(c)
	}
	res, err := w.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(good.seen) != 3 {
		t.Errorf("good collector saw %d tokens", len(good.seen))
	}
	if !res.Failed("bad") || !res.Failed("boom") || res.Failed("good") {
		t.Errorf("errors = %+v", res.Errors)
	}
	if len(bad.seen) != 0 {
		t.Errorf("failed collector kept receiving tokens: %v", bad.seen)
	}
}

func TestCooperativeTimeout(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(10 * time.Millisecond)
		return now
	}
	slow := &recorder{name: "slow", interest: Interest{Types: []string{token.Text}}}
	w := New(sampleTokens(), WithCollectorTimeout(15*time.Millisecond), WithClock(clock))
	_ = w.Register(slow)
	res, err := w.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Each invocation costs 10ms; the overrun is observed after the second.
	if len(slow.seen) != 2 {
		t.Errorf("slow saw %d tokens, want 2", len(slow.seen))
	}
	if len(res.Errors) != 1 || !res.Errors[0].TimedOut || !errors.Is(res.Errors[0], ErrCollectorTimeout) {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := New(sampleTokens())
	if _, err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
