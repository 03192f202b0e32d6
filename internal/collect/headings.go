package collect

import (
	"strconv"
	"strings"

	"github.com/gosimple/slug"

	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// Heading is one document heading.
type Heading struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
	Line  int    `json:"line"`
}

// Headings collects headings and assigns unique slug ids.
type Headings struct {
	accept
	c    capped[Heading]
	used map[string]bool
	next map[string]int
}

// NewHeadings collects headings and gives each a unique slug id.
func NewHeadings() *Headings {
	return &Headings{c: newCapped[Heading](MaxHeadings), used: map[string]bool{}, next: map[string]int{}}
}

// Name is "headings".
func (h *Headings) Name() string { return "headings" }

// Interest routes heading_open tokens here.
func (h *Headings) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.HeadingOpen}}
}

func (h *Headings) OnToken(idx int, tok token.Token, w *warehouse.Warehouse) error {
	if h.c.full() {
		return nil
	}
	text := strings.TrimSpace(w.TextBetween(idx, w.PairOf(idx)))
	level, _ := strconv.Atoi(strings.TrimPrefix(tok.Tag, "h"))
	h.c.add(Heading{
		ID:    h.uniqueSlug(text),
		Text:  text,
		Level: level,
		Line:  tok.StartLine(),
	})
	return nil
}

// uniqueSlug suffixes repeated slugs with -1, -2, ...
func (h *Headings) uniqueSlug(text string) string {
	base := slug.Make(text)
	if base == "" {
		base = "section"
	}
	id := base
	n := h.next[base]
	for h.used[id] {
		n++
		id = base + "-" + strconv.Itoa(n)
	}
	h.next[base] = n
	h.used[id] = true
	return id
}

func (h *Headings) Finalize(*warehouse.Warehouse) (any, error) {
	return h.c.result(), nil
}

// Result returns the collected headings.
func (h *Headings) Result() Result[Heading] { return h.c.result() }
