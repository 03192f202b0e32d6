package collect

import (
	"strconv"
	"strings"

	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// List is one bullet or ordered list.
type List struct {
	Ordered   bool       `json:"ordered"`
	Start     int        `json:"start,omitempty"`
	Depth     int        `json:"depth"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Items     []ListItem `json:"items"`
}

// ListItem is one entry. Text excludes nested lists.
type ListItem struct {
	Text    string `json:"text"`
	Line    int    `json:"line"`
	Checked *bool  `json:"checked,omitempty"`
}

// Lists collects lists and their items. The cap applies to items across
// all lists of the document.
type Lists struct {
	accept
	lists     []List
	byOpen    map[int]int // list_open index -> lists position
	items     int
	truncated bool
}

// NewLists collects bullet and ordered lists.
func NewLists() *Lists { return &Lists{lists: []List{}, byOpen: map[int]int{}} }

// Name identifies the collector in errors and quarantine reasons.
func (l *Lists) Name() string { return "lists" }

// Interest routes list and list item opening tokens here.
func (l *Lists) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.BulletListOpen, token.OrderedListOpen, token.ListItemOpen}}
}

func (l *Lists) OnToken(idx int, tok token.Token, w *warehouse.Warehouse) error {
	switch tok.Type {
	case token.BulletListOpen, token.OrderedListOpen:
		depth := 1
		for p := w.Parent(idx); p >= 0; p = w.Parent(p) {
			if t := w.Token(p).Type; t == token.BulletListOpen || t == token.OrderedListOpen {
				depth++
			}
		}
		list := List{
			Ordered:   tok.Type == token.OrderedListOpen,
			Depth:     depth,
			StartLine: tok.StartLine(),
			EndLine:   endLine(tok),
			Items:     []ListItem{},
		}
		if list.Ordered {
			list.Start = 1
			if s := tok.Attr("start"); s != "" {
				list.Start, _ = strconv.Atoi(s)
			}
		}
		l.byOpen[idx] = len(l.lists)
		l.lists = append(l.lists, list)

	case token.ListItemOpen:
		if l.items >= MaxListItems {
			l.truncated = true
			return nil
		}
		pos, ok := l.byOpen[w.Parent(idx)]
		if !ok {
			return nil
		}
		end := w.PairOf(idx)
		if end < 0 {
			end = w.Len()
		}
		// Stop the item text at its first nested list.
		cut := end
		for _, typ := range []string{token.BulletListOpen, token.OrderedListOpen} {
			if nested := w.IndicesBetween(typ, idx+1, end); len(nested) > 0 && nested[0] < cut {
				cut = nested[0]
			}
		}
		item := ListItem{
			Text: strings.TrimSpace(w.TextBetween(idx, cut)),
			Line: tok.StartLine(),
		}
		if boxes := w.IndicesBetween(token.TaskCheckbox, idx+1, cut); len(boxes) > 0 {
			box := w.Token(boxes[0])
			checked := box.Attr("checked") == "true"
			item.Checked = &checked
		}
		l.lists[pos].Items = append(l.lists[pos].Items, item)
		l.items++
	}
	return nil
}

func (l *Lists) Finalize(*warehouse.Warehouse) (any, error) { return l.Result(), nil }

// Result returns the collected lists so far.
func (l *Lists) Result() Result[List] {
	return Result[List]{Items: l.lists, Truncated: l.truncated}
}

// ItemCount returns the number of collected list items.
func (l *Lists) ItemCount() int { return l.items }
