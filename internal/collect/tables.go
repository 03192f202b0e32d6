package collect

import (
	"strings"

	"github.com/dgallion1/mdguard/internal/budget"
	"github.com/dgallion1/mdguard/internal/table"
	"github.com/dgallion1/mdguard/internal/token"
	"github.com/dgallion1/mdguard/internal/warehouse"
)

// Table is one GFM table with its structural classification.
type Table struct {
	Headers              []string   `json:"headers"`
	Rows                 [][]string `json:"rows"`
	ColumnAlignment      []string   `json:"column_alignment"`
	RawSource            string     `json:"raw_source"`
	IsPure               bool       `json:"is_pure"`
	IsRagged             bool       `json:"is_ragged"`
	MalformedLineNumbers []int      `json:"malformed_line_numbers"`
	ColumnCount          int        `json:"column_count"`
	ColumnCounts         []int      `json:"column_counts"`
	StartLine            int        `json:"start_line"`
	EndLine              int        `json:"end_line"`
}

// Tables collects tables, re-classifies them from source and charges
// their cells to the cell budget.
type Tables struct {
	accept
	lines []string
	cells *budget.Counter
	c     capped[Table]
}

// NewTables collects tables. lines are the normalized document lines
// the classifier re-reads; cells may be nil.
func NewTables(lines []string, cells *budget.Counter) *Tables {
	return &Tables{lines: lines, cells: cells, c: newCapped[Table](MaxTables)}
}

// Name is "tables".
func (t *Tables) Name() string { return "tables" }

// Interest routes table_open tokens here.
func (t *Tables) Interest() warehouse.Interest {
	return warehouse.Interest{Types: []string{token.TableOpen}}
}

func (t *Tables) cellTexts(w *warehouse.Warehouse, typ string, start, end int) []string {
	opens := w.IndicesBetween(typ, start, end)
	out := make([]string, 0, len(opens))
	for _, o := range opens {
		out = append(out, strings.TrimSpace(w.TextBetween(o, w.PairOf(o))))
	}
	return out
}

func (t *Tables) OnToken(idx int, tok token.Token, w *warehouse.Warehouse) error {
	if t.c.full() {
		return nil
	}
	end := w.PairOf(idx)
	if end < 0 {
		end = w.Len()
	}

	tb := Table{StartLine: tok.StartLine(), EndLine: endLine(tok), Rows: [][]string{}}
	var alignments []string
	for _, th := range w.IndicesBetween(token.THOpen, idx, end) {
		tb.Headers = append(tb.Headers, strings.TrimSpace(w.TextBetween(th, w.PairOf(th))))
		cell := w.Token(th)
		alignments = append(alignments, cell.Attr("align"))
	}
	if body := w.IndicesBetween(token.TBodyOpen, idx, end); len(body) > 0 {
		bodyEnd := w.PairOf(body[0])
		if bodyEnd < 0 {
			bodyEnd = end
		}
		for _, tr := range w.IndicesBetween(token.TROpen, body[0], bodyEnd) {
			tb.Rows = append(tb.Rows, t.cellTexts(w, token.TDOpen, tr, w.PairOf(tr)))
		}
	}

	var src []string
	if tok.Map != nil && tok.Map.Start >= 0 && tok.Map.End <= len(t.lines) {
		src = t.lines[tok.Map.Start:tok.Map.End]
	}
	sh := table.Classify(tb.StartLine, src, alignments)
	tb.RawSource = strings.Join(src, "\n")
	tb.IsPure = sh.IsPure
	tb.IsRagged = sh.IsRagged
	tb.MalformedLineNumbers = sh.MalformedLines
	tb.ColumnCount = max(sh.ColumnCount, len(tb.Headers))
	// Rows without outer pipes are malformed and add nothing to the
	// observed width, so alignments follow the final column count.
	if alignments == nil {
		alignments = sh.Alignments
	}
	tb.ColumnAlignment = table.Resize(alignments, tb.ColumnCount)
	tb.ColumnCounts = sh.ColumnCounts

	if t.cells != nil {
		if err := t.cells.Add((len(tb.Rows) + 1) * tb.ColumnCount); err != nil {
			return err
		}
	}
	t.c.add(tb)
	return nil
}

func (t *Tables) Finalize(*warehouse.Warehouse) (any, error) { return t.c.result(), nil }

// Result returns the collected tables so far.
func (t *Tables) Result() Result[Table] { return t.c.result() }
