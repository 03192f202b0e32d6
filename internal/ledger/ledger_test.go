package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openMemory(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	entries := []Entry{
		{DocID: "d1", Filename: "a.md", Profile: "strict", Severity: "none"},
		{DocID: "d2", Filename: "b.md", Profile: "permissive", Severity: "high", Blocked: true, Reasons: []string{"script tag"}},
		{DocID: "d1", Filename: "a.md", Profile: "moderate", Severity: "critical", Blocked: true, Quarantined: true, Reasons: []string{"quarantined: truncated:links"}},
	}
	for i, e := range entries {
		got, err := l.Record(ctx, e)
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
		if got.ID == "" || got.CreatedAt.IsZero() {
			t.Errorf("entry %d not stamped: %+v", i, got)
		}
	}

	all, err := l.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Severity != "critical" {
		t.Fatalf("list = %+v", all)
	}

	flagged, err := l.List(ctx, ListOptions{FlaggedOnly: true, Limit: 1})
	if err != nil {
		t.Fatalf("List flagged: %v", err)
	}
	if len(flagged) != 1 || !flagged[0].Quarantined {
		t.Errorf("flagged = %+v", flagged)
	}

	d1, err := l.ForDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("ForDocument: %v", err)
	}
	if len(d1) != 2 || d1[0].Profile != "strict" || d1[1].Reasons[0] != "quarantined: truncated:links" {
		t.Errorf("d1 = %+v", d1)
	}
	if len(d1[0].Reasons) != 0 {
		t.Errorf("nil reasons should round-trip as empty: %v", d1[0].Reasons)
	}

	n, err := l.DeleteDocument(ctx, "d1")
	if err != nil || n != 2 {
		t.Errorf("DeleteDocument = %d, %v", n, err)
	}
}

func TestSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	for i := 0; i < 3; i++ {
		l, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
		if _, err := l.Record(ctx, Entry{DocID: "d", Profile: "strict", Severity: "none"}); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
		l.Close()
	}
	l, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	got, err := l.ForDocument(ctx, "d")
	if err != nil || len(got) != 3 {
		t.Errorf("entries = %d, %v", len(got), err)
	}
}
