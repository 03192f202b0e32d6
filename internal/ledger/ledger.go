// Package ledger keeps a durable SQLite record of guard verdicts so that
// blocked and quarantined documents can be audited after the fact.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded verdict.
type Entry struct {
	ID          string    `json:"entry_id"`
	DocID       string    `json:"doc_id"`
	Filename    string    `json:"filename"`
	Profile     string    `json:"profile"`
	Severity    string    `json:"severity"`
	Blocked     bool      `json:"blocked"`
	Quarantined bool      `json:"quarantined"`
	Reasons     []string  `json:"reasons"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory ledger.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS verdicts (
	entry_id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	filename TEXT,
	profile TEXT NOT NULL,
	severity TEXT NOT NULL,
	blocked INTEGER NOT NULL,
	quarantined INTEGER NOT NULL,
	reasons TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_doc ON verdicts(doc_id);
CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// Record stores e, assigning ID and CreatedAt when empty.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.Reasons == nil {
		e.Reasons = []string{}
	}
	reasons, err := json.Marshal(e.Reasons)
	if err != nil {
		return Entry{}, err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO verdicts (entry_id, doc_id, filename, profile, severity, blocked, quarantined, reasons, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DocID, e.Filename, e.Profile, e.Severity, e.Blocked, e.Quarantined,
		string(reasons), e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return Entry{}, fmt.Errorf("record verdict: %w", err)
	}
	return e, nil
}

// ListOptions filters List.
type ListOptions struct {
	// FlaggedOnly restricts results to blocked or quarantined entries.
	FlaggedOnly bool
	Limit       int
}

// List returns entries newest first.
func (l *Ledger) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	q := `SELECT entry_id, doc_id, filename, profile, severity, blocked, quarantined, reasons, created_at FROM verdicts`
	if opts.FlaggedOnly {
		q += ` WHERE blocked = 1 OR quarantined = 1`
	}
	q += ` ORDER BY created_at DESC, entry_id DESC`
	var args []any
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	return l.query(ctx, q, args...)
}

// ForDocument returns every entry for docID, oldest first.
func (l *Ledger) ForDocument(ctx context.Context, docID string) ([]Entry, error) {
	return l.query(ctx,
		`SELECT entry_id, doc_id, filename, profile, severity, blocked, quarantined, reasons, created_at
		 FROM verdicts WHERE doc_id = ? ORDER BY created_at, entry_id`, docID)
}

// DeleteDocument removes every entry for docID and reports how many.
func (l *Ledger) DeleteDocument(ctx context.Context, docID string) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM verdicts WHERE doc_id = ?`, docID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			filename sql.NullString
			reasons  string
			created  string
		)
		if err := rows.Scan(&e.ID, &e.DocID, &filename, &e.Profile, &e.Severity,
			&e.Blocked, &e.Quarantined, &reasons, &created); err != nil {
			return nil, err
		}
		e.Filename = filename.String
		if err := json.Unmarshal([]byte(reasons), &e.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons for %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("decode created_at for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
