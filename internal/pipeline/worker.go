package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/mdguard/internal/chunker"
	"github.com/dgallion1/mdguard/internal/convert"
	"github.com/dgallion1/mdguard/internal/doctree"
	"github.com/dgallion1/mdguard/internal/errs"
	"github.com/dgallion1/mdguard/internal/guard"
	"github.com/dgallion1/mdguard/internal/ledger"
	"github.com/dgallion1/mdguard/internal/parser"
	"github.com/dgallion1/mdguard/internal/pathstore"
)

// Sink receives accepted chunks and per-document metadata.
type Sink interface {
	PutNode(ctx context.Context, key string, req pathstore.NodeRequest) error
	ListChildren(ctx context.Context, key string, limit int) ([]pathstore.ListChildrenResponse, error)
}

// Recorder persists guard verdicts.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
}

// WorkerConfig holds the per-document processing settings.
type WorkerConfig struct {
	Chunk              chunker.Config
	Convert            convert.Options
	CollectorTimeout   time.Duration
	MaxConcurrentStore int
}

// Worker processes a single document job. Every document gets its own
// parse, budgets and warehouse; nothing is shared between jobs except the
// sink, the ledger and the stats.
type Worker struct {
	sink    Sink
	ledger  Recorder
	stats   *ParseStats
	log     *slog.Logger
	cfg     WorkerConfig
	backoff func(attempt int) time.Duration
}

// NewWorker builds a worker. sink and rec may be nil.
func NewWorker(sink Sink, rec Recorder, stats *ParseStats, log *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.MaxConcurrentStore <= 0 {
		cfg.MaxConcurrentStore = 1
	}
	if stats == nil {
		stats = NewParseStats(time.Hour)
	}
	return &Worker{
		sink:    sink,
		ledger:  rec,
		stats:   stats,
		log:     log,
		cfg:     cfg,
		backoff: Backoff,
	}
}

// DocumentPrefix is the sink key prefix for one document.
func DocumentPrefix(userID, docID string) string {
	return fmt.Sprintf("memory/users/%s/documents/%s", userID, docID)
}

// HashIndexPrefix is the sink key prefix listing documents with one hash.
func HashIndexPrefix(userID, hash string) string {
	return fmt.Sprintf("memory/users/%s/documents/by_hash/%s", userID, hash)
}

// Process runs the ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "user_id", job.UserID, "profile", job.Profile)
	defer job.releaseData()

	// Phase 1: convert to Markdown.
	job.SetStatus(StatusConverting, "converting")
	conv, err := convert.ForFile(job.Filename, w.cfg.Convert)
	if err != nil {
		w.fail(log, job, "converting", err)
		return
	}
	src, err := conv.Convert(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		w.fail(log, job, "converting", fmt.Errorf("convert: %w", err))
		return
	}
	title := job.SetTitle(src.Title)
	if src.Original != nil && src.Original.Dangerous() {
		job.AddWarnings("source " + src.Format + " contained script constructs dropped by conversion")
	}

	// Phase 2: parse.
	job.SetStatus(StatusParsing, "parsing")
	start := time.Now()
	doc, err := parser.Parse(ctx, src.Markdown, job.Profile,
		parser.WithLogger(log), parser.WithCollectorTimeout(w.cfg.CollectorTimeout))
	elapsed := time.Since(start)
	if err != nil {
		if !errs.IsFatal(err) {
			w.stats.Record(elapsed, OutcomeFailed)
			w.fail(log, job, "parsing", fmt.Errorf("parse: %w", err))
			return
		}
		w.stats.Record(elapsed, OutcomeRejected)
		d := guard.ForError(err)
		job.SetVerdict(d)
		w.record(ctx, log, job, d, false)
		log.Warn("document refused", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusRejected, "parsing")
		return
	}
	hash := ContentHashHex([]byte(doc.Text()))
	job.SetContentHash(hash)
	job.AddWarnings(doc.Metadata.Security.Warnings...)

	// Phase 3: guard.
	job.SetStatus(StatusGuarding, "guarding")
	d := guard.ForRAG(&doc.Result)
	job.SetVerdict(d)
	w.record(ctx, log, job, d, doc.Metadata.Quarantined)
	if d.Blocked || !d.SafeForEmbedding {
		w.stats.Record(elapsed, OutcomeRejected)
		log.Warn("document rejected", "severity", d.Severity, "reasons", d.Reasons)
		if w.sink != nil {
			if err := w.put(ctx, log, DocumentPrefix(job.UserID, job.DocID)+"/verdict", w.verdictNode(job, d)); err != nil {
				log.Error("verdict write failed", "error", err)
			}
		}
		job.SetStatus(StatusRejected, "guarding")
		return
	}
	w.stats.Record(elapsed, OutcomeAccepted)

	if w.sink != nil && !job.Force {
		exists, existingDocID, err := w.checkDuplicate(ctx, job.UserID, hash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if exists {
			log.Info("duplicate document, skipping", "existing_doc_id", existingDocID)
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
	}

	// Phase 4: chunk.
	job.SetStatus(StatusChunking, "chunking")
	tree := doctree.FromResult(title, &doc.Result)
	chunks := chunker.ChunkTree(tree, w.cfg.Chunk)
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks))
	if len(chunks) == 0 {
		job.AddWarnings("no chunks produced")
	}

	if w.sink == nil {
		job.SetStatus(StatusCompleted, "done")
		return
	}

	// Phase 5: store.
	job.SetStatus(StatusStoring, "storing")
	if failed := w.storeChunks(ctx, log, job, chunks); failed > 0 {
		job.SetStatus(StatusFailed, "storing")
		return
	}

	docPrefix := DocumentPrefix(job.UserID, job.DocID)
	meta := pathstore.NodeRequest{
		Value: map[string]any{
			"filename":     job.Filename,
			"title":        title,
			"profile":      job.Profile,
			"content_hash": hash,
			"total_chunks": len(chunks),
			"total_lines":  doc.Metadata.TotalLines,
			"encoding":     doc.Metadata.Encoding,
			"created_at":   job.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.5,
		Source:     "mdguard:" + job.DocID,
	}
	if err := w.put(ctx, log, docPrefix+"/meta", meta); err != nil {
		w.fail(log, job, "storing", fmt.Errorf("meta: %w", err))
		return
	}
	if err := w.put(ctx, log, docPrefix+"/verdict", w.verdictNode(job, d)); err != nil {
		log.Error("verdict write failed", "error", err)
		job.AddError(fmt.Sprintf("verdict: %s", err))
	}

	hashKey := HashIndexPrefix(job.UserID, hash) + "/" + job.DocID
	err = w.put(ctx, log, hashKey, pathstore.NodeRequest{
		Value: map[string]any{
			"filename":   job.Filename,
			"created_at": job.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.1,
		Source:     "mdguard:" + job.DocID,
	})
	if err != nil {
		log.Error("hash index write failed", "error", err)
	}

	job.SetStatus(StatusCompleted, "done")
}

// storeChunks writes chunks with bounded concurrency and returns how many
// failed.
func (w *Worker) storeChunks(ctx context.Context, log *slog.Logger, job *Job, chunks []doctree.Chunk) int {
	prefix := DocumentPrefix(job.UserID, job.DocID) + "/chunks/"
	sem := make(chan struct{}, w.cfg.MaxConcurrentStore)
	type storeResult struct {
		key string
		err error
	}
	results := make(chan storeResult, len(chunks))

	for _, c := range chunks {
		sem <- struct{}{}
		go func(c doctree.Chunk) {
			defer func() { <-sem }()
			key := fmt.Sprintf("%s%05d", prefix, c.Index)
			err := w.put(ctx, log, key, pathstore.NodeRequest{
				Value: map[string]any{
					"text":       c.Text,
					"section_id": c.SectionID,
					"breadcrumb": c.Breadcrumb,
					"line_start": c.LineStart,
					"line_end":   c.LineEnd,
					"source": map[string]any{
						"type":   "document",
						"doc_id": job.DocID,
					},
				},
				MemoryType: "semantic",
				Salience:   0.3,
				Source:     "mdguard:" + job.DocID,
			})
			results <- storeResult{key: key, err: err}
		}(c)
	}

	failed := 0
	for range chunks {
		r := <-results
		if r.err != nil {
			log.Error("store failed", "path", r.key, "error", r.err)
			job.AddError(fmt.Sprintf("store %s: %s", r.key, r.err))
			failed++
			continue
		}
		job.IncrChunksStored()
	}
	log.Info("storage complete", "stored", len(chunks)-failed, "total", len(chunks))
	return failed
}

// put writes one node, retrying transient failures.
func (w *Worker) put(ctx context.Context, log *slog.Logger, key string, req pathstore.NodeRequest) error {
	var err error
	for attempt := range MaxRetries {
		err = w.sink.PutNode(ctx, key, req)
		if err == nil || !IsRetryable(err) {
			return err
		}
		log.Warn("retryable store error", "path", key, "attempt", attempt, "error", err)
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (w *Worker) verdictNode(job *Job, d guard.Decision) pathstore.NodeRequest {
	return pathstore.NodeRequest{
		Value: map[string]any{
			"severity":           d.Severity,
			"blocked":            d.Blocked,
			"safe_for_embedding": d.SafeForEmbedding,
			"safe_for_tools":     d.SafeForTools,
			"reasons":            d.Reasons,
			"warnings":           d.Warnings,
			"profile":            job.Profile,
		},
		MemoryType: "metacognitive",
		Salience:   0.2,
		Source:     "mdguard:" + job.DocID,
	}
}

func (w *Worker) record(ctx context.Context, log *slog.Logger, job *Job, d guard.Decision, quarantined bool) {
	if w.ledger == nil {
		return
	}
	_, err := w.ledger.Record(ctx, ledger.Entry{
		DocID:       job.DocID,
		Filename:    job.Filename,
		Profile:     string(job.Profile),
		Severity:    d.Severity.String(),
		Blocked:     d.Blocked,
		Quarantined: quarantined,
		Reasons:     d.Reasons,
	})
	if err != nil {
		log.Error("ledger write failed", "error", err)
		job.AddError(fmt.Sprintf("ledger: %s", err))
	}
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}

// checkDuplicate reports whether hash is already indexed for the user.
func (w *Worker) checkDuplicate(ctx context.Context, userID, hash string) (bool, string, error) {
	children, err := w.sink.ListChildren(ctx, HashIndexPrefix(userID, hash), 1)
	if err != nil {
		return false, "", err
	}
	if len(children) == 0 {
		return false, "", nil
	}
	parts := strings.FieldsFunc(children[0].Key, func(r rune) bool { return r == '.' || r == '/' })
	if len(parts) == 0 {
		return true, "", nil
	}
	return true, parts[len(parts)-1], nil
}
