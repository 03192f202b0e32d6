package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/mdguard/internal/chunker"
	"github.com/dgallion1/mdguard/internal/config"
	"github.com/dgallion1/mdguard/internal/convert"
)

// Deps are the shared collaborators of all workers. Sink and Ledger are
// optional; leave them nil to disable storage or verdict recording.
type Deps struct {
	Sink   Sink
	Ledger Recorder
	Stats  *ParseStats
}

// Orchestrator manages the document ingestion pipeline.
type Orchestrator struct {
	jobs  *JobStore
	queue chan *Job
	deps  Deps
	log   *slog.Logger
	cfg   config.Config
	wcfg  WorkerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, deps Deps, log *slog.Logger) *Orchestrator {
	if deps.Stats == nil {
		deps.Stats = NewParseStats(time.Hour)
	}
	return &Orchestrator{
		jobs:  NewJobStore(cfg.JobTTL),
		queue: make(chan *Job, cfg.MaxQueueSize),
		deps:  deps,
		log:   log,
		cfg:   cfg,
		wcfg: WorkerConfig{
			Chunk: chunker.Config{
				ChunkSize:    cfg.ChunkSize,
				ChunkOverlap: cfg.ChunkOverlap,
				MinChunk:     100,
			},
			Convert:            convert.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
			CollectorTimeout:   cfg.CollectorTimeout,
			MaxConcurrentStore: cfg.MaxConcurrentStore,
		},
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.deps.Sink, o.deps.Ledger, o.deps.Stats, o.log, o.wcfg)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels in-flight work and waits for workers to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		job.SetStatus(StatusFailed, "shutdown")
		return fmt.Errorf("pipeline is shutting down")
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns the shared parse statistics.
func (o *Orchestrator) Stats() *ParseStats {
	return o.deps.Stats
}
