package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgallion1/mdguard/internal/config"
	"github.com/dgallion1/mdguard/internal/profile"
)

func testConfig() config.Config {
	return config.Config{
		WorkerCount:        2,
		MaxQueueSize:       2,
		MaxConcurrentStore: 2,
		CollectorTimeout:   time.Second,
		ChunkSize:          1500,
		ChunkOverlap:       200,
		JobTTL:             time.Hour,
	}
}

func waitTerminal(t *testing.T, job *Job) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := job.Snapshot(); snap.Status.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish: %+v", job.ID, job.Snapshot())
	return JobSnapshot{}
}

func TestOrchestratorProcessesJobsIndependently(t *testing.T) {
	o := NewOrchestrator(testConfig(), Deps{}, slog.New(slog.DiscardHandler))
	o.Start(context.Background())
	defer o.Stop()

	good := NewJob("u", "good.md", profile.Strict, []byte(cleanDoc))
	bad := NewJob("u", "bad.md", profile.Strict, []byte("<script>x()</script>\n"))
	for _, j := range []*Job{good, bad} {
		if err := o.Submit(j); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if s := waitTerminal(t, good); s.Status != StatusCompleted {
		t.Errorf("good = %q %v", s.Status, s.Progress.Errors)
	}
	if s := waitTerminal(t, bad); s.Status != StatusRejected {
		t.Errorf("bad = %q", s.Status)
	}
	if o.GetJob(good.ID) != good {
		t.Error("job not registered")
	}
	if snap := o.Stats().Snapshot(); snap.Count != 2 {
		t.Errorf("stats count = %d", snap.Count)
	}
}

func TestOrchestratorQueueFull(t *testing.T) {
	// Not started: nothing drains the queue.
	o := NewOrchestrator(testConfig(), Deps{}, slog.New(slog.DiscardHandler))
	for i := range 2 {
		if err := o.Submit(NewJob("u", "a.md", profile.Strict, []byte("a"))); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	over := NewJob("u", "a.md", profile.Strict, []byte("a"))
	if err := o.Submit(over); err == nil {
		t.Fatal("expected queue full error")
	}
	if s := over.Snapshot(); s.Status != StatusFailed || s.Phase != "queue_full" {
		t.Errorf("over = %q/%q", s.Status, s.Phase)
	}
	if o.QueueDepth() != 2 {
		t.Errorf("depth = %d", o.QueueDepth())
	}
}

func TestOrchestratorSubmitAfterStop(t *testing.T) {
	o := NewOrchestrator(testConfig(), Deps{}, slog.New(slog.DiscardHandler))
	o.Start(context.Background())
	o.Stop()
	o.Stop()
	if err := o.Submit(NewJob("u", "a.md", profile.Strict, []byte("a"))); err == nil {
		t.Error("expected error after Stop")
	}
}
