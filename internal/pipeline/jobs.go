package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/mdguard/internal/guard"
	"github.com/dgallion1/mdguard/internal/profile"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusConverting JobStatus = "converting"
	StatusParsing    JobStatus = "parsing"
	StatusGuarding   JobStatus = "guarding"
	StatusChunking   JobStatus = "chunking"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusRejected   JobStatus = "rejected"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Terminal reports whether no further transitions follow s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusFailed, StatusDupSkipped:
		return true
	}
	return false
}

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID      string       `json:"job_id"`
	DocID   string       `json:"doc_id"`
	UserID  string       `json:"user_id"`
	Profile profile.Name `json:"profile"`
	// Force skips the duplicate check.
	Force bool `json:"force"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`

	Progress Progress        `json:"progress"`
	Verdict  *guard.Decision `json:"verdict,omitempty"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	fileData []byte
}

// Progress tracks processing progress.
type Progress struct {
	TotalChunks  int      `json:"total_chunks"`
	ChunksStored int      `json:"chunks_stored"`
	Warnings     []string `json:"warnings"`
	Errors       []string `json:"errors"`
}

// NewJob returns a queued job for data.
func NewJob(userID, filename string, p profile.Name, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        NewJobID(),
		DocID:     ContentHashHex(data)[:16],
		UserID:    userID,
		Profile:   p,
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs idle for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Errors = append(j.Progress.Errors, err)
	j.UpdatedAt = time.Now()
}

// AddWarnings records non-fatal findings.
func (j *Job) AddWarnings(w ...string) {
	if len(w) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Warnings = append(j.Progress.Warnings, w...)
	j.UpdatedAt = time.Now()
}

// SetVerdict stores the guard decision.
func (j *Job) SetVerdict(d guard.Decision) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Verdict = &d
	j.UpdatedAt = time.Now()
}

// SetTitle sets the document title when none was supplied.
func (j *Job) SetTitle(title string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Title == "" {
		j.Title = title
	}
	return j.Title
}

// SetContentHash records the hash of the normalized text.
func (j *Job) SetContentHash(h string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = h
}

// SetTotalChunks records total chunk count.
func (j *Job) SetTotalChunks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	j.UpdatedAt = time.Now()
}

// IncrChunksStored atomically increments the stored chunk count.
func (j *Job) IncrChunksStored() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksStored++
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseData drops the upload once processing no longer needs it.
func (j *Job) releaseData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string          `json:"job_id"`
	DocID       string          `json:"doc_id"`
	UserID      string          `json:"user_id"`
	Profile     profile.Name    `json:"profile"`
	Status      JobStatus       `json:"status"`
	Phase       string          `json:"phase"`
	Filename    string          `json:"filename"`
	Title       string          `json:"title"`
	ContentHash string          `json:"content_hash,omitempty"`
	Progress    Progress        `json:"progress"`
	Verdict     *guard.Decision `json:"verdict,omitempty"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		UserID:      j.UserID,
		Profile:     j.Profile,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Title:       j.Title,
		ContentHash: j.ContentHash,
		Progress: Progress{
			TotalChunks:  j.Progress.TotalChunks,
			ChunksStored: j.Progress.ChunksStored,
			Warnings:     append([]string{}, j.Progress.Warnings...),
			Errors:       append([]string{}, j.Progress.Errors...),
		},
		Verdict: j.Verdict,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
