package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"portal-harvester/pkg/orchestrate"
)

// JobStatus represents the current state of a harvest job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions can happen
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is a background harvest started through the harvest tool
type Job struct {
	ID           string    `json:"id"`
	Portal       string    `json:"portal"`
	Status       JobStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	MaxPages     int       `json:"max_pages"`
	RunID        string    `json:"run_id,omitempty"`
	PagesFetched int       `json:"pages_fetched"`
	Documents    int       `json:"documents"`
	OutputDir    string    `json:"output_dir,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	ctx      context.Context
	cancel   context.CancelFunc
	progress func() orchestrate.Progress
}

// JobManager tracks background harvest jobs. At most one job per portal is active.
type JobManager struct {
	jobs     map[string]*Job
	byPortal map[string]string // portal -> active job ID
	mu       sync.RWMutex
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:     make(map[string]*Job),
		byPortal: make(map[string]string),
	}
}

// CreateJob registers a pending job for portal. If one is already active it is
// returned with created=false.
func (m *JobManager) CreateJob(portal string, maxPages int) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPortal[portal]; ok {
		if existing := m.jobs[id]; existing != nil && !existing.Status.Terminal() {
			return existing, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job = &Job{
		ID:        uuid.NewString(),
		Portal:    portal,
		Status:    JobStatusPending,
		StartedAt: time.Now().UTC(),
		MaxPages:  maxPages,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[job.ID] = job
	m.byPortal[portal] = job.ID
	return job, true
}

// Get returns a snapshot of a job, refreshed from its live progress while running
func (m *JobManager) Get(id string) (Job, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.RUnlock()
		return Job{}, false
	}
	snap := *job
	m.mu.RUnlock()

	if snap.Status == JobStatusRunning && snap.progress != nil {
		p := snap.progress()
		snap.RunID = p.RunID
		snap.PagesFetched = p.PagesFetched
		snap.Documents = p.Documents
	}
	return snap, true
}

// IsRunning reports whether portal has an active job
func (m *JobManager) IsRunning(portal string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPortal[portal]
	if !ok {
		return false
	}
	job := m.jobs[id]
	return job != nil && !job.Status.Terminal()
}

// Start marks a job running and attaches its progress source
func (m *JobManager) Start(id string, progress func() orchestrate.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok && job.Status == JobStatusPending {
		job.Status = JobStatusRunning
		job.progress = progress
	}
}

// Finish moves a job to a terminal status and records its report. A cancelled job stays cancelled.
func (m *JobManager) Finish(id string, status JobStatus, report *orchestrate.Report, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	if report != nil && report.Summary != nil {
		job.RunID = report.Summary.RunID
		job.PagesFetched = report.Summary.PagesFetched
		job.Documents = report.Summary.Documents
		job.OutputDir = report.OutputDir
	}
	if job.Status.Terminal() {
		return
	}
	job.Status = status
	job.CompletedAt = time.Now().UTC()
	job.ErrorMessage = errMsg
	delete(m.byPortal, job.Portal)
}

// Context returns the job's cancellation context
func (m *JobManager) Context(id string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		return job.ctx
	}
	return context.Background()
}

// Cancel cancels an active job
func (m *JobManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}
	job.cancel()
	job.Status = JobStatusCancelled
	job.CompletedAt = time.Now().UTC()
	delete(m.byPortal, job.Portal)
	return true
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now().UTC()
		}
	}
	m.byPortal = make(map[string]string)
}

// List returns snapshots of all jobs
func (m *JobManager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	return out
}
