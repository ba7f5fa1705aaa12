package mcp

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/orchestrate"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/pipeline"
)

// JobStatus represents the current state of a crawl job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsActive reports whether a job in this state may still make progress
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Job is a snapshot of a background crawl job
type Job struct {
	ID             string         `json:"id"`
	SiteKey        string         `json:"site_key"`
	Status         JobStatus      `json:"status"`
	Profile        models.Profile `json:"profile,omitempty"` // Requested override, then the selected profile
	Resume         bool           `json:"resume"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at,omitempty"`
	PagesQueued    int64          `json:"pages_queued"`
	PagesProcessed int64          `json:"pages_processed"`
	PagesFailed    int64          `json:"pages_failed"`
	DocumentPath   string         `json:"document_path,omitempty"`
	Fallback       bool           `json:"fallback,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// jobState is the mutable record behind a Job
type jobState struct {
	Job
	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager manages background crawl jobs, at most one active job per site
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*jobState
	bySite map[string]string // siteKey -> jobID for active jobs
	now    func() time.Time
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*jobState),
		bySite: make(map[string]string),
		now:    time.Now,
	}
}

// CreateJob registers a pending job for a site. When the site already has an active job
// that job is returned with created == false.
func (m *JobManager) CreateJob(siteKey string, profile models.Profile, resume bool) (job Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.bySite[siteKey]; ok {
		if existing := m.jobs[id]; existing != nil && existing.Status.IsActive() {
			return existing.Job, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &jobState{
		Job: Job{
			ID:        uuid.New().String(),
			SiteKey:   siteKey,
			Status:    JobStatusPending,
			Profile:   profile,
			Resume:    resume,
			StartedAt: m.now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	m.jobs[st.ID] = st
	m.bySite[siteKey] = st.ID
	return st.Job, true
}

// GetJob returns a snapshot of a job
func (m *JobManager) GetJob(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return st.Job, true
}

// GetJobBySite returns the active job of a site
func (m *JobManager) GetJobBySite(siteKey string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.bySite[siteKey]; ok {
		if st := m.jobs[id]; st != nil {
			return st.Job, true
		}
	}
	return Job{}, false
}

// IsRunning checks if a site has an active job
func (m *JobManager) IsRunning(siteKey string) bool {
	_, ok := m.GetJobBySite(siteKey)
	return ok
}

// Context returns the context a job runs under; cancelled by CancelJob and CancelAll
func (m *JobManager) Context(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.jobs[jobID]; ok {
		return st.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// MarkRunning moves a pending job to running
func (m *JobManager) MarkRunning(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.jobs[jobID]; ok && st.Status == JobStatusPending {
		st.Status = JobStatusRunning
	}
}

// Finish records the outcome of a job run. A cancelled job keeps its cancelled status.
func (m *JobManager) Finish(jobID string, res orchestrate.SiteResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if res.Profile != "" {
		st.Profile = res.Profile
	}
	st.DocumentPath = res.DocumentPath
	st.Fallback = res.Fallback
	st.PagesProcessed = int64(res.Metrics.TotalPages)
	st.PagesFailed = int64(res.Metrics.FailedPages)

	if !st.Status.IsActive() {
		return
	}
	switch {
	case st.ctx.Err() != nil:
		st.Status = JobStatusCancelled
	case res.Success:
		st.Status = JobStatusCompleted
	default:
		st.Status = JobStatusFailed
		if res.Error != nil {
			st.ErrorMessage = res.Error.Error()
		}
	}
	m.finishLocked(st)
}

func (m *JobManager) finishLocked(st *jobState) {
	st.CompletedAt = m.now()
	st.cancel()
	if m.bySite[st.SiteKey] == st.ID {
		delete(m.bySite, st.SiteKey)
	}
}

// Reporter returns a pipeline reporter that keeps the job's progress counters current
func (m *JobManager) Reporter(jobID string) pipeline.Reporter {
	return pipeline.ReporterFunc(func(e pipeline.Event) {
		switch ev := e.(type) {
		case pipeline.URLsDiscovered:
			m.update(jobID, func(j *Job) { j.PagesQueued = int64(ev.Count) })
		case pipeline.PageProcessed:
			m.update(jobID, func(j *Job) {
				j.PagesProcessed++
				if !ev.Result.Success && !ev.Result.Duplicate && !ev.Result.FromCache {
					j.PagesFailed++
				}
			})
		}
	})
}

func (m *JobManager) update(jobID string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.jobs[jobID]; ok {
		fn(&st.Job)
	}
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.jobs[jobID]
	if !ok || !st.Status.IsActive() {
		return false
	}
	st.Status = JobStatusCancelled
	m.finishLocked(st)
	return true
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range m.jobs {
		if st.Status.IsActive() {
			st.Status = JobStatusCancelled
			m.finishLocked(st)
		}
	}
}

// ListJobs returns snapshots of all jobs, newest first
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, st := range m.jobs {
		jobs = append(jobs, st.Job)
	}
	slices.SortFunc(jobs, func(a, b Job) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return jobs
}
