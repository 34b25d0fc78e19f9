package services

import (
	"crypto/rand"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/markdave123-py/Ledgerlens/internal/core/ingestion_engine"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Job tracks one queued ingestion.
type Job struct {
	mu sync.Mutex

	ID         string
	DocumentID string
	FileName   string
	Quarter    string
	Status     string
	Error      string
	Report     *ingestion_engine.Report
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobSnapshot is a JSON-safe copy of a job.
type JobSnapshot struct {
	ID         string                     `json:"job_id"`
	DocumentID string                     `json:"document_id"`
	FileName   string                     `json:"file_name"`
	Quarter    string                     `json:"quarter"`
	Status     string                     `json:"status"`
	Error      string                     `json:"error,omitempty"`
	Stored     map[string]int             `json:"stored,omitempty"`
	Failures   []ingestion_engine.Failure `json:"failures,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := JobSnapshot{
		ID:         j.ID,
		DocumentID: j.DocumentID,
		FileName:   j.FileName,
		Quarter:    j.Quarter,
		Status:     j.Status,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
	if j.Report != nil {
		s.Stored = maps.Clone(j.Report.Stored)
		s.Failures = slices.Clone(j.Report.Failures)
	}
	return s
}

func (j *Job) finish(res ingestion_engine.JobResult, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Report = res.Report
	j.UpdatedAt = now
	switch {
	case res.Err != nil:
		j.Status = models.StatusFailed
		j.Error = res.Err.Error()
	case res.Report != nil:
		j.Status = res.Report.Status()
	default:
		j.Status = models.StatusReady
	}
}

// JobService is an in-memory registry of ingestion jobs with TTL eviction.
type JobService struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	ttl     time.Duration
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewJobService(ttl time.Duration) *JobService {
	return &JobService{
		jobs:    make(map[string]*Job),
		ttl:     ttl,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// New registers a queued job for doc.
func (s *JobService) New(doc *models.Document) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	job := &Job{
		ID:         ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Quarter:    doc.Quarter,
		Status:     models.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[job.ID] = job
	return job
}

func (s *JobService) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// MarkProcessing is called when a worker picks the job up.
func (s *JobService) MarkProcessing(id string) {
	if j, ok := s.Get(id); ok {
		j.mu.Lock()
		j.Status = models.StatusProcessing
		j.UpdatedAt = s.now()
		j.mu.Unlock()
	}
}

// Complete records a worker result. It is installed as the ingestor's
// result handler.
func (s *JobService) Complete(res ingestion_engine.JobResult) {
	if j, ok := s.Get(res.Job.ID); ok {
		j.finish(res, s.now())
	}
}

// Cleanup removes finished jobs not updated within the TTL.
func (s *JobService) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, j := range s.jobs {
		j.mu.Lock()
		done := j.Status != models.StatusQueued && j.Status != models.StatusProcessing
		stale := now.Sub(j.UpdatedAt) > s.ttl
		j.mu.Unlock()
		if done && stale {
			delete(s.jobs, id)
		}
	}
}
