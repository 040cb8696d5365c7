package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/quizgen/internal/schema"
)

// JobStatus represents the state of a quiz generation job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Pipeline phases, reported through job status while a job runs.
const (
	PhaseChunking    = "chunking"
	PhaseEmbedding   = "embedding"
	PhaseSelecting   = "selecting"
	PhaseSummarizing = "summarizing"
	PhaseConcepts    = "concepts"
	PhaseGenerating  = "generating"
	PhaseVerifying   = "verifying"
	PhaseDone        = "done"
)

// Job tracks the state of a single quiz generation run.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	pages  []schema.Page
	result *schema.QuizOutput
	errors []string
}

// Progress tracks pipeline counters as phases complete.
type Progress struct {
	TotalChunks        int      `json:"total_chunks"`
	SelectedChunks     int      `json:"selected_chunks"`
	MiniSummaries      int      `json:"mini_summaries"`
	Concepts           int      `json:"concepts"`
	QuestionsGenerated int      `json:"questions_generated"`
	QuestionsVerified  int      `json:"questions_verified"`
	Errors             []string `json:"errors"`
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

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
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

// SetPhase updates the phase of a running job.
func (j *Job) SetPhase(phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// UpdateProgress applies fn to the progress counters atomically.
func (j *Job) UpdateProgress(fn func(*Progress)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.Progress)
	j.UpdatedAt = time.Now()
}

// SetPages sets the source pages for processing.
func (j *Job) SetPages(pages []schema.Page) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pages = pages
}

// Pages returns the source pages.
func (j *Job) Pages() []schema.Page {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pages
}

// SetResult stores the finished quiz output.
func (j *Job) SetResult(result *schema.QuizOutput) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = result
	j.UpdatedAt = time.Now()
}

// Result returns the quiz output, or nil while the job is unfinished.
func (j *Job) Result() *schema.QuizOutput {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string    `json:"job_id"`
	DocID    string    `json:"doc_id"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Progress Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	progress := j.Progress
	progress.Errors = errs
	return JobSnapshot{
		ID:       j.ID,
		DocID:    j.DocID,
		Status:   j.Status,
		Phase:    j.Phase,
		Progress: progress,
	}
}
