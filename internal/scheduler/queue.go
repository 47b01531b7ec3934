package scheduler

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/jmylchreest/tvproxy/internal/models"
)

// JobCategory groups job types for per-type concurrency accounting. A
// maintenance job of any name falls into JobCategoryMaintenance.
type JobCategory string

const (
	JobCategoryStreamIngestion   JobCategory = "stream_ingestion"
	JobCategoryEpgIngestion      JobCategory = "epg_ingestion"
	JobCategoryProxyRegeneration JobCategory = "proxy_regeneration"
	JobCategoryMaintenance       JobCategory = "maintenance"
)

// CategoryForJobType maps a persisted job type to its concurrency category.
func CategoryForJobType(t models.JobType) JobCategory {
	switch t {
	case models.JobTypeStreamIngestion:
		return JobCategoryStreamIngestion
	case models.JobTypeEpgIngestion:
		return JobCategoryEpgIngestion
	case models.JobTypeProxyGeneration:
		return JobCategoryProxyRegeneration
	default:
		return JobCategoryMaintenance
	}
}

// JobKeyFor builds the deduplication key for a job. Jobs sharing a key are
// treated as duplicates of the same unit of work (e.g. re-ingesting the same
// source) and only one may be pending or running at a time.
func JobKeyFor(jobType models.JobType, targetID models.ULID) string {
	switch jobType {
	case models.JobTypeStreamIngestion:
		return fmt.Sprintf("stream:%s", targetID)
	case models.JobTypeEpgIngestion:
		return fmt.Sprintf("epg:%s", targetID)
	case models.JobTypeProxyGeneration:
		return fmt.Sprintf("proxy:%s", targetID)
	default:
		return fmt.Sprintf("maintenance:%s", targetID)
	}
}

// ScheduledJob is an in-memory queue entry mirroring a persisted job row.
// It carries just enough to order, dedup and categorize the job; the full
// row is fetched again when the job is actually claimed.
type ScheduledJob struct {
	ID            models.ULID
	JobKey        string
	Type          models.JobType
	Priority      int
	ScheduledTime time.Time
}

// NewScheduledJob builds a ScheduledJob from a persisted job row.
func NewScheduledJob(job *models.Job) *ScheduledJob {
	scheduled := time.Now()
	if job.NextRunAt != nil {
		scheduled = *job.NextRunAt
	}
	return &ScheduledJob{
		ID:            job.ID,
		JobKey:        JobKeyFor(job.Type, job.TargetID),
		Type:          job.Type,
		Priority:      job.Priority,
		ScheduledTime: scheduled,
	}
}

// IsReady reports whether the job's scheduled time has arrived.
func (j *ScheduledJob) IsReady(now time.Time) bool {
	return !j.ScheduledTime.After(now)
}

// jobHeap is a container/heap.Interface ordering jobs by priority (higher
// first) then by scheduled time (earlier first), matching models.Job's
// "higher Priority value runs first" convention.
type jobHeap []*ScheduledJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ScheduledTime.Before(h[j].ScheduledTime)
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(*ScheduledJob))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ConcurrencyLimits bounds how many jobs of each category, and in total,
// may run at once.
type ConcurrencyLimits struct {
	Global  int
	PerType map[JobCategory]int
}

// DefaultConcurrencyLimits returns the built-in caps: a handful of
// ingestion jobs, a single proxy regeneration and a single maintenance
// task may run concurrently, bounded overall by Global.
func DefaultConcurrencyLimits() ConcurrencyLimits {
	return ConcurrencyLimits{
		Global: 6,
		PerType: map[JobCategory]int{
			JobCategoryStreamIngestion:   2,
			JobCategoryEpgIngestion:      2,
			JobCategoryProxyRegeneration: 1,
			JobCategoryMaintenance:       1,
		},
	}
}

func (c ConcurrencyLimits) sumPerType() int {
	sum := 0
	for _, v := range c.PerType {
		sum += v
	}
	return sum
}

// JobQueue is a thread-safe, in-memory priority queue of scheduled jobs with
// job-key deduplication across both pending and running jobs. The database
// remains the durable source of truth; the queue is rehydrated from it on
// startup and only tracks jobs for the lifetime of the process.
type JobQueue struct {
	mu sync.Mutex

	pending jobHeap
	running map[models.ULID]*ScheduledJob
	jobKeys map[string]struct{}

	limits ConcurrencyLimits
}

// NewJobQueue creates an empty queue with the default concurrency limits.
func NewJobQueue() *JobQueue {
	return &JobQueue{
		running: make(map[models.ULID]*ScheduledJob),
		jobKeys: make(map[string]struct{}),
		limits:  DefaultConcurrencyLimits(),
	}
}

// Enqueue adds job to the pending heap unless its job key is already
// tracked (pending or running), in which case it is a no-op. Returns true
// if the job was enqueued.
func (q *JobQueue) Enqueue(job *ScheduledJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobKeys[job.JobKey]; exists {
		return false
	}

	q.jobKeys[job.JobKey] = struct{}{}
	heap.Push(&q.pending, job)
	return true
}

// GetExecutableJobs extracts up to availableSlots jobs that are ready to run
// (scheduled_time <= now) and whose category has not hit its concurrency
// cap, counting both currently running jobs and jobs already selected
// earlier in this same call. Jobs that cannot run yet are put back. Results
// are in priority-then-time order.
func (q *JobQueue) GetExecutableJobs(now time.Time, availableSlots int) []*ScheduledJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if availableSlots <= 0 || q.pending.Len() == 0 {
		return nil
	}

	counts := make(map[JobCategory]int, len(q.limits.PerType))
	for _, job := range q.running {
		counts[CategoryForJobType(job.Type)]++
	}

	var executable []*ScheduledJob
	var deferred jobHeap

	for q.pending.Len() > 0 && len(executable) < availableSlots {
		job := heap.Pop(&q.pending).(*ScheduledJob)

		if !job.IsReady(now) {
			deferred = append(deferred, job)
			continue
		}

		category := CategoryForJobType(job.Type)
		limit := q.limits.PerType[category]
		if limit <= 0 {
			limit = 1
		}

		if counts[category] >= limit {
			deferred = append(deferred, job)
			continue
		}

		executable = append(executable, job)
		counts[category]++
	}

	for _, job := range deferred {
		heap.Push(&q.pending, job)
	}

	return executable
}

// MarkRunning records job as running, keeping its key tracked so
// duplicates continue to be rejected while it executes.
func (q *JobQueue) MarkRunning(job *ScheduledJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running[job.ID] = job
}

// MarkCompleted removes id from the running set and releases its job key,
// allowing a future job with the same key to be enqueued.
func (q *JobQueue) MarkCompleted(id models.ULID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.running[id]
	if !ok {
		return
	}
	delete(q.running, id)
	delete(q.jobKeys, job.JobKey)
}

// Requeue returns a job that was claimed from GetExecutableJobs but could
// not actually be acquired (e.g. another process claimed it in the
// database first) back to the pending heap without touching its job key.
func (q *JobQueue) Requeue(job *ScheduledJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.pending, job)
}

// ContainsJobKey reports whether key is currently tracked, pending or running.
func (q *JobQueue) ContainsJobKey(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.jobKeys[key]
	return ok
}

// SetConcurrencyLimits replaces the queue's concurrency caps. Rejected if
// the sum of per-type limits exceeds the global limit.
func (q *JobQueue) SetConcurrencyLimits(limits ConcurrencyLimits) error {
	if sum := limits.sumPerType(); sum > limits.Global {
		return fmt.Errorf("sum of per-type limits (%d) exceeds global limit (%d)", sum, limits.Global)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits = limits
	return nil
}

// ConcurrencyLimits returns the queue's current caps.
func (q *JobQueue) ConcurrencyLimits() ConcurrencyLimits {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limits
}

// GlobalLimit returns the current global concurrency cap.
func (q *JobQueue) GlobalLimit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limits.Global
}

// RunningCount returns the number of jobs currently marked as running.
func (q *JobQueue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// PendingCount returns the number of jobs waiting in the heap.
func (q *JobQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// JobQueueStats summarizes the queue's current state.
type JobQueueStats struct {
	PendingJobs      int `json:"pending_jobs"`
	RunningJobs      int `json:"running_jobs"`
	TotalTrackedKeys int `json:"total_tracked_keys"`
}

// Stats returns a snapshot of the queue's current state.
func (q *JobQueue) Stats() JobQueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return JobQueueStats{
		PendingJobs:      q.pending.Len(),
		RunningJobs:      len(q.running),
		TotalTrackedKeys: len(q.jobKeys),
	}
}
