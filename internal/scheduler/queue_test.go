package scheduler

import (
	"testing"
	"time"

	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/stretchr/testify/assert"
)

func newTestScheduledJob(jobType models.JobType, targetID models.ULID, priority int, scheduledTime time.Time) *ScheduledJob {
	return &ScheduledJob{
		ID:            models.NewULID(),
		JobKey:        JobKeyFor(jobType, targetID),
		Type:          jobType,
		Priority:      priority,
		ScheduledTime: scheduledTime,
	}
}

func TestJobQueue_EnqueueDeduplication(t *testing.T) {
	q := NewJobQueue()
	sourceID := models.NewULID()
	now := time.Now()

	job1 := newTestScheduledJob(models.JobTypeStreamIngestion, sourceID, 0, now)
	job2 := newTestScheduledJob(models.JobTypeStreamIngestion, sourceID, 10, now.Add(time.Second))

	assert.True(t, q.Enqueue(job1))
	assert.False(t, q.Enqueue(job2))

	stats := q.Stats()
	assert.Equal(t, 1, stats.PendingJobs)
	assert.Equal(t, 1, stats.TotalTrackedKeys)
}

func TestJobQueue_PriorityOrdering(t *testing.T) {
	q := NewJobQueue()
	now := time.Now()

	maintenance := newTestScheduledJob(models.JobTypeLogoCleanup, models.NewULID(), 0, now)
	critical := newTestScheduledJob(models.JobTypeStreamIngestion, models.NewULID(), 100, now)
	normal := newTestScheduledJob(models.JobTypeEpgIngestion, models.NewULID(), 50, now)

	q.Enqueue(maintenance)
	q.Enqueue(critical)
	q.Enqueue(normal)

	jobs := q.GetExecutableJobs(now, 10)
	if assert.Len(t, jobs, 3) {
		assert.Equal(t, critical.ID, jobs[0].ID)
		assert.Equal(t, normal.ID, jobs[1].ID)
		assert.Equal(t, maintenance.ID, jobs[2].ID)
	}
}

func TestJobQueue_ReadyJobsFiltering(t *testing.T) {
	q := NewJobQueue()
	now := time.Now()

	ready := newTestScheduledJob(models.JobTypeStreamIngestion, models.NewULID(), 0, now.Add(-time.Minute))
	future := newTestScheduledJob(models.JobTypeEpgIngestion, models.NewULID(), 0, now.Add(10*time.Minute))

	q.Enqueue(ready)
	q.Enqueue(future)

	jobs := q.GetExecutableJobs(now, 10)
	if assert.Len(t, jobs, 1) {
		assert.Equal(t, ready.ID, jobs[0].ID)
	}

	assert.Equal(t, 1, q.PendingCount())
}

func TestJobQueue_RunningLifecycle(t *testing.T) {
	q := NewJobQueue()
	job := newTestScheduledJob(models.JobTypeStreamIngestion, models.NewULID(), 0, time.Now())

	q.Enqueue(job)
	jobs := q.GetExecutableJobs(time.Now(), 1)
	assert.Len(t, jobs, 1)

	q.MarkRunning(jobs[0])
	assert.Equal(t, 1, q.RunningCount())
	assert.True(t, q.ContainsJobKey(job.JobKey))

	q.MarkCompleted(job.ID)
	assert.Equal(t, 0, q.RunningCount())
	assert.False(t, q.ContainsJobKey(job.JobKey))
}

func TestJobQueue_LimitsAvailableSlots(t *testing.T) {
	q := NewJobQueue()
	now := time.Now()

	for i := 0; i < 5; i++ {
		q.Enqueue(newTestScheduledJob(models.JobTypeStreamIngestion, models.NewULID(), 0, now))
	}

	jobs := q.GetExecutableJobs(now, 3)
	assert.Len(t, jobs, 3)
	assert.Equal(t, 2, q.PendingCount())
}

func TestJobQueue_PerTypeConcurrencyCap(t *testing.T) {
	q := NewJobQueue()
	now := time.Now()
	require := assert.New(t)

	require.NoError(q.SetConcurrencyLimits(ConcurrencyLimits{
		Global: 3,
		PerType: map[JobCategory]int{
			JobCategoryStreamIngestion: 1,
			JobCategoryEpgIngestion:    2,
		},
	}))

	for i := 0; i < 3; i++ {
		q.Enqueue(newTestScheduledJob(models.JobTypeStreamIngestion, models.NewULID(), 0, now))
	}

	jobs := q.GetExecutableJobs(now, 10)
	require.Len(jobs, 1)
	require.Equal(2, q.PendingCount())
}

func TestJobQueue_SetConcurrencyLimitsRejectsOversum(t *testing.T) {
	q := NewJobQueue()

	err := q.SetConcurrencyLimits(ConcurrencyLimits{
		Global: 2,
		PerType: map[JobCategory]int{
			JobCategoryStreamIngestion: 2,
			JobCategoryEpgIngestion:    2,
		},
	})
	assert.Error(t, err)

	// original limits remain in effect
	assert.Equal(t, DefaultConcurrencyLimits().Global, q.GlobalLimit())
}

func TestJobQueue_Requeue(t *testing.T) {
	q := NewJobQueue()
	job := newTestScheduledJob(models.JobTypeProxyGeneration, models.NewULID(), 0, time.Now())

	q.Enqueue(job)
	jobs := q.GetExecutableJobs(time.Now(), 1)
	assert.Len(t, jobs, 1)
	assert.Equal(t, 0, q.PendingCount())

	q.Requeue(jobs[0])
	assert.Equal(t, 1, q.PendingCount())
	assert.True(t, q.ContainsJobKey(job.JobKey))
}
