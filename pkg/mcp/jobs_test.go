package mcp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-harvester/pkg/crawler"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/orchestrate"
)

func createTestJob(t *testing.T, jm *JobManager, portal string) *Job {
	t.Helper()
	job, created := jm.CreateJob(portal, 50)
	require.True(t, created)
	require.NotNil(t, job)
	return job
}

func TestNewJobManager(t *testing.T) {
	jm := NewJobManager()
	require.NotNil(t, jm)
	assert.Empty(t, jm.List())
}

func TestCreateJob(t *testing.T) {
	t.Run("new job fields correct", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "mosdac.gov.in")

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "mosdac.gov.in", job.Portal)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, 50, job.MaxPages)
		assert.False(t, job.StartedAt.IsZero())
		assert.True(t, job.CompletedAt.IsZero())
		assert.Empty(t, job.ErrorMessage)
	})

	t.Run("second job for active portal returns existing", func(t *testing.T) {
		jm := NewJobManager()
		first := createTestJob(t, jm, "mosdac.gov.in")
		second, created := jm.CreateJob("mosdac.gov.in", 10)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("new job allowed after previous finished", func(t *testing.T) {
		jm := NewJobManager()
		first := createTestJob(t, jm, "mosdac.gov.in")
		jm.Finish(first.ID, JobStatusCompleted, nil, "")
		second := createTestJob(t, jm, "mosdac.gov.in")
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("different portals run independently", func(t *testing.T) {
		jm := NewJobManager()
		createTestJob(t, jm, "a.example")
		createTestJob(t, jm, "b.example")
		assert.Len(t, jm.List(), 2)
	})
}

func TestGetJob(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "mosdac.gov.in")

	got, ok := jm.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)

	_, ok = jm.Get("missing")
	assert.False(t, ok)
}

func TestStartAndProgress(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "mosdac.gov.in")

	jm.Start(job.ID, func() orchestrate.Progress {
		return orchestrate.Progress{
			RunID:    "run-1",
			Stage:    orchestrate.StageCrawling,
			Progress: crawler.Progress{Phase: models.PhaseDiscovery, PagesFetched: 7, Documents: 5},
		}
	})

	got, ok := jm.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobStatusRunning, got.Status)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 7, got.PagesFetched)
	assert.Equal(t, 5, got.Documents)
	assert.True(t, jm.IsRunning("mosdac.gov.in"))
}

func TestFinish(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		errMsg string
	}{
		{"completed", JobStatusCompleted, ""},
		{"failed", JobStatusFailed, "portal unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm := NewJobManager()
			job := createTestJob(t, jm, "mosdac.gov.in")
			jm.Start(job.ID, nil)

			summary := models.NewRunSummary("run-9", "https://mosdac.gov.in", 50)
			summary.PagesFetched = 12
			summary.Documents = 9
			jm.Finish(job.ID, tt.status, &orchestrate.Report{Summary: summary, OutputDir: "/tmp/out"}, tt.errMsg)

			got, _ := jm.Get(job.ID)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.errMsg, got.ErrorMessage)
			assert.Equal(t, "run-9", got.RunID)
			assert.Equal(t, 12, got.PagesFetched)
			assert.Equal(t, 9, got.Documents)
			assert.Equal(t, "/tmp/out", got.OutputDir)
			assert.False(t, got.CompletedAt.IsZero())
			assert.False(t, jm.IsRunning("mosdac.gov.in"))
		})
	}
}

func TestCancelJob(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "mosdac.gov.in")
	jm.Start(job.ID, nil)
	ctx := jm.Context(job.ID)

	assert.True(t, jm.Cancel(job.ID))
	assert.Error(t, ctx.Err())
	assert.False(t, jm.Cancel(job.ID), "already terminal")
	assert.False(t, jm.Cancel("missing"))

	// The run finishing afterwards records results but keeps the cancelled status
	summary := models.NewRunSummary("run-2", "https://mosdac.gov.in", 50)
	summary.Documents = 3
	jm.Finish(job.ID, JobStatusFailed, &orchestrate.Report{Summary: summary}, "context canceled")
	got, _ := jm.Get(job.ID)
	assert.Equal(t, JobStatusCancelled, got.Status)
	assert.Equal(t, 3, got.Documents)
	assert.Empty(t, got.ErrorMessage)
}

func TestCancelAll(t *testing.T) {
	jm := NewJobManager()
	a := createTestJob(t, jm, "a.example")
	b := createTestJob(t, jm, "b.example")
	jm.Finish(b.ID, JobStatusCompleted, nil, "")

	jm.CancelAll()

	gotA, _ := jm.Get(a.ID)
	gotB, _ := jm.Get(b.ID)
	assert.Equal(t, JobStatusCancelled, gotA.Status)
	assert.Equal(t, JobStatusCompleted, gotB.Status)
	assert.Error(t, jm.Context(a.ID).Err())
	assert.False(t, jm.IsRunning("a.example"))
}

func TestContextUnknownJob(t *testing.T) {
	jm := NewJobManager()
	assert.NoError(t, jm.Context("missing").Err())
}

func TestJobManager_ConcurrentCreate(t *testing.T) {
	jm := NewJobManager()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := jm.CreateJob("mosdac.gov.in", 10); ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}
