package sysdig

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/report-enricher/pkg/logger"
)

func testConfig(baseURL string) Config {
	return Config{
		Tenant:       "example.sysdig.com",
		APIToken:     "test-token",
		BaseURL:      baseURL,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  time.Second,
		Window:       24 * time.Hour,
		Timezone:     "America/New_York",
		HTTPTimeout:  5 * time.Second,
	}
}

func TestListReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]ReportDefinition{
			{ID: 1, Name: "Vulnerability Findings"},
			{ID: 7, Name: "Policy Violations"},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	reports, err := c.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(7), reports[1].ID)
	assert.Equal(t, "Vulnerability Findings", reports[0].Name)
}

func TestListReports_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	_, err := c.ListReports(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestCreateJob_Payload(t *testing.T) {
	var got createJobRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "IN_PROGRESS"})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	job, err := c.CreateJob(context.Background(), CreateJobInput{
		ReportID: 7,
		JobName:  "Kubernetes Workload Vulnerability Findings",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)

	assert.Equal(t, "ON_DEMAND", got.JobType)
	assert.Equal(t, "csv", got.ReportFormat)
	assert.Equal(t, "gzip", got.Compression)
	assert.Equal(t, int64(7), got.ReportID)
	assert.False(t, got.IsReportTemplate)
	assert.Equal(t, "America/New_York", got.Timezone)
	assert.Equal(t, got.JobName, got.FileName)
	assert.Equal(t, fixed.Unix(), got.TimeFrame.To)
	assert.Equal(t, fixed.Add(-24*time.Hour).Unix(), got.TimeFrame.From)
	assert.NotNil(t, got.Zones)
	assert.Empty(t, got.Zones)
}

func TestCreateJob_InvalidInput(t *testing.T) {
	c := NewClient(testConfig("http://unused"), logger.NewNop())
	_, err := c.CreateJob(context.Background(), CreateJobInput{JobName: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job input")
}

func TestCreateJob_MissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "IN_PROGRESS"})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	_, err := c.CreateJob(context.Background(), CreateJobInput{ReportID: 1, JobName: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job ID")
}

func TestWaitForCompletion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/job-1", r.URL.Path)
		calls++
		job := Job{ID: "job-1", Status: "IN_PROGRESS"}
		if calls >= 3 {
			job.Status = StatusCompleted
			job.FilePath = "https://example.com/report.csv.gz"
		}
		_ = json.NewEncoder(w).Encode(job)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	job, err := c.WaitForCompletion(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "https://example.com/report.csv.gz", job.FilePath)
	assert.Equal(t, 3, calls)
}

func TestWaitForCompletion_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: StatusFailed})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	_, err := c.WaitForCompletion(context.Background(), "job-1")
	require.ErrorIs(t, err, ErrJobFailed)
}

func TestWaitForCompletion_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "IN_PROGRESS"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PollTimeout = time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	c := NewClient(cfg, logger.NewNop())

	_, err := c.WaitForCompletion(context.Background(), "job-1")
	require.ErrorIs(t, err, ErrPollTimeout)
}

func TestWaitForCompletion_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "IN_PROGRESS"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	_, err := c.WaitForCompletion(ctx, "job-1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitForCompletion_CompletedWithoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: StatusCompleted})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	_, err := c.WaitForCompletion(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a download URL")
}

func TestDownloadArtifact(t *testing.T) {
	const content = "Image ID,Container Labels\nimg1,\"{\"\"MAINTAINER\"\":\"\"alice\"\"}\"\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(content))
		_ = gz.Close()
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "v2-report.csv")

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	require.NoError(t, c.DownloadArtifact(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	// No temp files may remain next to the destination.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDownloadArtifact_NotGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text, not gzip"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "v2-report.csv")

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	err := c.DownloadArtifact(context.Background(), srv.URL, dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadArtifact_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewNop())
	err := c.DownloadArtifact(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 410")
}
