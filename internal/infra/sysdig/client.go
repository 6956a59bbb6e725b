// Package sysdig implements a client for the Sysdig Secure platform
// reporting API: listing report definitions, launching on-demand
// generation jobs, polling them to completion, and downloading the
// compressed artifact.
package sysdig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openctemio/report-enricher/pkg/logger"
)

// Job statuses reported by the jobs endpoint.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Config holds reporting API client configuration.
type Config struct {
	// Tenant is the Sysdig tenant hostname, e.g. "us2.app.sysdig.com".
	Tenant   string
	APIToken string

	// BaseURL overrides the URL derived from Tenant. Used in tests.
	BaseURL string

	// PollInterval and PollTimeout drive WaitForCompletion. Report jobs
	// routinely take many minutes; the defaults are 30s and 2h.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Window is the report time frame ending now.
	Window   time.Duration
	Timezone string

	HTTPTimeout time.Duration
}

// ReportDefinition is one entry of the report catalog.
type ReportDefinition struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Job is a report generation job.
type Job struct {
	ID     string `json:"id"`
	Status string `json:"status"`

	// FilePath is the signed download URL, present once completed.
	FilePath string `json:"filePath,omitempty"`
}

// CreateJobInput describes an on-demand generation request.
type CreateJobInput struct {
	ReportID int64  `validate:"required,gt=0"`
	JobName  string `validate:"required"`
}

// createJobRequest is the wire shape of the jobs endpoint payload.
type createJobRequest struct {
	JobType          string    `json:"jobType"`
	ReportFormat     string    `json:"reportFormat"`
	Compression      string    `json:"compression"`
	ScheduledOn      string    `json:"scheduledOn"`
	Zones            []string  `json:"zones"`
	TimeFrame        timeFrame `json:"timeFrame"`
	ReportID         int64     `json:"reportId"`
	IsReportTemplate bool      `json:"isReportTemplate"`
	JobName          string    `json:"jobName"`
	FileName         string    `json:"fileName"`
	Timezone         string    `json:"timezone"`
}

type timeFrame struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Client talks to the reporting API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	validate   *validator.Validate
	logger     *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewClient creates a new reporting API client.
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log.With("client", "sysdig"),
		now:      time.Now,
	}
}

func (c *Client) baseURL() string {
	if c.cfg.BaseURL != "" {
		return strings.TrimRight(c.cfg.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s/api/platform/reporting/v1", c.cfg.Tenant)
}

// do performs a request against the reporting API and returns the body.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s %s: %w", method, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s",
			method, path, resp.StatusCode, truncate(string(respBody), 512))
	}

	return respBody, nil
}

// ListReports returns the available report definitions.
func (c *Client) ListReports(ctx context.Context) ([]ReportDefinition, error) {
	body, err := c.do(ctx, http.MethodGet, "/reports", nil)
	if err != nil {
		return nil, err
	}

	var reports []ReportDefinition
	if err := json.Unmarshal(body, &reports); err != nil {
		return nil, fmt.Errorf("decode report list: %w", err)
	}
	return reports, nil
}

// CreateJob launches an on-demand generation job for a report definition.
// The artifact is always requested as gzipped CSV over the configured
// time window ending now.
func (c *Client) CreateJob(ctx context.Context, in CreateJobInput) (*Job, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid job input: %w", err)
	}

	loc, err := time.LoadLocation(c.cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.cfg.Timezone, err)
	}

	now := c.now()
	to := now.Unix()
	from := now.Add(-c.cfg.Window).Unix()

	payload := createJobRequest{
		JobType:          "ON_DEMAND",
		ReportFormat:     "csv",
		Compression:      "gzip",
		ScheduledOn:      now.In(loc).Format(time.RFC3339),
		Zones:            []string{},
		TimeFrame:        timeFrame{From: from, To: to},
		ReportID:         in.ReportID,
		IsReportTemplate: false,
		JobName:          in.JobName,
		FileName:         in.JobName,
		Timezone:         c.cfg.Timezone,
	}

	body, err := c.do(ctx, http.MethodPost, "/jobs", payload)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job response: %w", err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("job response contains no job ID")
	}

	c.logger.Info("report job created", "job_id", job.ID, "report_id", in.ReportID)
	return &job, nil
}

// GetJob fetches the current state of a generation job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	body, err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &job, nil
}

// WaitForCompletion polls a job at the configured fixed interval until it
// completes, fails, or the overall timeout elapses.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string) (*Job, error) {
	deadline := c.now().Add(c.cfg.PollTimeout)

	c.logger.Info("polling job status",
		"job_id", jobID,
		"interval", c.cfg.PollInterval.String(),
		"timeout", c.cfg.PollTimeout.String(),
	)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if c.now().After(deadline) {
			return nil, fmt.Errorf("%w: job %s still running after %s",
				ErrPollTimeout, jobID, c.cfg.PollTimeout)
		}

		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		c.logger.Info("job status", "job_id", jobID, "status", job.Status)

		switch job.Status {
		case StatusCompleted:
			if job.FilePath == "" {
				return nil, fmt.Errorf("job %s completed without a download URL", jobID)
			}
			return job, nil
		case StatusFailed:
			return nil, fmt.Errorf("%w: job %s", ErrJobFailed, jobID)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
