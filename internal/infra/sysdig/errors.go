package sysdig

import "errors"

// Client errors.
var (
	// ErrJobFailed indicates the platform reported the generation job
	// as FAILED.
	ErrJobFailed = errors.New("report job failed")

	// ErrPollTimeout indicates the job did not finish within the
	// configured overall polling timeout.
	ErrPollTimeout = errors.New("report job polling timed out")
)
