package sysdig

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// DownloadArtifact fetches a completed job's gzipped CSV from its signed
// URL and decompresses it to destPath. The decompressed stream goes to a
// temp file that is renamed into place on success, so destPath either
// holds a complete report or does not exist.
func (c *Client) DownloadArtifact(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download artifact: unexpected status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	dir := filepath.Dir(destPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".download-%s.tmp", uuid.NewString()))
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp download file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	written, err := io.Copy(tmp, gz)
	if err != nil {
		return fmt.Errorf("decompress artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp download file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename artifact into place: %w", err)
	}

	c.logger.Info("artifact downloaded", "path", destPath, "bytes", written)
	return nil
}

// FetchReport runs the full generation cycle for one report definition:
// create the job, wait for it, and download the decompressed CSV to
// destPath.
func (c *Client) FetchReport(ctx context.Context, in CreateJobInput, destPath string) error {
	job, err := c.CreateJob(ctx, in)
	if err != nil {
		return err
	}

	job, err = c.WaitForCompletion(ctx, job.ID)
	if err != nil {
		return err
	}

	return c.DownloadArtifact(ctx, job.FilePath, destPath)
}
