// Package source retrieves already-generated report artifacts from
// deployment-specific locations: a local path, an HTTP(S) URL, or an S3
// object. It is the alternative to driving the reporting API when another
// system exports the report out-of-band.
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/openctemio/report-enricher/pkg/logger"
)

// Fetcher streams a report artifact from its source.
type Fetcher interface {
	// Fetch opens the artifact for reading. The caller closes the reader.
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// NewFromURI creates the fetcher matching a source URI. Supported forms:
// plain filesystem paths, http:// and https:// URLs, and s3://bucket/key.
func NewFromURI(ctx context.Context, uri string, opts S3Options) (Fetcher, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		bucket, key, err := parseS3URI(uri)
		if err != nil {
			return nil, err
		}
		return NewS3Fetcher(ctx, bucket, key, opts)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return NewHTTPFetcher(uri)
	default:
		if u, err := url.Parse(uri); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
			return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
		}
		return &LocalFetcher{Path: uri}, nil
	}
}

// FetchTo copies the artifact at uri to destPath, transparently
// decompressing gzipped artifacts (by .gz suffix). The destination is
// written via a temp file and renamed into place on success.
func FetchTo(ctx context.Context, uri, destPath string, opts S3Options, log *logger.Logger) error {
	fetcher, err := NewFromURI(ctx, uri, opts)
	if err != nil {
		return err
	}

	rc, err := fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	var reader io.Reader = rc
	if strings.HasSuffix(strings.TrimSuffix(uri, "/"), ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return fmt.Errorf("open gzip stream of %s: %w", uri, err)
		}
		defer gz.Close()
		reader = gz
	}

	dir := filepath.Dir(destPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".source-%s.tmp", uuid.NewString()))
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	written, err := io.Copy(tmp, reader)
	if err != nil {
		return fmt.Errorf("copy artifact from %s: %w", uri, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename artifact into place: %w", err)
	}

	log.Info("report artifact fetched", "source", uri, "dest", destPath, "bytes", written)
	return nil
}

// LocalFetcher reads an artifact from the local filesystem.
type LocalFetcher struct {
	Path string
}

// Fetch opens the local file.
func (f *LocalFetcher) Fetch(_ context.Context) (io.ReadCloser, error) {
	rc, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open source file %s: %w", f.Path, err)
	}
	return rc, nil
}
