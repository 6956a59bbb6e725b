package enrich

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/openctemio/report-enricher/pkg/domain/report"
)

// MergeInput describes one merge pass.
type MergeInput struct {
	SourcePath   string `validate:"required"`
	LookupPath   string `validate:"required"`
	JoinColumn   string `validate:"required"`
	OutputColumn string `validate:"required"`
	OutputPath   string `validate:"required"`
}

// Merge loads the lookup table fully into memory, then streams the source
// report row by row, appending the looked-up attribute value (empty string
// on a miss) as a new final column. Every original column is preserved in
// its original order.
//
// Both inputs are opened before the output file is created, so a missing
// or unreadable input never leaves a partial output behind. The output is
// written via a temp file and renamed into place on success.
func (s *Service) Merge(ctx context.Context, in MergeInput) (*report.MergeStats, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid merge input: %w", err)
	}

	table, err := loadLookup(in.LookupPath, in.JoinColumn, in.OutputColumn)
	if err != nil {
		return nil, err
	}

	src, err := os.Open(in.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", report.ErrInputNotFound, in.SourcePath)
		}
		return nil, fmt.Errorf("open source file %s: %w", in.SourcePath, err)
	}
	defer src.Close()

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("source file %s is empty", in.SourcePath)
		}
		return nil, fmt.Errorf("read header of %s: %w", in.SourcePath, err)
	}
	joinIdx := columnIndex(header, in.JoinColumn)

	dir := filepath.Dir(in.OutputPath)
	tmp, err := os.CreateTemp(dir, ".merged-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp output file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	writer := csv.NewWriter(tmp)
	if err := writer.Write(append(append([]string{}, header...), in.OutputColumn)); err != nil {
		return nil, fmt.Errorf("write output header: %w", err)
	}

	s.logger.Info("starting merge",
		"source", in.SourcePath,
		"lookup", in.LookupPath,
		"lookup_entries", table.Len(),
		"output", in.OutputPath,
	)

	var (
		stats report.MergeStats
		start = time.Now()
	)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d of %s: %w", stats.RowsTotal+1, in.SourcePath, err)
		}

		stats.RowsTotal++

		value, _ := table.Get(field(record, joinIdx))
		if value != "" {
			stats.RowsMatched++
		}

		if err := writer.Write(append(record, value)); err != nil {
			return nil, fmt.Errorf("write output row %d: %w", stats.RowsTotal, err)
		}

		if stats.RowsTotal%s.interval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.progress(ProgressEvent{
				Stage:   "merge",
				Rows:    stats.RowsTotal,
				Matches: stats.RowsMatched,
				Elapsed: time.Since(start),
			})
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(tmpPath, in.OutputPath); err != nil {
		return nil, fmt.Errorf("rename output file into place: %w", err)
	}

	s.progress(ProgressEvent{
		Stage:   "merge",
		Rows:    stats.RowsTotal,
		Matches: stats.RowsMatched,
		Elapsed: time.Since(start),
		Final:   true,
	})

	return &stats, nil
}
