package enrich

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/openctemio/report-enricher/pkg/domain/report"
)

// ExtractInput describes one extraction pass over a source report.
type ExtractInput struct {
	SourcePath  string `validate:"required"`
	LabelColumn string `validate:"required"`
	LabelKey    string `validate:"required"`

	// MaxRows caps the number of data rows consumed (0 = whole file).
	MaxRows int64 `validate:"min=0"`
}

// ExtractResult is the outcome of an extraction pass.
type ExtractResult struct {
	// Table maps image ID to attribute value, last-write-wins for
	// duplicate image IDs in source file order.
	Table *report.LookupTable

	Stats report.ExtractStats

	// WithAttribute and WithoutAttribute partition the deduplicated
	// entries, preserving first-seen order within each partition.
	WithAttribute    []report.UniqueEntry
	WithoutAttribute []report.UniqueEntry
}

// dedupKey identifies a distinct (image ID, attribute) combination.
// hasAttr keeps an absent attribute distinct from an empty-string one.
type dedupKey struct {
	imageID string
	attr    string
	hasAttr bool
}

// Extract streams the source report once, pulls the configured label key
// out of each row's JSON label blob, and reduces the rows to a
// deduplicated image ID -> attribute table.
//
// A row whose label blob fails to decode is dropped entirely: it counts in
// RowsMalformed but in neither attribute partition. That mirrors the
// upstream export tooling and keeps the malformed-row rate observable.
func (s *Service) Extract(ctx context.Context, in ExtractInput) (*ExtractResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid extract input: %w", err)
	}

	f, err := os.Open(in.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", report.ErrInputNotFound, in.SourcePath)
		}
		return nil, fmt.Errorf("open source file %s: %w", in.SourcePath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("source file %s is empty", in.SourcePath)
		}
		return nil, fmt.Errorf("read header of %s: %w", in.SourcePath, err)
	}

	imageIdx := columnIndex(header, "Image ID")
	labelIdx := columnIndex(header, in.LabelColumn)

	s.logger.Info("starting extraction",
		"source", in.SourcePath,
		"label_column", in.LabelColumn,
		"label_key", in.LabelKey,
		"max_rows", in.MaxRows,
	)

	var (
		stats report.ExtractStats
		seen  = make(map[dedupKey]struct{})
		order []report.UniqueEntry
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

		if stats.RowsTotal%s.interval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.progress(ProgressEvent{
				Stage:   "extract",
				Rows:    stats.RowsTotal,
				Matches: stats.RowsWithAttribute,
				Elapsed: time.Since(start),
			})
		}

		s.extractRow(record, imageIdx, labelIdx, in.LabelKey, &stats, seen, &order)

		if in.MaxRows > 0 && stats.RowsTotal >= in.MaxRows {
			break
		}
	}

	result := &ExtractResult{
		Table: report.NewLookupTable(),
		Stats: stats,
	}
	for _, entry := range order {
		if entry.HasAttribute && entry.Attribute != "" {
			result.WithAttribute = append(result.WithAttribute, entry)
		} else {
			result.WithoutAttribute = append(result.WithoutAttribute, entry)
		}
	}
	for _, entry := range result.WithAttribute {
		result.Table.Set(entry.ImageID, entry.Attribute)
	}

	s.progress(ProgressEvent{
		Stage:   "extract",
		Rows:    stats.RowsTotal,
		Matches: stats.RowsWithAttribute,
		Elapsed: time.Since(start),
		Final:   true,
	})
	s.logger.Info("extraction stats",
		"rows_total", stats.RowsTotal,
		"rows_with_attribute", stats.RowsWithAttribute,
		"rows_missing_attribute", stats.RowsMissingAttribute,
		"rows_malformed", stats.RowsMalformed,
		"table_size", result.Table.Len(),
	)

	return result, nil
}

// extractRow processes one source record into the dedup set.
func (s *Service) extractRow(
	record []string,
	imageIdx, labelIdx int,
	labelKey string,
	stats *report.ExtractStats,
	seen map[dedupKey]struct{},
	order *[]report.UniqueEntry,
) {
	imageID := strings.TrimSpace(field(record, imageIdx))
	if imageID == "" {
		// Rows without an image ID never participate in the table
		// and are not counted against either attribute partition.
		return
	}

	raw := strings.TrimSpace(field(record, labelIdx))

	var (
		attr    string
		hasAttr bool
	)
	if raw != "" {
		var labels map[string]any
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			stats.RowsMalformed++
			return
		}
		// Exact, case-sensitive key match. encoding/json keeps the
		// last value for duplicate keys within one blob.
		if v, ok := labels[labelKey]; ok && v != nil {
			attr = attributeString(v)
			hasAttr = true
			stats.RowsWithAttribute++
		}
	}
	if !hasAttr {
		stats.RowsMissingAttribute++
	}

	key := dedupKey{imageID: imageID, attr: attr, hasAttr: hasAttr}
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}
	*order = append(*order, report.UniqueEntry{
		ImageID:      imageID,
		Attribute:    attr,
		HasAttribute: hasAttr,
	})
}

// attributeString renders a decoded label value. Label values are strings
// in practice, but the blob is arbitrary JSON.
func attributeString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// columnIndex returns the index of the first header cell matching name,
// or -1 when the column is absent.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// field returns record[idx] or "" when the index is out of range, which
// happens for ragged rows and absent columns.
func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
