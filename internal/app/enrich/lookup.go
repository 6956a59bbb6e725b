package enrich

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openctemio/report-enricher/pkg/domain/report"
)

// WriteLookup persists a lookup table as the two-column intermediate CSV
// (`<keyColumn>,<valueColumn>` header, one row per image in table order).
// The file is written to a temp path and renamed into place so a crashed
// run never leaves a half-written table behind.
func (s *Service) WriteLookup(table *report.LookupTable, path, keyColumn, valueColumn string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".lookup-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp lookup file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{keyColumn, valueColumn}); err != nil {
		return fmt.Errorf("write lookup header: %w", err)
	}

	var writeErr error
	table.Items(func(imageID, value string) bool {
		if err := w.Write([]string{imageID, value}); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr != nil {
		return fmt.Errorf("write lookup row: %w", writeErr)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush lookup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close lookup file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename lookup file into place: %w", err)
	}

	s.logger.Info("lookup table written", "path", path, "entries", table.Len())
	return nil
}

// loadLookup reads an intermediate lookup CSV fully into memory. The key
// column is resolved by header name; the value column is resolved by name
// with a fallback to the remaining column of a two-column file.
func loadLookup(path, keyColumn, valueColumn string) (*report.LookupTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", report.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open lookup file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("lookup file %s is empty", path)
		}
		return nil, fmt.Errorf("read lookup header of %s: %w", path, err)
	}

	keyIdx := columnIndex(header, keyColumn)
	if keyIdx < 0 {
		return nil, fmt.Errorf("lookup file %s: missing key column %q", path, keyColumn)
	}
	valueIdx := columnIndex(header, valueColumn)
	if valueIdx < 0 {
		if len(header) != 2 {
			return nil, fmt.Errorf("lookup file %s: missing value column %q", path, valueColumn)
		}
		valueIdx = 1 - keyIdx
	}

	table := report.NewLookupTable()
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read lookup row of %s: %w", path, err)
		}
		imageID := field(record, keyIdx)
		if imageID == "" {
			continue
		}
		table.Set(imageID, field(record, valueIdx))
	}

	return table, nil
}
