package enrich

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/report-enricher/pkg/domain/report"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestMerge_JoinCorrectness(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	writeCSV(t, src, [][]string{
		sourceHeader(),
		{"img1", "nginx", `{"MAINTAINER":"alice"}`, "High"},
		{"img2", "redis", "", "Low"},
		{"img3", "etcd", "", "Medium"},
	})

	lookup := filepath.Join(dir, "lookup.csv")
	writeCSV(t, lookup, [][]string{
		{"Image ID", "Maintainer"},
		{"img1", "alice"},
		{"img2", "bob"},
	})

	out := filepath.Join(dir, "merged.csv")
	svc := newTestService(t)
	stats, err := svc.Merge(context.Background(), MergeInput{
		SourcePath:   src,
		LookupPath:   lookup,
		JoinColumn:   "Image ID",
		OutputColumn: "Maintainer",
		OutputPath:   out,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.RowsTotal)
	assert.Equal(t, int64(2), stats.RowsMatched)

	rows := readCSV(t, out)
	require.Len(t, rows, 4)
	assert.Equal(t, append(sourceHeader(), "Maintainer"), rows[0])
	assert.Equal(t, "alice", rows[1][4])
	assert.Equal(t, "bob", rows[2][4])
	assert.Equal(t, "", rows[3][4])
}

func TestMerge_PreservesOriginalColumns(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	writeCSV(t, src, [][]string{
		sourceHeader(),
		{"img1", "nginx", `{"MAINTAINER":"alice"}`, "High"},
	})

	lookup := filepath.Join(dir, "lookup.csv")
	writeCSV(t, lookup, [][]string{
		{"Image ID", "Maintainer"},
		{"img1", "alice"},
	})

	out := filepath.Join(dir, "merged.csv")
	svc := newTestService(t)
	_, err := svc.Merge(context.Background(), MergeInput{
		SourcePath:   src,
		LookupPath:   lookup,
		JoinColumn:   "Image ID",
		OutputColumn: "Maintainer",
		OutputPath:   out,
	})
	require.NoError(t, err)

	rows := readCSV(t, out)
	assert.Equal(t, []string{"img1", "nginx", `{"MAINTAINER":"alice"}`, "High", "alice"}, rows[1])
}

func TestMerge_MissingLookupFailsBeforeOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	writeCSV(t, src, [][]string{
		sourceHeader(),
		{"img1", "nginx", "", "High"},
	})

	out := filepath.Join(dir, "merged.csv")
	svc := newTestService(t)
	_, err := svc.Merge(context.Background(), MergeInput{
		SourcePath:   src,
		LookupPath:   filepath.Join(dir, "missing-lookup.csv"),
		JoinColumn:   "Image ID",
		OutputColumn: "Maintainer",
		OutputPath:   out,
	})
	require.Error(t, err)
	assert.True(t, report.IsInputNotFound(err))

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output file may exist after a failed merge")
}

func TestMerge_MissingSourceFailsBeforeOutput(t *testing.T) {
	dir := t.TempDir()
	lookup := filepath.Join(dir, "lookup.csv")
	writeCSV(t, lookup, [][]string{
		{"Image ID", "Maintainer"},
		{"img1", "alice"},
	})

	out := filepath.Join(dir, "merged.csv")
	svc := newTestService(t)
	_, err := svc.Merge(context.Background(), MergeInput{
		SourcePath:   filepath.Join(dir, "missing-report.csv"),
		LookupPath:   lookup,
		JoinColumn:   "Image ID",
		OutputColumn: "Maintainer",
		OutputPath:   out,
	})
	require.Error(t, err)
	assert.True(t, report.IsInputNotFound(err))

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMerge_LookupValueColumnFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	writeCSV(t, src, [][]string{
		sourceHeader(),
		{"img1", "nginx", "", "High"},
	})

	// Lookup written by a deployment using a different attribute name.
	lookup := filepath.Join(dir, "lookup.csv")
	writeCSV(t, lookup, [][]string{
		{"Image ID", "vsad"},
		{"img1", "team-a"},
	})

	out := filepath.Join(dir, "merged.csv")
	svc := newTestService(t)
	stats, err := svc.Merge(context.Background(), MergeInput{
		SourcePath:   src,
		LookupPath:   lookup,
		JoinColumn:   "Image ID",
		OutputColumn: "Maintainer",
		OutputPath:   out,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RowsMatched)

	rows := readCSV(t, out)
	assert.Equal(t, "team-a", rows[1][4])
}

func TestMerge_ProgressCadence(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	rows := [][]string{sourceHeader()}
	for i := 0; i < 5; i++ {
		rows = append(rows, []string{"img1", "nginx", "", "High"})
	}
	writeCSV(t, src, rows)

	lookup := filepath.Join(dir, "lookup.csv")
	writeCSV(t, lookup, [][]string{
		{"Image ID", "Maintainer"},
		{"img1", "alice"},
	})

	var events []ProgressEvent
	svc := newTestService(t,
		WithProgressInterval(2),
		WithProgressFunc(func(ev ProgressEvent) { events = append(events, ev) }),
	)
	stats, err := svc.Merge(context.Background(), MergeInput{
		SourcePath:   src,
		LookupPath:   lookup,
		JoinColumn:   "Image ID",
		OutputColumn: "Maintainer",
		OutputPath:   filepath.Join(dir, "merged.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.RowsMatched)

	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].Rows)
	assert.Equal(t, int64(4), events[1].Rows)
	assert.True(t, events[2].Final)
	assert.Equal(t, int64(5), events[2].Rows)
}

func TestExtractThenMerge_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	writeCSV(t, src, [][]string{
		sourceHeader(),
		{"img1", "nginx", `{"MAINTAINER":"alice"}`, "High"},
		{"img2", "redis", "", "Low"},
		{"img3", "etcd", `{bad json`, "Medium"},
	})

	svc := newTestService(t)

	res, err := svc.Extract(context.Background(), ExtractInput{
		SourcePath:  src,
		LabelColumn: "Container Labels",
		LabelKey:    "MAINTAINER",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Table.Len())
	v, _ := res.Table.Get("img1")
	assert.Equal(t, "alice", v)

	lookup := filepath.Join(dir, "lookup.csv")
	require.NoError(t, svc.WriteLookup(res.Table, lookup, "Image ID", "Maintainer"))

	out := filepath.Join(dir, "merged.csv")
	stats, err := svc.Merge(context.Background(), MergeInput{
		SourcePath:   src,
		LookupPath:   lookup,
		JoinColumn:   "Image ID",
		OutputColumn: "Maintainer",
		OutputPath:   out,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.RowsTotal)
	assert.Equal(t, int64(1), stats.RowsMatched)

	rows := readCSV(t, out)
	require.Len(t, rows, 4)
	assert.Equal(t, "alice", rows[1][4])
	assert.Equal(t, "", rows[2][4])
	assert.Equal(t, "", rows[3][4])
}

func TestLoadLookup_MissingKeyColumn(t *testing.T) {
	dir := t.TempDir()
	lookup := filepath.Join(dir, "lookup.csv")
	writeCSV(t, lookup, [][]string{
		{"Wrong", "Maintainer"},
		{"img1", "alice"},
	})

	_, err := loadLookup(lookup, "Image ID", "Maintainer")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing key column"))
}
