// Package report provides domain types for the report enrichment pipeline.
package report

// UniqueEntry is the first-seen record for a distinct
// (image ID, attribute) combination in a source report.
type UniqueEntry struct {
	ImageID      string
	Attribute    string
	HasAttribute bool
}

// ExtractStats holds the diagnostic counters of an extraction pass.
//
// Rows whose label blob fails to parse are counted in RowsMalformed only;
// they appear in neither RowsWithAttribute nor RowsMissingAttribute.
type ExtractStats struct {
	RowsTotal            int64
	RowsWithAttribute    int64
	RowsMissingAttribute int64
	RowsMalformed        int64
}

// MergeStats holds the counters of a merge pass. A match is a source row
// whose looked-up attribute value is a non-empty string.
type MergeStats struct {
	RowsTotal   int64
	RowsMatched int64
}

// LookupTable is an insertion-ordered mapping from image ID to attribute
// value. Setting an existing key overwrites its value in place without
// changing its position, so duplicate image IDs resolve last-write-wins
// while iteration order stays deterministic across runs.
type LookupTable struct {
	order  []string
	values map[string]string
}

// NewLookupTable creates an empty LookupTable.
func NewLookupTable() *LookupTable {
	return &LookupTable{
		values: make(map[string]string),
	}
}

// Set inserts or overwrites the value for an image ID.
func (t *LookupTable) Set(imageID, value string) {
	if _, ok := t.values[imageID]; !ok {
		t.order = append(t.order, imageID)
	}
	t.values[imageID] = value
}

// Get returns the value for an image ID and whether it is present.
func (t *LookupTable) Get(imageID string) (string, bool) {
	v, ok := t.values[imageID]
	return v, ok
}

// Len returns the number of entries.
func (t *LookupTable) Len() int {
	return len(t.order)
}

// Items calls fn for every entry in insertion order. Iteration stops if fn
// returns false.
func (t *LookupTable) Items(fn func(imageID, value string) bool) {
	for _, id := range t.order {
		if !fn(id, t.values[id]) {
			return
		}
	}
}
