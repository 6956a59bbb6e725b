package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupTable_LastWriteWins(t *testing.T) {
	table := NewLookupTable()
	table.Set("img1", "a")
	table.Set("img2", "bob")
	table.Set("img1", "b")

	v, ok := table.Get("img1")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, table.Len())
}

func TestLookupTable_IterationOrder(t *testing.T) {
	table := NewLookupTable()
	table.Set("img3", "c")
	table.Set("img1", "a")
	table.Set("img2", "b")
	table.Set("img3", "cc") // overwrite keeps position

	var ids []string
	table.Items(func(id, _ string) bool {
		ids = append(ids, id)
		return true
	})
	assert.Equal(t, []string{"img3", "img1", "img2"}, ids)
}

func TestLookupTable_GetMissing(t *testing.T) {
	table := NewLookupTable()
	v, ok := table.Get("absent")
	assert.False(t, ok)
	assert.Empty(t, v)
}
