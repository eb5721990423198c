package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJournal_RollbackRunsInReverse(t *testing.T) {
	j := New()
	var order []int
	j.Record(func() { order = append(order, 1) })
	j.Record(func() { order = append(order, 2) })
	j.Record(func() { order = append(order, 3) })

	j.Rollback()
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Equal(t, 0, j.Len())
}

func TestJournal_RecordOnceKeepsFirstValue(t *testing.T) {
	j := New()
	x := 1
	j.RecordOnce("x", func() { x = 1 })
	x = 2
	j.RecordOnce("x", func() { x = 2 })
	x = 3

	assert.True(t, j.Seen("x"))
	j.Rollback()
	assert.Equal(t, 1, x)
	assert.False(t, j.Seen("x"))
}

func TestJournal_CommitDropsUndo(t *testing.T) {
	j := New()
	called := false
	j.Record(func() { called = true })
	epoch := j.Epoch()

	j.Commit()
	j.Rollback()
	assert.False(t, called)
	assert.Equal(t, epoch+2, j.Epoch())
}

func TestJournal_NilIsNoop(t *testing.T) {
	var j *Journal
	assert.NotPanics(t, func() {
		j.Record(func() {})
		j.RecordOnce(1, func() {})
		j.Rollback()
		j.Commit()
	})
	assert.Equal(t, 0, j.Len())
	assert.Equal(t, uint64(0), j.Epoch())
}
