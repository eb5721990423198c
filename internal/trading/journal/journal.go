// Package journal records undo actions so that a failed exchange operation
// leaves no trace in the order books, ledgers or fee stores.
package journal

// Journal collects undo actions for the operation in flight. A nil *Journal
// is valid and records nothing, which is what standalone data structures use.
type Journal struct {
	undo []func()
	seen map[any]struct{}
	// epoch increments on every Commit/Rollback so owners can tell whether
	// per-operation bookkeeping (arena marks) is stale.
	epoch uint64
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{seen: make(map[any]struct{})}
}

// Record appends an undo action.
func (j *Journal) Record(undo func()) {
	if j == nil {
		return
	}
	j.undo = append(j.undo, undo)
}

// RecordOnce appends an undo action unless one was already recorded for key
// during the current operation. Keys must be comparable. The first recorded
// action wins, so it should restore the value seen before any mutation.
func (j *Journal) RecordOnce(key any, undo func()) {
	if j == nil {
		return
	}
	if _, ok := j.seen[key]; ok {
		return
	}
	j.seen[key] = struct{}{}
	j.undo = append(j.undo, undo)
}

// Seen reports whether key was recorded in the current operation.
func (j *Journal) Seen(key any) bool {
	if j == nil {
		return false
	}
	_, ok := j.seen[key]
	return ok
}

// Epoch identifies the current operation.
func (j *Journal) Epoch() uint64 {
	if j == nil {
		return 0
	}
	return j.epoch
}

// Len returns the number of pending undo actions.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.undo)
}

// Commit discards the undo log.
func (j *Journal) Commit() {
	if j == nil {
		return
	}
	j.reset()
}

// Rollback runs every undo action in reverse order, then clears the log.
func (j *Journal) Rollback() {
	if j == nil {
		return
	}
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.reset()
}

func (j *Journal) reset() {
	for i := range j.undo {
		j.undo[i] = nil
	}
	j.undo = j.undo[:0]
	clear(j.seen)
	j.epoch++
}
