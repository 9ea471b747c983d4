package engine

import "github.com/sinatra-studio/sinatra"

// History is the undo/redo list: snapshots of the project and an index
// pointing at the one matching the live state. Published projects are never
// mutated, so a snapshot is the published pointer itself and consecutive
// snapshots share every Sample.
type History struct {
	snapshots []*sinatra.Project
	index     int
	capacity  int
	restoring bool
}

// DefaultHistoryCapacity is the number of snapshots kept.
const DefaultHistoryCapacity = 50

func NewHistory(capacity int, initial *sinatra.Project) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{snapshots: []*sinatra.Project{initial}, capacity: capacity}
}

// Snapshot records p as the newest state, discarding anything that could
// have been redone. The oldest snapshot is evicted when the list is full.
// Snapshot is a no-op while a restore is in progress.
func (h *History) Snapshot(p *sinatra.Project) {
	if h.restoring {
		return
	}
	h.snapshots = append(h.snapshots[:h.index+1], p)
	if over := len(h.snapshots) - h.capacity; over > 0 {
		clear(h.snapshots[:over])
		h.snapshots = h.snapshots[over:]
	}
	h.index = len(h.snapshots) - 1
}

// Amend replaces the current snapshot with p. It is used for changes that
// complete an earlier edit rather than being edits of their own, so that
// undoing past them does not lose them.
func (h *History) Amend(p *sinatra.Project) {
	h.snapshots[h.index] = p
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.snapshots)-1 }
func (h *History) Len() int      { return len(h.snapshots) }
func (h *History) Index() int    { return h.index }

// Undo steps back and hands the earlier snapshot to restore, which replaces
// the live state.
func (h *History) Undo(restore func(*sinatra.Project)) bool {
	if !h.CanUndo() {
		return false
	}
	h.index--
	h.restore(restore)
	return true
}

// Redo steps forward and hands the later snapshot to restore.
func (h *History) Redo(restore func(*sinatra.Project)) bool {
	if !h.CanRedo() {
		return false
	}
	h.index++
	h.restore(restore)
	return true
}

func (h *History) restore(restore func(*sinatra.Project)) {
	h.restoring = true
	defer func() { h.restoring = false }()
	restore(h.snapshots[h.index])
}

func (h *History) event() HistoryEvent {
	return HistoryEvent{Index: h.index, Len: len(h.snapshots), CanUndo: h.CanUndo(), CanRedo: h.CanRedo()}
}
