package draft

// DefaultUndoDepth bounds the undo stack when no depth is configured.
const DefaultUndoDepth = 50

// UndoEntry records the overlay state of one field before an edit.
// HadPrev=false means the field had no overlay entry.
type UndoEntry struct {
	Field   string `json:"field"`
	Prev    any    `json:"prev,omitempty"`
	HadPrev bool   `json:"had_prev"`
}

// UndoStack is a bounded, per-draft stack of per-field entries. When full,
// the oldest entry is dropped.
type UndoStack struct {
	depth   int
	entries []UndoEntry
}

func NewUndoStack(depth int) *UndoStack {
	if depth <= 0 {
		depth = DefaultUndoDepth
	}
	return &UndoStack{depth: depth}
}

func (u *UndoStack) Push(e UndoEntry) {
	e.Prev = CloneValue(e.Prev)
	u.entries = append(u.entries, e)
	if over := len(u.entries) - u.depth; over > 0 {
		u.entries = append([]UndoEntry(nil), u.entries[over:]...)
	}
}

func (u *UndoStack) Pop() (UndoEntry, bool) {
	if len(u.entries) == 0 {
		return UndoEntry{}, false
	}
	top := u.entries[len(u.entries)-1]
	u.entries = u.entries[:len(u.entries)-1]
	return top, true
}

func (u *UndoStack) Len() int   { return len(u.entries) }
func (u *UndoStack) Depth() int { return u.depth }
func (u *UndoStack) Clear()     { u.entries = nil }

func (u *UndoStack) snapshot() []UndoEntry {
	out := make([]UndoEntry, len(u.entries))
	for i, e := range u.entries {
		out[i] = UndoEntry{Field: e.Field, Prev: CloneValue(e.Prev), HadPrev: e.HadPrev}
	}
	return out
}

func (u *UndoStack) restore(entries []UndoEntry) {
	u.entries = nil
	for _, e := range entries {
		u.Push(e)
	}
}
