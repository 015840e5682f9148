package engine

// HistoryCapacity is the number of lines the backlog keeps.
const HistoryCapacity = 200

// Line is one backlog entry. Speaker is empty for narration and picked
// choice options.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// History is a fixed-capacity ring of lines. Pushing into a full ring
// evicts the oldest line. The zero value is empty and ready to use, and
// plain assignment copies it.
type History struct {
	lines [HistoryCapacity]Line
	head  int
	size  int
}

// NewHistory builds a ring holding the last HistoryCapacity of lines.
func NewHistory(lines []Line) History {
	var h History
	for _, line := range lines {
		h.Push(line)
	}
	return h
}

// Push appends line, evicting the oldest when full.
func (h *History) Push(line Line) {
	if h.size < HistoryCapacity {
		h.lines[(h.head+h.size)%HistoryCapacity] = line
		h.size++
		return
	}
	h.lines[h.head] = line
	h.head = (h.head + 1) % HistoryCapacity
}

// Len returns the number of stored lines.
func (h History) Len() int {
	return h.size
}

// Lines returns the stored lines, oldest first.
func (h History) Lines() []Line {
	out := make([]Line, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.lines[(h.head+i)%HistoryCapacity]
	}
	return out
}

// Last returns the newest line.
func (h History) Last() (Line, bool) {
	if h.size == 0 {
		return Line{}, false
	}
	return h.lines[(h.head+h.size-1)%HistoryCapacity], true
}

// Equal reports whether both rings hold the same lines in the same order.
func (h History) Equal(other History) bool {
	if h.size != other.size {
		return false
	}
	for i := 0; i < h.size; i++ {
		if h.lines[(h.head+i)%HistoryCapacity] != other.lines[(other.head+i)%HistoryCapacity] {
			return false
		}
	}
	return true
}
