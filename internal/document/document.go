// Package document holds the text engine edited by a session.
//
// Offsets are rune indices into the plain text. Ranges are half-open,
// [Start, End), and every position passed in is clamped into the text.
package document

// Document is what an editor session needs from a text engine.
type Document interface {
	Len() int
	// Cursor is the end of the current selection.
	Cursor() int
	Selection() Range
	SetSelection(start, end int)
	TextBetween(start, end int) string
	// Serialize returns the persisted form of the document.
	Serialize() string

	Delete(start, end int)
	// InsertAt inserts text at pos. Positions at or after pos move right.
	InsertAt(pos int, text string)
	// InsertText replaces the selection with text and leaves the cursor
	// after it.
	InsertText(text string)
	SetContent(content string)
}

// Undoer is implemented by documents with an undo history.
type Undoer interface {
	Undo() bool
	Redo() bool
	CanUndo() bool
	CanRedo() bool
}

type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NormalizeRange orders r so that Start <= End.
func NormalizeRange(r Range) Range {
	if r.Start <= r.End {
		return r
	}
	return Range{Start: r.End, End: r.Start}
}

func (r Range) IsEmpty() bool { return r.Start == r.End }

func (r Range) Len() int { return r.End - r.Start }

func clampInt(v, min, max int) int {
	if max < min {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
