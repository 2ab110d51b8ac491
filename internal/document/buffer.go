package document

// Options configures a Buffer.
type Options struct {
	// HistoryLimit bounds the undo stack; 0 disables undo.
	HistoryLimit int
}

// Buffer is an in-memory Document. It is not safe for concurrent use.
type Buffer struct {
	text []rune
	sel  Range

	opt  Options
	hist historyState
}

var _ Document = (*Buffer)(nil)
var _ Undoer = (*Buffer)(nil)

func NewBuffer(content string, opt Options) *Buffer {
	b := &Buffer{text: []rune(content), opt: opt}
	b.sel = Range{Start: len(b.text), End: len(b.text)}
	return b
}

func (b *Buffer) Len() int { return len(b.text) }

func (b *Buffer) Cursor() int { return b.sel.End }

func (b *Buffer) Selection() Range { return b.sel }

func (b *Buffer) clamp(pos int) int { return clampInt(pos, 0, len(b.text)) }

func (b *Buffer) clampRange(start, end int) Range {
	return NormalizeRange(Range{Start: b.clamp(start), End: b.clamp(end)})
}

func (b *Buffer) SetSelection(start, end int) {
	b.sel = b.clampRange(start, end)
}

func (b *Buffer) TextBetween(start, end int) string {
	r := b.clampRange(start, end)
	return string(b.text[r.Start:r.End])
}

func (b *Buffer) Text() string { return string(b.text) }

func (b *Buffer) Serialize() string { return string(b.text) }

func (b *Buffer) Delete(start, end int) {
	r := b.clampRange(start, end)
	if r.IsEmpty() {
		return
	}
	b.recordUndo(b.snapshot())
	b.deleteRange(r)
}

func (b *Buffer) deleteRange(r Range) {
	b.text = append(b.text[:r.Start], b.text[r.End:]...)

	shift := func(p int) int {
		switch {
		case p >= r.End:
			return p - r.Len()
		case p > r.Start:
			return r.Start
		default:
			return p
		}
	}
	b.sel = Range{Start: shift(b.sel.Start), End: shift(b.sel.End)}
}

func (b *Buffer) InsertAt(pos int, text string) {
	if text == "" {
		return
	}
	b.recordUndo(b.snapshot())
	b.insert(b.clamp(pos), []rune(text))
}

func (b *Buffer) insert(pos int, runes []rune) {
	next := make([]rune, 0, len(b.text)+len(runes))
	next = append(next, b.text[:pos]...)
	next = append(next, runes...)
	next = append(next, b.text[pos:]...)
	b.text = next

	shift := func(p int) int {
		if p >= pos {
			return p + len(runes)
		}
		return p
	}
	b.sel = Range{Start: shift(b.sel.Start), End: shift(b.sel.End)}
}

func (b *Buffer) InsertText(text string) {
	if text == "" && b.sel.IsEmpty() {
		return
	}
	b.recordUndo(b.snapshot())

	if !b.sel.IsEmpty() {
		b.deleteRange(b.sel)
	}
	pos := b.sel.End
	b.insert(pos, []rune(text))
	end := pos + len([]rune(text))
	b.sel = Range{Start: end, End: end}
}

// DeleteBackward removes the selection, or the rune before the cursor.
func (b *Buffer) DeleteBackward() {
	if !b.sel.IsEmpty() {
		b.Delete(b.sel.Start, b.sel.End)
		return
	}
	if b.sel.End == 0 {
		return
	}
	b.Delete(b.sel.End-1, b.sel.End)
}

// SetContent replaces the whole text and moves the cursor to the end.
func (b *Buffer) SetContent(content string) {
	b.recordUndo(b.snapshot())
	b.text = []rune(content)
	b.sel = Range{Start: len(b.text), End: len(b.text)}
}
