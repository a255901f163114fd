// Package editor implements the Vim Editor (C7): a pure modal text
// buffer with Normal/Insert/Visual modes and bounded undo/redo (spec
// §4.7). It has no knowledge of KQL, workspaces or jobs.
package editor

import "strings"

// Mode is the editor's closed mode set.
type Mode struct{ v int }

var (
	Normal = Mode{0}
	Insert = Mode{1}
	Visual = Mode{2}
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "Normal"
	case Insert:
		return "Insert"
	case Visual:
		return "Visual"
	default:
		return "Unknown"
	}
}

const historyCap = 100

// Cursor is a (row, col) position in grapheme units (approximated here
// with rune counts, since the buffer is plain-text KQL rather than
// emoji-laden prose).
type Cursor struct {
	Row, Col int
}

// Editor is the modal buffer state machine.
type Editor struct {
	mode   Mode
	lines  [][]rune
	cursor Cursor

	anchor   Cursor // visual-mode selection anchor
	register []rune // last yanked/deleted text

	undoStack [][][]rune
	redoStack [][][]rune
}

// New constructs an editor over the given initial lines (at least one
// line always exists, even if empty).
func New(initial []string) *Editor {
	e := &Editor{mode: Normal}
	e.lines = toRunes(initial)
	if len(e.lines) == 0 {
		e.lines = [][]rune{{}}
	}
	return e
}

func toRunes(lines []string) [][]rune {
	out := make([][]rune, len(lines))
	for i, l := range lines {
		out[i] = []rune(l)
	}
	return out
}

// Lines returns the buffer content as strings.
func (e *Editor) Lines() []string {
	out := make([]string, len(e.lines))
	for i, l := range e.lines {
		out[i] = string(l)
	}
	return out
}

func (e *Editor) Mode() Mode     { return e.mode }
func (e *Editor) Cursor() Cursor { return e.cursor }

func (e *Editor) clampCursor() {
	if e.cursor.Row < 0 {
		e.cursor.Row = 0
	}
	if e.cursor.Row >= len(e.lines) {
		e.cursor.Row = len(e.lines) - 1
	}
	maxCol := len(e.lines[e.cursor.Row])
	if e.mode == Normal && maxCol > 0 {
		maxCol-- // Normal mode cursor sits on a character, not past it
	}
	if e.cursor.Col > maxCol {
		e.cursor.Col = maxCol
	}
	if e.cursor.Col < 0 {
		e.cursor.Col = 0
	}
}

// snapshot pushes the current buffer onto the undo stack and clears redo
// history, per spec §4.7: "Redo stack is cleared on a new edit after
// undo."
func (e *Editor) snapshot() {
	cp := make([][]rune, len(e.lines))
	for i, l := range e.lines {
		line := make([]rune, len(l))
		copy(line, l)
		cp[i] = line
	}
	e.undoStack = append(e.undoStack, cp)
	if len(e.undoStack) > historyCap {
		e.undoStack = e.undoStack[len(e.undoStack)-historyCap:]
	}
	e.redoStack = nil
}

// Undo restores the most recent snapshot. No-op if history is empty.
func (e *Editor) Undo() {
	if len(e.undoStack) == 0 {
		return
	}
	cur := e.lines
	e.lines = e.undoStack[len(e.undoStack)-1]
	e.undoStack = e.undoStack[:len(e.undoStack)-1]
	e.redoStack = append(e.redoStack, cur)
	if len(e.redoStack) > historyCap {
		e.redoStack = e.redoStack[len(e.redoStack)-historyCap:]
	}
	e.clampCursor()
}

// Redo re-applies the most recently undone snapshot.
func (e *Editor) Redo() {
	if len(e.redoStack) == 0 {
		return
	}
	cur := e.lines
	e.lines = e.redoStack[len(e.redoStack)-1]
	e.redoStack = e.redoStack[:len(e.redoStack)-1]
	e.undoStack = append(e.undoStack, cur)
	e.clampCursor()
}

// enterInsert transitions to Insert mode at the given offset from the
// cursor (0 = "i", 1 = "a"); col clamps to end-of-line. Snapshots the
// pre-edit buffer first, like every other mutating command, so the
// whole insert session (everything typed until the matching ExitInsert)
// undoes as one unit (spec §4.7).
func (e *Editor) enterInsert(colOffset int) {
	e.snapshot()
	e.mode = Insert
	e.cursor.Col += colOffset
	if e.cursor.Col > len(e.lines[e.cursor.Row]) {
		e.cursor.Col = len(e.lines[e.cursor.Row])
	}
}

// ExitInsert returns to Normal mode, clamping the cursor to the last
// column if it sits past end-of-line (spec §4.7). The undo snapshot for
// this session was already taken on entry, so no edit is lost and Undo
// can revert the whole session, not a no-op copy of its own result.
func (e *Editor) ExitInsert() {
	e.mode = Normal
	e.clampCursor()
}

// EnterVisual sets the selection anchor at the current cursor (spec
// §4.7: "anchor set on entry").
func (e *Editor) EnterVisual() {
	e.mode = Visual
	e.anchor = e.cursor
}

// ExitVisual discards the selection and returns to Normal (spec §4.7:
// "any mode-exit discards selection").
func (e *Editor) ExitVisual() {
	e.mode = Normal
	e.clampCursor()
}

// Insert types ch at the cursor (Insert mode only).
func (e *Editor) Insert(ch rune) {
	if e.mode != Insert {
		return
	}
	if ch == '\n' {
		e.splitLine()
		return
	}
	line := e.lines[e.cursor.Row]
	line = append(line[:e.cursor.Col], append([]rune{ch}, line[e.cursor.Col:]...)...)
	e.lines[e.cursor.Row] = line
	e.cursor.Col++
}

func (e *Editor) splitLine() {
	line := e.lines[e.cursor.Row]
	before := append([]rune{}, line[:e.cursor.Col]...)
	after := append([]rune{}, line[e.cursor.Col:]...)
	e.lines[e.cursor.Row] = before
	tail := append([][]rune{after}, e.lines[e.cursor.Row+1:]...)
	e.lines = append(e.lines[:e.cursor.Row+1], tail...)
	e.cursor.Row++
	e.cursor.Col = 0
}

// Backspace removes the character before the cursor, joining lines at
// column 0.
func (e *Editor) Backspace() {
	if e.mode != Insert {
		return
	}
	if e.cursor.Col > 0 {
		line := e.lines[e.cursor.Row]
		e.lines[e.cursor.Row] = append(line[:e.cursor.Col-1], line[e.cursor.Col:]...)
		e.cursor.Col--
		return
	}
	if e.cursor.Row == 0 {
		return
	}
	prevLen := len(e.lines[e.cursor.Row-1])
	e.lines[e.cursor.Row-1] = append(e.lines[e.cursor.Row-1], e.lines[e.cursor.Row]...)
	e.lines = append(e.lines[:e.cursor.Row], e.lines[e.cursor.Row+1:]...)
	e.cursor.Row--
	e.cursor.Col = prevLen
}

// Move applies a Normal-mode movement command (no snapshot: movements
// are not edits, per spec §4.7).
func (e *Editor) Move(cmd string) {
	switch cmd {
	case "h":
		e.cursor.Col--
	case "l":
		e.cursor.Col++
	case "k":
		e.cursor.Row--
	case "j":
		e.cursor.Row++
	case "0":
		e.cursor.Col = 0
	case "$":
		e.clampCursor()
		e.cursor.Col = len(e.lines[e.cursor.Row])
		if e.cursor.Col > 0 {
			e.cursor.Col--
		}
	case "g":
		e.cursor.Row = 0
		e.cursor.Col = 0
	case "G":
		e.cursor.Row = len(e.lines) - 1
		e.cursor.Col = 0
	}
	e.clampCursor()
}

// DeleteChar implements "x": delete the character under the cursor.
func (e *Editor) DeleteChar() {
	e.snapshot()
	line := e.lines[e.cursor.Row]
	if e.cursor.Col >= len(line) {
		return
	}
	e.register = []rune{line[e.cursor.Col]}
	e.lines[e.cursor.Row] = append(line[:e.cursor.Col], line[e.cursor.Col+1:]...)
	e.clampCursor()
}

// DeleteLine implements Ctrl-d: delete the current line entirely.
func (e *Editor) DeleteLine() {
	e.snapshot()
	if len(e.lines) == 1 {
		e.lines[0] = []rune{}
		e.cursor = Cursor{}
		return
	}
	e.lines = append(e.lines[:e.cursor.Row], e.lines[e.cursor.Row+1:]...)
	e.clampCursor()
}

// ClearAll implements "c": wipe the buffer to a single empty line.
func (e *Editor) ClearAll() {
	e.snapshot()
	e.lines = [][]rune{{}}
	e.cursor = Cursor{}
}

// OpenLineBelow implements "o": open a new line below and enter Insert.
func (e *Editor) OpenLineBelow() {
	e.snapshot()
	e.lines = append(e.lines[:e.cursor.Row+1], append([][]rune{{}}, e.lines[e.cursor.Row+1:]...)...)
	e.cursor.Row++
	e.cursor.Col = 0
	e.mode = Insert
}

// OpenLineAbove implements "O": open a new line above and enter Insert.
func (e *Editor) OpenLineAbove() {
	e.snapshot()
	e.lines = append(e.lines[:e.cursor.Row], append([][]rune{{}}, e.lines[e.cursor.Row:]...)...)
	e.cursor.Col = 0
	e.mode = Insert
}

// I enters Insert at the start of the current line.
func (e *Editor) I() {
	e.snapshot()
	e.cursor.Col = 0
	e.mode = Insert
}

// InsertAtCursor implements "i": enter Insert before the cursor.
func (e *Editor) InsertAtCursor() { e.enterInsert(0) }

// AppendAtCursor implements "a": enter Insert after the cursor.
func (e *Editor) AppendAtCursor() { e.enterInsert(1) }

// AppendEndOfLine implements "A": enter Insert at end of line.
func (e *Editor) AppendEndOfLine() {
	e.snapshot()
	e.cursor.Col = len(e.lines[e.cursor.Row])
	e.mode = Insert
}

// selectionRange returns the inclusive (start, end) cursors in document
// order (spec §4.7: "inclusive from anchor to cursor in document order").
func (e *Editor) selectionRange() (Cursor, Cursor) {
	a, b := e.anchor, e.cursor
	if b.Row < a.Row || (b.Row == a.Row && b.Col < a.Col) {
		a, b = b, a
	}
	return a, b
}

// Yank implements Visual-mode "y": copy the selection to the register
// and return to Normal.
func (e *Editor) Yank() {
	start, end := e.selectionRange()
	e.register = []rune(e.textBetween(start, end))
	e.mode = Normal
	e.cursor = start
	e.clampCursor()
}

// Register returns the last yanked or deleted text.
func (e *Editor) Register() string { return string(e.register) }

func (e *Editor) textBetween(start, end Cursor) string {
	if start.Row == end.Row {
		line := e.lines[start.Row]
		hi := end.Col + 1
		if hi > len(line) {
			hi = len(line)
		}
		return string(line[start.Col:hi])
	}
	var b strings.Builder
	b.WriteString(string(e.lines[start.Row][start.Col:]))
	for r := start.Row + 1; r < end.Row; r++ {
		b.WriteRune('\n')
		b.WriteString(string(e.lines[r]))
	}
	b.WriteRune('\n')
	hi := end.Col + 1
	if hi > len(e.lines[end.Row]) {
		hi = len(e.lines[end.Row])
	}
	b.WriteString(string(e.lines[end.Row][:hi]))
	return b.String()
}

// DeleteSelection implements Visual-mode "d"/"x": delete the selection,
// copy it to the register, and return to Normal.
func (e *Editor) DeleteSelection() {
	e.snapshot()
	start, end := e.selectionRange()
	e.register = []rune(e.textBetween(start, end))

	if start.Row == end.Row {
		line := e.lines[start.Row]
		hi := end.Col + 1
		if hi > len(line) {
			hi = len(line)
		}
		e.lines[start.Row] = append(line[:start.Col], line[hi:]...)
	} else {
		head := e.lines[start.Row][:start.Col]
		hi := end.Col + 1
		if hi > len(e.lines[end.Row]) {
			hi = len(e.lines[end.Row])
		}
		tail := e.lines[end.Row][hi:]
		merged := append(append([]rune{}, head...), tail...)

		out := make([][]rune, 0, len(e.lines)-(end.Row-start.Row))
		out = append(out, e.lines[:start.Row]...)
		out = append(out, merged)
		out = append(out, e.lines[end.Row+1:]...)
		e.lines = out
	}
	e.mode = Normal
	e.cursor = start
	e.clampCursor()
}
