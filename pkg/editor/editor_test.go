package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToNormalMode(t *testing.T) {
	e := New([]string{"hello"})
	assert.Equal(t, Normal, e.Mode())
}

func TestInsertTypesAtCursor(t *testing.T) {
	e := New([]string{""})
	e.InsertAtCursor()
	require.Equal(t, Insert, e.Mode())
	for _, r := range "abc" {
		e.Insert(r)
	}
	assert.Equal(t, []string{"abc"}, e.Lines())
	assert.Equal(t, Cursor{0, 3}, e.Cursor())
}

func TestExitInsertClampsCursorToLastColumn(t *testing.T) {
	e := New([]string{""})
	e.InsertAtCursor()
	for _, r := range "abc" {
		e.Insert(r)
	}
	e.ExitInsert()
	assert.Equal(t, Normal, e.Mode())
	assert.Equal(t, 2, e.Cursor().Col) // clamped to last char, not past end
}

func TestAppendAtCursorInsertsAfter(t *testing.T) {
	e := New([]string{"ac"})
	e.AppendAtCursor() // cursor at col 0 -> insert after 'a'
	e.Insert('b')
	e.ExitInsert()
	assert.Equal(t, []string{"abc"}, e.Lines())
}

func TestAppendEndOfLine(t *testing.T) {
	e := New([]string{"ab"})
	e.AppendEndOfLine()
	e.Insert('c')
	e.ExitInsert()
	assert.Equal(t, []string{"abc"}, e.Lines())
}

func TestOpenLineBelowAndAbove(t *testing.T) {
	e := New([]string{"a", "b"})
	e.OpenLineBelow()
	assert.Equal(t, Insert, e.Mode())
	assert.Equal(t, []string{"a", "", "b"}, e.Lines())

	e.ExitInsert()
	e.cursor = Cursor{Row: 2, Col: 0}
	e.OpenLineAbove()
	assert.Equal(t, []string{"a", "", "", "b"}, e.Lines())
}

func TestMoveMovements(t *testing.T) {
	e := New([]string{"hello", "world"})
	e.Move("l")
	assert.Equal(t, 1, e.Cursor().Col)
	e.Move("j")
	assert.Equal(t, 1, e.Cursor().Row)
	e.Move("0")
	assert.Equal(t, 0, e.Cursor().Col)
	e.Move("$")
	assert.Equal(t, 4, e.Cursor().Col)
	e.Move("g")
	assert.Equal(t, Cursor{0, 0}, e.Cursor())
	e.Move("G")
	assert.Equal(t, 1, e.Cursor().Row)
}

func TestDeleteChar(t *testing.T) {
	e := New([]string{"abc"})
	e.DeleteChar()
	assert.Equal(t, []string{"bc"}, e.Lines())
	assert.Equal(t, "a", e.Register())
}

func TestDeleteLineCollapsesToEmptyWhenLastLine(t *testing.T) {
	e := New([]string{"only"})
	e.DeleteLine()
	assert.Equal(t, []string{""}, e.Lines())
}

func TestDeleteLineRemovesLineAmongMany(t *testing.T) {
	e := New([]string{"a", "b", "c"})
	e.cursor = Cursor{Row: 1, Col: 0}
	e.DeleteLine()
	assert.Equal(t, []string{"a", "c"}, e.Lines())
}

func TestClearAll(t *testing.T) {
	e := New([]string{"a", "b", "c"})
	e.ClearAll()
	assert.Equal(t, []string{""}, e.Lines())
	assert.Equal(t, Cursor{0, 0}, e.Cursor())
}

func TestUndoRedo(t *testing.T) {
	e := New([]string{"abc"})
	e.DeleteChar() // "bc", snapshot pushed of "abc"
	assert.Equal(t, []string{"bc"}, e.Lines())

	e.Undo()
	assert.Equal(t, []string{"abc"}, e.Lines())

	e.Redo()
	assert.Equal(t, []string{"bc"}, e.Lines())
}

func TestUndoRevertsAnInsertSession(t *testing.T) {
	e := New([]string{"abc"})
	e.InsertAtCursor()
	e.Insert('X')
	assert.Equal(t, []string{"Xabc"}, e.Lines())
	e.ExitInsert()

	e.Undo()
	assert.Equal(t, []string{"abc"}, e.Lines())

	e.Redo()
	assert.Equal(t, []string{"Xabc"}, e.Lines())
}

func TestUndoRevertsOpenLineBelowSession(t *testing.T) {
	e := New([]string{"a"})
	e.OpenLineBelow()
	e.Insert('b')
	e.ExitInsert()
	assert.Equal(t, []string{"a", "b"}, e.Lines())

	e.Undo()
	assert.Equal(t, []string{"a"}, e.Lines())
}

func TestRedoStackClearedOnNewEditAfterUndo(t *testing.T) {
	e := New([]string{"abc"})
	e.DeleteChar() // -> "bc"
	e.Undo()        // -> "abc", redo has "bc"
	e.DeleteLine()  // new edit: clears redo stack

	e.Redo() // should be a no-op now
	assert.Equal(t, []string{""}, e.Lines())
}

func TestVisualSelectionAndYank(t *testing.T) {
	e := New([]string{"hello world"})
	e.EnterVisual()
	assert.Equal(t, Visual, e.Mode())
	for i := 0; i < 4; i++ {
		e.Move("l")
	}
	e.Yank()
	assert.Equal(t, "hello", e.Register())
	assert.Equal(t, Normal, e.Mode())
}

func TestVisualSelectionDelete(t *testing.T) {
	e := New([]string{"hello world"})
	e.EnterVisual()
	for i := 0; i < 4; i++ {
		e.Move("l")
	}
	e.DeleteSelection()
	assert.Equal(t, []string{" world"}, e.Lines())
	assert.Equal(t, "hello", e.Register())
}

func TestVisualSelectionInDocumentOrderRegardlessOfDirection(t *testing.T) {
	e := New([]string{"hello world"})
	e.cursor = Cursor{Row: 0, Col: 4}
	e.EnterVisual()
	for i := 0; i < 4; i++ {
		e.Move("h")
	}
	e.Yank()
	assert.Equal(t, "hello", e.Register())
}

func TestExitVisualDiscardsSelection(t *testing.T) {
	e := New([]string{"hello"})
	e.EnterVisual()
	e.Move("l")
	e.ExitVisual()
	assert.Equal(t, Normal, e.Mode())
	assert.Equal(t, []string{"hello"}, e.Lines())
}

func TestBackspaceJoinsLines(t *testing.T) {
	e := New([]string{"foo", "bar"})
	e.cursor = Cursor{Row: 1, Col: 0}
	e.mode = Insert
	e.Backspace()
	assert.Equal(t, []string{"foobar"}, e.Lines())
	assert.Equal(t, Cursor{0, 3}, e.Cursor())
}

func TestInsertNewlineSplitsLine(t *testing.T) {
	e := New([]string{"foobar"})
	e.cursor = Cursor{Row: 0, Col: 3}
	e.mode = Insert
	e.Insert('\n')
	assert.Equal(t, []string{"foo", "bar"}, e.Lines())
	assert.Equal(t, Cursor{1, 0}, e.Cursor())
}
