package session

import (
	"strings"

	"github.com/hinshun/vt10x"
)

// Emulator is a virtual screen fed with raw terminal output.
type Emulator interface {
	// Feed interprets data and returns the rows whose text changed, ascending.
	Feed(data []byte) []int
	// RowText returns row y padded to the screen width.
	RowText(y int) string
	// Resize changes the screen size; every row is reported dirty on the next Feed.
	Resize(cols, rows int)
}

// vtEmulator implements Emulator over vt10x.
// vt10x does not expose its dirty set, so changed rows are found by comparing
// each row with the text last reported.
type vtEmulator struct {
	term       vt10x.Terminal
	cols, rows int
	last       []string
}

// NewEmulator returns a cols x rows screen.
func NewEmulator(cols, rows int) Emulator {
	e := &vtEmulator{
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
	}
	e.resetSnapshot(strings.Repeat(" ", cols))
	return e
}

func (e *vtEmulator) resetSnapshot(fill string) {
	e.last = make([]string, e.rows)
	for i := range e.last {
		e.last[i] = fill
	}
}

func (e *vtEmulator) Feed(data []byte) []int {
	_, _ = e.term.Write(data)

	var dirty []int
	for y := 0; y < e.rows; y++ {
		row := e.RowText(y)
		if row != e.last[y] {
			e.last[y] = row
			dirty = append(dirty, y)
		}
	}
	return dirty
}

func (e *vtEmulator) RowText(y int) string {
	if y < 0 || y >= e.rows {
		return ""
	}
	e.term.Lock()
	defer e.term.Unlock()

	var b strings.Builder
	b.Grow(e.cols)
	for x := 0; x < e.cols; x++ {
		ch := e.term.Cell(x, y).Char
		if ch == 0 {
			ch = ' '
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (e *vtEmulator) Resize(cols, rows int) {
	e.term.Resize(cols, rows)
	e.cols, e.rows = cols, rows
	// Force a full repaint
	e.resetSnapshot("")
}
