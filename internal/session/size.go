package session

import (
	"os"

	"golang.org/x/term"
)

const (
	fallbackCols = 80
	fallbackRows = 24
)

// TerminalSize returns the size of stdout, or 80x24 when it is not a terminal.
func TerminalSize() (cols, rows int) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return fallbackCols, fallbackRows
	}
	return cols, rows
}
