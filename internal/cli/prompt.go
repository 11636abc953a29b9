package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// linePrompter reads answers from a plain reader. Non-interactive commands
// use it for the few questions they may still need to ask (org, site, device).
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

// stdinPrompter is shared so buffered input is not lost between prompts.
var stdinPrompter = newLinePrompter(os.Stdin, os.Stdout)

func (p *linePrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ErrNotTerminal is returned when a secret is needed but stdin cannot hide it.
var ErrNotTerminal = errors.New("stdin is not a terminal; set MIST_PROXY_PASSWORD instead")

// readPassword reads a line from in without echo.
func readPassword(in *os.File, out io.Writer, label string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotTerminal
	}
	fmt.Fprint(out, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
