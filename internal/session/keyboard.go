package session

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"
)

// KeySource yields one named key per call ("enter", "up", "a", ...).
type KeySource interface {
	ReadKey() (string, error)
}

// keyDecoder turns a raw byte stream into named keys.
type keyDecoder struct {
	r *bufio.Reader
}

// NewKeyDecoder reads keys from r, which should already be in raw mode.
func NewKeyDecoder(r io.Reader) KeySource {
	return &keyDecoder{r: bufio.NewReader(r)}
}

func (d *keyDecoder) ReadKey() (string, error) {
	ch, _, err := d.r.ReadRune()
	if err != nil {
		return "", err
	}

	switch ch {
	case '\r', '\n':
		return "enter", nil
	case ' ':
		return "space", nil
	case '\t':
		return "tab", nil
	case 0x7f, 0x08:
		return "backspace", nil
	case 0x1b:
		return d.readEscape()
	}
	return string(ch), nil
}

// readEscape decodes CSI arrow sequences. Anything else after ESC is returned
// as a bare escape and the following bytes are read as normal keys.
func (d *keyDecoder) readEscape() (string, error) {
	if d.r.Buffered() == 0 {
		return "\x1b", nil
	}
	next, err := d.r.Peek(2)
	if err != nil || next[0] != '[' {
		return "\x1b", nil
	}

	var name string
	switch next[1] {
	case 'A':
		name = "up"
	case 'B':
		name = "down"
	case 'C':
		name = "right"
	case 'D':
		name = "left"
	default:
		return "\x1b", nil
	}
	_, _ = d.r.Discard(2)
	return name, nil
}

// Keyboard is a KeySource over a local terminal in raw mode.
type Keyboard struct {
	KeySource
	fd    int
	state *term.State
}

// NewKeyboard puts in into raw mode when it is a terminal. Close restores it.
func NewKeyboard(in *os.File) (*Keyboard, error) {
	kb := &Keyboard{KeySource: NewKeyDecoder(in), fd: int(in.Fd())}
	if term.IsTerminal(kb.fd) {
		state, err := term.MakeRaw(kb.fd)
		if err != nil {
			return nil, err
		}
		kb.state = state
	}
	return kb, nil
}

// Close restores the terminal mode.
func (k *Keyboard) Close() error {
	if k.state == nil {
		return nil
	}
	err := term.Restore(k.fd, k.state)
	k.state = nil
	return err
}
