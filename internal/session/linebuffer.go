package session

import "strings"

// LineBuffer accumulates streamed text and splits it into complete lines.
type LineBuffer struct {
	lines   []string
	partial string
}

// Append adds a chunk and returns the lines it completed.
func (b *LineBuffer) Append(chunk string) []string {
	b.partial += chunk
	var done []string
	for {
		i := strings.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		done = append(done, b.partial[:i])
		b.partial = b.partial[i+1:]
	}
	b.lines = append(b.lines, done...)
	return done
}

// Lines returns the complete lines received so far.
func (b *LineBuffer) Lines() []string {
	return b.lines
}

// Remainder returns text after the last newline.
func (b *LineBuffer) Remainder() string {
	return b.partial
}

// Len returns the number of complete lines.
func (b *LineBuffer) Len() int {
	return len(b.lines)
}

// Flush returns every line, with a non-empty remainder as the last one.
func (b *LineBuffer) Flush() []string {
	out := b.lines
	if b.partial != "" {
		out = append(out, b.partial)
		b.partial = ""
	}
	b.lines = nil
	return out
}
