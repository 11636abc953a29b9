// Package progress reports how many items of a batch are done, as a terminal
// progress bar or not at all.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Reporter tracks completed items. Implementations are safe for concurrent use
// so worker pools can report directly.
type Reporter interface {
	Start(total int, description string)
	Increment()
	Finish()
	Error(err error)
	SetDescription(desc string)
}

// CLIProgress renders a progress bar on a writer (stderr by default).
type CLIProgress struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a progress bar reporter writing to stderr.
func NewCLIProgress() *CLIProgress {
	return NewCLIProgressTo(os.Stderr)
}

// NewCLIProgressTo creates a progress bar reporter writing to out.
func NewCLIProgressTo(out io.Writer) *CLIProgress {
	return &CLIProgress{out: out}
}

// Start initializes the bar with the number of items and a description.
func (p *CLIProgress) Start(total int, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.out
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Increment marks one more item done.
func (p *CLIProgress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error prints an error below the bar.
func (p *CLIProgress) Error(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\nError: %v\n", err)
}

// SetDescription updates the bar description.
func (p *CLIProgress) SetDescription(desc string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// Current returns the number of items reported so far.
func (p *CLIProgress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return 0
	}
	return int(p.bar.State().CurrentNum)
}

// NoOpProgress is a progress reporter that does nothing (for background/silent operations).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int, description string) {}
func (p *NoOpProgress) Increment()                          {}
func (p *NoOpProgress) Finish()                             {}
func (p *NoOpProgress) Error(err error)                     {}
func (p *NoOpProgress) SetDescription(desc string)          {}
