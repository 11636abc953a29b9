package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

const mainPrompt = "\nEnter your selection number now: "

// ConsoleConfig wires the console to its terminal.
type ConsoleConfig struct {
	Stdin       io.ReadCloser
	Stdout      io.Writer
	Stderr      io.Writer
	HistoryFile string
	Logger      *logging.Logger
}

// Console is the interactive menu loop.
type Console struct {
	registry *Registry
	cfg      ConsoleConfig
	rl       *readline.Instance
	logger   *logging.Logger
}

// NewConsole builds a readline console over registry. Tab completes ids.
func NewConsole(registry *Registry, cfg ConsoleConfig) (*Console, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	c := &Console{registry: registry, cfg: cfg, logger: logger}
	if err := c.open(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Console) open() error {
	items := make([]readline.PrefixCompleterInterface, 0)
	for _, cmd := range c.registry.Commands() {
		items = append(items, readline.PcItem(cmd.ID))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          mainPrompt,
		HistoryFile:     c.cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    readline.NewPrefixCompleter(items...),
		Stdin:           c.cfg.Stdin,
		Stdout:          c.cfg.Stdout,
		Stderr:          c.cfg.Stderr,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	c.rl = rl
	return nil
}

// Detach closes the line editor, runs fn with the terminal to itself, then
// reopens the editor.
func (c *Console) Detach(fn func() error) error {
	if err := c.rl.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("readline close failed")
	}
	runErr := fn()
	if err := c.open(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// consoleOut follows the current editor across Detach.
type consoleOut struct{ c *Console }

func (o consoleOut) Write(p []byte) (int, error) { return o.c.rl.Stdout().Write(p) }

// Close releases the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Stdout is the writer that keeps output clear of the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Prompt reads one answer with label as the prompt.
func (c *Console) Prompt(label string) (string, error) {
	c.rl.SetPrompt(label)
	defer c.rl.SetPrompt(mainPrompt)
	line, err := c.rl.Readline()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Run shows the menu and executes selections until EOF, "q" or "exit".
// A failing action is reported and the menu is shown again.
func (c *Console) Run(ctx context.Context, cc CommandContext) error {
	cc.Prompter = c
	cc.Detach = c.Detach
	if cc.Out == nil {
		cc.Out = consoleOut{c}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.registry.WriteMenu(c.rl.Stdout())

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		id := strings.TrimSpace(line)
		switch id {
		case "":
			continue
		case "q", "quit", "exit":
			return nil
		}

		c.logger.Info().Str("option", id).Msg("executing menu option")
		if err := c.registry.Run(ctx, id, cc); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			fmt.Fprintf(c.rl.Stderr(), "error: %v\n", err)
			c.logger.Warn().Err(err).Str("option", id).Msg("menu option failed")
		}
	}
}
