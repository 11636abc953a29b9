// Package menu holds the numbered actions of the interactive console and
// dispatches them by id.
package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// ErrUnknownCommand is returned for ids that are not registered.
var ErrUnknownCommand = errors.New("invalid menu option")

// Prompter reads one line of user input.
type Prompter interface {
	Prompt(label string) (string, error)
}

// CommandContext carries the command-line selections into a handler. Empty
// SiteID or DeviceID means the handler should prompt.
type CommandContext struct {
	OrgID    string
	SiteID   string
	DeviceID string
	Port     string
	Debug    bool
	Delay    time.Duration
	Fast     bool
	Workers  int

	Prompter Prompter
	Out      io.Writer
	// Detach hands the terminal to run (raw-mode shells). Nil runs directly.
	Detach func(run func() error) error
}

// Exclusive runs fn through cc.Detach when set.
func (cc CommandContext) Exclusive(fn func() error) error {
	if cc.Detach == nil {
		return fn()
	}
	return cc.Detach(fn)
}

// Handler runs one menu action.
type Handler func(ctx context.Context, cc CommandContext) error

// Command is one menu entry.
type Command struct {
	ID          string
	Description string
	Handler     Handler
}

// Registry is an ordered set of commands.
type Registry struct {
	cmds map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cmds: make(map[string]Command)}
}

// Register adds cmd. Ids must be unique and handlers non-nil.
func (r *Registry) Register(cmd Command) error {
	if cmd.ID == "" || cmd.Handler == nil {
		return fmt.Errorf("menu command %q: id and handler are required", cmd.ID)
	}
	if _, dup := r.cmds[cmd.ID]; dup {
		return fmt.Errorf("menu command %q registered twice", cmd.ID)
	}
	r.cmds[cmd.ID] = cmd
	return nil
}

// Lookup returns the command with id.
func (r *Registry) Lookup(id string) (Command, bool) {
	cmd, ok := r.cmds[id]
	return cmd, ok
}

// Commands returns every command, numeric ids first in numeric order.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// Run dispatches id.
func (r *Registry) Run(ctx context.Context, id string, cc CommandContext) error {
	cmd, ok := r.cmds[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	return cmd.Handler(ctx, cc)
}

// WriteMenu prints "id: description" lines.
func (r *Registry) WriteMenu(w io.Writer) {
	fmt.Fprintln(w, "\nAvailable Options:")
	for _, c := range r.Commands() {
		fmt.Fprintf(w, "%s: %s\n", c.ID, c.Description)
	}
}
