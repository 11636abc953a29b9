package menu

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegistryOrderingAndDispatch(t *testing.T) {
	r := NewRegistry()
	var got CommandContext
	for _, id := range []string{"11", "2", "usage", "0", "35"} {
		id := id
		err := r.Register(Command{ID: id, Description: "cmd " + id, Handler: func(ctx context.Context, cc CommandContext) error {
			got = cc
			got.Port = id
			return nil
		}})
		if err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}

	var ids []string
	for _, c := range r.Commands() {
		ids = append(ids, c.ID)
	}
	if strings.Join(ids, ",") != "0,2,11,35,usage" {
		t.Errorf("order = %v", ids)
	}

	if err := r.Run(context.Background(), "35", CommandContext{SiteID: "s1", Fast: true}); err != nil {
		t.Fatal(err)
	}
	if got.SiteID != "s1" || !got.Fast || got.Port != "35" {
		t.Errorf("handler saw %+v", got)
	}

	if err := r.Run(context.Background(), "99", CommandContext{}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("err = %v, want ErrUnknownCommand", err)
	}
}

func TestRegistryRejectsBadCommands(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, cc CommandContext) error { return nil }
	if err := r.Register(Command{ID: "1", Handler: noop}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(Command{ID: "1", Handler: noop}); err == nil {
		t.Error("duplicate id accepted")
	}
	if err := r.Register(Command{ID: "2"}); err == nil {
		t.Error("nil handler accepted")
	}
}

func TestWriteMenu(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Command{ID: "34", Description: "Run ARP command", Handler: func(context.Context, CommandContext) error { return nil }})
	var buf bytes.Buffer
	r.WriteMenu(&buf)
	if !strings.Contains(buf.String(), "34: Run ARP command\n") {
		t.Errorf("menu = %q", buf.String())
	}
}

func TestExclusive(t *testing.T) {
	ran := 0
	if err := (CommandContext{}).Exclusive(func() error { ran++; return nil }); err != nil || ran != 1 {
		t.Fatalf("direct run: ran=%d err=%v", ran, err)
	}

	detached := false
	cc := CommandContext{Detach: func(run func() error) error {
		detached = true
		return run()
	}}
	want := errors.New("shell failed")
	if err := cc.Exclusive(func() error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v", err)
	}
	if !detached {
		t.Error("Detach not used")
	}
}
