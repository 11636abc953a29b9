package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func newTestTerminal(tr *fakeTransport, keys *scriptedKeys, out *syncBuffer, wakeup time.Duration) *TerminalSession {
	return &TerminalSession{
		Transport:   tr,
		Emulator:    NewEmulator(80, 40),
		Keys:        keys,
		Out:         out,
		Size:        func() (int, int) { return 120, 30 },
		WakeupDelay: wakeup,
	}
}

func TestTerminalSendsResizeThenKeys(t *testing.T) {
	tr := newFakeTransport()
	keys := &scriptedKeys{ch: make(chan string, 8)}
	out := &syncBuffer{}
	s := newTestTerminal(tr, keys, out, time.Hour)

	for _, k := range []string{"l", "s", "enter", "up", "~"} {
		keys.ch <- k
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []sentFrame{
		{websocket.MessageText, `{"resize":{"width":120,"height":30}}`},
		{websocket.MessageBinary, "\x00l"},
		{websocket.MessageBinary, "\x00s"},
		{websocket.MessageBinary, "\x00\n"},
		{websocket.MessageBinary, "\x00\x00\x1b[A"},
	}
	got := tr.frames()
	if len(got) != len(want) {
		t.Fatalf("sent %d frames %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !tr.isClosed() {
		t.Error("transport not closed on exit")
	}
	if !strings.Contains(out.String(), "## Exit from shell ##") {
		t.Errorf("output %q missing exit banner", out.String())
	}
	if strings.Contains(out.String(), "Connection lost") {
		t.Error("exit reported as connection loss")
	}
}

func TestTerminalWakeup(t *testing.T) {
	tr := newFakeTransport()
	keys := &scriptedKeys{ch: make(chan string, 1)}
	s := newTestTerminal(tr, keys, &syncBuffer{}, 10*time.Millisecond)

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	ok := waitFor(func() bool {
		for _, f := range tr.frames() {
			if f.typ == websocket.MessageBinary && f.data == "\x00\n\n" {
				return true
			}
		}
		return false
	})
	keys.ch <- "~"
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ok {
		t.Errorf("wakeup not sent, frames %+v", tr.frames())
	}
}

func TestTerminalRendersOutputAndConnectionLoss(t *testing.T) {
	tr := newFakeTransport()
	keys := &scriptedKeys{ch: make(chan string, 1)}
	out := &syncBuffer{}
	s := newTestTerminal(tr, keys, out, time.Hour)

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	tr.in <- []byte("mist@sw1> \r\nline two")
	if !waitFor(func() bool { return strings.Contains(out.String(), "\x1b[2;1Hline two\x1b[K") }) {
		t.Fatalf("output %q missing rendered rows", out.String())
	}
	if !strings.Contains(out.String(), "\x1b[1;1Hmist@sw1>\x1b[K") {
		t.Errorf("output %q missing first row", out.String())
	}

	close(tr.in)
	if !waitFor(func() bool { return strings.Contains(out.String(), "## Connection lost: connection reset ##") }) {
		t.Fatalf("output %q missing connection lost banner", out.String())
	}

	// The input loop notices the dead reader on the next key.
	keys.ch <- "a"
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after connection loss")
	}
	for _, f := range tr.frames() {
		if f.data == "\x00a" {
			t.Error("key sent after connection loss")
		}
	}
}

func TestTerminalContextCancelClosesTransport(t *testing.T) {
	tr := newFakeTransport()
	keys := &scriptedKeys{ch: make(chan string, 1)}
	s := newTestTerminal(tr, keys, &syncBuffer{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	cancel()
	if !waitFor(tr.isClosed) {
		t.Fatal("transport not closed after cancel")
	}
	close(keys.ch)
	if err := <-errc; err == nil {
		t.Error("want keyboard error after input closed")
	}
}

func TestTerminalResizeFollowsWindow(t *testing.T) {
	tr := newFakeTransport()
	out := &syncBuffer{}
	s := newTestTerminal(tr, &scriptedKeys{}, out, time.Hour)
	s.Size = func() (int, int) { return 100, 20 }

	if err := s.resize(context.Background()); err != nil {
		t.Fatalf("resize: %v", err)
	}

	if got := len(s.Emulator.RowText(0)); got != 100 {
		t.Errorf("row width = %d, want 100", got)
	}
	if s.Emulator.RowText(20) != "" {
		t.Error("row 20 exists after shrinking to 20 rows")
	}
	text := out.String()
	if !strings.HasPrefix(text, "\x1b[2J") {
		t.Errorf("output %q does not start with a clear", text)
	}
	if !strings.Contains(text, "\x1b[20;1H") || strings.Contains(text, "\x1b[21;1H") {
		t.Errorf("output %q should repaint exactly 20 rows", text)
	}
	frames := tr.frames()
	if len(frames) != 1 || frames[0].data != `{"resize":{"width":100,"height":20}}` {
		t.Errorf("frames = %+v", frames)
	}
}
