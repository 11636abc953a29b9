package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jmorrison-juniper/misthelper/internal/export"
)

// streamFrame wraps raw output the way the stream does: outer data and inner
// data both JSON-encoded strings.
func streamFrame(t *testing.T, session, raw string) []byte {
	t.Helper()
	inner, _ := json.Marshal(Payload{Session: session, Raw: raw})
	middle, _ := json.Marshal(map[string]string{"data": string(inner)})
	outer, err := json.Marshal(map[string]string{
		"event":   "data",
		"channel": "/sites/s1/devices/d1/cmd",
		"data":    string(middle),
	})
	if err != nil {
		t.Fatal(err)
	}
	return outer
}

func TestLineBuffer(t *testing.T) {
	var b LineBuffer
	if got := b.Append("abc\ndef\ngh"); !reflect.DeepEqual(got, []string{"abc", "def"}) {
		t.Errorf("Append() = %q", got)
	}
	if b.Remainder() != "gh" {
		t.Errorf("Remainder() = %q, want gh", b.Remainder())
	}
	if got := b.Append("i\n"); !reflect.DeepEqual(got, []string{"ghi"}) {
		t.Errorf("Append() = %q, want [ghi]", got)
	}
	b.Append("tail")
	if got := b.Flush(); !reflect.DeepEqual(got, []string{"abc", "def", "ghi", "tail"}) {
		t.Errorf("Flush() = %q", got)
	}
	if b.Len() != 0 || b.Remainder() != "" {
		t.Error("Flush did not reset buffer")
	}
}

func TestParseTabular(t *testing.T) {
	first, second := ParseTabular("a\tb\tc\nTotal\nd\te\tf")
	if !reflect.DeepEqual(first, [][]string{{"a", "b", "c"}}) {
		t.Errorf("first = %q", first)
	}
	if !reflect.DeepEqual(second, [][]string{{"d", "e", "f"}}) {
		t.Errorf("second = %q", second)
	}

	first, second = ParseTabular(" ip \t\t mac \n\t \n")
	if !reflect.DeepEqual(first, [][]string{{"ip", "mac"}}) || second != nil {
		t.Errorf("got %q / %q", first, second)
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    *Payload
		wantErr bool
	}{
		{
			name:  "string layers",
			frame: `{"data":"{\"data\":\"{\\\"session\\\":\\\"s\\\",\\\"raw\\\":\\\"x\\\"}\"}"}`,
			want:  &Payload{Session: "s", Raw: "x"},
		},
		{
			name:  "object layers",
			frame: `{"data":{"data":{"session":"s","raw":"y"}}}`,
			want:  &Payload{Session: "s", Raw: "y"},
		},
		{
			name:  "object outer string inner",
			frame: `{"data":{"data":"{\"session\":\"s\",\"raw\":\"z\"}"}}`,
			want:  &Payload{Session: "s", Raw: "z"},
		},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "no data", frame: `{"event":"channel_subscribed"}`, wantErr: true},
		{name: "bad inner", frame: `{"data":{"data":"{oops"}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeFrame([]byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func newTestCommandSession(tr Transport, dir string) *CommandSession {
	return &CommandSession{
		Transport: tr,
		SessionID: "sess-1",
		SiteID:    "s1",
		DeviceID:  "d1",
		Sink:      export.NewSink(dir, nil),
		Timeout:   2 * time.Second,
		Idle:      50 * time.Millisecond,
		Poll:      10 * time.Millisecond,
	}
}

func TestCommandSessionFiltersBySession(t *testing.T) {
	dir := t.TempDir()
	tr := newFakeTransport()
	s := newTestCommandSession(tr, dir)

	tr.in <- []byte(`{"event":"channel_subscribed","channel":"/sites/s1/devices/d1/cmd"}`)
	tr.in <- streamFrame(t, "other", "should not appear\n")
	tr.in <- streamFrame(t, "sess-1", "10.0.0.1\taa:bb\n10.0")
	tr.in <- streamFrame(t, "sess-1", ".0.2\tcc:dd\nTotal entries: 2\n")
	tr.in <- streamFrame(t, "sess-1", "vlan10\t2")

	out, err := s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	sub := tr.frames()[0].data
	if sub != `{"subscribe":"/sites/s1/devices/d1/cmd"}` {
		t.Errorf("subscribe frame = %s", sub)
	}
	wantLines := []string{"10.0.0.1\taa:bb", "10.0.0.2\tcc:dd", "Total entries: 2", "vlan10\t2"}
	if !reflect.DeepEqual(out.Lines, wantLines) {
		t.Errorf("lines = %q, want %q", out.Lines, wantLines)
	}
	if !reflect.DeepEqual(out.Dataset1, [][]string{{"10.0.0.1", "aa:bb"}, {"10.0.0.2", "cc:dd"}}) {
		t.Errorf("dataset1 = %q", out.Dataset1)
	}
	if !reflect.DeepEqual(out.Dataset2, [][]string{{"vlan10", "2"}}) {
		t.Errorf("dataset2 = %q", out.Dataset2)
	}

	raw, _ := os.ReadFile(filepath.Join(dir, "arp_output_raw.txt"))
	if string(raw) != strings.Join(wantLines, "\n") {
		t.Errorf("raw file = %q", raw)
	}
	csv1, _ := os.ReadFile(filepath.Join(dir, "arp_dataset1.csv"))
	if string(csv1) != "10.0.0.1,aa:bb\n10.0.0.2,cc:dd\n" {
		t.Errorf("dataset1 file = %q", csv1)
	}
	if !tr.isClosed() {
		t.Error("transport left open")
	}
}

func TestCommandSessionNoOutput(t *testing.T) {
	tr := newFakeTransport()
	s := newTestCommandSession(tr, t.TempDir())
	s.Timeout = 100 * time.Millisecond

	tr.in <- streamFrame(t, "other", "x\n")
	if _, err := s.Listen(context.Background()); !errors.Is(err, ErrCommandTimeout) {
		t.Errorf("err = %v, want timeout", err)
	}
}

// TestCommandSessionKeepsTrailingPartialLine verifies text after the last
// newline is saved as a final line when the stream ends.
func TestCommandSessionKeepsTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	tr := newFakeTransport()
	s := newTestCommandSession(tr, dir)
	s.Timeout = 150 * time.Millisecond

	tr.in <- streamFrame(t, "sess-1", "10.0.0.9\tee:ff")
	out, err := s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if !reflect.DeepEqual(out.Lines, []string{"10.0.0.9\tee:ff"}) {
		t.Errorf("lines = %q", out.Lines)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "arp_output_raw.txt"))
	if string(raw) != "10.0.0.9\tee:ff" {
		t.Errorf("raw file = %q", raw)
	}
}

func TestCommandSessionServerClose(t *testing.T) {
	tr := newFakeTransport()
	s := newTestCommandSession(tr, t.TempDir())

	close(tr.in)
	if _, err := s.Listen(context.Background()); !errors.Is(err, ErrNoOutput) {
		t.Errorf("err = %v, want no output", err)
	}
}

func TestCommandSessionMalformedFramesSkipped(t *testing.T) {
	tr := newFakeTransport()
	s := newTestCommandSession(tr, t.TempDir())

	tr.in <- []byte(`not json`)
	tr.in <- streamFrame(t, "sess-1", "ok\n")
	out, err := s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if !reflect.DeepEqual(out.Lines, []string{"ok"}) {
		t.Errorf("lines = %q", out.Lines)
	}
}
