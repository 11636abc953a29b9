package export

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jmorrison-juniper/misthelper/internal/models"
)

func TestFlatten(t *testing.T) {
	records := []models.Record{{
		"name": "edge-1",
		"port_config": map[string]any{
			"ge-0/0/1": map[string]any{"usage": "wan", "vlan_id": float64(10)},
		},
		"ip_config": `{"type": "dhcp"}`,
		"tags":      []any{"a", "b", float64(3)},
		"networks":  []any{map[string]any{"name": "lan"}, map[string]any{"name": "guest"}},
		"empty":     []any{},
		"note":      "{not json",
	}}

	got := Flatten(records)[0]
	want := models.Record{
		"name":                         "edge-1",
		"port_config_ge-0/0/1_usage":   "wan",
		"port_config_ge-0/0/1_vlan_id": float64(10),
		"ip_config_type":               "dhcp",
		"tags":                         "a,b,3",
		"networks_0_name":              "lan",
		"networks_1_name":              "guest",
		"note":                         "{not json",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() =\n%v\nwant\n%v", got, want)
	}
}

func TestEscapeMultiline(t *testing.T) {
	records := []models.Record{{"config": "line1\r\nline2\n", "n": float64(1)}}
	EscapeMultiline(records)
	if got := records[0]["config"]; got != `line1\nline2\n` {
		t.Errorf("config = %q", got)
	}
	if records[0]["n"] != float64(1) {
		t.Error("non-string value modified")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{float64(1700000000), "1700000000"},
		{1.5, "1.5"},
		{[]any{float64(1)}, "[1]"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestWriteRecords verifies header union, blank fill and sorting.
func TestWriteRecords(t *testing.T) {
	sink := NewSink(t.TempDir(), nil)
	records := []models.Record{
		{"name": "Site B", "id": "2"},
		{"name": "Site A", "id": "1", "address": "1 Main St\nSuite 2"},
	}

	path, err := sink.WriteRecords("SiteList.csv", records, "name")
	if err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "address,id,name\n1 Main St\\nSuite 2,1,Site A\n,2,Site B\n"
	if string(data) != want {
		t.Errorf("file =\n%s\nwant\n%s", data, want)
	}

	back, err := sink.ReadRecords("SiteList.csv")
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(back) != 2 || back[1]["name"] != "Site B" || back[1]["address"] != "" {
		t.Errorf("ReadRecords() = %v", back)
	}
}

func TestWriteRows(t *testing.T) {
	sink := NewSink(t.TempDir(), nil)
	path, err := sink.WriteRows("arp_dataset1.csv", [][]string{{"a", "b"}, {"c"}})
	if err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a,b\nc\n" {
		t.Errorf("file = %q", data)
	}
}

func TestReadRecordsMissingFile(t *testing.T) {
	sink := NewSink(t.TempDir(), nil)
	if _, err := sink.ReadRecords("nope.csv"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestEnsureFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SiteList.csv")
	calls := 0
	generate := func() error {
		calls++
		return os.WriteFile(path, []byte("id\n"), 0644)
	}

	ran, err := EnsureFresh(path, 15*time.Minute, generate)
	if err != nil || !ran {
		t.Fatalf("first call: ran=%v err=%v", ran, err)
	}
	ran, err = EnsureFresh(path, 15*time.Minute, generate)
	if err != nil || ran {
		t.Fatalf("second call: ran=%v err=%v, want cached", ran, err)
	}

	old := time.Now().Add(-20 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	ran, _ = EnsureFresh(path, 15*time.Minute, generate)
	if !ran || calls != 2 {
		t.Errorf("stale file not regenerated (ran=%v calls=%d)", ran, calls)
	}

	_, err = EnsureFresh(filepath.Join(t.TempDir(), "x.csv"), time.Minute, func() error { return nil })
	if err == nil || !strings.Contains(err.Error(), "was not created") {
		t.Errorf("err = %v, want not created", err)
	}
}

func TestSinkRejectsEscapingNames(t *testing.T) {
	sink := NewSink(t.TempDir(), nil)
	for _, name := range []string{"", "..", "../x.csv", `sub\x.log`, "a\x00b"} {
		if _, err := sink.WriteText(name, "x"); err == nil {
			t.Errorf("WriteText(%q) succeeded", name)
		}
		if _, err := sink.WriteRows(name, [][]string{{"a"}}); err == nil {
			t.Errorf("WriteRows(%q) succeeded", name)
		}
	}
	if _, err := sink.WriteText("data..v2.log", "x"); err != nil {
		t.Errorf("WriteText(data..v2.log) = %v", err)
	}
}
