package ratelimit

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// TestFileTuningStoreDefaults verifies a missing file yields defaults and that
// saving and reloading the defaults is a no-op.
func TestFileTuningStoreDefaults(t *testing.T) {
	store := NewFileTuningStore(filepath.Join(t.TempDir(), "tuning_data.json"), nil)

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(state, DefaultTuningState()) {
		t.Fatalf("Load() = %+v, want defaults", state)
	}

	if err := store.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(again, state) {
		t.Errorf("reloaded %+v, want %+v", again, state)
	}
}

// TestFileTuningStoreFileFormat verifies the persisted key names.
func TestFileTuningStoreFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning_data.json")
	if err := os.WriteFile(path, []byte(`{"k_p": 0.2, "k_i": 0.001, "error": [1.5, -2], "integral": 12.5, "back_calc_gain": 0.3}`), 0644); err != nil {
		t.Fatal(err)
	}

	state, err := NewFileTuningStore(path, nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &TuningState{
		ProportionalGain: 0.2,
		IntegralGain:     0.001,
		Errors:           []float64{1.5, -2},
		Integral:         12.5,
		BackCalcGain:     0.3,
	}
	if !reflect.DeepEqual(state, want) {
		t.Errorf("Load() = %+v, want %+v", state, want)
	}
}

func TestFileTuningStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning_data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	state, err := NewFileTuningStore(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want defaults", err)
	}
	if !reflect.DeepEqual(state, DefaultTuningState()) {
		t.Errorf("Load() = %+v, want defaults", state)
	}
}

func TestFileTuningStoreCorruptFileIsLogged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning_data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(dir, "script.log")
	logger := logging.NewLogger("file", logging.Options{FilePath: logPath})

	if _, err := NewFileTuningStore(path, logger).Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	_ = logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "failed to parse tuning file") {
		t.Errorf("log file = %q, want parse warning", data)
	}
}

// TestSanitizeResetsGains verifies out-of-bounds gains are replaced and the
// error history is trimmed.
func TestSanitizeResetsGains(t *testing.T) {
	tests := []struct {
		name   string
		kp, ki float64
		reset  bool
	}{
		{"in bounds", 0.5, 0.005, false},
		{"kp upper bound inclusive", 1.0, 0.01, false},
		{"kp too small", 1e-7, 0.001, true},
		{"kp at lower bound", 1e-6, 0.001, true},
		{"kp too large", 1.5, 0.001, true},
		{"ki too large", 0.1, 0.02, true},
		{"ki zero", 0.1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &TuningState{ProportionalGain: tt.kp, IntegralGain: tt.ki}
			state.sanitize()

			wantKp, wantKi := tt.kp, tt.ki
			if tt.reset {
				wantKp, wantKi = DefaultProportionalGain, DefaultIntegralGain
			}
			if state.ProportionalGain != wantKp || state.IntegralGain != wantKi {
				t.Errorf("gains = %v/%v, want %v/%v", state.ProportionalGain, state.IntegralGain, wantKp, wantKi)
			}
		})
	}

	state := DefaultTuningState()
	for i := 0; i < 30; i++ {
		state.Errors = append(state.Errors, float64(i))
	}
	state.Integral = 5000
	state.sanitize()
	if len(state.Errors) != ErrorHistorySize || state.Errors[0] != 10 {
		t.Errorf("errors = %v, want last %d", state.Errors, ErrorHistorySize)
	}
	if state.Integral != IntegralLimit {
		t.Errorf("integral = %v, want %v", state.Integral, IntegralLimit)
	}
}

func TestAppendErrorKeepsHistoryBounded(t *testing.T) {
	state := DefaultTuningState()
	for i := 0; i < 25; i++ {
		state.appendError(float64(i))
	}
	if len(state.Errors) != ErrorHistorySize {
		t.Fatalf("len = %d, want %d", len(state.Errors), ErrorHistorySize)
	}
	if state.Errors[0] != 5 || state.Errors[19] != 24 {
		t.Errorf("errors = %v, want 5..24", state.Errors)
	}
}

func TestAdjustGains(t *testing.T) {
	tests := []struct {
		name   string
		errors []float64
		kp, ki float64
		wantKp float64
		wantKi float64
	}{
		{"positive trend", []float64{10, 20}, 0.1, 0.001, 0.1 * GainIncrease, 0.001 * GainIncrease},
		{"negative trend", []float64{-10, -20}, 0.1, 0.001, 0.1 * GainDecrease, 0.001 * GainDecrease},
		{"flat trend", []float64{5, -5}, 0.1, 0.001, 0.1, 0.001},
		{"no samples", nil, 0.1, 0.001, 0.1, 0.001},
		{"clamped high", []float64{1}, 1.0, 0.01, MaxProportionalGain, MaxIntegralGain},
		{"clamped low", []float64{-1}, 1e-6, 1e-8, MinProportionalGain, MinIntegralGain},
		// Only the last ten samples count
		{"old samples ignored", []float64{-1000, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, 0.1, 0.001, 0.1 * GainIncrease, 0.001 * GainIncrease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &TuningState{ProportionalGain: tt.kp, IntegralGain: tt.ki, Errors: tt.errors}
			state.adjustGains()
			if !approx(state.ProportionalGain, tt.wantKp, 1e-15) || !approx(state.IntegralGain, tt.wantKi, 1e-15) {
				t.Errorf("gains = %v/%v, want %v/%v", state.ProportionalGain, state.IntegralGain, tt.wantKp, tt.wantKi)
			}
		})
	}
}

func TestComputeAlpha(t *testing.T) {
	tests := []struct {
		name   string
		errors []float64
		want   float64
	}{
		{"empty", nil, DefaultAlpha},
		{"single sample", []float64{100}, DefaultAlpha},
		{"steady", []float64{3, 3, 3}, MinAlpha},
		// population stddev of {0, 50} is 25 -> 0.1 + 0.8*0.5
		{"half scale", []float64{0, 50}, 0.5},
		{"noisy", []float64{-500, 500}, MaxAlpha},
		// stddev of {0, 20} is 10 -> 0.1 + 0.8*0.2 = 0.26
		{"rounded", []float64{0, 20}, 0.26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeAlpha(tt.errors); !approx(got, tt.want, 1e-12) {
				t.Errorf("computeAlpha(%v) = %v, want %v", tt.errors, got, tt.want)
			}
		})
	}
}
