package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// TuningState is the persisted controller state (tuning_data.json).
type TuningState struct {
	ProportionalGain float64   `json:"k_p"`
	IntegralGain     float64   `json:"k_i"`
	Errors           []float64 `json:"error"`
	Integral         float64   `json:"integral"`
	BackCalcGain     float64   `json:"back_calc_gain"`
}

// DefaultTuningState returns the state used when no file exists.
func DefaultTuningState() *TuningState {
	return &TuningState{
		ProportionalGain: DefaultProportionalGain,
		IntegralGain:     DefaultIntegralGain,
		Errors:           []float64{},
		BackCalcGain:     DefaultBackCalcGain,
	}
}

// gainsInBounds reports whether both gains lie in their (min, max] intervals.
func (t *TuningState) gainsInBounds() bool {
	return t.ProportionalGain > MinProportionalGain && t.ProportionalGain <= MaxProportionalGain &&
		t.IntegralGain > MinIntegralGain && t.IntegralGain <= MaxIntegralGain
}

// sanitize resets out-of-bounds gains and trims the error history. It
// reports whether the gains were reset.
func (t *TuningState) sanitize() bool {
	reset := !t.gainsInBounds()
	if reset {
		t.ProportionalGain = DefaultProportionalGain
		t.IntegralGain = DefaultIntegralGain
	}
	if t.Errors == nil {
		t.Errors = []float64{}
	}
	if len(t.Errors) > ErrorHistorySize {
		t.Errors = t.Errors[len(t.Errors)-ErrorHistorySize:]
	}
	t.Integral = clamp(t.Integral, -IntegralLimit, IntegralLimit)
	return reset
}

// appendError records one error sample, keeping the last ErrorHistorySize.
func (t *TuningState) appendError(e float64) {
	t.Errors = append(t.Errors, e)
	if len(t.Errors) > ErrorHistorySize {
		t.Errors = append([]float64(nil), t.Errors[len(t.Errors)-ErrorHistorySize:]...)
	}
}

// adjustGains nudges both gains from the mean of the recent errors: a positive
// trend (ahead of budget) raises them, a negative one lowers them. No deadband.
func (t *TuningState) adjustGains() {
	recent := lastN(t.Errors, TrendWindow)
	if len(recent) == 0 {
		return
	}

	trend := mean(recent)
	switch {
	case trend > 0:
		t.ProportionalGain *= GainIncrease
		t.IntegralGain *= GainIncrease
	case trend < 0:
		t.ProportionalGain *= GainDecrease
		t.IntegralGain *= GainDecrease
	}

	t.ProportionalGain = clamp(t.ProportionalGain, MinProportionalGain, MaxProportionalGain)
	t.IntegralGain = clamp(t.IntegralGain, MinIntegralGain, MaxIntegralGain)
}

// computeAlpha maps the deviation of the recent errors to a smoothing factor:
// noisy error means the output follows the new delay more closely.
func computeAlpha(errs []float64) float64 {
	if len(errs) < 2 {
		return DefaultAlpha
	}
	normalized := math.Min(stddev(lastN(errs, TrendWindow))/AlphaStdDivisor, 1.0)
	alpha := MinAlpha + (MaxAlpha-MinAlpha)*normalized
	return math.Round(alpha*1000) / 1000
}

// TuningStore loads and saves TuningState.
type TuningStore interface {
	Load() (*TuningState, error)
	Save(*TuningState) error
}

// FileTuningStore keeps TuningState in a JSON file.
type FileTuningStore struct {
	Path   string
	logger *logging.Logger
}

// NewFileTuningStore returns a store backed by path. A nil logger discards.
func NewFileTuningStore(path string, logger *logging.Logger) *FileTuningStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &FileTuningStore{Path: path, logger: logger}
}

func (s *FileTuningStore) log() *logging.Logger {
	if s.logger == nil {
		return logging.Nop()
	}
	return s.logger
}

// Load reads the tuning file. A missing or corrupt file yields defaults; a
// corrupt file is reported as a warning only. Errors are returned for I/O
// failures other than absence.
func (s *FileTuningStore) Load() (*TuningState, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultTuningState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	state := DefaultTuningState()
	if err := json.Unmarshal(data, state); err != nil {
		s.log().Warn().Err(err).Str("path", s.Path).Msg("failed to parse tuning file, using defaults")
		return DefaultTuningState(), nil
	}
	if state.sanitize() {
		s.log().Warn().Str("path", s.Path).Msg("tuning gains out of bounds, resetting to defaults")
	}
	return state, nil
}

// Save writes the tuning file via a temp file and rename.
func (s *FileTuningStore) Save(state *TuningState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tuning data: %w", err)
	}

	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write tuning file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace tuning file: %w", err)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func lastN(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)))
}
