package ratelimit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// DelayMetrics is one computation's intermediate values.
type DelayMetrics struct {
	Used       int     `json:"used"`
	Limit      int     `json:"limit"`
	Error      float64 `json:"error"`
	BaseDelay  float64 `json:"base_delay"`
	UnsatDelay float64 `json:"unsat_delay"`
	FinalDelay float64 `json:"final_delay"`
	Alpha      float64 `json:"alpha"`
}

// DiagnosticRecord is one line of delay_metrics.json.
type DiagnosticRecord struct {
	Timestamp    string       `json:"timestamp"`
	DelayMetrics DelayMetrics `json:"delay_metrics"`
	APICache     UsageCache   `json:"api_cache"`
	TuningData   TuningState  `json:"tuning_data"`
}

// DiagnosticLog receives a record after every successful computation.
type DiagnosticLog interface {
	Append(DiagnosticRecord) error
}

// NDJSONLog appends records to a file, one JSON object per line.
type NDJSONLog struct {
	Path string
	mu   sync.Mutex
}

// NewNDJSONLog returns a log appending to path.
func NewNDJSONLog(path string) *NDJSONLog {
	return &NDJSONLog{Path: path}
}

// Append writes rec as one line.
func (l *NDJSONLog) Append(rec DiagnosticRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode delay metrics: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", l.Path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", l.Path, err)
	}
	return f.Close()
}

// isoTimestamp formats t like 2024-05-01T10:30:00.123456+00:00.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000-07:00")
}
