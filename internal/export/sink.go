package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmorrison-juniper/misthelper/internal/logging"
	"github.com/jmorrison-juniper/misthelper/internal/models"
)

// Sink writes CSV files into one directory.
type Sink struct {
	Dir    string
	logger *logging.Logger
}

// NewSink returns a sink writing under dir. A nil logger discards output.
func NewSink(dir string, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sink{Dir: dir, logger: logger}
}

// Path returns the full path of a file in the sink directory.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// WriteRecords flattens records and writes them with a header of the sorted
// union of their keys; missing cells are left blank. When sortKey is set, rows
// are ordered by that key's value (stable). Returns the written path.
func (s *Sink) WriteRecords(name string, records []models.Record, sortKey string) (string, error) {
	if sortKey != "" {
		sorted := make([]models.Record, len(records))
		copy(sorted, records)
		sort.SliceStable(sorted, func(i, j int) bool {
			return FormatValue(sorted[i][sortKey]) < FormatValue(sorted[j][sortKey])
		})
		records = sorted
	}

	flat := Flatten(records)
	EscapeMultiline(flat)
	header := Header(flat)

	rows := make([][]string, 0, len(flat)+1)
	rows = append(rows, header)
	for _, rec := range flat {
		row := make([]string, len(header))
		for i, field := range header {
			row[i] = FormatValue(rec[field])
		}
		rows = append(rows, row)
	}

	path, err := s.write(name, rows)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("file", path).Int("rows", len(flat)).Msg("data saved")
	return path, nil
}

// WriteRows writes rows as-is, without a header.
func (s *Sink) WriteRows(name string, rows [][]string) (string, error) {
	path, err := s.write(name, rows)
	if err != nil {
		return "", err
	}
	s.logger.Debug().Str("file", path).Int("rows", len(rows)).Msg("rows saved")
	return path, nil
}

// WriteText writes content verbatim.
func (s *Sink) WriteText(name, content string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	path := s.Path(name)
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", writeError(path, err)
	}
	return path, nil
}

func (s *Sink) write(name string, rows [][]string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	path := s.Path(name)
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", writeError(path, err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

// writeError points at the usual cause on Windows: the CSV is open in Excel.
func writeError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("cannot write to %s, is it open in another program?: %w", path, err)
	}
	return fmt.Errorf("failed to create %s: %w", path, err)
}

// ReadRecords reads a CSV written by WriteRecords back into string maps.
func (s *Sink) ReadRecords(name string) ([]map[string]string, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, field := range header {
			if i < len(row) {
				rec[field] = row[i]
			} else {
				rec[field] = ""
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Header returns the sorted union of keys across records.
func Header(records []models.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)
	return header
}
