package session

import "strings"

// ParseTabular splits tab-separated command output into two datasets. Rows
// before the first line containing "Total" go to the first; the marker line
// itself is dropped and later rows go to the second. Fields are trimmed and
// empty fields and rows are skipped.
func ParseTabular(text string) (first, second [][]string) {
	target := &first
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.Contains(line, "Total") {
			target = &second
			continue
		}
		var row []string
		for _, field := range strings.Split(line, "\t") {
			if field = strings.TrimSpace(field); field != "" {
				row = append(row, field)
			}
		}
		if len(row) > 0 {
			*target = append(*target, row)
		}
	}
	return first, second
}
