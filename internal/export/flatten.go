// Package export turns loosely typed API records into flat CSV files.
package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmorrison-juniper/misthelper/internal/models"
)

// Flatten returns a copy of records with every nested value lifted to the top level.
//
// Rules:
//   - string values that look like JSON objects or arrays are decoded first
//   - nested maps become parent_child keys
//   - lists of maps become parent_0_child, parent_1_child, ...
//   - any other list is joined with commas
//
// An empty list produces no key.
func Flatten(records []models.Record) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		flat := make(models.Record, len(rec))
		for key, value := range rec {
			if s, ok := value.(string); ok && (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) {
				var decoded any
				if err := json.Unmarshal([]byte(s), &decoded); err == nil {
					value = decoded
				}
			}
			flattenValue(flat, key, value)
		}
		out = append(out, flat)
	}
	return out
}

func flattenValue(dst models.Record, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			flattenValue(dst, key+"_"+k, child)
		}
	case []any:
		if allMaps(v) {
			for i, item := range v {
				for k, child := range item.(map[string]any) {
					flattenValue(dst, fmt.Sprintf("%s_%d_%s", key, i, k), child)
				}
			}
			return
		}
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatValue(item)
		}
		dst[key] = strings.Join(parts, ",")
	default:
		dst[key] = value
	}
}

func allMaps(items []any) bool {
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// EscapeMultiline rewrites string values in place so each record stays on one
// CSV line: newlines become a literal \n and carriage returns are dropped.
func EscapeMultiline(records []models.Record) {
	for _, rec := range records {
		for key, value := range rec {
			if s, ok := value.(string); ok {
				rec[key] = escapeString(s)
			}
		}
	}
}

func escapeString(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", `\n`), "\r", "")
}

// FormatValue renders a decoded JSON value as a CSV cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
