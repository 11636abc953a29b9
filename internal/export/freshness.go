package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// IsFresh reports whether path exists and was modified within window.
func IsFresh(path string, window time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < window
}

// EnsureFresh runs generate unless path is younger than window.
// It reports whether generate ran.
func EnsureFresh(path string, window time.Duration, generate func() error) (bool, error) {
	if IsFresh(path, window) {
		return false, nil
	}
	if err := generate(); err != nil {
		return true, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return true, fmt.Errorf("%s was not created", path)
	}
	return true, nil
}
