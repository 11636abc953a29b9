package export

import (
	"fmt"
	"strings"
)

// checkName rejects file names that would leave the sink directory. Names
// come from flags (exec --log/--csv) as well as constants.
func checkName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("file name cannot be empty")
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("file name contains null byte: %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("file name cannot contain path separators: %s", name)
	case name == "." || name == "..":
		return fmt.Errorf("invalid file name: %s", name)
	}
	return nil
}
