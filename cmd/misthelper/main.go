// misthelper - operator console for Juniper Mist organisations
package main

import (
	"fmt"
	"os"

	"github.com/jmorrison-juniper/misthelper/internal/cli"
	"github.com/jmorrison-juniper/misthelper/internal/version"
)

// Version information, overridden with -ldflags at release time.
var (
	Version   = "v0.9.0"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
