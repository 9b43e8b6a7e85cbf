// Command arcyd runs the automated branch-to-review-to-land daemon.
package main

import (
	"fmt"
	"os"

	"github.com/arcyd/arcyd/internal/adapter/cli/arcyd"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	deps := arcyd.Dependencies{
		ConfigPaths: []string{".", os.Getenv("HOME") + "/.config/arcyd"},
		Version:     version,
		Out:         os.Stdout,
		Err:         os.Stderr,
	}

	root := arcyd.NewRootCommand(deps)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "arcyd:", err)
	}
	os.Exit(arcyd.ExitCode(err))
}
