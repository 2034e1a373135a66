// Command distill drives the distillation CLI (internal/cli).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kilnforge/distill/internal/cli"
	"github.com/kilnforge/distill/internal/promptbuilder"
	"github.com/kilnforge/distill/internal/taskcontroller"
)

// Exit codes per the CLI surface's error taxonomy: 0 success, 2 a
// CONFIG_ERROR caught before any task started, 3 an I/O error reading
// input/writing output/checkpoint, 4 any other task failure.
const (
	exitOK         = 0
	exitConfig     = 2
	exitIO         = 3
	exitTaskFailed = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	err := cli.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(os.Stderr, "Error:", err)

	var cfgErr *taskcontroller.ConfigError
	var promptCfgErr *promptbuilder.ConfigError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &promptCfgErr):
		return exitConfig
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return exitIO
	default:
		return exitTaskFailed
	}
}
