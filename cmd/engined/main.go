// Command engined is the media library engine: a single long-lived
// localhost process per data root, supervised by the desktop shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/pkg/version"
)

// Distinct exit codes per fatal startup kind so the desktop shell can
// diagnose a failed launch without parsing stderr.
const (
	exitOK                = 0
	exitFailure           = 1
	exitAlreadyRunning    = 10
	exitConflictingEngine = 11
	exitStartupTimeout    = 12
)

func exitCodeFor(err error) int {
	switch enginerrors.KindOf(err) {
	case enginerrors.KindAlreadyRunning:
		return exitAlreadyRunning
	case enginerrors.KindConflictingEngine:
		return exitConflictingEngine
	case enginerrors.KindStartupTimeout:
		return exitStartupTimeout
	default:
		return exitFailure
	}
}

func main() {
	root := &cobra.Command{
		Use:           "engined",
		Short:         "Privacy-first local media library engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRepairCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "engined:", err)
		os.Exit(exitCodeFor(err))
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}
