package version

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X sparklab/cmd/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var short bool

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			Print(cmd.OutOrStdout(), short)
			return nil
		},
	}
	command.Flags().BoolVar(&short, "short", false, "Print just the version string.")
	return command
}

func Print(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, Version)
		return
	}
	fmt.Fprintf(w, "Version: %s\n", Version)
	fmt.Fprintf(w, "GitCommit: %s\n", GitCommit)
	fmt.Fprintf(w, "BuildDate: %s\n", BuildDate)
	fmt.Fprintf(w, "GoVersion: %s\n", runtime.Version())
	fmt.Fprintf(w, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
