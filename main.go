package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sparklab/cmd/check"
	"sparklab/cmd/cmdutil"
	"sparklab/cmd/generate"
	"sparklab/cmd/simulate"
	"sparklab/cmd/tail"
	"sparklab/cmd/version"
)

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "sparklab",
		Short: "Data and connectivity tools for the Spark and Kafka lab",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmdutil.AddGlobalFlags(command)
	command.AddCommand(generate.NewCommand())
	command.AddCommand(simulate.NewCommand())
	command.AddCommand(check.NewCommand())
	command.AddCommand(tail.NewCommand())
	command.AddCommand(version.NewCommand())
	return command
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
