package main

import (
	"os"

	"github.com/cropdesk/cropdesk/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewCropdeskCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCropdeskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cropdesk [flags] [options]",
		Short: "cropdesk submits PDF batches to the cropdesk service.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdUpload())
	cmd.AddCommand(cli.NewCmdHistory())
	cmd.AddCommand(cli.NewCmdTools())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
