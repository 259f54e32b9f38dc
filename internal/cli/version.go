package cli

import (
	"context"
	"fmt"

	"github.com/cropdesk/cropdesk/pkg/version"
	"github.com/spf13/cobra"
)

type VersionOptions struct{}

func DefaultVersionOptions() *VersionOptions {
	return &VersionOptions{}
}

func NewCmdVersion() *cobra.Command {
	o := DefaultVersionOptions()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print cropdesk version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context(), args)
		},
	}
	return cmd
}

func (o *VersionOptions) Run(ctx context.Context, args []string) error {
	versionInfo := version.Get()
	fmt.Printf("cropdesk Version: %s\n", versionInfo.String())
	return nil
}
