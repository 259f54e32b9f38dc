package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ToolsOptions struct {
	GlobalOptions

	Output string

	out io.Writer
}

func DefaultToolsOptions() *ToolsOptions {
	return &ToolsOptions{
		GlobalOptions: DefaultGlobalOptions(),
		out:           os.Stdout,
	}
}

func NewCmdTools() *cobra.Command {
	o := DefaultToolsOptions()
	cmd := &cobra.Command{
		Use:          "tools",
		Short:        "List the croppers the server runs.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ToolsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *ToolsOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return validateOutput(o.Output)
}

func (o *ToolsOptions) Run(ctx context.Context, args []string) error {
	list, err := o.Client().Tools(ctx)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	if printed, err := printStructured(o.out, o.Output, list); printed {
		return err
	}

	w := tabwriter.NewWriter(o.out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "KEY\tFOLDER\tDEADLINE\tEXTENSIONS")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Key, t.Folder, t.Deadline, strings.Join(t.Extensions, ","))
	}
	return w.Flush()
}
