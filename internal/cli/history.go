package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type HistoryOptions struct {
	GlobalOptions

	Output string

	out io.Writer
}

func DefaultHistoryOptions() *HistoryOptions {
	return &HistoryOptions{
		GlobalOptions: DefaultGlobalOptions(),
		out:           os.Stdout,
	}
}

func NewCmdHistory() *cobra.Command {
	o := DefaultHistoryOptions()
	cmd := &cobra.Command{
		Use:          "history USER_ID",
		Short:        "Display the latest jobs of a user.",
		Args:         cobra.ExactArgs(1),
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

func (o *HistoryOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *HistoryOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("user id must not be empty")
	}
	return validateOutput(o.Output)
}

func (o *HistoryOptions) Run(ctx context.Context, args []string) error {
	resp, err := o.Client().History(ctx, args[0])
	if err != nil {
		return fmt.Errorf("reading history of %s: %w", args[0], err)
	}

	if printed, err := printStructured(o.out, o.Output, resp.History); printed {
		return err
	}

	w := tabwriter.NewWriter(o.out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "TIMESTAMP\tTOOL\tJOB\tOUTPUTS")
	for _, r := range resp.History {
		names := make([]string, 0, len(r.Outputs))
		for _, a := range r.Outputs {
			names = append(names, a.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Timestamp.Format(time.RFC3339), r.ToolName, r.JobId, strings.Join(names, ","))
	}
	return w.Flush()
}
