package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type UploadOptions struct {
	GlobalOptions

	Files       []string
	UserId      string
	Settings    string
	DownloadDir string
	Output      string

	out io.Writer
}

func DefaultUploadOptions() *UploadOptions {
	return &UploadOptions{
		GlobalOptions: DefaultGlobalOptions(),
		out:           os.Stdout,
	}
}

func NewCmdUpload() *cobra.Command {
	o := DefaultUploadOptions()
	cmd := &cobra.Command{
		Use:          "upload TOOL --file a.pdf [--file b.pdf]",
		Short:        "Run a cropper over PDF files",
		Example:      "upload flipkart --file orders.pdf --user-id seller-1 --download-dir ./labels",
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

	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}

	return cmd
}

func (o *UploadOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringArrayVarP(&o.Files, "file", "f", o.Files, "PDF file to upload, repeat for several (required)")
	fs.StringVar(&o.UserId, "user-id", o.UserId, "Record the job in the history of this user")
	fs.StringVar(&o.Settings, "settings", o.Settings, "Tool settings as a JSON object, or @path to read them from a file")
	fs.StringVar(&o.DownloadDir, "download-dir", o.DownloadDir, "Download the produced artifacts into this directory")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *UploadOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}

	if path, found := strings.CutPrefix(o.Settings, "@"); found {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading settings: %w", err)
		}
		o.Settings = string(data)
	}
	return nil
}

func (o *UploadOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if len(o.Files) == 0 {
		return fmt.Errorf("at least one --file is required")
	}
	for _, f := range o.Files {
		fi, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("file %s: %w", f, err)
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("file %s is not a regular file", f)
		}
	}

	if o.Settings != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(o.Settings), &obj); err != nil {
			return fmt.Errorf("settings must be a JSON object: %w", err)
		}
	}

	return validateOutput(o.Output)
}

func (o *UploadOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	req := client.UploadRequest{Tool: args[0], Files: o.Files}
	if o.UserId != "" {
		req.UserId = &o.UserId
	}
	if o.Settings != "" {
		req.Settings = &o.Settings
	}

	resp, err := c.Upload(ctx, req)
	if err != nil {
		return fmt.Errorf("uploading to %s: %w", args[0], err)
	}

	if o.DownloadDir != "" {
		if err := o.download(ctx, c, resp.Outputs); err != nil {
			return err
		}
	}

	if printed, err := printStructured(o.out, o.Output, resp); printed {
		return err
	}

	w := tabwriter.NewWriter(o.out, 0, 8, 1, '\t', 0)
	fmt.Fprintf(w, "JOB\t%s\n", resp.JobId)
	printArtifactsTable(w, resp.Outputs)
	return w.Flush()
}

func (o *UploadOptions) download(ctx context.Context, c *client.Client, artifacts []api.Artifact) error {
	if err := os.MkdirAll(o.DownloadDir, 0755); err != nil {
		return fmt.Errorf("creating download dir: %w", err)
	}
	for _, a := range artifacts {
		dest := filepath.Join(o.DownloadDir, filepath.Base(a.Name))
		f, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("creating %s: %w", dest, err)
		}
		_, err = c.Download(ctx, a.Url, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("downloading %s: %w", a.Name, err)
		}
	}
	return nil
}

func printArtifactsTable(w io.Writer, artifacts []api.Artifact) {
	fmt.Fprintln(w, "NAME\tURL")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\n", a.Name, a.Url)
	}
}
