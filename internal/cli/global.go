package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cropdesk/cropdesk/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultServerUrl = "http://localhost:8080"

type GlobalOptions struct {
	ServerUrl      string
	ConfigFilePath string
	Timeout        time.Duration
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, fmt.Sprintf("Address of the server (default from the config file, else %s)", defaultServerUrl))
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the client config file")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Request timeout, 0 waits until the server answers")
}

// Complete fills the server url from the config file when the flag is not set.
func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	if o.ServerUrl != "" {
		return nil
	}

	cfg, err := client.ParseConfigFile(o.ConfigFilePath)
	switch {
	case err == nil:
		o.ServerUrl = cfg.Service.Server
	case errors.Is(err, os.ErrNotExist):
		o.ServerUrl = defaultServerUrl
	default:
		return err
	}
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return (&client.Config{Service: client.Service{Server: o.ServerUrl}}).Validate()
}

func (o *GlobalOptions) Client() *client.Client {
	return client.New(o.ServerUrl, o.Timeout)
}
