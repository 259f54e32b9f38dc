package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Config holds the information needed to connect to a cropdesk API server.
type Config struct {
	Service Service `json:"service"`
}

type Service struct {
	// Server is the URL of the API server (the part before /api/v1/...).
	Server string `json:"server"`
}

// DefaultConfigPath returns the default path to the client config file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cropdesk", "client.yaml")
	}
	return filepath.Join(home, ".cropdesk", "client.yaml")
}

func ParseConfigFile(filename string) (*Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// WriteConfig writes a client config file pointing at server.
func WriteConfig(filename string, server string) error {
	config := &Config{Service: Service{Server: server}}
	if err := config.Validate(); err != nil {
		return err
	}
	return config.Persist(filename)
}

func (c *Config) Persist(filename string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.WriteFile(filename, contents, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := errors.Join(validateService(c.Service)...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func validateService(service Service) []error {
	validationErrors := make([]error, 0)
	if len(service.Server) == 0 {
		validationErrors = append(validationErrors, fmt.Errorf("no server found"))
	} else {
		u, err := url.Parse(service.Server)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: %w", service.Server, err))
		}
		if err == nil && len(u.Hostname()) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf("invalid server format %q: no hostname", service.Server))
		}
	}
	return validationErrors
}
