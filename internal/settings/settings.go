// Package settings resolves the effective configuration of a job from the
// caller supplied settings and the tool default configuration file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

type Source string

const (
	SourceCaller  Source = "caller"
	SourceDefault Source = "default"
	SourceNone    Source = "none"
)

// MaxSize bounds the caller settings accepted as overrides.
const MaxSize = 64 << 10

// ErrMalformedSettings marks caller settings that are not a JSON object.
// It is never returned to the caller of Resolve, only logged.
var ErrMalformedSettings = errors.New("malformed settings")

type Resolved struct {
	// Path is the configuration passed to the tool; empty means no --config argument.
	Path   string
	Source Source
}

// Resolve never fails. Malformed caller settings degrade to the default
// configuration. Valid settings are merged over the default and written to
// jobConfigPath; the default file itself is never modified.
func Resolve(raw *string, defaultPath, jobConfigPath string) Resolved {
	logger := zap.S().Named("settings")

	if raw != nil && strings.TrimSpace(*raw) != "" {
		overrides, err := parseCaller(*raw)
		if err != nil {
			logger.Warnw("ignoring caller settings", "error", err)
		} else {
			merged := merge(loadDefault(defaultPath), overrides)
			if err := write(jobConfigPath, merged); err != nil {
				logger.Warnw("failed to write job configuration, using defaults", "path", jobConfigPath, "error", err)
			} else {
				return Resolved{Path: jobConfigPath, Source: SourceCaller}
			}
		}
	}

	if defaultPath != "" {
		if fi, err := os.Stat(defaultPath); err == nil && fi.Mode().IsRegular() {
			return Resolved{Path: defaultPath, Source: SourceDefault}
		}
	}
	return Resolved{Source: SourceNone}
}

func parseCaller(raw string) (map[string]any, error) {
	if len(raw) > MaxSize {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrMalformedSettings, MaxSize)
	}
	return parse([]byte(raw))
}

func parse(data []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSettings, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedSettings)
	}
	return obj, nil
}

func loadDefault(path string) map[string]any {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.S().Named("settings").Warnw("failed to read default configuration", "path", path, "error", err)
		}
		return nil
	}
	obj, err := parse(data)
	if err != nil {
		zap.S().Named("settings").Warnw("ignoring default configuration", "path", path, "error", err)
		return nil
	}
	return obj
}

// merge is shallow: caller keys replace default keys as a whole.
func merge(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func write(path string, cfg map[string]any) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
