package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

func validateOutput(output string) error {
	if len(output) > 0 && !funk.Contains(legalOutputTypes, output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

// printStructured writes v as json or yaml and reports false for the table format.
func printStructured(w io.Writer, output string, v any) (bool, error) {
	var (
		marshalled []byte
		err        error
	)
	switch output {
	case jsonFormat:
		marshalled, err = json.Marshal(v)
	case yamlFormat:
		marshalled, err = yaml.Marshal(v)
	default:
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("marshalling response: %w", err)
	}
	fmt.Fprintf(w, "%s\n", string(marshalled))
	return true, nil
}
