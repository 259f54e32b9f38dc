// Package tools holds the registry of external transformation tools. Upload,
// download and admin paths all resolve a route key through the same Registry
// so the key to folder mapping cannot drift between them.
package tools

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultExecutable is the entry point of every bundled cropper.
	DefaultExecutable = "main.py"
	// DefaultConfigFile is the tool level default configuration, relative to the tool folder.
	DefaultConfigFile = "config.json"
	// DefaultSentinel is written by a tool that handled an internal failure.
	DefaultSentinel = "error.log"
)

var DefaultOutputExtensions = []string{".pdf", ".xlsx"}

// Tool describes one external transformation.
type Tool struct {
	// Key is the route key used in URLs, e.g. "flipkart".
	Key string
	// Folder is the directory under the data dir holding the tool and its jobs.
	Folder string
	// Executable is relative to the tool folder.
	Executable string
	// OutputExtensions are the artifact extensions the reconciler recognizes.
	OutputExtensions []string
	Sentinel         string
	Deadline         time.Duration
}

// Recognizes reports whether name is an artifact this tool produces.
func (t Tool) Recognizes(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range t.OutputExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Root is the working directory of the tool for a given data dir.
func (t Tool) Root(dataDir string) string {
	return filepath.Join(dataDir, t.Folder)
}

type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry returns the marketplace croppers with the given deadline
// applied, then overridden by the per key entries of overrides. Override keys
// are matched case insensitively.
func NewDefaultRegistry(deadline time.Duration, overrides map[string]time.Duration) (*Registry, error) {
	builtin := []Tool{
		{Key: "flipkart", Folder: "FlipkartCropper"},
		{Key: "meesho", Folder: "MeshooCropper"},
		{Key: "jiomart", Folder: "JioMartCropper"},
	}

	byKey := make(map[string]time.Duration, len(overrides))
	for key, d := range overrides {
		byKey[strings.ToLower(strings.TrimSpace(key))] = d
	}

	for i := range builtin {
		builtin[i].Deadline = deadline
		if d, ok := byKey[builtin[i].Key]; ok {
			builtin[i].Deadline = d
		}
	}

	for key := range byKey {
		found := false
		for _, t := range builtin {
			if t.Key == key {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("deadline override for unknown tool %q", key)
		}
	}

	return NewRegistry(builtin...)
}

func (r *Registry) register(t Tool) error {
	if t.Key == "" || t.Folder == "" {
		return fmt.Errorf("tool must have a key and a folder: %+v", t)
	}
	if strings.ContainsAny(t.Key, `/\`) || strings.ContainsAny(t.Folder, `/\`) {
		return fmt.Errorf("tool %q: key and folder must be single path elements", t.Key)
	}
	if _, found := r.tools[t.Key]; found {
		return fmt.Errorf("tool %q registered twice", t.Key)
	}
	if t.Executable == "" {
		t.Executable = DefaultExecutable
	}
	if len(t.OutputExtensions) == 0 {
		t.OutputExtensions = DefaultOutputExtensions
	}
	if t.Sentinel == "" {
		t.Sentinel = DefaultSentinel
	}
	if t.Deadline <= 0 {
		return fmt.Errorf("tool %q: deadline must be positive", t.Key)
	}
	r.tools[t.Key] = t
	return nil
}

// Lookup resolves a route key. Keys are case insensitive.
func (r *Registry) Lookup(key string) (Tool, bool) {
	t, ok := r.tools[strings.ToLower(strings.TrimSpace(key))]
	return t, ok
}

// List returns the tools sorted by key.
func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// Keys returns the registered route keys sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.tools))
	for _, t := range r.List() {
		keys = append(keys, t.Key)
	}
	return keys
}
