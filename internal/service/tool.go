package service

import (
	"github.com/cropdesk/cropdesk/internal/tools"
)

type ToolService struct {
	registry *tools.Registry
}

func NewToolService(registry *tools.Registry) *ToolService {
	return &ToolService{registry: registry}
}

func (t *ToolService) List() []tools.Tool {
	return t.registry.List()
}

// Get resolves a route key, case insensitively.
func (t *ToolService) Get(key string) (tools.Tool, error) {
	tool, found := t.registry.Lookup(key)
	if !found {
		return tools.Tool{}, NewErrUnknownTool(key)
	}
	return tool, nil
}

func (t *ToolService) Registry() *tools.Registry {
	return t.registry
}
