package mcphost

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Defaults carries the tunables applied to composition operations that
// do not override them per call.
type Defaults struct {
	ToolSeparator     string        `env:"MCPCOMPOSE_TOOL_SEPARATOR,default=_"`
	ResourceSeparator string        `env:"MCPCOMPOSE_RESOURCE_SEPARATOR,default=+"`
	PromptSeparator   string        `env:"MCPCOMPOSE_PROMPT_SEPARATOR,default=_"`
	ProxyCallTimeout  time.Duration `env:"MCPCOMPOSE_PROXY_TIMEOUT,default=30s"`
	PageSize          int           `env:"MCPCOMPOSE_PAGE_SIZE,default=50"`
}

// DefaultsFromEnv reads Defaults from the environment.
func DefaultsFromEnv() (Defaults, error) {
	var d Defaults
	if err := envdecode.Decode(&d); err != nil {
		return Defaults{}, fmt.Errorf("decode environment: %w", err)
	}
	return d, nil
}

// builtinDefaults mirrors the env tag defaults for hosts constructed
// without environment configuration.
func builtinDefaults() Defaults {
	return Defaults{
		ToolSeparator:     "_",
		ResourceSeparator: "+",
		PromptSeparator:   "_",
		ProxyCallTimeout:  30 * time.Second,
		PageSize:          50,
	}
}

// separators derives the default per-kind separators from the
// configured defaults.
func (d Defaults) separators() Separators {
	s := Separators{Tool: d.ToolSeparator, Resource: d.ResourceSeparator, Prompt: d.PromptSeparator}
	if s.Tool == "" {
		s.Tool = "_"
	}
	if s.Resource == "" {
		s.Resource = "+"
	}
	if s.Prompt == "" {
		s.Prompt = "_"
	}
	return s
}
