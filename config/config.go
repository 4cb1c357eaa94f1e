// Package config loads the declarative YAML surface for routed invocations:
// route declarations (description, selection schema, system message, nested
// routes) plus router and engine tuning. Validation fails fast with a
// core.ConfigurationError before anything is installed.
package config

import (
	"fmt"
	"os"

	"github.com/hupe1980/agentnet/core"
	"gopkg.in/yaml.v3"
)

// Strategy names accepted by the configuration surface.
const (
	StrategyClassification = "classification"
	StrategyStructuredCall = "structured_call"
)

// Route declares one selectable route. Routes nest: a route with its own
// Routes map is delegated to a child scope.
type Route struct {
	Description   string           `yaml:"description"`
	SystemMessage string           `yaml:"system_message,omitempty"`
	Schema        map[string]any   `yaml:"schema,omitempty"`
	Entry         string           `yaml:"entry,omitempty"`
	Terminal      bool             `yaml:"terminal,omitempty"`
	Routes        map[string]Route `yaml:"routes,omitempty"`
}

// Config is the top-level declaration for one supervisor.
type Config struct {
	Strategy      string           `yaml:"strategy"`
	Instructions  string           `yaml:"instructions,omitempty"`
	MaxTurns      int              `yaml:"max_turns,omitempty"`
	LoopWindow    int              `yaml:"loop_window,omitempty"`
	LoopThreshold int              `yaml:"loop_threshold,omitempty"`
	MaxAttempts   int              `yaml:"max_attempts,omitempty"`
	MaxModelCalls int              `yaml:"max_model_calls,omitempty"`
	Required      []string         `yaml:"required,omitempty"`
	Routes        map[string]Route `yaml:"routes"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewConfigurationError("read config %s: %v", path, err)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.NewConfigurationError("parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the declaration for pre-flight faults.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyClassification, StrategyStructuredCall:
	case "":
		return core.NewConfigurationError("strategy is required (%s or %s)",
			StrategyClassification, StrategyStructuredCall)
	default:
		return core.NewConfigurationError("unknown strategy %q", c.Strategy)
	}

	if c.MaxTurns < 0 || c.LoopWindow < 0 || c.LoopThreshold < 0 ||
		c.MaxAttempts < 0 || c.MaxModelCalls < 0 {
		return core.NewConfigurationError("tuning values must not be negative")
	}

	if len(c.Routes) == 0 {
		return core.NewConfigurationError("at least one route is required")
	}
	for _, name := range c.Required {
		if _, ok := c.Routes[name]; !ok {
			return core.NewConfigurationError("required route %q is not declared", name)
		}
	}

	for name, route := range c.Routes {
		if err := validateRoute(name, route); err != nil {
			return err
		}
	}

	return nil
}

func validateRoute(path string, r Route) error {
	if r.Description == "" {
		return core.NewConfigurationError("route %s: description is required", path)
	}

	if len(r.Routes) > 0 {
		if r.Entry == "" {
			return core.NewConfigurationError("route %s: entry is required for nested routes", path)
		}
		if _, ok := r.Routes[r.Entry]; !ok {
			return core.NewConfigurationError("route %s: entry %q is not among its nested routes", path, r.Entry)
		}
		for name, nested := range r.Routes {
			if err := validateRoute(fmt.Sprintf("%s.%s", path, name), nested); err != nil {
				return err
			}
		}
	} else if r.Entry != "" {
		return core.NewConfigurationError("route %s: entry requires nested routes", path)
	}

	return nil
}
