package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/aretw0/crucible/pkg/classify"
	"gopkg.in/yaml.v3"
)

// DefaultTool is the profile used when none is selected.
const DefaultTool = "truffle"

// ToolConfig represents the configuration of an external verification tool.
type ToolConfig struct {
	Name        string            `yaml:"name" json:"name" mapstructure:"name"`
	Command     string            `yaml:"command" json:"command" mapstructure:"command"`
	Args        []string          `yaml:"args" json:"args" mapstructure:"args"`
	Environment map[string]string `yaml:"env" json:"env" mapstructure:"env"`
	Description string            `yaml:"description" json:"description" mapstructure:"description"`
	InstallHint string            `yaml:"install_hint" json:"install_hint" mapstructure:"install_hint"`
	Markers     classify.Markers  `yaml:"markers" json:"markers" mapstructure:"markers"`
}

// Env renders Environment as sorted KEY=VALUE pairs.
func (c ToolConfig) Env() []string {
	env := make([]string, 0, len(c.Environment))
	for k, v := range c.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)
	return env
}

// EffectiveMarkers returns the configured markers, or the defaults if none are set.
func (c ToolConfig) EffectiveMarkers() classify.Markers {
	if c.Markers.IsZero() {
		return classify.DefaultMarkers()
	}
	return c.Markers
}

// ConfigFile represents the structure of tools.yaml
type ConfigFile struct {
	Tools []ToolConfig `yaml:"tools" json:"tools"`
}

// Truffle returns the built-in profile that runs "truffle test".
func Truffle() ToolConfig {
	cmd := "truffle"
	if runtime.GOOS == "windows" {
		cmd = "truffle.cmd"
	}
	return ToolConfig{
		Name:        DefaultTool,
		Command:     cmd,
		Args:        []string{"test"},
		Description: "Truffle Suite unit tests (mocha reporter)",
		InstallHint: "Truffle is not installed or not in PATH.\n\n" +
			"1. Install Node.js from https://nodejs.org\n" +
			"2. Run: npm install -g truffle\n" +
			"3. Verify installation with: truffle version",
		Markers: classify.DefaultMarkers(),
	}
}

// BuiltinTools returns the profiles that are always available.
func BuiltinTools() map[string]ToolConfig {
	t := Truffle()
	return map[string]ToolConfig{t.Name: t}
}

// LoadTools reads a configuration file (YAML or JSON) and returns a map of tool names
// to configs, layered over the built-in profiles.
func LoadTools(path string) (map[string]ToolConfig, error) {
	toolMap := BuiltinTools()
	if path == "" {
		return toolMap, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file means "no extra tools configured".
			return toolMap, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse tools.json: %w", err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse tools.yaml: %w", err)
		}
	}

	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			continue
		}
		if tool.Command == "" {
			return nil, fmt.Errorf("tool %q: command is required", tool.Name)
		}
		toolMap[tool.Name] = tool
	}

	return toolMap, nil
}
