package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the file format of a config file.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	}
	return "unknown"
}

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	return sniffFormat(content)
}

// sniffFormat guesses the format of an extensionless file.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") || strings.Contains(line, " = ") {
			return FormatTOML
		}
		if strings.Contains(line, ":") {
			return FormatYAML
		}
	}

	return FormatUnknown
}

// rawHistory keeps Keep as a pointer so an explicit 0 survives defaulting.
type rawHistory struct {
	Dir  string `yaml:"dir" toml:"dir" json:"dir"`
	Keep *int   `yaml:"keep" toml:"keep" json:"keep"`
}

type rawHooks struct {
	PostApply []string `yaml:"post_apply" toml:"post_apply" json:"post_apply"`
}

// rawConfig is the on-disk shape. Timeout is a Go duration string because
// neither TOML nor JSON decode durations natively.
type rawConfig struct {
	Repository   string     `yaml:"repository" toml:"repository" json:"repository"`
	Module       string     `yaml:"module" toml:"module" json:"module"`
	MainDir      string     `yaml:"main_dir" toml:"main_dir" json:"main_dir"`
	Token        string     `yaml:"token" toml:"token" json:"token"`
	Timeout      string     `yaml:"timeout" toml:"timeout" json:"timeout"`
	MaxBodyBytes *int64     `yaml:"max_body_bytes" toml:"max_body_bytes" json:"max_body_bytes"`
	UserAgent    string     `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	Comparator   string     `yaml:"comparator" toml:"comparator" json:"comparator"`
	History      rawHistory `yaml:"history" toml:"history" json:"history"`
	Hooks        rawHooks   `yaml:"hooks" toml:"hooks" json:"hooks"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
func expandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// parse decodes content in the given format and applies defaults.
func parse(content []byte, format Format) (*Config, error) {
	content = expandEnvVars(content)

	var raw rawConfig

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	cfg := Default()
	cfg.Repository = strings.TrimSpace(raw.Repository)
	cfg.Module = raw.Module
	cfg.Token = raw.Token
	cfg.UserAgent = raw.UserAgent
	cfg.History.Dir = raw.History.Dir
	cfg.Hooks.PostApply = raw.Hooks.PostApply

	if raw.MainDir != "" {
		cfg.MainDir = raw.MainDir
	}
	if raw.Comparator != "" {
		cfg.Comparator = raw.Comparator
	}
	if raw.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *raw.MaxBodyBytes
	}
	if raw.History.Keep != nil {
		cfg.History.Keep = *raw.History.Keep
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return nil, ValidationError{Field: "timeout", Message: fmt.Sprintf("invalid duration %q", raw.Timeout)}
		}
		cfg.Timeout = d
	}

	return cfg, nil
}
