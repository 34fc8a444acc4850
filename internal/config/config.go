// Package config handles otaup configuration parsing and location resolution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adamancini/otaup/internal/version"
)

// Defaults applied to fields left empty in the configuration file.
const (
	DefaultMainDir      = "main"
	DefaultTimeout      = 5 * time.Second
	DefaultMaxBodyBytes = 1 << 20
	DefaultHistoryKeep  = 30
	DefaultComparator   = version.NameLexical
)

// StateDirName holds otaup's own files inside the module directory.
const StateDirName = ".otaup"

// EnvConfig names the environment variable holding an explicit config path.
const EnvConfig = "OTAUP_CONFIG"

// HistoryConfig controls the outcome journal.
type HistoryConfig struct {
	Dir  string `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty"`
	Keep int    `yaml:"keep" toml:"keep" json:"keep"`
}

// HooksConfig lists shell commands run after update steps.
type HooksConfig struct {
	PostApply []string `yaml:"post_apply,omitempty" toml:"post_apply,omitempty" json:"post_apply,omitempty"`
}

// Config is the parsed and defaulted configuration.
type Config struct {
	Repository   string        `yaml:"repository" toml:"repository" json:"repository"`
	Module       string        `yaml:"module,omitempty" toml:"module,omitempty" json:"module,omitempty"`
	MainDir      string        `yaml:"main_dir" toml:"main_dir" json:"main_dir"`
	Token        string        `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" toml:"max_body_bytes" json:"max_body_bytes"`
	UserAgent    string        `yaml:"user_agent,omitempty" toml:"user_agent,omitempty" json:"user_agent,omitempty"`
	Comparator   string        `yaml:"comparator" toml:"comparator" json:"comparator"`
	History      HistoryConfig `yaml:"history" toml:"history" json:"history"`
	Hooks        HooksConfig   `yaml:"hooks,omitempty" toml:"hooks,omitempty" json:"hooks,omitempty"`

	// Path is the file the configuration was loaded from, empty for defaults.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// Default returns a configuration with every default applied and no repository.
func Default() *Config {
	return &Config{
		MainDir:      DefaultMainDir,
		Timeout:      DefaultTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Comparator:   DefaultComparator,
		History:      HistoryConfig{Keep: DefaultHistoryKeep},
	}
}

// Overrides holds command-line values that take precedence over the file.
type Overrides struct {
	Repository string
	Module     string
	MainDir    string
}

// Apply copies every non-empty override into c.
func (c *Config) Apply(o Overrides) {
	if o.Repository != "" {
		c.Repository = o.Repository
	}
	if o.Module != "" {
		c.Module = o.Module
	}
	if o.MainDir != "" {
		c.MainDir = o.MainDir
	}
}

// HistoryDir returns the journal directory, defaulting to <module>/.otaup/history.
func (c *Config) HistoryDir() string {
	if c.History.Dir != "" {
		return c.History.Dir
	}
	return filepath.Join(c.Module, StateDirName, "history")
}

// fileNames are the config file names tried in each search directory.
var fileNames = []string{
	"otaup.yaml",
	"otaup.yml",
	"otaup.toml",
	"otaup.json",
}

// SearchPaths returns the directories searched for a config file, in order.
func SearchPaths() []string {
	var dirs []string

	home, err := os.UserHomeDir()
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" && err == nil {
		xdgConfig = filepath.Join(home, ".config")
	}
	if xdgConfig != "" {
		dirs = append(dirs, filepath.Join(xdgConfig, "otaup"))
	}
	if err == nil {
		dirs = append(dirs, filepath.Join(home, ".otaup"))
	}

	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}

// ErrNotFound is returned by Find when no config file exists.
var ErrNotFound = errors.New("no otaup config found in standard locations")

// Find returns the path of the config file to load. An explicit path must
// exist; otherwise $OTAUP_CONFIG and the standard locations are tried.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(EnvConfig); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, dir := range SearchPaths() {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}

// Load reads, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read parses the config file at path and applies defaults without
// validating, so command-line overrides can still fill in missing fields.
func Read(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(path, content)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes config content. name is only used to pick the format by
// extension; extensionless names fall back to content sniffing.
func Parse(name string, content []byte) (*Config, error) {
	format := detectFormat(name, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", name)
	}
	return parse(content, format)
}
