// Package templates provides embedded config templates for otaup init.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

//go:embed *.yaml
var templatesFS embed.FS

// Default is the template used when none is named.
const Default = "minimal"

// Template represents a config template with metadata.
type Template struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Content     []byte `json:"-" yaml:"-"`
}

var templateDescriptions = map[string]string{
	"minimal": "Repository and main directory only",
	"device":  "Deployed device with token and history",
	"full":    "Every option with comments",
}

// List returns all available template names sorted alphabetically.
func List() []string {
	entries, err := templatesFS.ReadDir(".")
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}

	sort.Strings(names)
	return names
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	content, err := templatesFS.ReadFile(name + ".yaml")
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("template '%s' not found (available: %s)", name, strings.Join(List(), ", "))
		}
		return nil, fmt.Errorf("failed to read template '%s': %w", name, err)
	}

	return &Template{
		Name:        name,
		Description: GetDescription(name),
		Content:     content,
	}, nil
}

// GetDescription returns the description for a template.
func GetDescription(name string) string {
	if desc, ok := templateDescriptions[name]; ok {
		return desc
	}
	return "Custom template"
}

// varPattern matches $${VAR} (escaped), ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$?\$\{([^}:]+)(?::-([^}]*))?\}`)

// Expand replaces ${VAR} and ${VAR:-default} using lookup. Unknown or empty
// variables take their default, or become empty without one. $${VAR} is
// written out as ${VAR} so it is expanded later, when the config loads.
func Expand(content []byte, lookup func(string) (string, bool)) []byte {
	return varPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		if strings.HasPrefix(string(match), "$$") {
			return match[1:]
		}

		parts := varPattern.FindSubmatch(match)
		value, ok := lookup(string(parts[1]))
		if !ok || value == "" {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// Render returns the named template with vars substituted.
func Render(name string, vars map[string]string) ([]byte, error) {
	tmpl, err := Get(name)
	if err != nil {
		return nil, err
	}

	return Expand(tmpl.Content, func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}), nil
}
