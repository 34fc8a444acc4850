package config

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adamancini/otaup/internal/update"
	"github.com/adamancini/otaup/internal/version"
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for required fields and valid values. All
// problems are reported together.
func Validate(c *Config) error {
	var errors []string

	if err := validateRepository(c.Repository); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateMainDir(c.MainDir); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Timeout <= 0 {
		errors = append(errors, ValidationError{Field: "timeout", Message: "must be positive"}.Error())
	}

	if c.MaxBodyBytes <= 0 {
		errors = append(errors, ValidationError{Field: "max_body_bytes", Message: "must be positive"}.Error())
	}

	if _, err := version.ByName(c.Comparator); err != nil {
		errors = append(errors, ValidationError{
			Field:   "comparator",
			Message: fmt.Sprintf("unknown comparator '%s' (valid: %s)", c.Comparator, strings.Join(version.Names(), ", ")),
		}.Error())
	}

	if c.History.Keep < 0 {
		errors = append(errors, ValidationError{Field: "history.keep", Message: "cannot be negative"}.Error())
	}

	for i, hook := range c.Hooks.PostApply {
		if strings.TrimSpace(hook) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("hooks.post_apply[%d]", i),
				Message: "command cannot be empty",
			}.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateRepository(repo string) error {
	if repo == "" {
		return ValidationError{Field: "repository", Message: "repository is required"}
	}

	u, err := url.Parse(repo)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "repository", Message: fmt.Sprintf("invalid URL '%s'", repo)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: "repository", Message: fmt.Sprintf("unsupported scheme '%s' (use http or https)", u.Scheme)}
	}

	return nil
}

func validateMainDir(dir string) error {
	slashed := filepath.ToSlash(dir)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(dir) || slices.Contains(strings.Split(slashed, "/"), "..") {
		return ValidationError{Field: "main_dir", Message: "must be a relative path inside the repository"}
	}

	clean := path.Clean(strings.Trim(slashed, "/"))
	first, _, _ := strings.Cut(clean, "/")
	switch first {
	case ".":
		return ValidationError{Field: "main_dir", Message: "must name a directory below the module directory"}
	case update.StagingDirName:
		return ValidationError{Field: "main_dir", Message: fmt.Sprintf("cannot be inside the staging directory '%s'", update.StagingDirName)}
	case StateDirName:
		return ValidationError{Field: "main_dir", Message: fmt.Sprintf("cannot be inside the state directory '%s'", StateDirName)}
	}
	return nil
}
