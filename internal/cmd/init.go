package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/config"
	"github.com/adamancini/otaup/internal/interactive"
	"github.com/adamancini/otaup/internal/rawhttp"
	"github.com/adamancini/otaup/internal/templates"
)

type initOptions struct {
	template string
	path     string
	repo     string
	module   string
	force    bool
	quiet    bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an otaup config file from a template",
		Long: `Create an otaup config file from a built-in or remote template.

Available templates:
  minimal    - Repository and main directory only
  device     - Deployed device with token and history
  full       - Every option with comments

Examples:
  otaup init                                         # Interactive mode
  otaup init --template=device --repo https://github.com/acme/firmware
  otaup init --template=https://...                  # Remote template
  otaup init --config ./otaup.yaml                   # Custom output location`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.path = globals.configPath
			opts.repo = globals.repo
			opts.module = globals.module
			opts.quiet = globals.quiet
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "Template name or URL")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing config file")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, name := range templates.List() {
			completions = append(completions, fmt.Sprintf("%s\t%s", name, templates.GetDescription(name)))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(stdin io.Reader, stdout, stderr io.Writer, opts initOptions) error {
	reader := bufio.NewReader(stdin)

	outputPath := opts.path
	if outputPath == "" {
		outputPath = defaultConfigPath()
	}
	outputPath = expandHomePath(outputPath)

	if _, err := os.Stat(outputPath); err == nil && !opts.force {
		_, _ = fmt.Fprintf(stderr, "Config already exists at %s\n", outputPath)
		overwrite, err := interactive.NewPrompterWithIO(reader, stdout).Confirm("Overwrite?")
		if err != nil {
			return err
		}
		if !overwrite {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	templateName := opts.template
	if templateName == "" {
		selected, err := selectTemplateInteractive(reader, stdout)
		if err != nil {
			return err
		}
		templateName = selected
	}

	vars := map[string]string{
		"OTAUP_REPOSITORY": opts.repo,
		"OTAUP_MODULE":     opts.module,
	}

	var content []byte
	source := templateName + ".yaml"
	if isRemote(templateName) {
		raw, err := fetchRemoteTemplate(templateName)
		if err != nil {
			return fmt.Errorf("failed to fetch template: %w", err)
		}
		content = templates.Expand(raw, func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		})
		source = path.Base(templateName)
	} else {
		rendered, err := templates.Render(templateName, vars)
		if err != nil {
			return fmt.Errorf("failed to load template: %w", err)
		}
		content = rendered
	}

	if err := validateTemplateContent(source, content); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	if !isRemote(templateName) && !opts.quiet {
		_, _ = fmt.Fprintf(stdout, "\nPreview of '%s' template:\n", templateName)
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
		_, _ = fmt.Fprintln(stdout, strings.TrimRight(string(content), "\n"))
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
	}

	parentDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parentDir, err)
	}

	if err := os.WriteFile(outputPath, content, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "\nCreated %s\n", outputPath)
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	_, _ = fmt.Fprintln(stdout, "  1. Set the repository and module in the config")
	_, _ = fmt.Fprintln(stdout, "  2. Run 'otaup check' to query the latest release")
	_, _ = fmt.Fprintln(stdout, "  3. Run 'otaup run' at boot to stage and apply updates")

	return nil
}

// selectTemplateInteractive shows a numbered menu of templates.
func selectTemplateInteractive(reader *bufio.Reader, stdout io.Writer) (string, error) {
	templateList := templates.List()

	_, _ = fmt.Fprintln(stdout, "\nSelect a config template:")
	for i, name := range templateList {
		_, _ = fmt.Fprintf(stdout, "  %d. %-12s - %s\n", i+1, name, templates.GetDescription(name))
	}
	_, _ = fmt.Fprintf(stdout, "  %d. %-12s - Provide custom template URL\n", len(templateList)+1, "custom")
	_, _ = fmt.Fprintf(stdout, "\nSelect [1-%d]: ", len(templateList)+1)

	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	answer = strings.TrimSpace(answer)

	num, err := strconv.Atoi(answer)
	if err != nil || num < 1 || num > len(templateList)+1 {
		return "", fmt.Errorf("invalid selection: %s", answer)
	}

	if num == len(templateList)+1 {
		_, _ = fmt.Fprint(stdout, "Enter template URL: ")
		url, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read URL: %w", err)
		}
		url = strings.TrimSpace(url)
		if !isRemote(url) {
			return "", fmt.Errorf("invalid template URL: %q", url)
		}
		return url, nil
	}

	return templateList[num-1], nil
}

func isRemote(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}

// fetchRemoteTemplate downloads a template with the same client used for releases.
func fetchRemoteTemplate(url string) ([]byte, error) {
	var content []byte
	err := rawhttp.NewClient().Get(url, nil, func(resp *rawhttp.Response) error {
		if !resp.OK() {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Reason)
		}
		var err error
		content, err = resp.Bytes()
		return err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// validateTemplateContent parses and validates rendered content as a config.
func validateTemplateContent(name string, content []byte) error {
	cfg, err := config.Parse(name, content)
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}

// defaultConfigPath returns $XDG_CONFIG_HOME/otaup/otaup.yaml.
func defaultConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "otaup", "otaup.yaml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "otaup.yaml"
	}
	return filepath.Join(home, ".config", "otaup", "otaup.yaml")
}

// expandHomePath expands a leading ~/ to the user's home directory.
func expandHomePath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
