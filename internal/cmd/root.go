package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/output"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	outputFormat string
	configPath   string
	repo         string
	module       string
	mainDir      string
	verbose      bool
	quiet        bool
}

var globals globalOptions

// Execute runs the otaup command line.
func Execute(version, commit, date string) error {
	buildInfo = versionInfo{Version: version, Commit: commit, Date: date}
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "otaup",
		Short: "Staged over-the-air updates for a code tree",
		Long: `otaup keeps a local code tree in sync with the latest release of a
repository on a GitHub-style release host.

A new release is downloaded into a staging tree next to the live one and
promoted on the next start, so a device never runs a half-written tree.`,
		Version:      buildInfo.Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globals.outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&globals.configPath, "config", "", "Path to otaup config file")
	rootCmd.PersistentFlags().StringVar(&globals.repo, "repo", "", "Repository URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&globals.module, "module", "", "Directory holding the live and staging trees (overrides config)")
	rootCmd.PersistentFlags().StringVar(&globals.mainDir, "main-dir", "", "Live tree directory inside the module (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&globals.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&globals.quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDiffCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Formats(), cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}
