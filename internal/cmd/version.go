package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// versionInfo is stamped in by the linker through main.
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	Date      string `json:"date,omitempty" yaml:"date,omitempty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

var buildInfo = versionInfo{Version: "dev"}

func (v versionInfo) String() string {
	s := "otaup version " + v.Version
	if v.Commit != "" {
		s += fmt.Sprintf(" (%s", v.Commit)
		if v.Date != "" {
			s += ", " + v.Date
		}
		s += ")"
	}
	return s
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the otaup build version.

Examples:
  otaup version             # Show version
  otaup version -o json     # Machine-readable build information`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, globals.outputFormat)
		},
	}
}

func runVersion(cmd *cobra.Command, format string) error {
	out, err := newOutputWriter(cmd.OutOrStdout(), format)
	if err != nil {
		return err
	}

	info := buildInfo
	info.GoVersion = runtime.Version()
	info.Platform = runtime.GOOS + "/" + runtime.GOARCH
	return out.Write(info)
}
