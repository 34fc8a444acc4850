package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/release"
)

// Status describes the local trees. It is computed without network access.
type Status struct {
	Repository       string `json:"repository" yaml:"repository"`
	APIRoot          string `json:"api_root" yaml:"api_root"`
	LivePath         string `json:"live_path" yaml:"live_path"`
	StagingPath      string `json:"staging_path" yaml:"staging_path"`
	InstalledVersion string `json:"installed_version" yaml:"installed_version"`
	Staging          string `json:"staging" yaml:"staging"`
	StagedVersion    string `json:"staged_version,omitempty" yaml:"staged_version,omitempty"`
}

func (s *Status) String() string {
	installed := s.InstalledVersion
	if installed == "" {
		installed = "(none)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository:  %s\n", s.Repository)
	fmt.Fprintf(&b, "Live tree:   %s\n", s.LivePath)
	fmt.Fprintf(&b, "Installed:   %s\n", installed)
	fmt.Fprintf(&b, "Staging:     %s", s.Staging)
	if s.StagedVersion != "" {
		fmt.Fprintf(&b, " (%s)", s.StagedVersion)
	}
	return b.String()
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed version and staging state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runStatus(s)
		},
	}
}

func runStatus(s *session) error {
	u, err := s.updater()
	if err != nil {
		return err
	}

	state, staged, err := u.Inspect()
	if err != nil {
		return err
	}

	layout := u.Layout()
	return s.out.Write(&Status{
		Repository:       s.cfg.Repository,
		APIRoot:          release.APIRoot(s.cfg.Repository),
		LivePath:         layout.LivePath(),
		StagingPath:      layout.StagingPath(),
		InstalledVersion: u.InstalledVersion(),
		Staging:          state.String(),
		StagedVersion:    staged,
	})
}
