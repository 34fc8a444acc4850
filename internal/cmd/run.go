package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/hooks"
	"github.com/adamancini/otaup/internal/update"
)

// RunReport is the outcome of one boot cycle.
type RunReport struct {
	Apply    *update.Result `json:"apply" yaml:"apply"`
	Hooks    *hooks.Result  `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	Download *update.Result `json:"download,omitempty" yaml:"download,omitempty"`
}

func (r *RunReport) String() string {
	var lines []string
	if r.Apply != nil {
		lines = append(lines, r.Apply.String())
	}
	if r.Hooks != nil {
		line := fmt.Sprintf("Ran %d post-apply hooks", len(r.Hooks.Operations))
		if r.Hooks.Failed > 0 {
			line += fmt.Sprintf(" (%d failed)", r.Hooks.Failed)
		}
		lines = append(lines, line)
	}
	if r.Download != nil {
		lines = append(lines, r.Download.String())
	}
	return strings.Join(lines, "\n")
}

func (r *RunReport) hookErr() error {
	if r.Hooks == nil {
		return nil
	}
	if err := r.Hooks.Err(); err != nil {
		return fmt.Errorf("post-apply hooks failed: %w", err)
	}
	return nil
}

func newRunCmd() *cobra.Command {
	var skipDownload bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a pending update, then stage the latest release",
		Long: `Run performs the boot-time update cycle:

  1. A complete staged update is promoted to the live tree; an incomplete
     one is discarded. Post-apply hooks run after a promotion.
  2. The latest release is compared with the installed version and, when
     newer, downloaded into the staging tree for the next start.

Call it early in the start sequence, before the live tree is loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runRun(s, skipDownload)
		},
	}

	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Only apply a pending update")

	return cmd
}

func runRun(s *session, skipDownload bool) error {
	u, err := s.updater()
	if err != nil {
		return err
	}

	report := &RunReport{}
	report.Apply, report.Hooks, err = applyStep(s, u, false)
	if err != nil {
		return err
	}

	if !skipDownload {
		staged, err := u.DownloadIfAvailable()
		s.record("download", staged, err)
		if err != nil {
			_ = s.out.Write(report)
			return fmt.Errorf("failed to download update: %w", err)
		}
		report.Download = staged
	}

	if err := s.out.Write(report); err != nil {
		return err
	}
	return report.hookErr()
}
