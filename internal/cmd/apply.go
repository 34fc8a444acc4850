package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/diff"
	"github.com/adamancini/otaup/internal/hooks"
	"github.com/adamancini/otaup/internal/interactive"
	"github.com/adamancini/otaup/internal/update"
)

// errDeclined is returned by applyStep when the user rejects the update.
var errDeclined = errors.New("update declined")

func newApplyCmd() *cobra.Command {
	var interactiveMode bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Promote or discard the staged update",
		Long: `Apply inspects the staging tree without touching the network:

  complete (marker present)  the live tree is replaced by the staging tree
  incomplete (no marker)     the staging tree is deleted, the live tree kept
  absent                     nothing happens

After a promotion the hooks.post_apply commands run inside the live tree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runApply(s, interactiveMode)
		},
	}

	cmd.Flags().BoolVarP(&interactiveMode, "interactive", "i", false, "Show the pending changes and ask before applying")

	return cmd
}

func runApply(s *session, interactiveMode bool) error {
	u, err := s.updater()
	if err != nil {
		return err
	}

	report := &RunReport{}
	report.Apply, report.Hooks, err = applyStep(s, u, interactiveMode)
	if errors.Is(err, errDeclined) {
		return s.out.Textf("Aborted.")
	}
	if err != nil {
		return err
	}

	if err := s.out.Write(report); err != nil {
		return err
	}
	return report.hookErr()
}

// applyStep promotes or discards the staging tree, journals the outcome and
// runs post-apply hooks.
func applyStep(s *session, u *update.Updater, interactiveMode bool) (*update.Result, *hooks.Result, error) {
	if interactiveMode && !s.isTerminal() {
		s.logger.Warn("Not running in a terminal; falling back to non-interactive mode")
		interactiveMode = false
	}

	if interactiveMode {
		proceed, err := confirmPending(s, u)
		if err != nil {
			return nil, nil, err
		}
		if !proceed {
			return nil, nil, errDeclined
		}
	}

	applied, err := u.ApplyPending()
	s.record("apply", applied, err)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply pending update: %w", err)
	}

	return applied, s.runPostApply(applied, u.Layout()), nil
}

// confirmPending shows the file changes of a complete staged update and asks
// for confirmation. Other staging states need no confirmation.
func confirmPending(s *session, u *update.Updater) (bool, error) {
	state, staged, err := u.Inspect()
	if err != nil {
		return false, err
	}
	if state != update.StateStagingComplete {
		return true, nil
	}

	layout := u.Layout()
	d, err := diff.Compute(s.fs, layout.LivePath(), layout.StagingPath(), update.MarkerName)
	if err != nil {
		return false, fmt.Errorf("failed to compare staged update: %w", err)
	}
	d.FromVersion = u.InstalledVersion()
	d.ToVersion = staged

	return interactive.NewPrompterWithIO(s.in, s.prompt).ConfirmUpdate(d)
}
