package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/diff"
	"github.com/adamancini/otaup/internal/output"
	"github.com/adamancini/otaup/internal/update"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show the file changes a staged update will apply",
		Long: `Diff compares the staging tree with the live tree and lists the files the
next apply will add, update or remove. Nothing is changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runDiff(s)
		},
	}
}

func runDiff(s *session) error {
	u, err := s.updater()
	if err != nil {
		return err
	}

	state, staged, err := u.Inspect()
	if err != nil {
		return err
	}

	switch state {
	case update.StateNoStaging:
		if err := s.out.Textf("No pending update found"); err != nil {
			return err
		}
		if s.out.Format() == output.FormatText {
			return nil
		}
		return s.out.Write(&diff.Result{Files: []diff.FileDiff{}})
	case update.StateStagingCorrupt:
		return fmt.Errorf("%w: it will be discarded on the next apply", update.ErrCorruptStaging)
	}

	layout := u.Layout()
	result, err := diff.Compute(s.fs, layout.LivePath(), layout.StagingPath(), update.MarkerName)
	if err != nil {
		return fmt.Errorf("failed to compare staged update: %w", err)
	}
	result.FromVersion = u.InstalledVersion()
	result.ToVersion = staged

	add, upd, remove := result.Summary()
	s.logger.Info("Pending update", "from", result.FromVersion, "to", staged,
		"add", add, "update", upd, "remove", remove)
	return s.out.Write(result)
}
