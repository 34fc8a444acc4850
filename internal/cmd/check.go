package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		Long: `Check compares the installed version (the live tree's marker file) with
the latest release. Nothing is downloaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runCheck(s)
		},
	}
}

func runCheck(s *session) error {
	u, err := s.updater()
	if err != nil {
		return err
	}

	info, err := u.Check()
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	return s.out.Write(info)
}
