package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Stage the latest release if it is newer",
		Long: `Download mirrors the latest release into the staging tree when it is newer
than the installed version. The live tree is not touched; the update takes
effect on the next 'otaup run' or 'otaup apply'.

A failed download leaves an incomplete staging tree that the next apply
discards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runDownload(s)
		},
	}
}

func runDownload(s *session) error {
	u, err := s.updater()
	if err != nil {
		return err
	}

	result, err := u.DownloadIfAvailable()
	s.record("download", result, err)
	if err != nil {
		return fmt.Errorf("failed to download update: %w", err)
	}

	return s.out.Write(result)
}
