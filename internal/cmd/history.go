package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/otaup/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the update journal",
		Long: `History shows the outcome of past update steps.

Every run, download and apply writes one entry to <module>/.otaup/history
(or history.dir). The journal keeps the history.keep most recent entries;
a keep of 0 disables it.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List journal entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runHistoryList(s)
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one journal entry",
		Long:  `Show prints a journal entry. Use 'latest' as the ID for the most recent one.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runHistoryShow(s, args[0])
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			return runHistoryDelete(s, args[0])
		},
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old journal entries",
		Long: `Prune deletes old entries, keeping only the most recent N.

Without --keep the configured history.keep is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFor(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = s.cfg.History.Keep
			}
			return runHistoryPrune(s, keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Number of entries to keep")

	return cmd
}

func runHistoryList(s *session) error {
	j := s.journal()
	entries, err := j.List()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		s.logger.Debug("History directory", "dir", j.Dir())
	}
	return s.out.Write(entries)
}

func runHistoryShow(s *session, id string) error {
	entry, err := s.journal().Get(id)
	if err != nil {
		return err
	}
	return s.out.Write(entry)
}

func runHistoryDelete(s *session, id string) error {
	if id == history.Latest {
		entry, err := s.journal().Get(history.Latest)
		if err != nil {
			return err
		}
		id = entry.ID
	}

	if err := s.journal().Delete(id); err != nil {
		return err
	}
	return s.out.Textf("Deleted %s\n", id)
}

func runHistoryPrune(s *session, keep int) error {
	result, err := s.journal().Prune(keep)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return s.out.Write(result)
}
