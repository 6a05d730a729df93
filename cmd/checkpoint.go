package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-importer/internal/app"
)

func newCheckpointCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear the per-pair import progress",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "List stored progress for every (year, language) pair",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if !state.cfg.Checkpoint.Enabled {
					fmt.Fprintln(cmd.OutOrStdout(), "Checkpointing is disabled.")
					return nil
				}
				cursor, err := app.NewCursor(state.cfg.Checkpoint)
				if err != nil {
					return err
				}
				defer cursor.Close() //nolint:errcheck

				pairs, err := cursor.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(pairs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No progress recorded.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "YEAR\tLANGUAGE\tLAST PAGE\tTOTAL PAGES\tDONE\tRUN\tUPDATED")
				for _, p := range pairs {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%t\t%s\t%s\n",
						p.Year, p.Language, p.LastPage, p.TotalPages, p.Done, p.RunID, p.UpdatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Clear all stored progress so the next import starts over",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cursor, err := app.NewCursor(state.cfg.Checkpoint)
				if err != nil {
					return err
				}
				defer cursor.Close() //nolint:errcheck

				if err := cursor.Reset(cmd.Context()); err != nil {
					return err
				}
				state.logger.Info("checkpoint cleared")
				fmt.Fprintln(cmd.OutOrStdout(), "Checkpoint cleared.")
				return nil
			},
		},
	)
	return cmd
}
