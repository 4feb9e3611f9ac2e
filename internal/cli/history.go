package cli

import (
	"quiz-attempt/internal/render"

	"github.com/spf13/cobra"
)

// NewHistoryCmd prints recorded submissions.
func NewHistoryCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List submitted attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.journal.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			render.History(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of submissions to show")
	return cmd
}
