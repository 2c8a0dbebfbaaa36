package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"securechat/internal/domain"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List established sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := appCtx.Sessions.ListSessions()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <session>",
		Short: "Tear down a session and wipe its keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])
			ok, err := appCtx.Sessions.HasSession(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: unknown session %q", domain.ErrSession, id)
			}
			if err := appCtx.Sessions.RemoveSession(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s removed\n", id)
			return nil
		},
	})
	return cmd
}
