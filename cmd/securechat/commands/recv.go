package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"securechat/internal/domain"
)

// recv: fetch and decrypt queued messages.
func recvCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRelay(); err != nil {
				return err
			}
			if err := requireUser(); err != nil {
				return err
			}
			if err := unlock(cmd.Context()); err != nil {
				return err
			}

			msgs, err := appCtx.Messages.ReceiveMessages(cmd.Context(), domain.ContactID(appCtx.Config.User), limit)
			for _, m := range msgs {
				ts := time.Unix(m.Timestamp, 0).Format(time.DateTime)
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", ts, m.From, string(m.Plaintext))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of envelopes to fetch (0 = all)")
	return cmd
}
