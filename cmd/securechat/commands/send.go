package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"securechat/internal/domain"
)

// send <peer> <message>: encrypt and send a message to every device of <peer>.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
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
			from := domain.ContactID(appCtx.Config.User)
			if err := appCtx.Messages.SendMessage(cmd.Context(), from, domain.ContactID(args[0]), []byte(args[1])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
}
