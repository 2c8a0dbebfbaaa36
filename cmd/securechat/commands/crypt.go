package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"securechat/internal/domain"
)

// encryptCmd seals a message on an existing session and prints it as JSON.
func encryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <session> <plaintext>",
		Short: "Encrypt on a session without the relay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(cmd.Context()); err != nil {
				return err
			}
			msg, err := appCtx.Messages.Encrypt(cmd.Context(), domain.SessionID(args[0]), []byte(args[1]))
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(msg)
		},
	}
}

// decryptCmd reads a JSON message from stdin. A prekey message carrying a new
// handshake starts (or replaces) the session as responder.
func decryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <session>",
		Short: "Decrypt a JSON message read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])
			contact, _, err := id.Split()
			if err != nil {
				return err
			}
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			var msg domain.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("read message: %w", err)
			}
			if err := unlock(cmd.Context()); err != nil {
				return err
			}

			accept := false
			if msg.Type == domain.MessageTypePreKey && msg.PreKey != nil {
				if accept, err = appCtx.Sessions.IsNewHandshake(id, *msg.PreKey); err != nil {
					return err
				}
			}
			var pt []byte
			if accept {
				id, pt, err = appCtx.Sessions.AcceptSession(cmd.Context(), contact, msg)
				if err == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Session %s established\n", id)
				}
			} else {
				pt, err = appCtx.Messages.Decrypt(cmd.Context(), id, msg)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pt))
			return nil
		},
	}
}
