package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"securechat/internal/domain"
)

// startSessionCmd performs the X3DH handshake against a peer's pre-key
// bundles and persists one session per peer device.
func startSessionCmd() *cobra.Command {
	var bundleFile string
	cmd := &cobra.Command{
		Use:   "start-session <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := domain.ContactID(args[0])
			if err := unlock(cmd.Context()); err != nil {
				return err
			}

			var bundles []domain.PreKeyBundle
			if bundleFile != "" {
				raw, err := os.ReadFile(bundleFile)
				if err != nil {
					return err
				}
				var b domain.PreKeyBundle
				if err := json.Unmarshal(raw, &b); err != nil {
					return fmt.Errorf("%w: %v", domain.ErrPreKeyBundle, err)
				}
				bundles = append(bundles, b)
			} else {
				if err := requireRelay(); err != nil {
					return err
				}
				var err error
				if bundles, err = appCtx.Relay.FetchBundles(cmd.Context(), peer); err != nil {
					return err
				}
				if len(bundles) == 0 {
					return fmt.Errorf("%q has no published bundles", peer)
				}
			}

			for _, b := range bundles {
				id, err := appCtx.Sessions.StartSession(cmd.Context(), peer, b)
				if err != nil {
					return fmt.Errorf("starting session with %q: %w", peer, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s established\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundleFile, "bundle", "", "read the peer's bundle from a JSON file instead of the relay")
	return cmd
}
