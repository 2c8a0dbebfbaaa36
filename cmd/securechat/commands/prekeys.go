package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"securechat/internal/domain"
)

// bundleCmd prints one public bundle, for exchanging keys without a relay.
func bundleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bundle",
		Short: "Print a public pre-key bundle as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := unlock(cmd.Context()); err != nil {
				return err
			}
			b, err := appCtx.Prekeys.GetPublicBundle(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		},
	}
}

func publishCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish pre-key bundles to the relay",
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
			n, err := appCtx.Prekeys.Publish(cmd.Context(), domain.ContactID(appCtx.Config.User), count)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %d bundles\n", n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of bundles to publish")
	return cmd
}

func replenishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replenish <count>",
		Short: "Generate more one-time pre-keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[0])
			if err != nil || count <= 0 {
				return fmt.Errorf("count must be a positive integer")
			}
			if err := unlock(cmd.Context()); err != nil {
				return err
			}
			remaining, err := appCtx.Prekeys.Replenish(cmd.Context(), count)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d one-time pre-keys available\n", remaining)
			return nil
		},
	}
}
