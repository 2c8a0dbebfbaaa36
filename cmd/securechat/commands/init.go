package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"securechat/internal/app"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate device keys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			fp, err := appCtx.Device.InitializeDevice(cmd.Context(), passphrase)
			if err != nil {
				return err
			}
			if err := app.SaveConfig(appCtx.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Device created.\nFingerprint: %s\n", fp)
			return nil
		},
	}
}
