package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"securechat/internal/app"
	"securechat/internal/logging"
)

var (
	home       string
	passphrase string
	relayURL   string
	username   string
	logLevel   string

	appCtx *app.Wire
)

// Execute runs the root command; Ctrl-C cancels in-flight relay calls.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "securechat",
		Short:         "End-to-end encrypted chat CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".securechat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			cfg, err := app.LoadConfig(home)
			if err != nil {
				return err
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if username != "" {
				cfg.User = username
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()); err != nil {
				return err
			}

			appCtx, err = app.NewWire(cfg)
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.securechat)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to protect keys")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "your user name on the relay")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		bundleCmd(),
		publishCmd(),
		replenishCmd(),
		startSessionCmd(),
		sessionsCmd(),
		sendCmd(),
		recvCmd(),
		encryptCmd(),
		decryptCmd(),
	)
	return root
}

// unlock loads the device keys with the passphrase flag.
func unlock(ctx context.Context) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	return appCtx.Device.Unlock(ctx, passphrase)
}

func requireRelay() error {
	if appCtx.Relay == nil {
		return fmt.Errorf("no relay configured. use --relay or relay_url in %s", app.ConfigFilename)
	}
	return nil
}

func requireUser() error {
	if appCtx.Config.User == "" {
		return fmt.Errorf("no user name. use --username or user in %s", app.ConfigFilename)
	}
	return nil
}
