package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"securechat/internal/logging"
	"securechat/internal/relay"
)

func main() {
	var (
		addr      string
		logLevel  string
		logFormat string
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "In-memory SecureChat relay for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Configure(logLevel, logFormat, os.Stderr); err != nil {
				return err
			}
			log := logging.For("relay")

			srv := &http.Server{
				Addr:              addr,
				Handler:           relay.NewServer().Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdown)
			}()

			log.WithField("addr", addr).Info("relay listening")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
