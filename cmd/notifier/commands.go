package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"upi-gateway/internal/adapter"
	"upi-gateway/pkg/client"
)

const defaultServer = "http://localhost:9999"

type options struct {
	configPath string
	server     string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Forward payment-app notifications to the UPI gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", adapter.DefaultKeyStorePath(), "config file holding the merchant key")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "gateway base URL (default: stored value or "+defaultServer+")")

	root.AddCommand(newLoginCmd(opts), newLogoutCmd(opts), newListenCmd(opts))
	return root
}

func newLoginCmd(opts *options) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the merchant key used to confirm payments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			store := adapter.NewKeyStore(opts.configPath)
			if err := store.Save(key, opts.server); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key saved to %s\n", store.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "merchant key returned by createKey")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored merchant key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := adapter.NewKeyStore(opts.configPath).Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Key removed")
			return nil
		},
	}
}

func newListenCmd(opts *options) *cobra.Command {
	var (
		file   string
		source string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Read newline-delimited JSON notifications and forward payments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := adapter.NewKeyStore(opts.configPath)

			server := opts.server
			if server == "" {
				stored, err := store.Server()
				if err != nil {
					return err
				}
				server = stored
			}
			if server == "" {
				server = defaultServer
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("could not open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fwd := adapter.NewForwarder(client.New(server, ""), store, source)
			log.Printf("[INFO] Forwarding %s notifications to %s", orDefault(source, adapter.DefaultSource), server)

			stats, err := fwd.Listen(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forwarded=%d already_settled=%d rejected=%d ignored=%d no_key=%d\n",
				stats[adapter.Forwarded], stats[adapter.AlreadySettled], stats[adapter.Rejected],
				stats[adapter.Ignored], stats[adapter.NoKey])
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read notifications from a file instead of stdin")
	cmd.Flags().StringVar(&source, "source", "", "package name of the trusted payment app")
	return cmd
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
