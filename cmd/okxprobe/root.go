package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"okxrest/internal/secrets"
	"okxrest/pkg/core"
)

type options struct {
	configFile string
	keyring    bool
	service    string
	sandbox    bool
	insecure   bool
	instrument string
	timeout    time.Duration
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "okxprobe",
		Short: "Check connectivity and credentials against the OKX v5 REST API",
		Long: `okxprobe loads credentials from the environment (OKX_API_KEY,
OKX_SECRET_KEY, OKX_PASSPHRASE, SANDBOX_MODE), an optional YAML file or the
system keyring, then probes /api/v5/public/time and prints latency and clock
skew, followed by a ticker and the account balance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			return runProbe(ctx, cmd.OutOrStdout(), cfg, newLogger(cmd.ErrOrStderr(), opts.verbose), opts.instrument)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.service, "keyring-service", secrets.DefaultService, "Keyring service name")
	cmd.Flags().BoolVar(&opts.keyring, "keyring", false, "Read credentials from the system keyring")
	cmd.Flags().BoolVar(&opts.sandbox, "sandbox", false, "Use the sandbox domain")
	cmd.Flags().BoolVar(&opts.insecure, "insecure", false, "Start with TLS certificate verification disabled")
	cmd.Flags().StringVar(&opts.instrument, "instrument", "BTC-USDT", "Instrument to fetch a ticker for")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "Overall probe deadline")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log requests and retries")

	cmd.AddCommand(newCredentialsCommand(opts))

	return cmd
}

// loadConfig layers flags over the environment and config file.
func loadConfig(cmd *cobra.Command, opts *options) (*core.Config, error) {
	cfg, err := core.LoadConfig(core.LoadOptions{File: opts.configFile})
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("sandbox") {
		cfg.Sandbox = opts.sandbox
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	if opts.insecure {
		cfg.VerifyTLS = false
	}
	if opts.keyring {
		creds, err := secrets.NewStore(opts.service).Load()
		if err != nil {
			return nil, err
		}
		cfg.Credentials = creds
	}

	if cfg.Credentials == nil {
		return nil, fmt.Errorf("%w: set OKX_API_KEY, OKX_SECRET_KEY and OKX_PASSPHRASE or use --keyring", core.ErrNoCredentials)
	}

	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: w != os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
