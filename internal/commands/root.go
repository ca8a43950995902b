// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package commands implements the soapcall command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luxfi/soap"
	"github.com/luxfi/soap/internal/config"
	"github.com/luxfi/soap/session"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   session.Store
	colored bool

	// flags
	configFile string
	endpoint   string
	transport  string
	verbose    bool
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "soapcall",
		Short: "Build and send SOAP-RPC calls",
		Long: color.CyanString(`soapcall - SOAP-RPC gateway client

Renders the envelope of a call from JSON arguments, or sends it to a
gateway reusing cached sessions.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.store != nil {
				a.store.Close()
			}
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./soapcall.yaml)")
	flags.StringVar(&a.endpoint, "endpoint", "", "gateway endpoint, overrides the config file")
	flags.StringVar(&a.transport, "transport", "", "transport: "+fmt.Sprint(soap.AvailableTransports()))
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewRenderCommand(a))
	rootCmd.AddCommand(NewCallCommand(a))
	rootCmd.AddCommand(NewLoginCommand(a))
	rootCmd.AddCommand(NewLogoutCommand(a))
	rootCmd.AddCommand(NewServeEchoCommand(a))

	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	if a.configFile != "" {
		if err := os.Setenv(config.FileEnv, a.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.endpoint != "" {
		cfg.Endpoint = a.endpoint
	}
	if a.transport != "" {
		cfg.Transport = a.transport
	}
	a.cfg = cfg

	a.logger, err = newLogger(a.verbose)
	if err != nil {
		return err
	}

	a.colored = !a.noColor
	if f, ok := cmd.OutOrStdout().(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		a.colored = false
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}

func (a *app) builderOptions() []soap.BuilderOption {
	if a.cfg.LegacyArgsStamping {
		return []soap.BuilderOption{soap.WithLegacyArgsStamping()}
	}
	return nil
}

func (a *app) sessionStore() session.Store {
	if a.store != nil {
		return a.store
	}
	switch a.cfg.Session.Backend {
	case config.BackendRedis:
		a.store = session.NewRedisStore(session.RedisConfig{
			Addr:      a.cfg.Session.RedisAddr,
			KeyPrefix: a.cfg.Session.Prefix,
		})
	case config.BackendMemory:
		a.store = session.NewMemoryStore()
	}
	return a.store
}

// open connects to the configured endpoint
func (a *app) open(ctx context.Context) (soap.Client, error) {
	if a.cfg.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured (set endpoint or SOAPCALL_ENDPOINT)")
	}
	opts := []soap.DialOption{
		soap.WithTransport(a.cfg.Transport),
		soap.WithLogger(a.logger),
		soap.WithTimeout(a.cfg.Timeout),
		soap.WithRetries(a.cfg.Retries),
		soap.WithBuilderOptions(a.builderOptions()...),
	}
	if store := a.sessionStore(); store != nil {
		opts = append(opts, soap.WithSessionStore(store, a.cfg.Session.TTL))
	}
	return soap.Dial(ctx, a.cfg.Endpoint, opts...)
}

// dial connects and logs in.
func (a *app) dial(ctx context.Context) (soap.Client, error) {
	client, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := client.Login(ctx, a.cfg.Username, a.cfg.APIKey); err != nil {
		client.Close()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return client, nil
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, a.cfg.Timeout*time.Duration(a.cfg.Retries+1))
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
