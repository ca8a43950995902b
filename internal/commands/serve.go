// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/soap"
)

// NewServeEchoCommand creates the serve-echo command
func NewServeEchoCommand(a *app) *cobra.Command {
	var (
		addr      string
		protocol  string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "serve-echo",
		Short: "Run a gateway that answers every call with its own arguments",
		Long: `Run a gateway that accepts any non-empty username, answers login with a
fixed session id and every call with its decoded arguments. Useful to check
a client setup end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mux := soap.NewEchoMux(a.logger, sessionID)
			switch protocol {
			case "http":
				return serveHTTP(ctx, addr, mux, a.logger)
			case soap.TransportFrame:
				srv, err := soap.Listen(addr, soap.WithMux(mux), soap.WithServerLogger(a.logger))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "serving frame on %s\n", srv.Addr())
				go func() {
					<-ctx.Done()
					srv.Close()
				}()
				return srv.Serve(ctx)
			}
			return fmt.Errorf("unknown protocol %q (want http or frame)", protocol)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")
	cmd.Flags().StringVar(&protocol, "protocol", "http", "http or frame")
	cmd.Flags().StringVar(&sessionID, "session", "echo-session", "session id returned by login")
	return cmd
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("serving http", zap.String("addr", lis.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
