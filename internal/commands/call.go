// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luxfi/soap"
)

// NewCallCommand creates the call command
func NewCallCommand(a *app) *cobra.Command {
	var argsJSON string
	cmd := &cobra.Command{
		Use:   "call <resourcePath>",
		Short: "Log in (or reuse a cached session) and invoke a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg, err := parseArgs(argsJSON)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			client, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Call(ctx, args[0], arg)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "call arguments as JSON")
	return cmd
}

// NewLoginCommand creates the login command
func NewLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			client, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := client.Login(ctx, a.cfg.Username, a.cfg.APIKey)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
}

// NewLogoutCommand creates the logout command
func NewLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the cached session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			client, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.Logout(ctx)
		},
	}
}

func printResult(w io.Writer, v any) error {
	data, err := json.MarshalIndent(jsonResult(v), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// jsonResult makes maps with non-string keys printable.
func jsonResult(v any) any {
	switch x := v.(type) {
	case []soap.KeyValue:
		out := make([]any, len(x))
		for i, kv := range x {
			out[i] = map[string]any{"key": jsonResult(kv.Key), "value": jsonResult(kv.Value)}
		}
		return out
	case []any:
		for i := range x {
			x[i] = jsonResult(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = jsonResult(x[k])
		}
	}
	return v
}
