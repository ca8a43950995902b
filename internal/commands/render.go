// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luxfi/soap"
)

// Output formats of render
const (
	FormatXML  = "xml"
	FormatJSON = "json"
	FormatTree = "tree"
)

// NewRenderCommand creates the render command
func NewRenderCommand(a *app) *cobra.Command {
	var (
		argsJSON  string
		sessionID string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "render <resourcePath>",
		Short: "Print the call envelope without sending it",
		Example: `  soapcall render customer.list --args '[{"email":"bob@example.com"}]'
  soapcall render catalog_product.info --args '42' --format tree`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg, err := parseArgs(argsJSON)
			if err != nil {
				return err
			}
			call, err := soap.NewCallBuilder(a.builderOptions()...).Call(sessionID, args[0], arg)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), call, format)
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "call arguments as JSON")
	cmd.Flags().StringVar(&sessionID, "session", "SESSION_ID", "session id placed in the call")
	cmd.Flags().StringVarP(&format, "format", "f", FormatXML, "output format: xml, json or tree")
	return cmd
}

func (a *app) render(w io.Writer, call *soap.CallNode, format string) error {
	switch format {
	case FormatXML:
		if err := soap.WriteEnvelope(w, call); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	case FormatJSON:
		data, err := soap.JSONCodec{}.Encode(call)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case FormatTree:
		return newTreePrinter(w, a.colored).print(call)
	}
	return fmt.Errorf("unknown format %q (want xml, json or tree)", format)
}

// parseArgs decodes JSON call arguments. Integral numbers become int so
// that small values are sent as xsd:int; other numbers become float64.
func parseArgs(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid --args: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid --args: trailing data after JSON value")
	}
	return fromJSON(v), nil
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = fromJSON(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = fromJSON(x[k])
		}
		return x
	}
	return v
}
