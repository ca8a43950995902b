// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported = errors.New("soap: unsupported value")
	ErrCycle       = errors.New("soap: cyclic value")
	ErrTooDeep     = errors.New("soap: value nested too deeply")
)

// SerializationError reports a value that cannot be encoded, either because
// its kind is not supported or because reading one of its properties failed.
type SerializationError struct {
	Node     string // name of the node being built
	Path     string // e.g. "args.customer.email"
	Type     string // run-time type of the value
	Value    string // string form of the value, truncated
	Property string // set when a property read failed
	Err      error
}

func (e *SerializationError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("soap: cannot read property %q of %s at %s: %v", e.Property, e.Type, e.Path, e.Err)
	}
	return fmt.Sprintf("soap: cannot encode %s as %q at %s: %s=%s", e.Type, e.Node, e.Path, e.Node, e.Value)
}

func (e *SerializationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// StructuralError reports a cyclic or pathologically deep input.
type StructuralError struct {
	Node  string
	Path  string
	Depth int
	Err   error // ErrCycle or ErrTooDeep
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("soap: %v at %s (node %q, depth %d)", e.Err, e.Path, e.Node, e.Depth)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// Fault is a SOAP fault returned by the remote peer.
type Fault struct {
	Code   string
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

const maxValueText = 64

func truncate(s string) string {
	if len(s) <= maxValueText {
		return s
	}
	return s[:maxValueText] + "..."
}
