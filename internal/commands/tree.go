// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/luxfi/soap"
)

// treePrinter prints a call tree one node per line:
//
//	args  ns2:Map
//	  item
//	    key  xsd:string  "ids"
type treePrinter struct {
	w    io.Writer
	name *color.Color
	kind *color.Color
	text *color.Color
	null *color.Color
	err  error
}

func newTreePrinter(w io.Writer, colored bool) *treePrinter {
	p := &treePrinter{
		w:    w,
		name: color.New(color.FgCyan, color.Bold),
		kind: color.New(color.FgHiBlack),
		text: color.New(color.FgGreen),
		null: color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.name, p.kind, p.text, p.null} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *treePrinter) print(root *soap.CallNode) error {
	root.Walk(func(n *soap.CallNode, depth int) bool {
		if p.err != nil {
			return false
		}
		p.line(n, depth)
		return true
	})
	return p.err
}

func (p *treePrinter) line(n *soap.CallNode, depth int) {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(p.name.Sprint(n.Namespace.Qualify(n.Name)))

	switch {
	case n.IsNil():
		b.WriteString("  " + p.null.Sprint("nil"))
	case n.ArrayType() != "":
		b.WriteString("  " + p.kind.Sprint(n.ArrayType()))
	case n.Type() != "":
		b.WriteString("  " + p.kind.Sprint(n.Type()))
	}
	if n.HasText {
		b.WriteString("  " + p.text.Sprint(fmt.Sprintf("%q", n.Text)))
	}
	b.WriteByte('\n')
	_, p.err = io.WriteString(p.w, b.String())
}
