// Package render formats layer chains for people (indented, optionally
// coloured text and hex dumps) and for tools (YAML).
package render

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktcraft/internal/core/layer"
)

// Format selects an output representation.
type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatHex  Format = "hex"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatYAML, FormatHex:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (must be text, yaml or hex)", s)
}

// Renderer writes chains in one format.
type Renderer struct {
	format Format
	header *color.Color
	key    *color.Color
}

// New returns a Renderer. Colour escapes are only emitted when colored is
// true and the format is text.
func New(format Format, colored bool) *Renderer {
	r := &Renderer{
		format: format,
		header: color.New(color.FgCyan, color.Bold),
		key:    color.New(color.FgYellow),
	}
	if colored {
		r.header.EnableColor()
		r.key.EnableColor()
	} else {
		r.header.DisableColor()
		r.key.DisableColor()
	}
	return r
}

// Chain writes l. frame is the serialized or captured bytes of l and is
// only used by the hex format; it may be nil otherwise.
func (r *Renderer) Chain(w io.Writer, l layer.Layer, frame []byte) error {
	switch r.format {
	case FormatYAML:
		return YAML(w, l)
	case FormatHex:
		return HexDump(w, frame)
	default:
		return r.Text(w, l)
	}
}

// Text writes one "### Kind ###" block per layer, each field on its own
// line, nested layers indented one space further.
func (r *Renderer) Text(w io.Writer, l layer.Layer) error {
	indent := 0
	for n := layer.Describe(l); n != nil; n = n.Payload {
		pad := strings.Repeat(" ", indent)
		if _, err := fmt.Fprintf(w, "%s%s\n", pad, r.header.Sprintf("### %s ###", n.Name)); err != nil {
			return err
		}
		for _, f := range n.Fields {
			if _, err := fmt.Fprintf(w, "%s %s: %s\n", pad, r.key.Sprint(f.Name), f.Value); err != nil {
				return err
			}
		}
		indent++
	}
	return nil
}

// YAML writes the described chain as a YAML document.
func YAML(w io.Writer, l layer.Layer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(layer.Describe(l)); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// HexDump writes b in the canonical offset/hex/ASCII layout.
func HexDump(w io.Writer, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := io.WriteString(w, hex.Dump(b))
	return err
}
