package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matzehuels/overclock/pkg/render"
)

// Format constants for output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatDOT   = "dot"
	FormatSVG   = "svg"
	FormatPNG   = "png"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatTable: true,
	FormatJSON:  true,
	FormatDOT:   true,
	FormatSVG:   true,
	FormatPNG:   true,
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return fmt.Errorf("invalid format: %q (must be one of: table, json, dot, svg, png)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// Render generates output artifacts of a result in the requested formats.
func Render(ctx context.Context, res *Result, formats []string) (map[string][]byte, error) {
	if err := ValidateFormats(formats); err != nil {
		return nil, err
	}
	artifacts := make(map[string][]byte, len(formats))
	var dot string
	graph := func() string {
		if dot == "" {
			dot = render.ToDOT(render.SolutionGraph(res.Power.Solved), render.GraphOptions{Title: res.Name, Ranked: true})
		}
		return dot
	}

	for _, format := range formats {
		var data []byte
		var err error

		switch format {
		case FormatTable:
			data = []byte(render.Table(res.Power, res.Pinned.Rates, render.TableOptions{ShardMode: res.Mode, Plain: true}))
		case FormatJSON:
			data, err = json.MarshalIndent(res, "", "  ")
		case FormatDOT:
			data = []byte(graph())
		case FormatSVG:
			data, err = render.RenderSVG(ctx, graph())
		case FormatPNG:
			data, err = render.RenderPNG(ctx, graph())
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}
