// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owtrace

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// TermOpts represents the options available for the terminal renderer.
type TermOpts struct {
	// Width is how many terminal cells the waveform spans. Defaults to 80.
	Width int
	// Palette converts colors to ANSI escapes.
	Palette *ansi256.Palette

	_ struct{}
}

// Waveform cell colors. Samples override drive state so device answers
// stay visible at any zoom level.
var (
	termDriveHigh = color.NRGBA{0xff, 0xa0, 0x00, 0xff}
	termDriveLow  = color.NRGBA{0x00, 0x2b, 0x80, 0xff}
	termFloating  = color.NRGBA{0x50, 0x50, 0x50, 0xff}
	termSampleHi  = color.NRGBA{0x00, 0xd0, 0x00, 0xff}
	termSampleLo  = color.NRGBA{0xd0, 0x00, 0x00, 0xff}
)

// RenderTerminal writes the trace as one line of colored cells plus a
// time scale. Each cell covers an equal slice of the capture; a cell
// holding at least one sample takes the sampled level's color, otherwise
// the master's drive state at the start of the slice decides.
func RenderTerminal(w io.Writer, t *Trace, opts *TermOpts) error {
	if len(t.Events) == 0 {
		return errors.New("owtrace: empty trace")
	}
	width := 80
	p := ansi256.Default
	if opts != nil {
		if opts.Width > 0 {
			width = opts.Width
		}
		if opts.Palette != nil {
			p = opts.Palette
		}
	}

	dur := t.Duration()
	if dur <= 0 {
		dur = time.Microsecond
	}
	cell := dur / time.Duration(width)
	if cell <= 0 {
		cell = 1
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s, %d events\n", t.Pin, dur, len(t.Events))
	buf.WriteString("\033[0m")
	ev := 0
	state := termFloating
	for i := 0; i < width; i++ {
		from := time.Duration(i) * cell
		to := from + cell
		if i == width-1 {
			to = dur + 1
		}
		c := state
		sampled := false
		for ev < len(t.Events) && t.Events[ev].At < to {
			e := t.Events[ev]
			ev++
			switch e.Kind {
			case DriveLow:
				state = termDriveLow
			case DriveHigh:
				state = termDriveHigh
			case Release:
				state = termFloating
			case Sample:
				sampled = true
				if e.Level {
					c = termSampleHi
				} else {
					c = termSampleLo
				}
			}
			if !sampled {
				c = state
			}
		}
		_, _ = io.WriteString(&buf, p.Block(c))
	}
	buf.WriteString("\033[0m\n")
	fmt.Fprintf(&buf, "0%*s\n", width-1, dur.Round(time.Microsecond))
	_, err := buf.WriteTo(w)
	return err
}

// PrintTerminal renders the trace to stdout with ANSI colors, through the
// platform's coloring shim.
func PrintTerminal(t *Trace, opts *TermOpts) error {
	return RenderTerminal(colorable.NewColorableStdout(), t, opts)
}
