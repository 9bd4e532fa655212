// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owtrace

import (
	"errors"
	"io"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

// PNGOpts represents the options available for the PNG renderer.
type PNGOpts struct {
	// Width and Height of the image in pixels. Default 1024x200.
	Width  int
	Height int

	_ struct{}
}

// RenderPNG draws the trace as a logic-analyzer style waveform and
// encodes it as a PNG.
//
// The line level is drawn as a step function: releases count as high
// through the pull-up, and a sample showing the line low while the master
// is not driving exposes a device holding it down. Samples are marked as
// dots, green for high and red for low.
func RenderPNG(w io.Writer, t *Trace, opts *PNGOpts) error {
	if len(t.Events) == 0 {
		return errors.New("owtrace: empty trace")
	}
	width, height := 1024, 200
	if opts != nil {
		if opts.Width > 0 {
			width = opts.Width
		}
		if opts.Height > 0 {
			height = opts.Height
		}
	}

	dur := t.Duration()
	if dur <= 0 {
		dur = time.Microsecond
	}
	yHigh := 0.25 * float64(height)
	yLow := 0.75 * float64(height)
	x := func(at time.Duration) float64 {
		return float64(at) / float64(dur) * float64(width-40)
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	face := truetype.NewFace(font, &truetype.Options{Size: 12})
	dc.SetFontFace(face)

	// The reconstructed line level over time.
	dc.SetRGB(0.1, 0.1, 0.5)
	dc.SetLineWidth(2)
	prevX, prevY := 0.0, yHigh
	for _, e := range t.Events {
		y := prevY
		switch e.Kind {
		case DriveLow:
			y = yLow
		case DriveHigh, Release:
			y = yHigh
		case Sample:
			y = yHigh
			if !e.Level {
				y = yLow
			}
		}
		ex := x(e.At)
		dc.DrawLine(prevX, prevY, ex, prevY)
		if y != prevY {
			dc.DrawLine(ex, prevY, ex, y)
		}
		prevX, prevY = ex, y
	}
	dc.DrawLine(prevX, prevY, x(dur), prevY)
	dc.Stroke()

	// Sample markers on top of the waveform.
	for _, e := range t.Events {
		if e.Kind != Sample {
			continue
		}
		if e.Level {
			dc.SetRGB(0, 0.7, 0)
			dc.DrawCircle(x(e.At), yHigh, 3)
		} else {
			dc.SetRGB(0.8, 0, 0)
			dc.DrawCircle(x(e.At), yLow, 3)
		}
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	label := t.Pin + " " + dur.Round(time.Microsecond).String()
	tw, th := dc.MeasureString(label)
	dc.DrawString(label, float64(width)-tw-4, th+4)

	return dc.EncodePNG(w)
}
