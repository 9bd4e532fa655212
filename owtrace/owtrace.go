// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owtrace captures the pin-level activity of a bit-banged 1-wire
// master and renders it for inspection.
//
// Wrap the data line before handing it to the bus master and every drive,
// release and sample flows into a Trace. Traces render to a colored
// terminal waveform or a PNG, and Save/Load persist them as a stream of
// CBOR values.
//
// Useful when a device answers garbage and the choice is between this and
// clamping an oscilloscope to the bus.
package owtrace

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Kind classifies one recorded pin operation.
type Kind uint8

const (
	// DriveLow is the master driving the line low.
	DriveLow Kind = iota + 1
	// DriveHigh is the master driving the line high.
	DriveHigh
	// Release is the master floating the line, leaving it to the pull-up
	// and the devices.
	Release
	// Sample is the master reading the line; Level holds the reading.
	Sample
)

func (k Kind) String() string {
	switch k {
	case DriveLow:
		return "drive-low"
	case DriveHigh:
		return "drive-high"
	case Release:
		return "release"
	case Sample:
		return "sample"
	default:
		return "unknown"
	}
}

// Event is one recorded pin operation.
type Event struct {
	At    time.Duration `cbor:"1,keyasint"`
	Kind  Kind          `cbor:"2,keyasint"`
	Level bool          `cbor:"3,keyasint,omitempty"`
}

// Trace is the captured activity of one session on one pin.
type Trace struct {
	Pin    string  `cbor:"1,keyasint"`
	Events []Event `cbor:"2,keyasint"`
}

// Duration returns the time span the trace covers.
func (t *Trace) Duration() time.Duration {
	if len(t.Events) == 0 {
		return 0
	}
	return t.Events[len(t.Events)-1].At
}

// Pin records the activity on a GPIO while forwarding every operation to
// the wrapped pin. It is transparent to the bus master driving it.
//
// Operations are recorded whether or not the underlying pin accepts them,
// so a trace also shows what a master attempted against a faulty pin.
type Pin struct {
	gpio.PinIO

	// Now tells the time for event timestamps. It defaults to the wall
	// clock, counted from the first recorded event. On a simulated bus
	// wire it to the simulator's clock.
	Now func() time.Duration

	mu     sync.Mutex
	start  time.Time
	events []Event
}

// Wrap returns a recording wrapper around p.
func Wrap(p gpio.PinIO) *Pin {
	return &Pin{PinIO: p}
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	k := DriveHigh
	if l == gpio.Low {
		k = DriveLow
	}
	p.record(Event{Kind: k})
	return p.PinIO.Out(l)
}

// In implements gpio.PinIn.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.record(Event{Kind: Release})
	return p.PinIO.In(pull, edge)
}

// Read implements gpio.PinIn.
func (p *Pin) Read() gpio.Level {
	l := p.PinIO.Read()
	p.record(Event{Kind: Sample, Level: l == gpio.High})
	return l
}

// Trace snapshots everything recorded so far.
func (p *Pin) Trace() *Trace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &Trace{
		Pin:    p.PinIO.Name(),
		Events: append([]Event(nil), p.events...),
	}
}

// Reset discards the events recorded so far.
func (p *Pin) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = p.events[:0]
}

func (p *Pin) record(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Now != nil {
		e.At = p.Now()
	} else {
		if p.start.IsZero() {
			p.start = time.Now()
		}
		e.At = time.Since(p.start)
	}
	p.events = append(p.events, e)
}

var _ gpio.PinIO = &Pin{}
