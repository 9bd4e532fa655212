// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3/cpu"
)

// CriticalSection brackets the timing-sensitive spans of bus operations.
//
// Implementations are best effort: they reduce the odds of the host
// scheduler preempting the master in the middle of a timeslot, they do not
// provide atomicity. Every Enter the bus performs is paired with an Exit
// on all code paths.
type CriticalSection interface {
	Enter()
	Exit()
}

// NopSection is a CriticalSection that does nothing. It is the right
// choice for simulated buses, where time is virtual and jitter does not
// exist.
var NopSection CriticalSection = nopSection{}

type nopSection struct{}

func (nopSection) Enter() {}
func (nopSection) Exit()  {}

// osThreadSection pins the calling goroutine to its OS thread. The kernel
// may still deschedule the thread, but the Go runtime will no longer
// migrate or preempt the goroutine at a yield point inside a timeslot.
type osThreadSection struct{}

func (osThreadSection) Enter() { runtime.LockOSThread() }
func (osThreadSection) Exit()  { runtime.UnlockOSThread() }

// Opts contains options to pass to the constructor.
type Opts struct {
	// PullupPin, when set, drives external strong-pullup hardware, for
	// example the gate of a FET bypassing the bus resistor. It is driven
	// high to engage the pullup after a write that requests it and low to
	// release it. When nil the data pin itself is driven high instead.
	PullupPin gpio.PinOut

	// IdleRetries is how many 5µs polls a reset waits for the line to
	// float high before reporting the bus shorted.
	IdleRetries int

	// Delay busy-waits for the given duration between line transitions.
	// Defaults to cpu.Nanospin. Tests substitute a simulated clock.
	Delay func(time.Duration)

	// Section guards the timing-sensitive spans. Defaults to pinning the
	// goroutine to its OS thread. Use NopSection on simulated buses.
	Section CriticalSection
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	IdleRetries: 200,
}

// New returns a bus master that drives a 1-wire bus by bit-banging the
// given GPIO pin.
//
// The bus object implements onewire.Bus and can be used to access devices
// on the bus. The pin is left as a floating input between operations; the
// line needs a pull-up resistor to the supply rail.
func New(q gpio.PinIO, opts *Opts) (*Bus, error) {
	if q == nil {
		return nil, errors.New("onewiregpio: a data pin is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	b := &Bus{
		q:           q,
		pullupPin:   opts.PullupPin,
		idleRetries: opts.IdleRetries,
		delay:       opts.Delay,
		cs:          opts.Section,
	}
	if b.idleRetries <= 0 {
		b.idleRetries = DefaultOpts.IdleRetries
	}
	if b.delay == nil {
		b.delay = cpu.Nanospin
	}
	if b.cs == nil {
		b.cs = osThreadSection{}
	}
	// Idle bus state: floating input, pulled high by the bus resistor.
	if err := b.q.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("onewiregpio: failed to configure %s: %s", q, err)
	}
	if b.pullupPin != nil {
		if err := b.pullupPin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("onewiregpio: failed to configure pullup pin %s: %s", b.pullupPin, err)
		}
	}
	return b, nil
}

// Bus is a 1-wire bus master on a GPIO pin. It implements the onewire.Bus
// interface.
//
// Bus implements a persistent error model for pin faults: if a GPIO
// operation fails, the bus places itself into an error state and
// immediately returns that error on all subsequent calls. Errors on the
// 1-wire bus itself (no device present, shorted line) are transient and
// implement the onewire.BusError interface to indicate this fact.
type Bus struct {
	sync.Mutex              // lock for the bus while an operation is in progress
	q           gpio.PinIO  // data line
	pullupPin   gpio.PinOut // optional strong-pullup driver
	idleRetries int         // reset idle-wait poll budget
	delay       func(time.Duration)
	cs          CriticalSection
	pullupOn    bool  // line still held high by a previous pullup write
	err         error // persistent error, bus will no longer operate
}

func (b *Bus) String() string {
	return fmt.Sprintf("onewiregpio{%s}", b.q)
}

// Halt implements conn.Resource.
func (b *Bus) Halt() error {
	return nil
}

// Q returns the data line of the bus.
func (b *Bus) Q() gpio.PinIO {
	return b.q
}

// Close releases the pullup, returns the data line to a floating input
// and marks the bus unusable.
func (b *Bus) Close() error {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return b.err
	}
	b.releasePullup()
	b.pinFloat()
	err := b.err
	b.err = errors.New("onewiregpio: bus is closed")
	return err
}

// Tx performs a bus transaction, sending and receiving bytes, and ending
// by pulling the bus high either weakly or strongly depending on the
// value of power.
//
// A strong pull-up is typically required to power temperature conversions
// or EEPROM writes. It stays engaged after Tx returns and is released by
// the next bus operation, or earlier by DisablePullup.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return b.err
	}
	b.releasePullup()

	if present, err := b.reset(); err != nil {
		return err
	} else if !present {
		return busError("onewiregpio: no device present")
	}
	for i, c := range w {
		// The last written byte engages the strong pullup when requested
		// and nothing is read afterwards.
		pullup := power == onewire.StrongPullup && i == len(w)-1 && len(r) == 0
		b.writeByte(c, pullup)
	}
	for i := range r {
		r[i] = b.readByte()
	}
	if power == onewire.StrongPullup && len(r) != 0 {
		b.holdPullup()
	}
	return b.err
}

// Search performs a "search" cycle on the 1-wire bus and returns the
// addresses of all devices on the bus if alarmOnly is false and of all
// devices in alarm state if alarmOnly is true.
//
// If an error occurs during the search the already-discovered devices are
// returned with the error.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	var addrs []onewire.Address
	_, err := b.Enumerate(alarmOnly, func(addr onewire.Address) {
		addrs = append(addrs, addr)
	})
	return addrs, err
}

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ onewire.BusCloser = &Bus{}
var _ onewire.BusSearcher = &Bus{}
var _ onewire.Pins = &Bus{}
var _ conn.Resource = &Bus{}
