// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpio implements a 1-wire bus master by bit-banging a GPIO
// pin.
//
// No controller chip is involved: reset, presence detection, the read and
// write timeslots and the device search all run in software on any
// gpio.PinIO. The Bus type implements onewire.Bus, so device drivers
// written against periph.io/x/conn/v3/onewire work on it unchanged.
//
// The data line idles high and needs a pull-up resistor to the supply
// rail; 4.7kΩ is customary. The weak internal pull-up requested from the
// GPIO only carries short wires and a single bus-powered device.
//
// Timeslots are produced with busy-waits and are subject to host
// scheduling jitter. The timing-sensitive spans pin the goroutine to its
// OS thread, which keeps most slots intact on a multi-core host but is
// strictly best effort. A corrupted slot surfaces as a failed presence
// detection or a CRC mismatch; retrying is left to the caller.
//
// # Parasitic power
//
// A write can leave the line strongly pulled high to power parasitically
// supplied devices, either by driving the data pin or through a dedicated
// pullup pin switching external hardware (see Opts.PullupPin). The hold is
// released by the next bus operation, or earlier with DisablePullup.
//
// # Datasheet
//
// https://www.analog.com/en/resources/technical-articles/1wire-communication-through-software.html
package onewiregpio
