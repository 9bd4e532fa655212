// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpiotest simulates a 1-wire bus at the GPIO level for
// testing bus masters without hardware.
//
// Pin implements gpio.PinIO over a virtual clock that only advances
// through its Delay method; wire Delay into the master's delay hook and
// the whole protocol runs deterministically and instantly. Slave
// emulators attached to the pin decode the master's edges the way real
// silicon does: by the duration of the low holds.
package onewiregpiotest

import (
	"encoding/binary"
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/onewiregpio/crc8"
)

// Slot decoding thresholds and device response timings. They accept any
// plausible master timing rather than one exact profile.
const (
	resetMin     = 400 * time.Microsecond // low holds at least this long are reset pulses
	oneMax       = 20 * time.Microsecond  // shorter low holds decode as 1, longer as 0
	readInitMax  = 7 * time.Microsecond   // read-slot initiation pulses, carrying no data
	presenceLag  = 20 * time.Microsecond  // presence pulse delay after the reset release
	presenceHold = 120 * time.Microsecond // presence pulse width
	zeroHold     = 25 * time.Microsecond  // how long a transmitted 0 keeps the line low
)

// Slave is a device emulator attached to a Pin.
//
// The Pin calls Fall and Rise as the master edges the line, and Drives to
// resolve the open-drain line level.
type Slave interface {
	// Fall is called when the master starts driving the line low.
	Fall(now time.Duration)
	// Rise is called when the master stops driving the line low, with how
	// long the low hold lasted.
	Rise(now, held time.Duration)
	// Drives reports whether the emulator is pulling the line low at now.
	Drives(now time.Duration) bool
}

// Transition is one master-driven level change on the line.
type Transition struct {
	At  time.Duration // virtual time of the change
	Low bool          // true when the master started driving low
}

// Pin is a simulated 1-wire data line implementing gpio.PinIO.
//
// The line is open drain: it reads low while the master drives it low or
// any attached Slave pulls it down, and rests high otherwise. Master
// activity is recorded in Transitions and, decoded slot by slot, in
// Writes. Not safe for concurrent use; the bus master serializes its
// operations already.
type Pin struct {
	N      string  // pin name
	Slaves []Slave // attached device emulators
	Stuck  bool    // short the line permanently low

	// Transitions records every master-driven edge.
	Transitions []Transition
	// Writes collects the bytes the master transmitted, assembled from
	// the decoded write slots, least significant bit first. A reset drops
	// a partially assembled byte.
	Writes []byte

	now        time.Duration
	drivingLow bool
	driving    bool // pin in output mode
	outLevel   gpio.Level
	fallAt     time.Duration
	pull       gpio.Pull
	cur        byte
	nbits      int
}

// Delay advances the virtual clock. Wire it into the bus master's delay
// hook.
func (p *Pin) Delay(d time.Duration) {
	p.now += d
}

// Now returns the current virtual time.
func (p *Pin) Now() time.Duration {
	return p.now
}

// Resets counts the reset pulses the master issued so far.
func (p *Pin) Resets() int {
	n := 0
	for i, t := range p.Transitions {
		if !t.Low && i > 0 && t.At-p.Transitions[i-1].At >= resetMin {
			n++
		}
	}
	return n
}

func (p *Pin) String() string {
	return p.Name()
}

// Halt implements conn.Resource.
func (p *Pin) Halt() error {
	return nil
}

func (p *Pin) Name() string {
	if p.N == "" {
		return "onewiregpiotest"
	}
	return p.N
}

func (p *Pin) Number() int {
	return 0
}

func (p *Pin) Function() string {
	if p.driving {
		return "Out"
	}
	return "In"
}

func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.pull = pull
	p.driving = false
	if p.drivingLow {
		p.rise()
	}
	return nil
}

func (p *Pin) Read() gpio.Level {
	if p.Stuck {
		return gpio.Low
	}
	if p.drivingLow {
		return gpio.Low
	}
	for _, s := range p.Slaves {
		if s.Drives(p.now) {
			return gpio.Low
		}
	}
	if p.driving {
		return p.outLevel
	}
	// Idle line, resting high through the pull-up.
	return gpio.High
}

func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	return false
}

func (p *Pin) Pull() gpio.Pull {
	return p.pull
}

func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.Float
}

func (p *Pin) Out(l gpio.Level) error {
	p.driving = true
	p.outLevel = l
	if l == gpio.Low {
		if !p.drivingLow {
			p.fall()
		}
	} else if p.drivingLow {
		p.rise()
	}
	return nil
}

func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("onewiregpiotest: pwm is not supported")
}

func (p *Pin) fall() {
	p.drivingLow = true
	p.fallAt = p.now
	p.Transitions = append(p.Transitions, Transition{At: p.now, Low: true})
	for _, s := range p.Slaves {
		s.Fall(p.now)
	}
}

func (p *Pin) rise() {
	p.drivingLow = false
	held := p.now - p.fallAt
	p.Transitions = append(p.Transitions, Transition{At: p.now, Low: false})
	p.decode(held)
	for _, s := range p.Slaves {
		s.Rise(p.now, held)
	}
}

// decode classifies a finished low hold and assembles the master's write
// slots into Writes.
func (p *Pin) decode(held time.Duration) {
	if held >= resetMin {
		p.cur, p.nbits = 0, 0
		return
	}
	if held <= readInitMax {
		// Read-slot initiation, the data flows the other way.
		return
	}
	if held < oneMax {
		p.cur |= 1 << uint(p.nbits)
	}
	p.nbits++
	if p.nbits == 8 {
		p.Writes = append(p.Writes, p.cur)
		p.cur, p.nbits = 0, 0
	}
}

var _ gpio.PinIO = &Pin{}

// Device emulator protocol phases.
const (
	phaseIdle       = iota // waiting for a reset pulse
	phaseCommand           // collecting the ROM command byte
	phaseSearchBit         // next read slot carries the address bit
	phaseSearchComp        // next read slot carries the complement
	phaseSearchDir         // next write slot carries the master's branch choice
	phaseMatch             // collecting the Match ROM identifier
	phaseFunction          // selected, collecting a function command byte
	phaseTransmit          // answering read slots from the transmit queue
	phaseDone              // out of the conversation until the next reset
)

// Device emulates one 1-wire slave.
//
// It answers presence pulses, participates in Search ROM and Alarm Search
// passes, compares Match ROM identifiers, transmits its identifier on
// Read ROM and, once selected, answers the first function command with
// the scripted Reply bytes. The zero value is unusable; populate ROM with
// a CRC-valid identifier, most conveniently from ROM().
type Device struct {
	ROM      [8]byte // identifier, family code first, trailing CRC included
	Alarming bool    // answer Alarm Search passes
	Reply    []byte  // bytes served on read slots after a function command

	phase     int
	cur       byte
	nbits     int
	matchIdx  int
	depth     int
	queue     []byte
	queueBit  int
	driveFrom time.Duration
	driveTo   time.Duration
}

// Fall implements Slave.
func (d *Device) Fall(now time.Duration) {
	switch d.phase {
	case phaseSearchBit:
		if d.romBit(d.depth) == 0 {
			d.drive(now, now+zeroHold)
		}
	case phaseSearchComp:
		if d.romBit(d.depth) != 0 {
			d.drive(now, now+zeroHold)
		}
	case phaseTransmit:
		if d.queueBit < 8*len(d.queue) && d.queue[d.queueBit/8]&(1<<uint(d.queueBit%8)) == 0 {
			d.drive(now, now+zeroHold)
		}
	}
}

// Rise implements Slave.
func (d *Device) Rise(now, held time.Duration) {
	if held >= resetMin {
		// Reset pulse: assert presence and wait for the command byte.
		d.phase = phaseCommand
		d.cur, d.nbits = 0, 0
		d.depth = 0
		d.drive(now+presenceLag, now+presenceLag+presenceHold)
		return
	}
	switch d.phase {
	case phaseCommand:
		if d.collect(held) {
			d.dispatch(d.cur)
		}
	case phaseSearchBit:
		d.phase = phaseSearchComp
	case phaseSearchComp:
		d.phase = phaseSearchDir
	case phaseSearchDir:
		dir := byte(0)
		if held < oneMax {
			dir = 1
		}
		if dir != d.romBit(d.depth) {
			// The master took the other branch.
			d.phase = phaseDone
			return
		}
		d.depth++
		if d.depth == 64 {
			d.phase = phaseDone
		} else {
			d.phase = phaseSearchBit
		}
	case phaseMatch:
		if !d.collect(held) {
			return
		}
		if d.cur != d.ROM[d.matchIdx] {
			d.phase = phaseDone
			return
		}
		d.matchIdx++
		d.cur, d.nbits = 0, 0
		if d.matchIdx == 8 {
			d.phase = phaseFunction
		}
	case phaseFunction:
		if !d.collect(held) {
			return
		}
		if len(d.Reply) != 0 {
			d.queue = d.Reply
			d.queueBit = 0
			d.phase = phaseTransmit
		} else {
			d.phase = phaseDone
		}
	case phaseTransmit:
		if d.queueBit < 8*len(d.queue) {
			d.queueBit++
		}
	}
}

// Drives implements Slave.
func (d *Device) Drives(now time.Duration) bool {
	return now >= d.driveFrom && now < d.driveTo
}

// collect shifts one decoded write-slot bit into the byte being
// assembled, reporting true when it is complete.
func (d *Device) collect(held time.Duration) bool {
	if held < oneMax {
		d.cur |= 1 << uint(d.nbits)
	}
	d.nbits++
	if d.nbits < 8 {
		return false
	}
	d.nbits = 0
	return true
}

func (d *Device) dispatch(cmd byte) {
	d.cur, d.nbits = 0, 0
	switch cmd {
	case 0xf0: // Search ROM
		d.depth = 0
		d.phase = phaseSearchBit
	case 0xec: // Alarm Search
		if !d.Alarming {
			d.phase = phaseDone
			return
		}
		d.depth = 0
		d.phase = phaseSearchBit
	case 0x55: // Match ROM
		d.matchIdx = 0
		d.phase = phaseMatch
	case 0x33: // Read ROM
		d.queue = d.ROM[:]
		d.queueBit = 0
		d.phase = phaseTransmit
	case 0xcc: // Skip ROM
		d.phase = phaseFunction
	default:
		d.phase = phaseDone
	}
}

func (d *Device) drive(from, to time.Duration) {
	d.driveFrom, d.driveTo = from, to
}

func (d *Device) romBit(i int) byte {
	return d.ROM[i/8] >> (uint(i) % 8) & 1
}

var _ Slave = &Device{}

// Echo is a loopback harness: every byte the master writes is queued and
// played back, first in first out, on the master's read slots.
//
// It tells read slots from write slots by the length of the initiation
// pulse, answers presence pulses so transactions against it succeed, and
// drops the backlog on reset.
type Echo struct {
	cur       byte
	nbits     int
	queue     []byte
	queueBit  int
	driveFrom time.Duration
	driveTo   time.Duration
}

// Fall implements Slave.
//
// Whether this low hold turns out to be a read slot is only known at the
// release, so the pending bit is driven speculatively. The master never
// samples during its own write slots, so the early drive is harmless
// there and the bit stays queued.
func (e *Echo) Fall(now time.Duration) {
	if len(e.queue) != 0 && e.queue[0]&(1<<uint(e.queueBit)) == 0 {
		e.driveFrom, e.driveTo = now, now+zeroHold
	}
}

// Rise implements Slave.
func (e *Echo) Rise(now, held time.Duration) {
	if held >= resetMin {
		e.cur, e.nbits = 0, 0
		e.queue, e.queueBit = nil, 0
		e.driveFrom, e.driveTo = now+presenceLag, now+presenceLag+presenceHold
		return
	}
	if held <= readInitMax {
		// Read slot, one queued bit was served.
		if len(e.queue) == 0 {
			return
		}
		if e.queueBit++; e.queueBit == 8 {
			e.queue = e.queue[1:]
			e.queueBit = 0
		}
		return
	}
	if held < oneMax {
		e.cur |= 1 << uint(e.nbits)
	}
	if e.nbits++; e.nbits == 8 {
		e.queue = append(e.queue, e.cur)
		e.cur, e.nbits = 0, 0
	}
}

// Drives implements Slave.
func (e *Echo) Drives(now time.Duration) bool {
	return now >= e.driveFrom && now < e.driveTo
}

var _ Slave = &Echo{}

// ROM returns a valid identifier for the given family code and 48-bit
// serial number, trailing CRC included.
func ROM(family byte, serial uint64) [8]byte {
	var rom [8]byte
	rom[0] = family
	for i := 1; i < 7; i++ {
		rom[i] = byte(serial >> (8 * uint(i-1)))
	}
	rom[7] = crc8.Checksum(rom[:7])
	return rom
}

// Addr returns the onewire.Address form of ROM(family, serial).
func Addr(family byte, serial uint64) onewire.Address {
	rom := ROM(family, serial)
	return onewire.Address(binary.LittleEndian.Uint64(rom[:]))
}
