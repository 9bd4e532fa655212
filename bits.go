// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Standard-speed timeslot parameters. A write slot is 65µs, 70µs with its
// recovery; a read slot samples 15µs in.
const (
	tResetLow       = 480 * time.Microsecond // reset pulse low hold
	tPresenceWait   = 60 * time.Microsecond  // release to presence sample
	tResetRecovery  = 420 * time.Microsecond // recovery after the presence window
	tIdlePoll       = 5 * time.Microsecond   // poll period of the pre-reset idle wait
	tWrite1Low      = 10 * time.Microsecond  // write-1 low pulse, must stay under 15µs
	tWrite1High     = 55 * time.Microsecond  // write-1 driven-high remainder of the slot
	tWrite0Low      = 65 * time.Microsecond  // write-0 low hold, the whole slot
	tWrite0Recovery = 5 * time.Microsecond   // write-0 parasitic charging interval
	tReadLow        = 5 * time.Microsecond   // read slot initiation pulse
	tReadWait       = 10 * time.Microsecond  // wait for the device to assert the line
	tReadTail       = 55 * time.Microsecond  // remainder of the read slot after sampling
)

// Reset issues a reset pulse and reports whether at least one device
// answered with a presence pulse.
//
// A line that never floats high within the idle-wait budget is reported
// through an error implementing onewire.ShortedBusError.
func (b *Bus) Reset() (bool, error) {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return false, b.err
	}
	b.releasePullup()
	return b.reset()
}

// WriteBit transmits a single bit, any nonzero value as a 1.
func (b *Bus) WriteBit(bit byte) error {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return b.err
	}
	b.releasePullup()
	b.writeBit(bit, false)
	return b.err
}

// ReadBit runs a single read timeslot and returns the sampled bit.
func (b *Bus) ReadBit() (byte, error) {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.releasePullup()
	return b.readBit(), b.err
}

// WriteByte transmits one byte, least significant bit first.
//
// With pullup the line is left strongly pulled high after the final bit,
// through the dedicated pullup pin when configured or by driving the data
// pin, until the next bus operation or DisablePullup.
func (b *Bus) WriteByte(v byte, pullup bool) error {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return b.err
	}
	b.releasePullup()
	b.writeByte(v, pullup)
	return b.err
}

// ReadByte reads one byte, least significant bit first.
func (b *Bus) ReadByte() (byte, error) {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.releasePullup()
	return b.readByte(), b.err
}

// WriteBytes transmits the bytes in order.
//
// The pullup request is forwarded to every byte, not only the last one.
// Between the bytes of such a write the freshly engaged pullup fights the
// low pulse opening the next slot, so multi-byte writes with pullup are
// only for callers that know their hardware tolerates it; prefer Tx or a
// final single-byte WriteByte.
func (b *Bus) WriteBytes(p []byte, pullup bool) error {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return b.err
	}
	b.releasePullup()
	b.writeBytes(p, pullup)
	return b.err
}

// ReadBytes fills p with bytes read from the bus.
func (b *Bus) ReadBytes(p []byte) error {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return b.err
	}
	b.releasePullup()
	b.readBytes(p)
	return b.err
}

// DisablePullup releases the strong pullup left engaged by a write.
//
// It must happen before any device pulls the line low again; with
// dedicated pullup hardware, both ends driving the line at once can
// damage the device. Every bus operation also releases the pullup before
// touching the line, so a DisablePullup omitted by the caller is covered
// at the latest by the next operation.
func (b *Bus) DisablePullup() error {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return b.err
	}
	b.releasePullup()
	return b.err
}

//

// reset drives the reset and presence-detection sequence. The line must
// read high before the pulse starts; the bounded poll keeps a shorted bus
// from hanging the caller.
func (b *Bus) reset() (bool, error) {
	b.pinFloat()
	idle := false
	for i := 0; i < b.idleRetries; i++ {
		b.delay(tIdlePoll)
		if b.q.Read() == gpio.High {
			idle = true
			break
		}
	}
	if b.err != nil {
		return false, b.err
	}
	if !idle {
		return false, shortedBusError("onewiregpio: bus is held low")
	}

	b.cs.Enter()
	b.pinLow()
	b.cs.Exit()
	b.delay(tResetLow)

	// Release the line and sample the presence pulse. Devices assert
	// 15µs to 60µs after the release.
	b.cs.Enter()
	b.pinFloat()
	b.delay(tPresenceWait)
	present := b.q.Read() == gpio.Low
	b.cs.Exit()
	b.delay(tResetRecovery)

	if b.err != nil {
		return false, b.err
	}
	return present, nil
}

// writeBit runs one write slot. With hold the critical section is left
// open for the caller to chain the strong pullup without a gap a device
// could mistake for a new slot; the caller owns the matching Exit.
func (b *Bus) writeBit(v byte, hold bool) {
	b.cs.Enter()
	if v != 0 {
		// Write-1: a short low pulse, then the line driven high for the
		// remainder of the slot.
		b.pinLow()
		b.delay(tWrite1Low)
		b.pinHigh()
		b.delay(tWrite1High)
	} else {
		// Write-0: the line held low for the whole slot, then a short
		// charging interval for parasitic devices.
		b.pinLow()
		b.delay(tWrite0Low)
		b.pinHigh()
		b.delay(tWrite0Recovery)
	}
	b.pinFloat()
	if !hold {
		b.cs.Exit()
	}
}

// readBit runs one read slot and returns the sampled bit.
func (b *Bus) readBit() byte {
	b.cs.Enter()
	b.pinLow()
	b.delay(tReadLow)
	b.pinFloat()
	b.delay(tReadWait)
	bit := byte(0)
	if b.q.Read() == gpio.High {
		bit = 1
	}
	b.cs.Exit()
	b.delay(tReadTail)
	return bit
}

func (b *Bus) writeByte(v byte, pullup bool) {
	for mask := byte(0x01); mask != 0; mask <<= 1 {
		b.writeBit(v&mask, pullup && mask == 0x80)
	}
	if pullup {
		// The final bit left its critical section open; engage the
		// pullup and close it.
		if b.pullupPin != nil {
			b.ppOut(gpio.High)
		} else {
			b.pinHigh()
		}
		b.pullupOn = true
		b.cs.Exit()
	}
}

func (b *Bus) readByte() byte {
	var v byte
	for i := uint(0); i < 8; i++ {
		v |= b.readBit() << i
	}
	return v
}

func (b *Bus) writeBytes(p []byte, pullup bool) {
	for _, v := range p {
		b.writeByte(v, pullup)
	}
}

func (b *Bus) readBytes(p []byte) {
	for i := range p {
		p[i] = b.readByte()
	}
}

// holdPullup engages the strong pullup outside a write slot, after the
// final byte of a read.
func (b *Bus) holdPullup() {
	if b.pullupPin != nil {
		b.ppOut(gpio.High)
	} else {
		b.pinHigh()
	}
	b.pullupOn = true
}

// releasePullup restores the idle floating line after a write left it
// strongly pulled high. Every bus operation calls it before driving the
// line, covering callers that skipped DisablePullup.
func (b *Bus) releasePullup() {
	if !b.pullupOn {
		return
	}
	if b.pullupPin != nil {
		b.ppOut(gpio.Low)
	}
	b.pinFloat()
	b.pullupOn = false
}

// pinLow, pinHigh, pinFloat and ppOut persist the first pin fault; all
// bus operations become no-ops afterwards and report the error.
func (b *Bus) pinLow() {
	if b.err == nil {
		b.err = b.q.Out(gpio.Low)
	}
}

func (b *Bus) pinHigh() {
	if b.err == nil {
		b.err = b.q.Out(gpio.High)
	}
}

func (b *Bus) pinFloat() {
	if b.err == nil {
		b.err = b.q.In(gpio.PullUp, gpio.NoEdge)
	}
}

func (b *Bus) ppOut(l gpio.Level) {
	if b.err == nil {
		b.err = b.pullupPin.Out(l)
	}
}
