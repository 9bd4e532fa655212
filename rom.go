// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"encoding/binary"

	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/onewiregpio/crc8"
)

// ROM commands, the addressing layer every transaction starts with.
const (
	cmdReadROM     = 0x33 // identify the only device on the bus
	cmdMatchROM    = 0x55 // address one specific device
	cmdSkipROM     = 0xcc // address every device at once
	cmdSearchROM   = 0xf0 // enumerate device addresses
	cmdAlarmSearch = 0xec // enumerate only devices in alarm state
)

// SelectSingle addresses the only device on the bus with Read ROM (0x33).
//
// The addressed device answers with its 8 identifier bytes, which the
// caller reads next. With more than one device on the bus the replies
// collide; use ReadAddress or Search instead.
func (b *Bus) SelectSingle() error {
	b.Lock()
	defer b.Unlock()
	return b.romCommand(cmdReadROM, nil)
}

// Select addresses the device with the given identifier using Match ROM
// (0x55). Until the next reset, only that device answers.
func (b *Bus) Select(addr onewire.Address) error {
	b.Lock()
	defer b.Unlock()
	var rom [8]byte
	binary.LittleEndian.PutUint64(rom[:], uint64(addr))
	return b.romCommand(cmdMatchROM, rom[:])
}

// SelectAll addresses every device on the bus at once with Skip ROM
// (0xCC), typically to broadcast a command such as a temperature
// conversion.
func (b *Bus) SelectAll() error {
	b.Lock()
	defer b.Unlock()
	return b.romCommand(cmdSkipROM, nil)
}

// ReadAddress identifies the only device on the bus and validates the
// identifier CRC.
func (b *Bus) ReadAddress() (onewire.Address, error) {
	b.Lock()
	defer b.Unlock()
	if err := b.romCommand(cmdReadROM, nil); err != nil {
		return 0, err
	}
	var rom [8]byte
	b.readBytes(rom[:])
	if b.err != nil {
		return 0, b.err
	}
	if !crc8.Check(rom[:]) {
		return 0, busError("onewiregpio: invalid device identifier crc")
	}
	return onewire.Address(binary.LittleEndian.Uint64(rom[:])), nil
}

// romCommand resets the bus and transmits an addressing command plus its
// payload. Nothing is sent when no device answers presence.
func (b *Bus) romCommand(cmd byte, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.releasePullup()
	if present, err := b.reset(); err != nil {
		return err
	} else if !present {
		return busError("onewiregpio: no device present")
	}
	b.writeByte(cmd, false)
	b.writeBytes(payload, false)
	return b.err
}
