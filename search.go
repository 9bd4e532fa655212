// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"encoding/binary"

	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/onewiregpio/crc8"
)

// DeviceFunc is invoked by Enumerate once per discovered device with the
// device's CRC-validated address.
//
// The callback runs in the middle of the active search: it must not block
// and must not issue bus operations.
type DeviceFunc func(addr onewire.Address)

// frame is a pending 1-branch of the search tree: a bit position where
// devices disagreed, plus the identifier prefix committed up to it.
type frame struct {
	depth int
	rom   [8]byte
}

// Enumerate walks the 64-bit address tree and invokes f once per device
// found, returning how many devices passed identifier validation. With
// alarmOnly only devices currently signalling an alarm participate.
//
// All still-participating devices answer each address bit and its
// complement together on the open-drain line. Reading 0,1 or 1,0 means
// the participants agree on the bit; 1,1 means nobody carries the prefix;
// 0,0 means they disagree. A disagreement forks the walk: the 0-branch is
// taken immediately and the 1-branch is queued with the prefix needed to
// come back to it. Coming back means resetting the bus, repeating the
// search command and replaying the committed prefix bit by bit, which
// re-selects the same device subset, then committing 1 at the fork.
// Traffic is therefore linear in the number of devices, not in the size
// of the tree.
//
// An empty bus yields zero discoveries and a nil error. Devices vanishing
// mid-pass abort the pass: everything reported so far stays reported and
// an error is returned alongside the count. A candidate whose CRC does
// not validate is dropped silently.
//
// A nil f is a no-op and touches nothing on the bus.
func (b *Bus) Enumerate(alarmOnly bool, f DeviceFunc) (int, error) {
	if f == nil {
		return 0, nil
	}
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	b.releasePullup()

	cmd := byte(cmdSearchROM)
	if alarmOnly {
		cmd = cmdAlarmSearch
	}

	if present, err := b.reset(); err != nil {
		return 0, err
	} else if !present {
		return 0, nil
	}
	b.writeByte(cmd, false)

	// Pending 1-branches, deepest last. Popping in that order keeps the
	// 0-before-1 visiting order of the address tree. The stack never
	// exceeds the address width.
	var pending []frame
	var rom [8]byte
	count := 0
	depth := 0

	for {
		// Walk downwards from depth, committing one bit per level.
		dead := false
		for depth < 64 {
			bit := b.readBit()
			complement := b.readBit()
			if b.err != nil {
				return count, b.err
			}
			if bit != 0 && complement != 0 {
				// No participant carries this prefix.
				dead = true
				break
			}
			if bit == 0 && complement == 0 {
				pending = append(pending, frame{depth: depth, rom: rom})
			}
			setRomBit(&rom, depth, bit)
			b.writeBit(bit, false)
			depth++
		}
		if !dead {
			// A full identifier was assembled.
			if crc8.Check(rom[:]) {
				f(onewire.Address(binary.LittleEndian.Uint64(rom[:])))
				count++
			}
		}
		if b.err != nil {
			return count, b.err
		}
		if len(pending) == 0 {
			return count, nil
		}

		// Resume the deepest fork on its 1-branch. The devices only
		// reveal bits inside a live search pass, so the bus is
		// resynchronized first: reset, same search command, then the
		// committed prefix replayed with each level's bit pair read and
		// discarded.
		fr := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		rom = fr.rom
		if present, err := b.reset(); err != nil {
			return count, err
		} else if !present {
			return count, busError("onewiregpio: devices vanished during search")
		}
		b.writeByte(cmd, false)
		for i := 0; i < fr.depth; i++ {
			b.readBit()
			b.readBit()
			b.writeBit(romBit(&rom, i), false)
		}
		// The pair at the fork itself is already known to disagree.
		b.readBit()
		b.readBit()
		setRomBit(&rom, fr.depth, 1)
		b.writeBit(1, false)
		if b.err != nil {
			return count, b.err
		}
		depth = fr.depth + 1
	}
}

// SearchTriplet performs a single bit search triplet on the bus: it reads
// an address bit and its complement, chooses the branch to take and
// writes it back. The direction parameter decides disagreements.
//
// SearchTriplet exists to satisfy onewire.BusSearcher; use Search or
// Enumerate instead.
func (b *Bus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	b.Lock()
	defer b.Unlock()
	if b.err != nil {
		return onewire.TripletResult{}, b.err
	}
	b.releasePullup()

	bit := b.readBit()
	complement := b.readBit()
	var taken byte
	switch {
	case bit != 0 && complement != 0:
		// No device answered; the written bit is a don't-care.
		taken = 1
	case bit == 0 && complement == 0:
		taken = 0
		if direction != 0 {
			taken = 1
		}
	case bit == 0:
		taken = 0
	default:
		taken = 1
	}
	b.writeBit(taken, false)
	tr := onewire.TripletResult{
		GotZero: bit == 0,
		GotOne:  complement == 0,
		Taken:   taken,
	}
	return tr, b.err
}

func romBit(rom *[8]byte, i int) byte {
	return rom[i/8] >> (uint(i) % 8) & 1
}

func setRomBit(rom *[8]byte, i int, bit byte) {
	if bit != 0 {
		rom[i/8] |= 1 << (uint(i) % 8)
	} else {
		rom[i/8] &^= 1 << (uint(i) % 8)
	}
}
