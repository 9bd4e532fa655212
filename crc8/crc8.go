// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package crc8 implements the CRC-8 used by Dallas/Maxim 1-wire devices in
// ROM identifiers and scratchpad memory.
//
// The polynomial is x⁸+x⁵+x⁴+1 processed least-significant-bit first, so
// the update constant is the reflected form 0x8c.
package crc8

// Update returns the CRC state after feeding p into crc.
func Update(crc byte, p []byte) byte {
	for _, val := range p {
		crc ^= val
		for i := 0; i < 8; i++ {
			if (crc & 0x01) != 0 {
				crc = (crc >> 1) ^ 0x8c
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Checksum returns the CRC-8 of p.
func Checksum(p []byte) byte {
	return Update(0, p)
}

// Check reports whether p, whose final byte is the received CRC, is
// intact. Feeding the CRC byte back through the update function makes a
// valid sequence reduce to zero, so no separate compare is needed.
func Check(p []byte) bool {
	return Update(0, p) == 0
}
