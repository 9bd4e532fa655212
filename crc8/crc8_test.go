// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package crc8

import (
	"math/rand"
	"testing"
)

func TestChecksum(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: []byte{0x00}, result: 0x00},
		{bytes: []byte{0x01}, result: 0x5e},
		{bytes: []byte{0x02}, result: 0xbc},
		// Identifier example from the app note AN27.
		{bytes: []byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00}, result: 0xa2},
	}
	for _, test := range tests {
		res := Checksum(test.bytes)
		if res != test.result {
			t.Errorf("Checksum(%#v)!=%#x received %#x", test.bytes, test.result, res)
		}
	}
}

func TestCheck(t *testing.T) {
	rom := []byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00}
	rom = append(rom, Checksum(rom))
	if !Check(rom) {
		t.Fatalf("Check(%#v) = false, want true", rom)
	}
	// Any single flipped bit must be caught.
	for i := range rom {
		for bit := uint(0); bit < 8; bit++ {
			bad := make([]byte, len(rom))
			copy(bad, rom)
			bad[i] ^= 1 << bit
			if Check(bad) {
				t.Errorf("Check accepted byte %d with bit %d flipped", i, bit)
			}
		}
	}
}

func TestCheckRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 64; n++ {
		p := make([]byte, 1+rng.Intn(16))
		rng.Read(p)
		p = append(p, Checksum(p))
		if !Check(p) {
			t.Fatalf("Check rejected %#v with its own checksum", p)
		}
		p[rng.Intn(len(p))] ^= 1 << uint(rng.Intn(8))
		if Check(p) {
			t.Fatalf("Check accepted %#v after a bit flip", p)
		}
	}
}

func TestUpdateIncremental(t *testing.T) {
	data := []byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00}
	whole := Checksum(data)
	split := Update(Update(0, data[:3]), data[3:])
	if whole != split {
		t.Fatalf("incremental Update mismatch: %#x != %#x", split, whole)
	}
}
