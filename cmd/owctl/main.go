// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command owctl drives a 1-wire bus bit-banged on a GPIO pin.
//
// It enumerates devices, runs raw transactions, reads DS18B20-class
// thermometers and captures pin-level waveform traces, either against
// real hardware or against a built-in bus simulator.
//
// Usage:
//
//	owctl search [--pin GPIO4] [--alarm]
//	owctl id
//	owctl temp [--addr 0x9e000000cafe011d]
//	owctl read --addr 0x9e000000cafe011d --cmd be --count 1
//	owctl trace --out capture.cbor --png wave.png
//	owctl replay capture.cbor
//
// Pass --sim with one or more --sim-device family:serial[:alarm] specs to
// run any command without hardware.
package main

import "github.com/GermanBionicSystems/onewiregpio/cmd/owctl/cmd"

func main() {
	cmd.Execute()
}
