// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio_test

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/onewiregpio"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// The data line, with a 4.7kΩ resistor to 3.3V.
	q := gpioreg.ByName("GPIO4")
	if q == nil {
		log.Fatal("no GPIO4 pin")
	}

	bus, err := onewiregpio.New(q, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	// Enumerate the devices on the bus.
	addrs, err := bus.Search(false)
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range addrs {
		fmt.Printf("device %#016x (family %#02x)\n", uint64(a), byte(a))
	}
}
