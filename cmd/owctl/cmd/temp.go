// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/onewiregpio/crc8"
)

// 1-wire family codes of the devices owctl knows by name.
const (
	familyDS18S20  = 0x10
	familyDS1822   = 0x22
	familyDS18B20  = 0x28
	familyMAX31850 = 0x3b
	familyDS28EA00 = 0x42
)

func familyName(family byte) string {
	switch family {
	case familyDS18S20:
		return "DS18S20"
	case familyDS1822:
		return "DS1822"
	case familyDS18B20:
		return "DS18B20"
	case familyMAX31850:
		return "MAX31850"
	case familyDS28EA00:
		return "DS28EA00"
	}
	return ""
}

func isThermometer(family byte) bool {
	return familyName(family) != ""
}

var tempAddr string

var tempCmd = &cobra.Command{
	Use:   "temp",
	Short: "Read every thermometer on the bus",
	Long: `Starts a conversion on all DS18B20-class thermometers at once,
powering parasitic devices through the strong pullup while they
convert, then reads each scratchpad and prints the temperature.
With --addr the search is skipped and only that device is read.`,
	RunE: runTemp,
}

func init() {
	rootCmd.AddCommand(tempCmd)
	tempCmd.Flags().StringVar(&tempAddr, "addr", "", "read a single known device instead of searching")
}

func runTemp(cmd *cobra.Command, args []string) error {
	s, err := openBus(cmd, false)
	if err != nil {
		return err
	}
	defer s.bus.Close()
	var therms []onewire.Address
	if tempAddr != "" {
		a, err := strconv.ParseUint(tempAddr, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %v", tempAddr, err)
		}
		therms = []onewire.Address{onewire.Address(a)}
	} else {
		addrs, err := s.bus.Search(false)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			if isThermometer(byte(a)) {
				therms = append(therms, a)
			}
		}
		if len(therms) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no thermometers found")
			return nil
		}
	}
	// Broadcast a convert to every device at once and keep the bus in
	// strong pullup for the worst-case 12-bit conversion time.
	if err := s.bus.Tx([]byte{0xcc, 0x44}, nil, onewire.StrongPullup); err != nil {
		return err
	}
	s.sleep(conversionTime)
	if err := s.bus.DisablePullup(); err != nil {
		return err
	}
	for _, a := range therms {
		d := &onewire.Dev{Bus: s.bus, Addr: a}
		var spad [9]byte
		if err := d.Tx([]byte{0xbe}, spad[:]); err != nil {
			return err
		}
		if !crc8.Check(spad[:]) {
			fmt.Fprintf(cmd.OutOrStdout(), "%#016x  bad scratchpad crc\n", uint64(a))
			continue
		}
		t := parseTemperature(byte(a), spad[:])
		if t == physic.ZeroCelsius+85*physic.Celsius {
			// Power-on reset value, the conversion never ran.
			fmt.Fprintf(cmd.OutOrStdout(), "%#016x  no conversion (insufficient pull-up?)\n", uint64(a))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%#016x  %s\n", uint64(a), t)
	}
	return nil
}

// conversionTime is the worst-case duration of a 12-bit conversion.
const conversionTime = 752 * time.Millisecond

func parseTemperature(family byte, spad []byte) physic.Temperature {
	rawTemp := int16(spad[1])<<8 | int16(spad[0])
	if family == familyDS18S20 && spad[7] != 0 {
		// The DS18S20 counts in half degrees. Drop the half-degree bit
		// and rebuild the fraction from the count registers to get the
		// same 1/16°C scale as the rest of the family.
		rawTemp = ((rawTemp &^ 1) << 3) + 12 - int16(spad[6])
	}
	// rawTemp is in units of 1/16°C.
	return physic.Temperature(rawTemp)*physic.Kelvin/16 + physic.ZeroCelsius
}
