// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchAlarm bool

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Enumerate the devices on the bus",
	Long: `Walks the search tree and prints the 64-bit identifier of every
device, lowest address first. With --alarm only devices in an alarm
state answer.`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolVar(&searchAlarm, "alarm", false, "restrict the search to alarming devices")
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, err := openBus(cmd, false)
	if err != nil {
		return err
	}
	defer s.bus.Close()
	addrs, err := s.bus.Search(searchAlarm)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		name := familyName(byte(a))
		if name != "" {
			name = " " + name
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%#016x  family %#02x%s\n", uint64(a), byte(a), name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d devices\n", len(addrs))
	return nil
}
