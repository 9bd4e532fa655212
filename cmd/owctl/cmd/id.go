// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Read the identifier of the only device on the bus",
	Long: `Issues a Read ROM without a search. This is only meaningful with a
single device connected: several devices answer at once, their
identifiers collide on the wire and the read fails its CRC check.`,
	RunE: runID,
}

func init() {
	rootCmd.AddCommand(idCmd)
}

func runID(cmd *cobra.Command, args []string) error {
	s, err := openBus(cmd, false)
	if err != nil {
		return err
	}
	defer s.bus.Close()
	a, err := s.bus.ReadAddress()
	if err != nil {
		return err
	}
	name := familyName(byte(a))
	if name != "" {
		name = " " + name
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%#016x  family %#02x%s\n", uint64(a), byte(a), name)
	return nil
}
