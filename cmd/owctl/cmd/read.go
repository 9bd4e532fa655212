// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/onewire"
)

var (
	readAddr  string
	readWrite string
	readCount int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Run a raw transaction on the bus",
	Long: `Writes the --cmd bytes and reads back --count bytes in a single
transaction. With --addr the transaction is preceded by a Match ROM
selecting that device, otherwise by a Skip ROM addressing every device
at once.`,
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVar(&readAddr, "addr", "", "64-bit device identifier to select")
	readCmd.Flags().StringVar(&readWrite, "cmd", "", "hex bytes to write after the ROM command")
	readCmd.Flags().IntVar(&readCount, "count", 0, "number of bytes to read back")
}

func runRead(cmd *cobra.Command, args []string) error {
	if readWrite == "" && readCount == 0 {
		return errors.New("nothing to do, pass --cmd and/or --count")
	}
	w, err := hex.DecodeString(readWrite)
	if err != nil {
		return fmt.Errorf("invalid --cmd %q: %v", readWrite, err)
	}
	s, err := openBus(cmd, false)
	if err != nil {
		return err
	}
	defer s.bus.Close()
	r := make([]byte, readCount)
	if readAddr != "" {
		a, err := strconv.ParseUint(readAddr, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %v", readAddr, err)
		}
		d := &onewire.Dev{Bus: s.bus, Addr: onewire.Address(a)}
		if err := d.Tx(w, r); err != nil {
			return err
		}
	} else {
		if err := s.bus.Tx(append([]byte{0xcc}, w...), r, onewire.WeakPullup); err != nil {
			return err
		}
	}
	if len(r) != 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "% x\n", r)
	}
	return nil
}
