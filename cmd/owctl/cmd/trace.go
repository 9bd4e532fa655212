// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GermanBionicSystems/onewiregpio/owtrace"
)

var (
	traceOut   string
	tracePNG   string
	traceWidth int
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Capture the pin-level waveform of a bus search",
	Long: `Runs a search with every line transition and sample recorded,
renders the capture to the terminal and optionally writes it to a
CBOR capture file or a PNG waveform.`,
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().StringVar(&traceOut, "out", "", "write the capture to this CBOR file")
	traceCmd.Flags().StringVar(&tracePNG, "png", "", "render the capture to this PNG file")
	traceCmd.Flags().IntVar(&traceWidth, "width", 0, "terminal cells per waveform line")
}

func runTrace(cmd *cobra.Command, args []string) error {
	s, err := openBus(cmd, true)
	if err != nil {
		return err
	}
	defer s.bus.Close()
	addrs, err := s.bus.Search(false)
	if err != nil {
		return err
	}
	t := s.trace.Trace()
	if err := owtrace.PrintTerminal(t, &owtrace.TermOpts{Width: traceWidth}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d devices, %d events over %s\n", len(addrs), len(t.Events), t.Duration())
	if traceOut != "" {
		f, err := os.Create(traceOut)
		if err != nil {
			return err
		}
		if err := owtrace.Save(f, t); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if tracePNG != "" {
		if err := writePNG(tracePNG, t); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, t *owtrace.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := owtrace.RenderPNG(f, t, nil); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var (
	replayPNG   string
	replayWidth int
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture.cbor>",
	Short: "Re-render a saved waveform capture",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayPNG, "png", "", "render the capture to this PNG file")
	replayCmd.Flags().IntVar(&replayWidth, "width", 0, "terminal cells per waveform line")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	t, err := owtrace.Load(f)
	if err != nil {
		return err
	}
	if err := owtrace.PrintTerminal(t, &owtrace.TermOpts{Width: replayWidth}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d events over %s\n", len(t.Events), t.Duration())
	if replayPNG != "" {
		return writePNG(replayPNG, t)
	}
	return nil
}
