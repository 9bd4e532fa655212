// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/onewiregpio"
	"github.com/GermanBionicSystems/onewiregpio/crc8"
	"github.com/GermanBionicSystems/onewiregpio/onewiregpiotest"
	"github.com/GermanBionicSystems/onewiregpio/owtrace"
)

var (
	// Global flags
	pinName    string
	pullupName string
	simMode    bool
	simSpecs   []string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "owctl",
	Short: "1-wire bus controller for GPIO bit-banged buses",
	Long: `owctl drives a 1-wire bus bit-banged on a GPIO pin: it enumerates
devices, runs raw transactions, reads DS18B20-class thermometers and
captures pin-level waveform traces for debugging.

Examples:
  owctl search                                     # Enumerate the bus on GPIO4
  owctl search --pin GPIO17 --alarm                # Alarming devices only
  owctl temp --sim --sim-device 0x28:7             # Thermometers, simulated bus
  owctl read --addr 0x9e000000cafe011d --cmd be --count 1
  owctl trace --out capture.cbor --png wave.png    # Capture a search
  owctl replay capture.cbor                        # Re-render a capture`,
	Version: "1.0.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&pinName, "pin", "p", "GPIO4", "GPIO name of the data line")
	rootCmd.PersistentFlags().StringVar(&pullupName, "pullup-pin", "", "GPIO driving external strong-pullup hardware")
	rootCmd.PersistentFlags().BoolVar(&simMode, "sim", false, "run against a simulated bus instead of hardware")
	rootCmd.PersistentFlags().StringSliceVar(&simSpecs, "sim-device", nil,
		"simulated device as family:serial[:alarm], may repeat")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
}

// config is the merged configuration of a run: the YAML file when given,
// overridden by any flag passed explicitly.
type config struct {
	Pin       string      `yaml:"pin"`
	PullupPin string      `yaml:"pullup_pin"`
	Sim       bool        `yaml:"sim"`
	Devices   []simDevice `yaml:"devices"`
}

// simDevice describes one emulated device on the simulated bus.
type simDevice struct {
	Family byte   `yaml:"family"`
	Serial uint64 `yaml:"serial"`
	Alarm  bool   `yaml:"alarm"`
	// Scratch is the hex scratchpad served after a function command.
	// Empty means a valid DS18B20 scratchpad reading 30°C.
	Scratch string `yaml:"scratch"`
}

func loadConfig(cmd *cobra.Command) (*config, error) {
	cfg := &config{Pin: pinName, PullupPin: pullupName, Sim: simMode}
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%s: %v", configPath, err)
		}
	}
	// Explicit flags win over the file.
	f := cmd.Flags()
	if f.Changed("pin") {
		cfg.Pin = pinName
	}
	if f.Changed("pullup-pin") {
		cfg.PullupPin = pullupName
	}
	if f.Changed("sim") {
		cfg.Sim = simMode
	}
	for _, spec := range simSpecs {
		sd, err := parseDeviceSpec(spec)
		if err != nil {
			return nil, err
		}
		cfg.Devices = append(cfg.Devices, sd)
	}
	return cfg, nil
}

// parseDeviceSpec parses "family:serial[:alarm]" with the integers in any
// Go literal base.
func parseDeviceSpec(spec string) (simDevice, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || (len(parts) == 3 && parts[2] != "alarm") {
		return simDevice{}, fmt.Errorf("invalid device spec %q, want family:serial[:alarm]", spec)
	}
	family, err := strconv.ParseUint(parts[0], 0, 8)
	if err != nil {
		return simDevice{}, fmt.Errorf("invalid family in %q: %v", spec, err)
	}
	serial, err := strconv.ParseUint(parts[1], 0, 48)
	if err != nil {
		return simDevice{}, fmt.Errorf("invalid serial in %q: %v", spec, err)
	}
	return simDevice{Family: byte(family), Serial: serial, Alarm: len(parts) == 3}, nil
}

// reply builds the bytes the emulated device serves after a function
// command: the configured scratchpad, or a valid 30°C reading.
func (sd *simDevice) reply() ([]byte, error) {
	if sd.Scratch != "" {
		b, err := hex.DecodeString(sd.Scratch)
		if err != nil {
			return nil, fmt.Errorf("invalid scratch %q: %v", sd.Scratch, err)
		}
		return b, nil
	}
	spad := []byte{0xe0, 0x01, 0x4b, 0x46, 0x7f, 0xff, 0x10, 0x10}
	return append(spad, crc8.Checksum(spad)), nil
}

// setup is a ready bus plus the environment hooks that differ between
// hardware and the simulator.
type setup struct {
	bus *onewiregpio.Bus
	// sleep waits for device-side work such as temperature conversions.
	// On the simulator it advances the virtual clock instead.
	sleep func(time.Duration)
	// trace is the recording wrapper around the data line, set when the
	// bus was opened with tracing.
	trace *owtrace.Pin
}

// openBus builds the bus a subcommand runs against, honoring the config
// file and the global flags.
func openBus(cmd *cobra.Command, trace bool) (*setup, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Sim {
		return openSimBus(cfg, trace)
	}
	return openHardwareBus(cfg, trace)
}

func openSimBus(cfg *config, trace bool) (*setup, error) {
	var slaves []onewiregpiotest.Slave
	for i := range cfg.Devices {
		sd := &cfg.Devices[i]
		reply, err := sd.reply()
		if err != nil {
			return nil, err
		}
		slaves = append(slaves, &onewiregpiotest.Device{
			ROM:      onewiregpiotest.ROM(sd.Family, sd.Serial),
			Alarming: sd.Alarm,
			Reply:    reply,
		})
	}
	p := &onewiregpiotest.Pin{N: cfg.Pin, Slaves: slaves}
	opts := &onewiregpio.Opts{
		Delay:   p.Delay,
		Section: onewiregpio.NopSection,
	}
	if cfg.PullupPin != "" {
		opts.PullupPin = &onewiregpiotest.Pin{N: cfg.PullupPin}
	}
	s := &setup{sleep: p.Delay}
	var q gpio.PinIO = p
	if trace {
		s.trace = owtrace.Wrap(q)
		s.trace.Now = p.Now
		q = s.trace
	}
	var err error
	s.bus, err = onewiregpio.New(q, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openHardwareBus(cfg *config, trace bool) (*setup, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	q := gpioreg.ByName(cfg.Pin)
	if q == nil {
		return nil, fmt.Errorf("no pin named %q", cfg.Pin)
	}
	opts := onewiregpio.DefaultOpts
	if cfg.PullupPin != "" {
		pp := gpioreg.ByName(cfg.PullupPin)
		if pp == nil {
			return nil, fmt.Errorf("no pin named %q", cfg.PullupPin)
		}
		opts.PullupPin = pp
	}
	s := &setup{sleep: time.Sleep}
	var pin gpio.PinIO = q
	if trace {
		s.trace = owtrace.Wrap(pin)
		pin = s.trace
	}
	var err error
	s.bus, err = onewiregpio.New(pin, &opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}
