// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/onewiregpio"
	"github.com/GermanBionicSystems/onewiregpio/onewiregpiotest"
)

// simBus returns a bus master wired to a simulated line with the given
// devices attached. The simulated clock replaces the busy-wait and the
// critical section, so tests run instantly and deterministically.
func simBus(t *testing.T, slaves ...onewiregpiotest.Slave) (*onewiregpio.Bus, *onewiregpiotest.Pin) {
	t.Helper()
	p := &onewiregpiotest.Pin{N: "OW1", Slaves: slaves}
	b, err := onewiregpio.New(p, &onewiregpio.Opts{
		IdleRetries: 20,
		Delay:       p.Delay,
		Section:     onewiregpio.NopSection,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b, p
}

func TestNew_NoPin(t *testing.T) {
	if b, err := onewiregpio.New(nil, nil); b != nil || err == nil {
		t.Fatal("a nil data pin must be rejected")
	}
}

func TestBus_String(t *testing.T) {
	b, _ := simBus(t)
	if got := b.String(); got != "onewiregpio{OW1}" {
		t.Fatalf("String() = %q", got)
	}
}

func TestBus_Q(t *testing.T) {
	b, p := simBus(t)
	if b.Q() != gpio.PinIO(p) {
		t.Fatal("Q() must return the data line")
	}
}

func TestReset_EmptyBus(t *testing.T) {
	b, p := simBus(t)
	present, err := b.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("presence on an empty bus")
	}
	if p.Resets() != 1 {
		t.Fatalf("reset count = %d; want 1", p.Resets())
	}
}

func TestReset_Presence(t *testing.T) {
	b, _ := simBus(t, &onewiregpiotest.Device{ROM: onewiregpiotest.ROM(0x28, 1)})
	present, err := b.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("device did not answer the reset pulse")
	}
}

func TestReset_ShortedBus(t *testing.T) {
	b, p := simBus(t)
	p.Stuck = true
	if _, err := b.Reset(); err == nil {
		t.Fatal("a line held low must fail the reset")
	} else if _, ok := err.(onewire.ShortedBusError); !ok {
		t.Fatalf("error %q does not implement onewire.ShortedBusError", err)
	}
	// A short is a bus condition, not a pin fault: once the line
	// recovers the master works again.
	p.Stuck = false
	if _, err := b.Reset(); err != nil {
		t.Fatal(err)
	}
}

func TestTx_NoDevice(t *testing.T) {
	b, _ := simBus(t)
	err := b.Tx([]byte{0xcc}, nil, onewire.WeakPullup)
	if err == nil {
		t.Fatal("Tx on an empty bus must fail")
	}
	if _, ok := err.(onewire.BusError); !ok {
		t.Fatalf("error %q does not implement onewire.BusError", err)
	}
	if err.Error() != "onewiregpio: no device present" {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestTx_Roundtrip(t *testing.T) {
	b, p := simBus(t, &onewiregpiotest.Echo{})
	var r [2]byte
	if err := b.Tx([]byte{0xde, 0xad}, r[:], onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0xde || r[1] != 0xad {
		t.Fatalf("echoed %#02v; want {0xde, 0xad}", r[:])
	}
	if !bytes.Equal(p.Writes, []byte{0xde, 0xad}) {
		t.Fatalf("wire saw %#02v; want {0xde, 0xad}", p.Writes)
	}
}

func TestTx_StrongPullup(t *testing.T) {
	b, p := simBus(t, &onewiregpiotest.Device{ROM: onewiregpiotest.ROM(0x28, 1)})
	// Broadcast a conversion with parasitic power, the line must stay
	// driven high after the transaction.
	if err := b.Tx([]byte{0xcc, 0x44}, nil, onewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if p.Function() != "Out" || p.Read() != gpio.High {
		t.Fatalf("line is %s/%s after a strong-pullup write; want Out/High", p.Function(), p.Read())
	}
	if err := b.DisablePullup(); err != nil {
		t.Fatal(err)
	}
	if p.Function() != "In" {
		t.Fatalf("line is %s after DisablePullup; want In", p.Function())
	}
}

func TestTx_StrongPullupAfterRead(t *testing.T) {
	rom := onewiregpiotest.ROM(0x28, 2)
	b, p := simBus(t, &onewiregpiotest.Device{ROM: rom})
	var r [8]byte
	if err := b.Tx([]byte{0x33}, r[:], onewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r[:], rom[:]) {
		t.Fatalf("read %#02v; want %#02v", r[:], rom[:])
	}
	if p.Function() != "Out" || p.Read() != gpio.High {
		t.Fatal("pullup must stay engaged after the final read")
	}
	// The next operation releases the pullup on its own.
	if _, err := b.Reset(); err != nil {
		t.Fatal(err)
	}
	if p.Function() != "In" {
		t.Fatal("line must be floating again after the next operation")
	}
}

func TestTx_PullupPin(t *testing.T) {
	aux := &onewiregpiotest.Pin{N: "PU1"}
	p := &onewiregpiotest.Pin{N: "OW1", Slaves: []onewiregpiotest.Slave{
		&onewiregpiotest.Device{ROM: onewiregpiotest.ROM(0x28, 3)},
	}}
	b, err := onewiregpio.New(p, &onewiregpio.Opts{
		PullupPin:   aux,
		IdleRetries: 20,
		Delay:       p.Delay,
		Section:     onewiregpio.NopSection,
	})
	if err != nil {
		t.Fatal(err)
	}
	if aux.Read() != gpio.Low {
		t.Fatal("pullup hardware must start released")
	}
	if err := b.Tx([]byte{0xcc, 0x44}, nil, onewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if aux.Read() != gpio.High {
		t.Fatal("pullup pin must be driven high after a strong-pullup write")
	}
	if err := b.DisablePullup(); err != nil {
		t.Fatal(err)
	}
	if aux.Read() != gpio.Low {
		t.Fatal("pullup pin must be driven low on release")
	}
	if p.Function() != "In" {
		t.Fatal("data line must float once the pullup is released")
	}
}

func TestWriteByte_ReadByte_Loopback(t *testing.T) {
	b, _ := simBus(t, &onewiregpiotest.Echo{})
	if err := b.WriteByte(0x5a, false); err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x5a {
		t.Fatalf("echoed byte = %#02x; want 0x5a", got)
	}
}

func TestWriteBytes_PullupEveryByte(t *testing.T) {
	b, p := simBus(t)
	if err := b.WriteBytes([]byte{0xaa, 0xbb}, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.Writes, []byte{0xaa, 0xbb}) {
		t.Fatalf("wire saw %#02v; want {0xaa, 0xbb}", p.Writes)
	}
	if p.Function() != "Out" {
		t.Fatal("pullup must be engaged after the write")
	}
}

// lowHolds extracts the durations the master held the line low for.
func lowHolds(p *onewiregpiotest.Pin) []time.Duration {
	var holds []time.Duration
	for i := 1; i < len(p.Transitions); i++ {
		if !p.Transitions[i].Low && p.Transitions[i-1].Low {
			holds = append(holds, p.Transitions[i].At-p.Transitions[i-1].At)
		}
	}
	return holds
}

func TestSlotShapes(t *testing.T) {
	b, p := simBus(t)
	if _, err := b.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteBit(1); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteBit(0); err != nil {
		t.Fatal(err)
	}
	holds := lowHolds(p)
	if len(holds) != 3 {
		t.Fatalf("saw %d low holds; want 3", len(holds))
	}
	if holds[0] < 480*time.Microsecond {
		t.Fatalf("reset hold = %s; want at least 480µs", holds[0])
	}
	if holds[1] >= 15*time.Microsecond {
		t.Fatalf("write-1 hold = %s; devices sample 15µs in", holds[1])
	}
	if holds[2] <= holds[1] {
		t.Fatalf("write-0 hold %s is not longer than write-1 hold %s", holds[2], holds[1])
	}
	if holds[2] < 60*time.Microsecond {
		t.Fatalf("write-0 hold = %s; want the full slot", holds[2])
	}
}

func TestReadBytes_IdleBus(t *testing.T) {
	b, _ := simBus(t)
	var r [2]byte
	if err := b.ReadBytes(r[:]); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0xff || r[1] != 0xff {
		t.Fatalf("idle bus read %#02v; want all ones", r[:])
	}
}

func TestClose(t *testing.T) {
	b, p := simBus(t)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if p.Function() != "In" {
		t.Fatal("the line must float after Close")
	}
	if _, err := b.Reset(); err == nil {
		t.Fatal("operations must fail on a closed bus")
	}
	if err := b.Close(); err == nil {
		t.Fatal("double close must report the poisoned state")
	}
}

// failPin simulates a GPIO that cannot switch to output anymore.
type failPin struct {
	*onewiregpiotest.Pin
	fault error
}

func (f *failPin) Out(l gpio.Level) error {
	return f.fault
}

func TestPinFault_Persists(t *testing.T) {
	fault := errors.New("gpio: injected fault")
	p := &onewiregpiotest.Pin{N: "OW1"}
	b, err := onewiregpio.New(&failPin{Pin: p, fault: fault}, &onewiregpio.Opts{
		IdleRetries: 20,
		Delay:       p.Delay,
		Section:     onewiregpio.NopSection,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Reset(); err != fault {
		t.Fatalf("Reset() = %v; want the pin fault", err)
	}
	// Pin faults are persistent, unlike bus conditions.
	werr := b.WriteBit(1)
	if werr != fault {
		t.Fatalf("WriteBit() = %v; want the persisted pin fault", werr)
	}
	if _, ok := werr.(onewire.BusError); ok {
		t.Fatal("a pin fault must not masquerade as a transient bus error")
	}
}
