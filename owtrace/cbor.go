// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owtrace

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for captures, configured for
// deterministic output.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for captures.
var decMode cbor.DecMode

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// fileVersion is bumped when the capture layout changes incompatibly.
const fileVersion = 1

// fileHeader leads a saved capture, ahead of the event stream.
type fileHeader struct {
	Version int    `cbor:"1,keyasint"`
	Pin     string `cbor:"2,keyasint"`
}

// Save writes the trace as a stream of CBOR values: a header followed by
// one value per event. Streaming one event at a time keeps captures
// appendable and lets readers stop early on huge files.
func Save(w io.Writer, t *Trace) error {
	enc := encMode.NewEncoder(w)
	if err := enc.Encode(fileHeader{Version: fileVersion, Pin: t.Pin}); err != nil {
		return err
	}
	for _, e := range t.Events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a capture written by Save.
func Load(r io.Reader) (*Trace, error) {
	dec := decMode.NewDecoder(r)
	var h fileHeader
	if err := dec.Decode(&h); err != nil {
		return nil, err
	}
	if h.Version != fileVersion {
		return nil, fmt.Errorf("owtrace: unsupported capture version %d", h.Version)
	}
	t := &Trace{Pin: h.Pin}
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		t.Events = append(t.Events, e)
	}
	return t, nil
}
