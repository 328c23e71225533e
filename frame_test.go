// Copyright 2020 The NATS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wstransport

import (
	"bytes"
	"testing"
)

func TestIsControl(t *testing.T) {
	for _, test := range []struct {
		op        Opcode
		isControl bool
	}{
		{OpContinuation, false},
		{OpText, false},
		{OpBinary, false},
		{OpPing, true},
		{OpPong, true},
		{OpClose, true},
	} {
		if got := test.op.IsControl(); got != test.isControl {
			t.Fatalf("Opcode(%v).IsControl() = %v, want %v", test.op, got, test.isControl)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, test := range []struct {
		name    string
		fin     bool
		op      Opcode
		payload []byte
		mask    bool
	}{
		{"small-unmasked", true, OpText, []byte("ABC"), false},
		{"small-masked", true, OpBinary, []byte("ABC"), true},
		{"exactly-125", true, OpBinary, bytes.Repeat([]byte{'x'}, 125), true},
		{"needs-16bit-len", true, OpBinary, bytes.Repeat([]byte{'y'}, 200), true},
		{"needs-16bit-len-boundary", true, OpBinary, bytes.Repeat([]byte{'y'}, 65535), false},
		{"needs-64bit-len", true, OpBinary, bytes.Repeat([]byte{'z'}, 70000), true},
		{"empty-payload", true, OpPing, nil, true},
		{"not-final", false, OpText, []byte("frag"), true},
	} {
		t.Run(test.name, func(t *testing.T) {
			var key [4]byte
			if test.mask {
				key = [4]byte{1, 2, 3, 4}
			}
			wire := EncodeFrame(test.fin, test.op, test.payload, test.mask, key)

			dec := NewDecoder(test.mask)
			frames, err := dec.Feed(wire)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if len(frames) != 1 {
				t.Fatalf("expected 1 frame, got %d", len(frames))
			}
			f := frames[0]
			if f.Fin != test.fin || f.Opcode != test.op || f.Masked != test.mask {
				t.Fatalf("decoded header mismatch: %+v", f)
			}
			if !bytes.Equal(f.Payload, test.payload) && !(len(f.Payload) == 0 && len(test.payload) == 0) {
				t.Fatalf("decoded payload mismatch: got %v want %v", f.Payload, test.payload)
			}
		})
	}
}

func TestDecodeByteAtATime(t *testing.T) {
	wire := EncodeFrame(true, OpBinary, bytes.Repeat([]byte{'q'}, 300), true, [4]byte{9, 8, 7, 6})
	dec := NewDecoder(true)
	var got []Frame
	for i := 0; i < len(wire); i++ {
		frames, err := dec.Feed(wire[i : i+1])
		if err != nil {
			t.Fatalf("decode error at byte %d: %v", i, err)
		}
		got = append(got, frames...)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 frame assembled byte-at-a-time, got %d", len(got))
	}
	if len(got[0].Payload) != 300 {
		t.Fatalf("expected 300-byte payload, got %d", len(got[0].Payload))
	}
}

func TestDecodeConcatenatedFrames(t *testing.T) {
	f1 := EncodeFrame(true, OpText, []byte("ABC"), false, [4]byte{})
	f2 := EncodeFrame(true, OpText, []byte("DEF"), false, [4]byte{})
	both := append(append([]byte{}, f1...), f2...)

	dec := NewDecoder(false)
	frames, err := dec.Feed(both)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if string(frames[0].Payload) != "ABC" || string(frames[1].Payload) != "DEF" {
		t.Fatalf("unexpected payloads: %q %q", frames[0].Payload, frames[1].Payload)
	}
}

func TestDecodeRejectsReservedBits(t *testing.T) {
	wire := EncodeFrame(true, OpText, []byte("x"), false, [4]byte{})
	wire[0] |= 0x40 // set RSV1
	dec := NewDecoder(false)
	if _, err := dec.Feed(wire); err == nil {
		t.Fatalf("expected protocol error for nonzero RSV bits")
	}
}

func TestDecodeRejectsOversizeControlFrame(t *testing.T) {
	wire := EncodeFrame(true, OpPing, bytes.Repeat([]byte{'a'}, 126), false, [4]byte{})
	dec := NewDecoder(false)
	if _, err := dec.Feed(wire); err == nil {
		t.Fatalf("expected protocol error for oversize control frame")
	}
}

func TestDecodeRejectsWrongMaskDirection(t *testing.T) {
	// A server decoder (expectMasked=true) must reject an unmasked frame.
	wire := EncodeFrame(true, OpText, []byte("hi"), false, [4]byte{})
	dec := NewDecoder(true)
	if _, err := dec.Feed(wire); err == nil {
		t.Fatalf("expected protocol error for unmasked frame on server decoder")
	}

	// A client decoder (expectMasked=false) must reject a masked frame.
	wire = EncodeFrame(true, OpText, []byte("hi"), true, [4]byte{1, 2, 3, 4})
	dec = NewDecoder(false)
	if _, err := dec.Feed(wire); err == nil {
		t.Fatalf("expected protocol error for masked frame on client decoder")
	}
}

func TestMaskSourceVariesKeys(t *testing.T) {
	m := newMaskSource()
	k1 := m.Next()
	k2 := m.Next()
	if k1 == k2 {
		t.Fatalf("expected distinct mask keys from successive Next() calls, got %v twice", k1)
	}
}
