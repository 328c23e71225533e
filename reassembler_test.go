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

import "testing"

func TestReassemblerSingleFrame(t *testing.T) {
	r := newReassembler(-1)
	msg, outcome := r.feed(Frame{Fin: true, Opcode: OpText, Payload: []byte("hello")})
	if outcome != outcomeDelivered {
		t.Fatalf("expected delivery, got %v", outcome)
	}
	if string(msg.Payload) != "hello" || msg.Opcode != OpText {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestReassemblerFragmented(t *testing.T) {
	r := newReassembler(-1)
	if _, outcome := r.feed(Frame{Fin: false, Opcode: OpBinary, Payload: []byte("ab")}); outcome != outcomeNone {
		t.Fatalf("expected in-progress, got %v", outcome)
	}
	if _, outcome := r.feed(Frame{Fin: false, Opcode: OpContinuation, Payload: []byte("cd")}); outcome != outcomeNone {
		t.Fatalf("expected in-progress, got %v", outcome)
	}
	msg, outcome := r.feed(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("ef")})
	if outcome != outcomeDelivered {
		t.Fatalf("expected delivery, got %v", outcome)
	}
	if string(msg.Payload) != "abcdef" {
		t.Fatalf("unexpected reassembled payload: %q", msg.Payload)
	}
}

func TestReassemblerContinuationWithoutStart(t *testing.T) {
	r := newReassembler(-1)
	if _, outcome := r.feed(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("x")}); outcome != outcomeProtoError {
		t.Fatalf("expected protocol error, got %v", outcome)
	}
}

func TestReassemblerNewMessageMidFragment(t *testing.T) {
	r := newReassembler(-1)
	if _, outcome := r.feed(Frame{Fin: false, Opcode: OpText, Payload: []byte("a")}); outcome != outcomeNone {
		t.Fatalf("expected in-progress, got %v", outcome)
	}
	if _, outcome := r.feed(Frame{Fin: false, Opcode: OpText, Payload: []byte("b")}); outcome != outcomeProtoError {
		t.Fatalf("expected protocol error for new non-continuation frame mid-fragment, got %v", outcome)
	}
}

func TestReassemblerSizeLimit(t *testing.T) {
	r := newReassembler(4)
	if _, outcome := r.feed(Frame{Fin: true, Opcode: OpBinary, Payload: []byte("ABC")}); outcome != outcomeDelivered {
		t.Fatalf("expected ABC (3 bytes) within limit to deliver, got %v", outcome)
	}
	if _, outcome := r.feed(Frame{Fin: true, Opcode: OpBinary, Payload: []byte("ABCD")}); outcome != outcomeDelivered {
		t.Fatalf("expected ABCD (4 bytes) at exactly the limit to deliver, got %v", outcome)
	}
	if _, outcome := r.feed(Frame{Fin: true, Opcode: OpBinary, Payload: []byte("ABCDE")}); outcome != outcomeTooBig {
		t.Fatalf("expected ABCDE (5 bytes) over the limit to fail, got %v", outcome)
	}
	// State must reset after a too-big failure.
	if _, outcome := r.feed(Frame{Fin: true, Opcode: OpBinary, Payload: []byte("ABCD")}); outcome != outcomeDelivered {
		t.Fatalf("expected recovery after too-big failure, got %v", outcome)
	}
}

func TestReassemblerUTF8Enforcement(t *testing.T) {
	r := newReassembler(-1)
	if _, outcome := r.feed(Frame{Fin: true, Opcode: OpText, Payload: []byte("GOOD")}); outcome != outcomeDelivered {
		t.Fatalf("expected GOOD to deliver, got %v", outcome)
	}
	bad := []byte{'B', 'A', 0xDD, '.'}
	if _, outcome := r.feed(Frame{Fin: true, Opcode: OpText, Payload: bad}); outcome != outcomeBadUTF8 {
		t.Fatalf("expected bad UTF-8 to fail, got %v", outcome)
	}
}

func TestReassemblerUTF8AcrossFragmentBoundary(t *testing.T) {
	// A 4-byte UTF-8 codepoint (e.g. U+1F600) split across two fragments
	// must still validate once concatenated, even though each half is
	// invalid UTF-8 on its own.
	full := []byte("\xF0\x9F\x98\x80") // 😀
	r := newReassembler(-1)
	if _, outcome := r.feed(Frame{Fin: false, Opcode: OpText, Payload: full[:2]}); outcome != outcomeNone {
		t.Fatalf("expected in-progress, got %v", outcome)
	}
	msg, outcome := r.feed(Frame{Fin: true, Opcode: OpContinuation, Payload: full[2:]})
	if outcome != outcomeDelivered {
		t.Fatalf("expected delivery once the codepoint is whole, got %v", outcome)
	}
	if string(msg.Payload) != string(full) {
		t.Fatalf("unexpected payload: %q", msg.Payload)
	}
}
