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

import "unicode/utf8"

// Message is one complete, defragmented application message handed
// upward to the socket layer (§3, Data Model).
type Message struct {
	Opcode  Opcode // OpText or OpBinary
	Payload []byte
}

// reassembleOutcome tells the endpoint what happened to a data frame
// that was fed to the reassembler.
type reassembleOutcome int

const (
	outcomeNone       reassembleOutcome = iota // frame consumed, message still in progress
	outcomeDelivered                           // message complete, valid, Message is populated
	outcomeProtoError                          // a Continuation frame appeared without a fragment in progress, or vice versa; Close(1002)
	outcomeTooBig                              // accumulated size would exceed the configured limit; Close(1009)
	outcomeBadUTF8                             // completed Text message was not valid UTF-8; Close(1007)
)

// reassembler implements C5: it defragments Continuation frames into
// whole messages and enforces RCVMAXSIZE. One reassembler belongs to
// exactly one Endpoint; control frames never reach it (§4.5).
type reassembler struct {
	maxSize int // -1 = unbounded, per RCVMAXSIZE semantics

	inFragment bool
	opcode     Opcode
	buf        []byte
}

// newReassembler does not validate maxSize. RCVMAXSIZE accepts -1 or any
// non-negative int (§6); anything else, notably -2, is rejected before
// construction by SetOption in socket.go and Config.Validate.
func newReassembler(maxSize int) *reassembler {
	return &reassembler{maxSize: maxSize}
}

// feed processes one non-control frame. The returned Message is only
// valid when outcome is outcomeDelivered.
func (r *reassembler) feed(f Frame) (Message, reassembleOutcome) {
	switch {
	case f.Opcode == OpContinuation:
		if !r.inFragment {
			return Message{}, outcomeProtoError
		}
	default:
		if r.inFragment {
			return Message{}, outcomeProtoError
		}
		r.inFragment = true
		r.opcode = f.Opcode
		r.buf = r.buf[:0]
	}

	if r.maxSize >= 0 && len(r.buf)+len(f.Payload) > r.maxSize {
		r.reset()
		return Message{}, outcomeTooBig
	}
	r.buf = append(r.buf, f.Payload...)

	if !f.Fin {
		return Message{}, outcomeNone
	}

	opcode := r.opcode
	payload := r.buf
	r.reset()

	if opcode == OpText && !utf8.Valid(payload) {
		return Message{}, outcomeBadUTF8
	}
	return Message{Opcode: opcode, Payload: payload}, outcomeDelivered
}

func (r *reassembler) reset() {
	r.inFragment = false
	r.buf = nil
}
