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

import "time"

// defaultRecvMaxSize is the Open Question #3 decision: spec.md leaves
// the default "implementation-defined, commonly 1 MiB".
const defaultRecvMaxSize = 1 << 20

// defaultHandshakeTimeout bounds the RFC 6455 opening handshake (§4.3)
// when the caller does not override it.
const defaultHandshakeTimeout = 10 * time.Second

// Config holds the per-endpoint settings the socket layer supplies
// through the WS option namespace and through Listen/Dial parameters
// (§4.7). It is a plain struct, not a parsed config file — config file
// plumbing is explicitly out of scope (§1).
type Config struct {
	// Protocol is the Sec-WebSocket-Protocol value both sides must
	// negotiate (§6); nanomsg's pair protocol uses "pair.sp.nanomsg.org".
	Protocol string

	// MsgType is the default outbound opcode (WS.MSG_TYPE). Must be
	// OpText or OpBinary.
	MsgType Opcode

	// RecvMaxSize is WS.RCVMAXSIZE: -1 means unbounded, otherwise a
	// non-negative byte cap enforced by the reassembler.
	RecvMaxSize int

	// SndTimeout and RcvTimeout back WS.SNDTIMEO/RCVTIMEO. Zero means
	// non-blocking, negative means block forever.
	SndTimeout time.Duration
	RcvTimeout time.Duration

	// HandshakeTimeout bounds the opening handshake on both sides.
	HandshakeTimeout time.Duration

	// ReconnectMin and ReconnectMax configure the Connector's backoff
	// schedule (§4.6). Zero selects the package defaults.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultConfig returns a Config with the spec's documented defaults:
// Binary messages, a 1 MiB receive cap, and the standard backoff range.
func DefaultConfig() Config {
	return Config{
		Protocol:         "pair.sp.nanomsg.org",
		MsgType:          OpBinary,
		RecvMaxSize:      defaultRecvMaxSize,
		SndTimeout:       -1, // block forever, overridden per call via SetOption
		RcvTimeout:       -1,
		HandshakeTimeout: defaultHandshakeTimeout,
		ReconnectMin:     defaultReconnectMin,
		ReconnectMax:     defaultReconnectMax,
	}
}

// Validate applies the §6 option constraints: RCVMAXSIZE accepts -1 or
// any non-negative int (anything else, notably -2, is invalid-argument)
// and MSG_TYPE accepts only Text or Binary.
func (c Config) Validate() error {
	if c.RecvMaxSize < -1 {
		return newErr(KindInvalidArgument, "RCVMAXSIZE must be -1 or >= 0")
	}
	if c.MsgType != OpText && c.MsgType != OpBinary {
		return newErr(KindInvalidArgument, "MSG_TYPE must be Text or Binary")
	}
	return nil
}
