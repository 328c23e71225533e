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

import "errors"

// Kind classifies a transport error the way the socket layer needs to
// branch on it (§7 of the design): synchronously-reported misuse,
// fatal-to-the-endpoint protocol violations, and transient conditions.
type Kind int

const (
	// KindInvalidAddress is returned synchronously from Dial/Listen when
	// the address string fails the grammar in address.go.
	KindInvalidAddress Kind = iota
	// KindNoSuchDevice is returned when an interface-prefixed bind
	// address names a device that doesn't exist locally.
	KindNoSuchDevice
	// KindTimeout is returned when SNDTIMEO/RCVTIMEO expires, and by Send
	// on an endpoint closed over a protocol violation. Handshake failures
	// are not reported through it: the Connector retries them and the
	// Listener drops the connection.
	KindTimeout
	// KindClosed is returned for operations against a Closed endpoint.
	KindClosed
	// KindProtocolViolation marks a frame or message that broke RFC 6455
	// or a configured limit; the endpoint has moved to Closing.
	KindProtocolViolation
	// KindWouldBlock is returned by non-blocking Send/Recv with no
	// progress to report.
	KindWouldBlock
	// KindInvalidArgument is returned for malformed option values.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAddress:
		return "invalid-address"
	case KindNoSuchDevice:
		return "no-such-device"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	case KindProtocolViolation:
		return "protocol-violation"
	case KindWouldBlock:
		return "would-block"
	case KindInvalidArgument:
		return "invalid-argument"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every exported operation returns when
// it fails for a reason the socket layer must be able to branch on.
type Error struct {
	Kind Kind
	msg  string
	err  error // underlying cause, if any; unwrapped via Unwrap
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is lets callers write errors.Is(err, wstransport.ErrClosed) and similar
// without reaching into the Kind field directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, msg: msg} }
func wrapErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, msg: msg, err: cause}
}

// Sentinels usable with errors.Is(err, wstransport.ErrX); only Kind is
// compared, so the msg/err fields on these zero-value instances are
// irrelevant.
var (
	ErrInvalidAddress    = &Error{Kind: KindInvalidAddress}
	ErrNoSuchDevice      = &Error{Kind: KindNoSuchDevice}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrClosed            = &Error{Kind: KindClosed}
	ErrProtocolViolation = &Error{Kind: KindProtocolViolation}
	ErrWouldBlock        = &Error{Kind: KindWouldBlock}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
)

// errHandshakeFailed is wrapped into every handshake failure. The
// Connector and Listener log it at debug level and then retry or drop
// the connection; it is not returned to callers, as a timeout or
// otherwise.
var errHandshakeFailed = errors.New("websocket handshake failed")
