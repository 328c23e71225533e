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
	"time"

	"github.com/pion/logging"
)

// WS option namespace constants (§4.7/§6). These mirror the abstract
// option registry the generic socket layer owns; this transport only
// validates and applies the values it is handed.
const (
	OptMsgType     = "MSG_TYPE"
	OptRcvMaxSize  = "RCVMAXSIZE"
	OptSndTimeout  = "SNDTIMEO"
	OptRcvTimeout  = "RCVTIMEO"
	OptReconnMin   = "RECONNECT_MIN"
	OptReconnMax   = "RECONNECT_MAX"
	OptionLevelWS  = "WS"
)

// Transport is the WebSocket transport's entry point for the socket
// layer (C7): it owns the endpoint/listener registry, the shared
// bind-takeover coordination, and the default Config applied to every
// Endpoint/Listener/Connector it creates from here on.
type Transport struct {
	reg    *registry
	groups *bindGroups
	lg     logging.LeveledLogger
	cfg    Config
}

// NewTransport validates cfg and returns a ready Transport. A nil
// logger falls back to defaultLogger (§1, Ambient Stack).
func NewTransport(cfg Config, lg logging.LeveledLogger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lg == nil {
		lg = defaultLogger()
	}
	return &Transport{
		reg:    newRegistry(),
		groups: newBindGroups(),
		lg:     lg,
		cfg:    cfg,
	}, nil
}

// SetOption applies one WS-namespace option to the Transport's default
// Config. MSG_TYPE, RCVMAXSIZE and the reconnect intervals take effect
// for Listeners/Connectors created afterward and the Endpoints they
// create (§4.7), matching the generic socket layer's own
// per-connect-call option snapshot semantics — this transport does not
// retroactively reconfigure a connection already in Opening or Active.
// SNDTIMEO and RCVTIMEO are read by Transport.Send and Transport.Recv on
// every call, so they also apply to existing endpoints used through
// those methods.
func (t *Transport) SetOption(name string, value interface{}) error {
	switch name {
	case OptMsgType:
		op, ok := value.(Opcode)
		if !ok || (op != OpText && op != OpBinary) {
			return ErrInvalidArgument
		}
		t.cfg.MsgType = op
	case OptRcvMaxSize:
		n, ok := value.(int)
		if !ok || n < -1 {
			return ErrInvalidArgument
		}
		t.cfg.RecvMaxSize = n
	case OptSndTimeout:
		d, ok := value.(time.Duration)
		if !ok {
			return ErrInvalidArgument
		}
		t.cfg.SndTimeout = d
	case OptRcvTimeout:
		d, ok := value.(time.Duration)
		if !ok {
			return ErrInvalidArgument
		}
		t.cfg.RcvTimeout = d
	case OptReconnMin:
		d, ok := value.(time.Duration)
		if !ok {
			return ErrInvalidArgument
		}
		t.cfg.ReconnectMin = d
	case OptReconnMax:
		d, ok := value.(time.Duration)
		if !ok {
			return ErrInvalidArgument
		}
		t.cfg.ReconnectMax = d
	default:
		return ErrInvalidArgument
	}
	return nil
}

// Listen parses addr as a bind string (§4.1) and returns a started
// Listener (create_endpoint's passive-side counterpart, §4.7).
func (t *Transport) Listen(addr string) (*Listener, error) {
	a, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	l := NewListener(a, t.cfg.Protocol, t.cfg, t.reg, t.groups, t.lg)
	if err := l.Start(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dial parses addr as a connect string (§4.1) and returns a Connector
// that maintains one reconnecting Endpoint against it (create_endpoint,
// active side).
func (t *Transport) Dial(addr string) (*Connector, error) {
	a, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	return NewConnector(a, t.cfg, t.reg, t.lg), nil
}

// Endpoint resolves a previously created endpoint id, as the socket
// layer would when dispatching send/recv/close_endpoint calls against
// a handle it was given earlier.
func (t *Transport) Endpoint(id string) (*Endpoint, bool) {
	return t.reg.endpoint(endpointID(id))
}

// CloseEndpoint implements close_endpoint(id, linger) from §4.7.
func (t *Transport) CloseEndpoint(id string, linger time.Duration) error {
	ep, ok := t.reg.endpoint(endpointID(id))
	if !ok {
		return ErrClosed
	}
	defer t.reg.removeEndpoint(ep.id)
	return ep.Close(linger)
}

// Send implements send(id, payload, opcode?) from §4.7, applying the
// Transport's configured SNDTIMEO.
func (t *Transport) Send(id string, payload []byte, opcode Opcode) error {
	ep, ok := t.reg.endpoint(endpointID(id))
	if !ok {
		return ErrClosed
	}
	return ep.Send(payload, opcode, t.cfg.SndTimeout)
}

// Recv implements recv(id) -> (payload, opcode) from §4.7, applying the
// Transport's configured RCVTIMEO.
func (t *Transport) Recv(id string) (Message, error) {
	ep, ok := t.reg.endpoint(endpointID(id))
	if !ok {
		return Message{}, ErrClosed
	}
	return ep.Recv(t.cfg.RcvTimeout)
}

// Ancillary renders the (WS, MSG_TYPE, opcode_byte) header described in
// §4.7/§6: the high bit always set (delivered messages are always
// whole, i.e. "final"), low nibble the message's opcode.
func Ancillary(msg Message) (level string, typ string, value byte) {
	return OptionLevelWS, OptMsgType, 0x80 | byte(msg.Opcode)
}
