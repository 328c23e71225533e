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
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Role distinguishes which side of the handshake an Endpoint played,
// since that determines masking direction for the lifetime of the
// connection (§3, Data Model).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

type opState int

const (
	stateOpening opState = iota
	stateActive
	stateClosing
	stateClosed
)

// Close status codes this implementation ever puts on the wire (§4.4).
// 1004, 1005, 1006 and 1015 are reserved and must never appear here.
const (
	CloseNormal          = 1000
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseNoStatus        = 1005 // never sent; used internally for "peer sent no body"
	CloseInvalidUTF8     = 1007
	CloseTooBig          = 1009
	CloseInternalError   = 1011
)

// defaultAbortLinger bounds how long a Closing endpoint waits for the
// peer to finish the closing handshake (its Close reply or its TCP FIN)
// after a protocol-violation abort or a peer-initiated close before
// giving up and forcing the socket shut (§4.4 "linger
// timeout expires"). Endpoint.Close lets a caller pick a longer linger
// for a graceful, locally-initiated close.
const defaultAbortLinger = 2 * time.Second

// sendJob is one queued outbound data frame. Endpoint.Send blocks on
// done (bounded by the caller's timeout); the writer loop completes it
// once the frame has actually gone to the wire, which may be after the
// caller has already given up — per §5, a timed-out send leaves no
// partially-visible frame, but the frame may still be transmitted.
type sendJob struct {
	opcode  Opcode
	payload []byte
	done    chan error
}

// Endpoint is one side of one TCP connection carrying WebSocket traffic
// (§3). It implements C4 (state machine) wired to C2 (frame codec) and
// C5 (reassembler). Concurrency follows §5 via two goroutines per
// endpoint (reader, writer) standing in for the abstract completion-port
// worker the spec describes — the generic multi-endpoint poll loop
// itself belongs to the out-of-scope socket layer (§1), so this type
// only needs to behave correctly when driven by readiness events, and
// a goroutine blocked in conn.Read/Write is indistinguishable from that
// at this layer.
type Endpoint struct {
	id   endpointID
	role Role
	conn net.Conn
	lg   logging.LeveledLogger

	decoder *Decoder
	reasm   *reassembler
	maskSrc *maskSource // nil on the server side; server frames are never masked

	mu               sync.Mutex
	state            opState
	msgType          Opcode
	closeSent        bool
	closeRecvd       bool
	protoErrorAbort  bool // true once failProtocol fires; gates the "send sees timeout, not closed" policy of §7
	peerCloseStatus  int
	resourcePath     string // from the handshake; ancillary, not used for routing (§4.3)
	negotiatedProto  string

	controlQ chan []byte
	dataQ    chan *sendJob
	recvQ    chan Message

	closeOnce sync.Once
	closedCh  chan struct{}
	wg        sync.WaitGroup
}

func newEndpoint(conn net.Conn, role Role, id endpointID, msgType Opcode, recvMaxSize int, lg logging.LeveledLogger) *Endpoint {
	e := &Endpoint{
		id:       id,
		role:     role,
		conn:     conn,
		lg:       lg,
		decoder:  NewDecoder(role == RoleServer),
		reasm:    newReassembler(recvMaxSize),
		msgType:  msgType,
		state:    stateOpening,
		controlQ: make(chan []byte, 16),
		dataQ:    make(chan *sendJob, 256),
		recvQ:    make(chan Message, 64),
		closedCh: make(chan struct{}),
	}
	if role == RoleClient {
		e.maskSrc = newMaskSource()
	}
	return e
}

// ID is the handle the registry resolves this Endpoint by.
func (e *Endpoint) ID() string { return string(e.id) }

// Addr is the remote peer's network address (Design Notes §9's
// sp_epbase_getaddr equivalent).
func (e *Endpoint) Addr() net.Addr { return e.conn.RemoteAddr() }

// activate transitions Opening -> Active and starts the reader/writer
// goroutines. Called by Listener/Connector once the handshake succeeds.
func (e *Endpoint) activate() {
	e.mu.Lock()
	e.state = stateActive
	e.mu.Unlock()
	e.wg.Add(2)
	go e.readLoop()
	go e.writeLoop()
}

// NoAutoReconnect reports the §4.6 special case: the peer closed us for
// a protocol/size violation that originated on our side, so the
// Connector must not auto-reconnect until the user explicitly asks.
func (e *Endpoint) NoAutoReconnect() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.protoErrorAbort {
		// The violation was the peer's; its Close only echoes our code.
		return false
	}
	switch e.peerCloseStatus {
	case CloseProtocolError, CloseUnsupportedData, CloseInvalidUTF8, CloseTooBig:
		return true
	default:
		return false
	}
}

// Send queues payload for transmission with the given opcode (zero
// means "use the endpoint's configured MSG_TYPE"), blocking up to
// timeout (0 = non-blocking, <0 = forever) for it to reach the wire.
func (e *Endpoint) Send(payload []byte, opcode Opcode, timeout time.Duration) error {
	e.mu.Lock()
	switch e.state {
	case stateClosed, stateClosing:
		abort := e.protoErrorAbort
		switch e.peerCloseStatus {
		case CloseProtocolError, CloseUnsupportedData, CloseInvalidUTF8, CloseTooBig:
			abort = true
		}
		e.mu.Unlock()
		if abort {
			return ErrTimeout
		}
		return ErrClosed
	}
	if opcode == 0 {
		opcode = e.msgType
	}
	e.mu.Unlock()

	job := &sendJob{opcode: opcode, payload: payload, done: make(chan error, 1)}

	if timeout == 0 {
		select {
		case e.dataQ <- job:
		default:
			return ErrWouldBlock
		}
	} else {
		var timeoutCh <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			timeoutCh = t.C
		}
		select {
		case e.dataQ <- job:
		case <-e.closedCh:
			return ErrClosed
		case <-timeoutCh:
			return ErrTimeout
		}
	}

	if timeout == 0 {
		select {
		case err := <-job.done:
			return err
		default:
			return nil // handed to the OS buffer path is async; treat enqueue as success for non-blocking sends
		}
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case err := <-job.done:
		return err
	case <-e.closedCh:
		return ErrClosed
	case <-timeoutCh:
		return ErrTimeout
	}
}

// Recv delivers one whole reassembled message (§4.7), blocking up to
// timeout (0 = non-blocking, <0 = forever).
func (e *Endpoint) Recv(timeout time.Duration) (Message, error) {
	if timeout == 0 {
		select {
		case msg, ok := <-e.recvQ:
			if !ok {
				return Message{}, ErrClosed
			}
			return msg, nil
		default:
			return Message{}, ErrWouldBlock
		}
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case msg, ok := <-e.recvQ:
		if !ok {
			return Message{}, ErrClosed
		}
		return msg, nil
	case <-timeoutCh:
		return Message{}, ErrTimeout
	case <-e.closedCh:
		select {
		case msg, ok := <-e.recvQ:
			if ok {
				return msg, nil
			}
		default:
		}
		return Message{}, ErrClosed
	}
}

// Close initiates the closing handshake (§4.7 close_endpoint) and blocks
// up to linger for it to complete gracefully, then forces the
// underlying TCP socket shut either way.
func (e *Endpoint) Close(linger time.Duration) error {
	e.mu.Lock()
	if e.state == stateClosed {
		e.mu.Unlock()
		return nil
	}
	if !e.closeSent {
		e.closeSent = true
		e.state = stateClosing
		e.mu.Unlock()
		e.enqueueControl(OpClose, encodeCloseBody(CloseNormal, ""))
	} else {
		e.mu.Unlock()
	}
	e.scheduleFinalClose(linger)

	select {
	case <-e.closedCh:
	case <-time.After(linger):
	}
	return nil
}

func (e *Endpoint) scheduleFinalClose(after time.Duration) {
	time.AfterFunc(after, e.finalClose)
}

func (e *Endpoint) finalClose() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.state = stateClosed
		e.mu.Unlock()
		_ = e.conn.Close()
		close(e.closedCh)
	})
}

// enqueueControl frames and queues a control message ahead of any
// not-yet-started data frame (§5, Ordering guarantees).
func (e *Endpoint) enqueueControl(op Opcode, payload []byte) {
	var key [4]byte
	masked := e.role == RoleClient
	if masked {
		key = e.maskSrc.Next()
	}
	wire := EncodeFrame(true, op, payload, masked, key)
	select {
	case e.controlQ <- wire:
	case <-e.closedCh:
	}
}

func encodeCloseBody(status int, reason string) []byte {
	if len(reason) > maxControlPayload-2 {
		reason = reason[:maxControlPayload-5] + "..."
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf[:2], uint16(status))
	copy(buf[2:], reason)
	return buf
}

func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := e.conn.Read(buf)
		if n > 0 {
			frames, ferr := e.decoder.Feed(buf[:n])
			for _, f := range frames {
				if e.dispatch(f) {
					return
				}
			}
			if ferr != nil {
				e.failProtocol(CloseProtocolError, ferr.Error())
				return
			}
		}
		if err != nil {
			e.onReadError(err)
			return
		}
	}
}

// dispatch applies the Active-state event table of §4.4 to one decoded
// frame. It returns true when the endpoint is already Closed and the
// reader loop should stop. After a Close frame or a protocol error the
// loop keeps reading, so that the peer's Close reply or TCP FIN can
// finish the close; data frames are dropped from then on.
func (e *Endpoint) dispatch(f Frame) bool {
	e.mu.Lock()
	state := e.state
	closeRecvd := e.closeRecvd
	aborted := e.protoErrorAbort
	e.mu.Unlock()
	if state == stateClosed {
		return true
	}

	switch f.Opcode {
	case OpPing:
		e.enqueueControl(OpPong, f.Payload)
		return false
	case OpPong:
		return false
	case OpClose:
		e.onCloseFrame(f.Payload)
		return false
	default: // Text, Binary, Continuation
		if closeRecvd || aborted {
			// Upward delivery forbidden once Close is received (§3) or
			// after a protocol-violation abort.
			return false
		}
		msg, outcome := e.reasm.feed(f)
		switch outcome {
		case outcomeNone:
			return false
		case outcomeDelivered:
			e.deliver(msg)
			return false
		case outcomeProtoError:
			e.failProtocol(CloseProtocolError, "invalid fragmentation sequence")
			return false
		case outcomeTooBig:
			e.failProtocol(CloseTooBig, "message exceeds RCVMAXSIZE")
			return false
		case outcomeBadUTF8:
			e.failProtocol(CloseInvalidUTF8, "invalid UTF-8 in text message")
			return false
		}
		return false
	}
}

// onCloseFrame implements the resolution of the peer-initiated-close
// Open Question in spec §9: echo the received status code (a Close
// without a body is echoed without a body), then transition to Closing
// and wait (bounded by defaultAbortLinger) for the peer's TCP FIN, which
// the reader loop turns into the final close. If our own Close was
// already sent, this frame completes the closing handshake and the
// connection is closed at once.
func (e *Endpoint) onCloseFrame(payload []byte) {
	status := CloseNoStatus
	if len(payload) >= 2 {
		status = int(binary.BigEndian.Uint16(payload[:2]))
	}

	e.mu.Lock()
	e.closeRecvd = true
	e.peerCloseStatus = status
	alreadySent := e.closeSent
	e.closeSent = true
	e.state = stateClosing
	e.mu.Unlock()

	if alreadySent {
		e.finalClose()
		return
	}
	var body []byte // CloseNoStatus is never put on the wire
	if status != CloseNoStatus {
		body = encodeCloseBody(status, "")
	}
	e.enqueueControl(OpClose, body)
	e.scheduleFinalClose(defaultAbortLinger)
}

// failProtocol implements "Active: protocol error -> send Close(1002)
// then abort" (and its 1003/1007/1009 siblings from the reassembler).
func (e *Endpoint) failProtocol(status int, reason string) {
	e.mu.Lock()
	if e.closeSent {
		e.mu.Unlock()
		return
	}
	e.closeSent = true
	e.protoErrorAbort = true
	e.state = stateClosing
	e.mu.Unlock()

	e.lg.Warnf("websocket protocol violation on %s: %s (close %d)", e.conn.RemoteAddr(), reason, status)
	e.enqueueControl(OpClose, encodeCloseBody(status, reason))
	e.scheduleFinalClose(defaultAbortLinger)
}

func (e *Endpoint) onReadError(err error) {
	e.mu.Lock()
	closing := e.state == stateClosing
	e.mu.Unlock()
	if errors.Is(err, io.EOF) && closing {
		e.finalClose()
		return
	}
	if !errors.Is(err, io.EOF) {
		e.lg.Debugf("websocket read error on %s: %v", e.conn.RemoteAddr(), err)
	}
	e.finalClose()
}

func (e *Endpoint) deliver(msg Message) {
	select {
	case e.recvQ <- msg:
	case <-e.closedCh:
	}
}

func (e *Endpoint) writeLoop() {
	defer e.wg.Done()
	for {
		// Control frames are always serviced ahead of data frames
		// (§5, Ordering guarantees), hence the nested select with a
		// control-only first pass.
		select {
		case wire := <-e.controlQ:
			if err := e.writeRaw(wire); err != nil {
				e.lg.Debugf("websocket write error on %s: %v", e.conn.RemoteAddr(), err)
				return
			}
			continue
		default:
		}

		select {
		case wire := <-e.controlQ:
			if err := e.writeRaw(wire); err != nil {
				e.lg.Debugf("websocket write error on %s: %v", e.conn.RemoteAddr(), err)
				return
			}
		case job := <-e.dataQ:
			e.mu.Lock()
			blocked := e.closeSent
			e.mu.Unlock()
			if blocked {
				job.done <- ErrClosed
				continue
			}
			var key [4]byte
			masked := e.role == RoleClient
			if masked {
				key = e.maskSrc.Next()
			}
			wire := EncodeFrame(true, job.opcode, job.payload, masked, key)
			if err := e.writeRaw(wire); err != nil {
				job.done <- wrapErr(KindClosed, "write failed", err)
				e.lg.Debugf("websocket write error on %s: %v", e.conn.RemoteAddr(), err)
				return
			}
			job.done <- nil
		case <-e.closedCh:
			return
		}
	}
}

func (e *Endpoint) writeRaw(wire []byte) error {
	_, err := e.conn.Write(wire)
	return err
}
