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
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/nanomsg-go/wstransport/internal/sockopt"
)

// bindGroup coordinates every Listener registered against the same
// (iface, host, port) tuple (§4.6: "only one holds the OS listening
// socket; the later ones enter a waiting-to-bind state and are
// promoted if the current holder is closed").
type bindGroup struct {
	mu      sync.Mutex
	holder  *Listener
	waiters []*Listener
}

func bindKey(a *Addr) string {
	return fmt.Sprintf("%s;%s:%d", a.Iface, a.Host, a.Port)
}

// join attaches l to the group, making it the holder if none exists yet
// and otherwise queuing it as a FIFO waiter. Returns true if l became
// the holder.
func (g *bindGroup) join(l *Listener) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder == nil {
		g.holder = l
		return true
	}
	g.waiters = append(g.waiters, l)
	return false
}

// leave removes l from the group. If l was the holder, the next waiter
// (FIFO) is promoted and returned so the caller can start it.
func (g *bindGroup) leave(l *Listener) *Listener {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder == l {
		if len(g.waiters) == 0 {
			g.holder = nil
			return nil
		}
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.holder = next
		return next
	}
	for i, w := range g.waiters {
		if w == l {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			break
		}
	}
	return nil
}

type listenerState int

const (
	listenerWaiting listenerState = iota
	listenerHolding
	listenerClosed
)

// Listener binds an address and admits incoming connections as Opening
// endpoints (C6). Use NewListener then Start.
type Listener struct {
	id       endpointID
	addr     *Addr
	protocol string
	cfg      Config
	reg      *registry
	group    *bindGroup
	lg       logging.LeveledLogger

	mu    sync.Mutex
	state listenerState
	ln    net.Listener

	accepted chan *Endpoint
	stopCh   chan struct{}
}

// NewListener constructs a Listener for addr, registers it with reg,
// and looks up the bind-takeover group for that address. Call Start to
// join the group and actually begin accepting (or waiting, if another
// listener already holds the address).
func NewListener(addr *Addr, protocol string, cfg Config, reg *registry, groups *bindGroups, lg logging.LeveledLogger) *Listener {
	l := &Listener{
		id:       newEndpointID(),
		addr:     addr,
		protocol: protocol,
		cfg:      cfg,
		reg:      reg,
		lg:       lg,
		accepted: make(chan *Endpoint, 16),
		stopCh:   make(chan struct{}),
	}
	l.group = groups.get(bindKey(addr))
	reg.putListener(l)
	return l
}

// ID is the handle the registry resolves this Listener by.
func (l *Listener) ID() string { return string(l.id) }

// Addr returns the bound address, valid regardless of holding/waiting.
func (l *Listener) Addr() *Addr { return l.addr }

// Start joins the bind-takeover group. If this Listener becomes the
// holder it opens the OS socket and begins accepting immediately;
// otherwise it waits to be promoted.
func (l *Listener) Start() error {
	if l.group.join(l) {
		return l.bind()
	}
	l.mu.Lock()
	l.state = listenerWaiting
	l.mu.Unlock()
	return nil
}

func (l *Listener) bind() error {
	hostport := fmt.Sprintf("%s:%d", bindHost(l.addr), l.addr.Port)
	lc := sockopt.ListenConfig()
	ln, err := lc.Listen(context.Background(), "tcp", hostport)
	if err != nil {
		return wrapErr(KindInvalidAddress, "bind "+hostport, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.state = listenerHolding
	l.mu.Unlock()
	go l.acceptLoop()
	return nil
}

func bindHost(a *Addr) string {
	if a.IsWildcard {
		return ""
	}
	return a.Host
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return // listener closed
		}
		go l.admit(conn)
	}
}

func (l *Listener) admit(conn net.Conn) {
	res, err := serverHandshake(conn, l.protocol, l.cfg.HandshakeTimeout)
	if err != nil {
		l.lg.Debugf("websocket handshake failed from %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}
	ep := newEndpoint(conn, RoleServer, newEndpointID(), l.cfg.MsgType, l.cfg.RecvMaxSize, l.lg)
	ep.resourcePath = res.resourcePath
	ep.negotiatedProto = res.protocol
	l.reg.putEndpoint(ep)
	ep.activate()

	select {
	case l.accepted <- ep:
	case <-l.stopCh:
		_ = ep.Close(0)
	}
}

// Accept blocks up to timeout (0 = non-blocking, <0 = forever) for the
// next admitted Endpoint.
func (l *Listener) Accept(timeout time.Duration) (*Endpoint, error) {
	if timeout == 0 {
		select {
		case ep := <-l.accepted:
			return ep, nil
		default:
			return nil, ErrWouldBlock
		}
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case ep := <-l.accepted:
		return ep, nil
	case <-l.stopCh:
		return nil, ErrClosed
	case <-timeoutCh:
		return nil, ErrTimeout
	}
}

// Close stops this Listener. If it held the OS socket, the next waiter
// (FIFO) is promoted to take over the bind (§4.6's resolved Open
// Question: always promote). Closing a waiting listener is a no-op to
// any active connection, per spec.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.state == listenerClosed {
		l.mu.Unlock()
		return nil
	}
	wasHolding := l.state == listenerHolding
	ln := l.ln
	l.state = listenerClosed
	l.mu.Unlock()

	close(l.stopCh)
	l.reg.removeListener(l.id)

	if wasHolding {
		if ln != nil {
			_ = ln.Close()
		}
		if next := l.group.leave(l); next != nil {
			if err := next.bind(); err != nil {
				next.lg.Warnf("promoted listener failed to bind %s: %v", next.addr, err)
			}
		}
	} else {
		l.group.leave(l)
	}
	return nil
}

// bindGroups maps a bind key to its coordinating bindGroup; one
// instance is shared by every Listener created from the same
// Transport (Design Notes §9's "registry keyed by id" pattern, applied
// to bind coordination instead of endpoint lookup).
type bindGroups struct {
	mu sync.Mutex
	m  map[string]*bindGroup
}

func newBindGroups() *bindGroups {
	return &bindGroups{m: make(map[string]*bindGroup)}
}

func (g *bindGroups) get(key string) *bindGroup {
	g.mu.Lock()
	defer g.mu.Unlock()
	bg, ok := g.m[key]
	if !ok {
		bg = &bindGroup{}
		g.m[key] = bg
	}
	return bg
}
