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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"
)

// Connector dials an address and maintains a connected Endpoint,
// reconnecting with exponential backoff across transient failures
// (§4.6). One Connector drives at most one live Endpoint at a time.
type Connector struct {
	addr *Addr
	cfg  Config
	reg  *registry
	lg   logging.LeveledLogger
	gen  randutil.Generator

	bo *backoff

	mu        sync.Mutex
	closed    bool
	suspended bool // set when the last close was peer-attributed to our own protocol violation (§4.6)
	resumeCh  chan struct{}

	endpoints chan *Endpoint
	stopCh    chan struct{}
}

// NewConnector builds a Connector for addr and starts its reconnect
// loop in the background. Call Endpoints to consume each (re)connected
// Endpoint and Close to tear the whole thing down.
func NewConnector(addr *Addr, cfg Config, reg *registry, lg logging.LeveledLogger) *Connector {
	c := &Connector{
		addr:      addr,
		cfg:       cfg,
		reg:       reg,
		lg:        lg,
		gen:       randutil.NewCryptoRandomGenerator(),
		bo:        newBackoff(cfg.ReconnectMin, cfg.ReconnectMax),
		resumeCh:  make(chan struct{}, 1),
		endpoints: make(chan *Endpoint, 1),
		stopCh:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Endpoints yields every successfully (re)connected Endpoint in order.
func (c *Connector) Endpoints() <-chan *Endpoint { return c.endpoints }

// Reconnect clears the §4.6 "no auto-reconnect" suspension imposed
// after the peer closed us for a protocol/size violation we caused, and
// restarts the dial/backoff loop immediately.
func (c *Connector) Reconnect() {
	c.mu.Lock()
	c.suspended = false
	c.mu.Unlock()
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
}

// Close permanently stops the Connector; no further Endpoints are
// produced and any Endpoint in flight is closed.
func (c *Connector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.stopCh)
}

func (c *Connector) run() {
	for {
		c.mu.Lock()
		closed := c.closed
		suspended := c.suspended
		c.mu.Unlock()
		if closed {
			return
		}
		if suspended {
			select {
			case <-c.resumeCh:
				c.mu.Lock()
				c.suspended = false
				c.mu.Unlock()
			case <-c.stopCh:
				return
			}
			continue
		}

		ep, err := c.dialOnce()
		if err != nil {
			delay := c.bo.next()
			select {
			case <-time.After(delay):
			case <-c.stopCh:
				return
			}
			continue
		}
		c.bo.reset()

		select {
		case c.endpoints <- ep:
		case <-c.stopCh:
			_ = ep.Close(0)
			return
		}

		select {
		case <-ep.closedCh:
		case <-c.stopCh:
			_ = ep.Close(0)
			return
		}

		if ep.NoAutoReconnect() {
			c.mu.Lock()
			c.suspended = true
			c.mu.Unlock()
		}
	}
}

func (c *Connector) dialOnce() (*Endpoint, error) {
	hostport := fmt.Sprintf("%s:%d", c.addr.Host, c.addr.Port)
	conn, err := net.DialTimeout("tcp", hostport, c.cfg.HandshakeTimeout)
	if err != nil {
		c.lg.Debugf("websocket dial %s failed: %v", hostport, err)
		return nil, err
	}
	res, err := clientHandshake(conn, c.addr, c.cfg.Protocol, c.cfg.HandshakeTimeout, c.gen)
	if err != nil {
		c.lg.Debugf("websocket handshake to %s failed: %v", hostport, err)
		_ = conn.Close()
		return nil, err
	}
	ep := newEndpoint(conn, RoleClient, newEndpointID(), c.cfg.MsgType, c.cfg.RecvMaxSize, c.lg)
	ep.negotiatedProto = res.protocol
	c.reg.putEndpoint(ep)
	ep.activate()
	return ep, nil
}
