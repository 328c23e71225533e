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

//go:build !windows

// Package sockopt sets the platform socket options the Listener needs
// for fast bind-takeover (§4.6): SO_REUSEADDR so a closed holder's
// address can be rebound immediately, and SO_REUSEPORT, where the
// kernel supports it, so a promoted waiting listener can bind the same
// (iface, addr, port) tuple without racing the outgoing holder's close.
package sockopt

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Control returns a net.ListenConfig.Control function that sets
// SO_REUSEADDR and, best-effort, SO_REUSEPORT on the listening fd
// before bind(2) runs.
func Control() func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var setErr error
		err := c.Control(func(fd uintptr) {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				setErr = e
				return
			}
			// Not every unix kernel enforces SO_REUSEPORT the same way; a
			// failure here is not fatal to binding.
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}
		return setErr
	}
}

// ListenConfig returns a net.ListenConfig pre-wired with Control.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: Control()}
}
