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

//go:build windows

package sockopt

import (
	"net"
	"syscall"
)

// Control is a no-op on windows: SO_REUSEPORT has no equivalent and
// SO_REUSEADDR's Windows semantics are unsafe to set unconditionally
// (it permits silent port hijacking), so bind-takeover on Windows
// relies solely on the promotion ordering in listener.go rather than a
// kernel-level reuse option.
func Control() func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, _ syscall.RawConn) error { return nil }
}

// ListenConfig returns a net.ListenConfig pre-wired with Control.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: Control()}
}
