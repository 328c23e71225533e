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

// Package wstransport implements a RFC 6455 WebSocket transport for a
// scalability-protocols style messaging socket: framing and masking,
// the client/server opening handshake, an endpoint state machine that
// enforces close semantics and control-frame policy, message
// reassembly with size and UTF-8 enforcement, and listener/connector
// address management with reconnect backoff and bind takeover.
package wstransport
