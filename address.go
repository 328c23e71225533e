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
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const wsScheme = "ws://"

// Addr is the parsed, validated form of a `ws://` connect or bind string
// (§4.1 and §6). It carries no behavior of its own; the listener and
// connector consult it to decide what to dial or bind.
type Addr struct {
	Iface string // local interface name, empty if no "iface;" prefix was given
	Host  string // "*", a dotted IPv4 literal, or a DNS hostname
	Port  uint16
	Path  string // resource path, always starts with '/'; default "/"

	// IsWildcard reports whether Host is the bind-any wildcard "*".
	IsWildcard bool
	// IsDevice reports whether Host names a local network interface
	// rather than an IP literal or DNS name (§4.1: single-label,
	// non-wildcard, non-IPv4-literal hosts are resolved as devices).
	IsDevice bool
}

// ifaceLookup is overridden in tests to avoid depending on the test
// machine's real network interfaces.
var ifaceLookup = net.InterfaceByName

// ParseAddr validates s against the grammar in spec §4.1/§6 and returns
// the structural record, or a classified *Error (KindInvalidAddress /
// KindNoSuchDevice). The parser is pure: it never does DNS resolution or
// opens a socket.
func ParseAddr(s string) (*Addr, error) {
	if !strings.HasPrefix(s, wsScheme) {
		return nil, wrapErr(KindInvalidAddress, "missing ws:// scheme", errors.Errorf("address %q", s))
	}
	rest := s[len(wsScheme):]

	var iface string
	if idx := strings.IndexByte(rest, ';'); idx >= 0 {
		iface = rest[:idx]
		rest = rest[idx+1:]
		if iface == "" {
			return nil, newErr(KindInvalidAddress, "empty interface prefix")
		}
		if _, err := ifaceLookup(iface); err != nil {
			return nil, wrapErr(KindNoSuchDevice, "interface "+iface, err)
		}
	}

	hostport, path := splitPath(rest)
	host, port, err := splitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return nil, newErr(KindInvalidAddress, "empty host")
	}
	if strings.HasPrefix(host, "[") {
		return nil, newErr(KindInvalidAddress, "IPv6 literals are not accepted")
	}

	a := &Addr{Iface: iface, Port: port, Path: path}

	switch {
	case host == "*":
		a.Host = "*"
		a.IsWildcard = true
	case isDottedIPv4(host):
		a.Host = host
	default:
		labels := strings.Split(host, ".")
		for _, l := range labels {
			if !validLabel(l) {
				return nil, newErr(KindInvalidAddress, "invalid host label in "+host)
			}
		}
		if len(labels) == 1 {
			// Single-label, non-wildcard, non-IPv4 host: resolved as a
			// local device, not a DNS name (§4.1, §6 eth10000 examples).
			if _, err := ifaceLookup(host); err != nil {
				return nil, wrapErr(KindNoSuchDevice, "interface "+host, err)
			}
			a.IsDevice = true
		}
		a.Host = host
	}
	return a, nil
}

// splitPath separates an optional "/resource" suffix; the resource path
// is not used for routing at this layer (§4.3), only surfaced.
func splitPath(s string) (hostport, path string) {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		return s[:idx], s[idx:]
	}
	return s, "/"
}

// splitHostPort separates "host" or "host:port"; port defaults to 80
// when absent, per §4.1/§6.
func splitHostPort(s string) (host string, port uint16, err error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return s, 80, nil
	}
	host = s[:idx]
	portStr := s[idx+1:]
	if portStr == "" {
		return "", 0, newErr(KindInvalidAddress, "empty port")
	}
	n, convErr := strconv.Atoi(portStr)
	if convErr != nil || n < 1 || n > 65535 {
		return "", 0, newErr(KindInvalidAddress, "port out of range: "+portStr)
	}
	return host, uint16(n), nil
}

// isDottedIPv4 reports whether host is a 4-octet dotted-decimal literal,
// e.g. "127.0.0.1". Hostnames that happen to parse as other net.IP forms
// (bare integers, IPv6) are rejected elsewhere.
func isDottedIPv4(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// validLabel enforces the hostname-label grammar of §4.1: 1-63 chars,
// each in [A-Za-z0-9-], not starting or ending with '-'. An empty label
// (produced by a leading, trailing, or doubled '.') is always invalid;
// this is what makes "abc.123.", "abc...123" and ".123" fail even though
// each individual non-empty label in them would otherwise be legal.
func validLabel(l string) bool {
	if len(l) < 1 || len(l) > 63 {
		return false
	}
	if l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for _, c := range l {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

// String renders the address back to its canonical ws:// form.
func (a *Addr) String() string {
	var b strings.Builder
	b.WriteString(wsScheme)
	if a.Iface != "" {
		b.WriteString(a.Iface)
		b.WriteByte(';')
	}
	b.WriteString(a.Host)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(int(a.Port)))
	if a.Path != "" && a.Path != "/" {
		b.WriteString(a.Path)
	}
	return b.String()
}
