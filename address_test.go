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
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeIfaceLookup lets tests control which device names "exist" without
// depending on the machine running the suite.
func fakeIfaceLookup(known ...string) func(string) (*net.Interface, error) {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	return func(name string) (*net.Interface, error) {
		if set[name] {
			return &net.Interface{Name: name}, nil
		}
		return nil, errors.New("no such network interface")
	}
}

func TestParseAddrValid(t *testing.T) {
	orig := ifaceLookup
	ifaceLookup = fakeIfaceLookup("eth0")
	defer func() { ifaceLookup = orig }()

	for _, test := range []struct {
		in       string
		wantHost string
		wantPort uint16
	}{
		{"ws://127.0.0.1", "127.0.0.1", 80},
		{"ws://127.0.0.1:5555", "127.0.0.1", 5555},
		{"ws://*:5555", "*", 5555},
		{"ws://eth0;127.0.0.1:5555", "127.0.0.1", 5555},
	} {
		t.Run(test.in, func(t *testing.T) {
			a, err := ParseAddr(test.in)
			if err != nil {
				t.Fatalf("ParseAddr(%q): unexpected error: %v", test.in, err)
			}
			if a.Host != test.wantHost || a.Port != test.wantPort {
				t.Fatalf("ParseAddr(%q) = {%s %d}, want {%s %d}",
					test.in, a.Host, a.Port, test.wantHost, test.wantPort)
			}
		})
	}
}

func TestParseAddrInvalid(t *testing.T) {
	orig := ifaceLookup
	ifaceLookup = fakeIfaceLookup("eth0")
	defer func() { ifaceLookup = orig }()

	for _, in := range []string{
		"ws://*:",
		"ws://*:1000000",
		"ws://*:some_port",
		"ws://:5555",
		"ws://-hostname:5555",
		"ws://abc.123.---.#:5555",
		"ws://[::1]:5555",
		"ws://abc.123.:5555",
		"ws://abc...123:5555",
		"ws://.123:5555",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAddr(in)
			require.Error(t, err)
			var wsErr *Error
			require.ErrorAs(t, err, &wsErr)
			require.Equal(t, KindInvalidAddress, wsErr.Kind, "address %q", in)
		})
	}
}

func TestParseAddrNoSuchDevice(t *testing.T) {
	orig := ifaceLookup
	ifaceLookup = fakeIfaceLookup() // nothing known to exist
	defer func() { ifaceLookup = orig }()

	for _, in := range []string{
		"ws://eth10000;127.0.0.1:5555",
		"ws://eth10000:5555",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAddr(in)
			require.Error(t, err)
			var wsErr *Error
			require.ErrorAs(t, err, &wsErr)
			require.Equal(t, KindNoSuchDevice, wsErr.Kind, "address %q", in)
		})
	}
}

func TestParseAddrDefaultPort(t *testing.T) {
	a, err := ParseAddr("ws://127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Port != 80 {
		t.Fatalf("expected default port 80, got %d", a.Port)
	}
}

func TestParseAddrResourcePath(t *testing.T) {
	a, err := ParseAddr("ws://127.0.0.1:5555/mychan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Path != "/mychan" {
		t.Fatalf("expected path /mychan, got %q", a.Path)
	}
	a, err = ParseAddr("ws://127.0.0.1:5555")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Path != "/" {
		t.Fatalf("expected default path /, got %q", a.Path)
	}
}
