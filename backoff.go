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

import "time"

// backoff implements the exponential reconnect delay of §4.6: start at
// Min, double on every failure up to Max, and retry indefinitely. It is
// not safe for concurrent use; one belongs to exactly one Connector.
type backoff struct {
	Min, Max time.Duration
	cur      time.Duration
}

const (
	defaultReconnectMin = 100 * time.Millisecond
	defaultReconnectMax = 2 * time.Second
)

func newBackoff(min, max time.Duration) *backoff {
	if min <= 0 {
		min = defaultReconnectMin
	}
	if max <= 0 {
		max = defaultReconnectMax
	}
	return &backoff{Min: min, Max: max}
}

// next returns the delay to wait before the next attempt and advances
// the internal state for the attempt after that.
func (b *backoff) next() time.Duration {
	if b.cur == 0 {
		b.cur = b.Min
	}
	d := b.cur
	b.cur *= 2
	if b.cur > b.Max {
		b.cur = b.Max
	}
	return d
}

// reset restores the backoff to its initial state, called after a
// connection is established successfully (§4.6).
func (b *backoff) reset() { b.cur = 0 }
