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
	"sync"

	"github.com/nats-io/nuid"
)

// endpointID is a short, sortable, collision-resistant handle minted for
// every Endpoint and Listener. The socket layer holds these instead of
// live pointers and resolves them through the registry (Design Notes
// §9).
type endpointID string

func newEndpointID() endpointID { return endpointID(nuid.Next()) }

// registry resolves an id-keyed, non-owning handle back to its *Endpoint.
// One registry is shared by all endpoints and listeners created from the
// same Transport.
type registry struct {
	mu        sync.RWMutex
	endpoints map[endpointID]*Endpoint
	listeners map[endpointID]*Listener
}

func newRegistry() *registry {
	return &registry{
		endpoints: make(map[endpointID]*Endpoint),
		listeners: make(map[endpointID]*Listener),
	}
}

func (r *registry) putEndpoint(e *Endpoint) {
	r.mu.Lock()
	r.endpoints[e.id] = e
	r.mu.Unlock()
}

func (r *registry) removeEndpoint(id endpointID) {
	r.mu.Lock()
	delete(r.endpoints, id)
	r.mu.Unlock()
}

func (r *registry) endpoint(id endpointID) (*Endpoint, bool) {
	r.mu.RLock()
	e, ok := r.endpoints[id]
	r.mu.RUnlock()
	return e, ok
}

func (r *registry) putListener(l *Listener) {
	r.mu.Lock()
	r.listeners[l.id] = l
	r.mu.Unlock()
}

func (r *registry) removeListener(id endpointID) {
	r.mu.Lock()
	delete(r.listeners, id)
	r.mu.Unlock()
}
