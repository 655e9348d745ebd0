// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"sync"

	"github.com/distromind/qcoord/coordinator"
)

// registry tracks every in-flight Coordinator this daemon owns, keyed
// by QueryId.Hi (a fragment's Hi half always equals its owning query's
// Hi; see coordinator/server.go's handleUpdateStatus), so that inbound
// UpdateFragmentExecStatus RPCs can be routed to the right Coordinator.
type registry struct {
	mu    sync.Mutex
	byHi  map[uint64]*coordinator.Coordinator
}

func newRegistry() *registry {
	return &registry{byHi: make(map[uint64]*coordinator.Coordinator)}
}

// Lookup implements coordinator.Registry.
func (r *registry) Lookup(id coordinator.QueryId) (*coordinator.Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byHi[id.Hi]
	return c, ok
}

func (r *registry) register(id coordinator.QueryId, c *coordinator.Coordinator) {
	r.mu.Lock()
	r.byHi[id.Hi] = c
	r.mu.Unlock()
}

func (r *registry) unregister(id coordinator.QueryId) {
	r.mu.Lock()
	delete(r.byHi, id.Hi)
	r.mu.Unlock()
}
