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

package coordinator

import (
	"fmt"

	"github.com/dchest/siphash"
)

// StaticScheduler assigns hosts from a fixed round-robin list,
// ignoring data locality. Useful for tests and for deployments where
// every backend is equally close to every scan range.
type StaticScheduler struct {
	Hosts []HostPort
}

// GetHosts implements Scheduler.
func (s *StaticScheduler) GetHosts(locs []DataLocation) ([]HostPort, error) {
	if len(s.Hosts) == 0 {
		return nil, fmt.Errorf("coordinator: StaticScheduler has no hosts configured")
	}
	out := make([]HostPort, len(locs))
	for i := range locs {
		out[i] = s.Hosts[i%len(s.Hosts)]
	}
	return out, nil
}

// HashScheduler picks a host for each data location by hashing its
// Key, the same siphash-based dispersion tenant.go's tenantSegment.ETag
// uses to scatter cache-directory bits evenly. Repeated queries over
// the same scan ranges land on the same backend, improving the odds
// of a warm local cache there.
type HashScheduler struct {
	Hosts []HostPort
}

const (
	hashSchedulerKey0 = 0x5f3a1dcb8e2a7719
	hashSchedulerKey1 = 0x1b4c6fae9d028335
)

// GetHosts implements Scheduler.
func (s *HashScheduler) GetHosts(locs []DataLocation) ([]HostPort, error) {
	if len(s.Hosts) == 0 {
		return nil, fmt.Errorf("coordinator: HashScheduler has no hosts configured")
	}
	out := make([]HostPort, len(locs))
	for i, loc := range locs {
		lo, _ := siphash.Hash128(hashSchedulerKey0, hashSchedulerKey1, []byte(loc.Key))
		out[i] = s.Hosts[lo%uint64(len(s.Hosts))]
	}
	return out, nil
}
