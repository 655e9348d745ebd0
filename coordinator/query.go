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
	"math"

	"github.com/dchest/siphash"
)

// same dispersion keys used by the tenant segment cache;
// only the input buffer differs.
const (
	queryIDKey0 = 0x9f17c3fd5efd3ce4
	queryIDKey1 = 0xdbf1ba5f07eee2c0
)

// QueryId identifies a single query execution. Fragment IDs derived
// from a QueryId share Hi; Lo is offset per backend.
type QueryId struct {
	Hi, Lo uint64
}

func (q QueryId) String() string {
	return fmt.Sprintf("%016x%016x", q.Hi, q.Lo)
}

// NewQueryId derives a QueryId by hashing seed (typically the raw
// query text, or a caller-supplied nonce for repeated submissions of
// the same text). Lo is masked to half the uint64 range so that
// query.Lo+backend_num can never overflow int64 for any plausible
// backend count; FragmentID still validates the real precondition
// against the actual backend count.
func NewQueryId(seed []byte) QueryId {
	lo, hi := siphash.Hash128(queryIDKey0, queryIDKey1, seed)
	return QueryId{Hi: hi, Lo: lo &^ (uint64(1) << 63)}
}

// FragmentID returns the QueryId for the k-th backend (k >= 1); k=0
// is reserved for the coordinator (root) fragment, which keeps q
// itself. It returns an error if q.Lo+k would not satisfy the
// q.Lo+N < 2^63 invariant for the given total backend count n.
func (q QueryId) FragmentID(k, n int) (QueryId, error) {
	if k <= 0 {
		return QueryId{}, fmt.Errorf("coordinator: FragmentID requires k >= 1, got %d", k)
	}
	if err := q.checkOverflow(n); err != nil {
		return QueryId{}, err
	}
	return QueryId{Hi: q.Hi, Lo: q.Lo + uint64(k)}, nil
}

// checkOverflow enforces the query.lo + N < 2^63 precondition for a
// query dispatching n backends.
func (q QueryId) checkOverflow(n int) error {
	if n < 0 {
		return fmt.Errorf("coordinator: negative backend count %d", n)
	}
	const limit = uint64(1) << 63
	if q.Lo > limit || limit-q.Lo <= uint64(n) {
		return fmt.Errorf("coordinator: query.lo=%d + N=%d backends overflows the 2^63 fragment-id precondition", q.Lo, n)
	}
	return nil
}

// HostPort is a resolved RPC endpoint.
type HostPort struct {
	Host string
	Port int
}

func (h HostPort) String() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DataLocation is an opaque hint describing where the input data for
// one fragment instance resides; it is passed to Scheduler.GetHosts
// and, for HashScheduler, also identifies the instance for hashing.
type DataLocation struct {
	// Key identifies the scan range or table partition this
	// location refers to, for scheduler hashing purposes.
	Key string
	// SplitSize is the size in bytes of the data behind this
	// location, used only for the post-dispatch size-distribution
	// summary (see Dispatch's logging).
	SplitSize int64
}

// FragmentParams describes one instance of a fragment: the concrete
// parameter vector p_i,j in spec terms (e.g. the scan ranges assigned
// to this instance).
type FragmentParams struct {
	// ScanRanges are the input splits this instance is responsible
	// for; BackendExecState.totalSplitSize is their sum.
	ScanRanges []DataLocation
	// Instance is an opaque, plan-supplied payload identifying what
	// this particular instance of the fragment should do (bound
	// table references, predicate pushdown, etc.). The coordinator
	// never interprets it; it is forwarded verbatim to the backend.
	Instance []byte
	// Destination is the data-stream sink this instance's output
	// should be sent to. The dispatcher overwrites it with the
	// coordinator's own address for every level-1 fragment instance
	// (their output always feeds the root fragment); deeper levels
	// keep whatever destination planning already assigned.
	Destination HostPort
}

func (p FragmentParams) totalSplitSize() int64 {
	var total int64
	for _, r := range p.ScanRanges {
		total += r.SplitSize
	}
	return total
}

// FragmentRequest is one entry of a QueryExecRequest's fragment list:
// the compiled plan fragment shared by all its instances, plus the
// per-instance parameter vector.
type FragmentRequest struct {
	// Plan is the compiled fragment body, opaque to the coordinator
	// beyond being handed to the executor/RPC layer.
	Plan []byte
	// Instances is P[i]; Instances[j] is p_i,j.
	Instances []FragmentParams
}

// QueryExecRequest is the input to Coordinator.Exec.
type QueryExecRequest struct {
	// ID is the query's identifier; fragment IDs are derived from it.
	ID QueryId
	// Fragments is F[0..n); Fragments[0] is the coordinator fragment.
	Fragments []FragmentRequest
}

func (r *QueryExecRequest) validate() error {
	if len(r.Fragments) < 1 {
		return fmt.Errorf("%w: QueryExecRequest must have at least one fragment", ErrInternal)
	}
	if len(r.Fragments[0].Instances) != 1 {
		return fmt.Errorf("%w: coordinator fragment must have exactly one instance, got %d", ErrInternal, len(r.Fragments[0].Instances))
	}
	n := r.backendCount()
	if n > math.MaxInt32 {
		return fmt.Errorf("%w: implausible backend count %d", ErrInternal, n)
	}
	return r.ID.checkOverflow(n)
}

// backendCount is the total number of remote fragment instances
// across all non-root fragments (sum of |P[i]| for i >= 1).
func (r *QueryExecRequest) backendCount() int {
	n := 0
	for _, f := range r.Fragments[1:] {
		n += len(f.Instances)
	}
	return n
}
