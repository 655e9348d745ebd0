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
	"sync"
)

// BackendExecState is one record per remote fragment instance,
// identified by a dense backend_num assigned in dispatch order.
//
// Fields below lock are mutated only while holding lock; backendNum,
// fragmentID and hostPort are set once at construction (before the
// record is published into the coordinator's table) and are
// thereafter read-only.
type BackendExecState struct {
	backendNum int
	fragmentID QueryId
	hostPort   HostPort

	// totalSplitSize is the sum of scan-range lengths for this
	// instance; computed at construction, used only for the
	// post-dispatch size-distribution log.
	totalSplitSize int64

	// execRequest/execParams are borrowed views valid only during
	// Exec; both are nulled by the dispatcher before Exec returns.
	execRequest *FragmentRequest
	execParams  *FragmentParams

	lock      sync.Mutex
	status    Status
	initiated bool
	done      bool
	profile   *RuntimeProfile
}

func newBackendExecState(num int, fragmentID QueryId, hp HostPort, req *FragmentRequest, params *FragmentParams) *BackendExecState {
	return &BackendExecState{
		backendNum:     num,
		fragmentID:     fragmentID,
		hostPort:       hp,
		totalSplitSize: params.totalSplitSize(),
		execRequest:    req,
		execParams:     params,
	}
}

// BackendNum returns the record's dense index in the coordinator's
// backend list (invariant 3).
func (b *BackendExecState) BackendNum() int { return b.backendNum }

// FragmentID returns the derived fragment identifier dispatched to
// this backend.
func (b *BackendExecState) FragmentID() QueryId { return b.fragmentID }

// HostPort returns the resolved endpoint this backend was dispatched to.
func (b *BackendExecState) HostPort() HostPort { return b.hostPort }

// TotalSplitSize returns the sum of scan-range lengths assigned to
// this instance, used only for dispatch-time logging.
func (b *BackendExecState) TotalSplitSize() int64 { return b.totalSplitSize }

// clearBorrowedViews nulls execRequest/execParams once Exec no longer
// needs them; storage outlives Exec but semantic ownership does not.
func (b *BackendExecState) clearBorrowedViews() {
	b.lock.Lock()
	b.execRequest = nil
	b.execParams = nil
	b.lock.Unlock()
}

// setInitiated records that the ExecPlanFragment RPC returned OK at
// least once for this backend.
func (b *BackendExecState) setInitiated() {
	b.lock.Lock()
	b.initiated = true
	b.lock.Unlock()
}

// recordDispatchFailure records a dispatch-time (ExecPlanFragment)
// failure, never marking the record initiated.
func (b *BackendExecState) recordDispatchFailure(kind error, msg string) {
	b.lock.Lock()
	b.status = b.status.Fail(kind, msg)
	b.lock.Unlock()
}

// snapshot returns the fields relevant to Cancel's decision under a
// single lock acquisition.
func (b *BackendExecState) snapshot() (initiated, done bool) {
	b.lock.Lock()
	initiated, done = b.initiated, b.done
	b.lock.Unlock()
	return
}

// recordCancelFailure appends a Cancel-time RPC failure using the
// sticky-first-error-with-append rule (invariant: monotone failure).
func (b *BackendExecState) recordCancelFailure(kind error, msg string) {
	b.lock.Lock()
	b.status = b.status.Fail(kind, msg)
	b.lock.Unlock()
}

// update applies an UpdateFragmentExecStatus report to this record.
// It enforces the monotone-failure invariant: a report that attempts
// to move an already-failed record back to OK is rejected rather than
// silently applied. It returns the profile that should be attached to
// the query profile (non-nil only when done transitioned to true),
// and whether this update should trigger cancellation.
func (b *BackendExecState) update(status Status, done bool, profile *RuntimeProfile) (attach *RuntimeProfile, triggerCancel bool, err error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if !b.status.OK() && status.OK() {
		return nil, false, fmt.Errorf("%w: backend %d reported OK after a prior failure", ErrInternal, b.backendNum)
	}
	b.status = status
	b.done = done
	b.profile = profile

	if done {
		attach = profile
	}
	if !status.OK() {
		triggerCancel = true
	}
	return attach, triggerCancel, nil
}

// Status returns the record's current status.
func (b *BackendExecState) Status() Status {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.status
}

// Done reports whether the backend has reported final status.
func (b *BackendExecState) Done() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.done
}

// Profile returns the latest runtime profile received from the
// backend, or nil if none has arrived yet.
func (b *BackendExecState) Profile() *RuntimeProfile {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.profile
}

// backendTable is the flat, append-only vector of BackendExecState
// indexed by backend_num.
type backendTable struct {
	records []*BackendExecState
}

func (t *backendTable) append(r *BackendExecState) {
	t.records = append(t.records, r)
}

func (t *backendTable) len() int {
	return len(t.records)
}

func (t *backendTable) at(backendNum int) (*BackendExecState, bool) {
	if backendNum < 0 || backendNum >= len(t.records) {
		return nil, false
	}
	return t.records[backendNum], true
}

func (t *backendTable) all() []*BackendExecState {
	return t.records
}
