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
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Coordinator is a single long-lived object per in-flight query. It
// dispatches non-root fragments to remote backends, drives the root
// fragment locally, streams result batches to the caller, aggregates
// per-backend status and profiles, and orchestrates cancellation.
//
// A Coordinator is not reusable across queries: construct one per
// QueryExecRequest and discard it after Close.
type Coordinator struct {
	executor    PlanFragmentExecutor
	scheduler   Scheduler
	clientCache ClientCache
	streams     *streamMgr
	logger      *log.Logger
	selfAddr    HostPort
	token       QueryToken

	// startupLock is held for the entirety of Exec and for the
	// entirety of the public Cancel, so Cancel never observes a
	// partially built backend list.
	startupLock sync.Mutex
	// waitLock is held across executor.Open(); disjoint from
	// startupLock so Cancel can proceed while Open blocks.
	waitLock sync.Mutex
	// profileLock serializes attachment of child profiles into
	// queryProfile; attachment can be requested from the GetNext
	// end-of-stream path or from UpdateFragmentExecStatus callbacks
	// running on RPC-server goroutines (resolves the open question in
	// spec §9 design notes).
	profileLock sync.Mutex

	// MaxDispatchWorkers caps the parallel ExecPlanFragment fan-out
	// pool (see dispatch.go's fanOutExec); zero means the dispatcher
	// picks its own default based on GOMAXPROCS.
	MaxDispatchWorkers int

	queryID  QueryId
	backends backendTable

	queryProfile *RuntimeProfile
	stats        ExecStats

	waitCalled bool
	waitErr    error

	// execCancel stops the executor's Open/GetNext context; it gives
	// Cancel a real observation point to unblock a Wait that is
	// currently stuck in executor.Open (see the Wait/Cancel
	// interleaving design note). Guarded by execCancelMu since Wait
	// (under waitLock) and cancel (under startupLock) can run
	// concurrently by design.
	execCancelMu sync.Mutex
	execCancel   context.CancelFunc

	cancelOnce sync.Once
	cancelled  int32
	closeOnce  sync.Once
	closed     int32
}

// New constructs a Coordinator around the given collaborators.
// selfAddr is the coordinator's own host/port, used to rewrite
// second-level fragment destinations during dispatch.
func New(executor PlanFragmentExecutor, scheduler Scheduler, clientCache ClientCache, selfAddr HostPort, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		executor:     executor,
		scheduler:    scheduler,
		clientCache:  clientCache,
		streams:      newStreamMgr(),
		logger:       logger,
		selfAddr:     selfAddr,
		token:        NewQueryToken(),
		queryProfile: NewRuntimeProfile("query"),
	}
}

// QueryToken returns the human-loggable handle minted for this
// Coordinator, distinct from the wire-level QueryId.
func (c *Coordinator) QueryToken() QueryToken { return c.token }

// Profile returns the root runtime profile. It accumulates children as
// backends and the local fragment finish; callers that want a
// point-in-time snapshot should copy what they need before it mutates
// further.
func (c *Coordinator) Profile() *RuntimeProfile {
	c.profileLock.Lock()
	defer c.profileLock.Unlock()
	return c.queryProfile
}

// RowDesc returns the output column names of the root fragment.
func (c *Coordinator) RowDesc() []string { return c.executor.RowDesc() }

// Stats returns the coordinator's execution statistics.
func (c *Coordinator) Stats() *ExecStats { return &c.stats }

// Exec prepares the local fragment, then dispatches all remote
// fragments (spec §4.1, §4.2). It returns nil only once every
// ExecPlanFragment RPC has succeeded; any failure triggers internal
// cancellation and Exec returns the first dispatch error.
func (c *Coordinator) Exec(ctx context.Context, req *QueryExecRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	c.startupLock.Lock()
	defer c.startupLock.Unlock()

	c.queryID = req.ID
	return c.dispatch(ctx, req)
}

// Wait is idempotent. On the first call it invokes executor.Open(),
// which may block waiting for upstream data; subsequent calls return
// the first call's result without re-opening.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.waitLock.Lock()
	defer c.waitLock.Unlock()
	if c.waitCalled {
		return c.waitErr
	}
	c.waitCalled = true
	execCtx, cancel := context.WithCancel(ctx)
	c.execCancelMu.Lock()
	c.execCancel = cancel
	c.execCancelMu.Unlock()
	if c.IsCancelled() {
		// a Cancel raced us in before Open started; stop immediately
		cancel()
	}
	c.waitErr = c.executor.Open(execCtx)
	return c.waitErr
}

// GetNext must be preceded by a successful Wait. Each call delegates
// to executor.GetNext; a nil batch signals end-of-stream, at which
// point the local executor is closed and its profile attached to the
// query profile. If GetNext itself errors, the executor is also
// closed and any close-time error is appended.
func (c *Coordinator) GetNext() (Batch, error) {
	b, err := c.executor.GetNext()
	if err != nil {
		closeErr := c.closeExecutor()
		if closeErr != nil {
			return nil, fmt.Errorf("%s; close: %s", err, closeErr)
		}
		return nil, err
	}
	if b != nil {
		c.stats.AddRows(countRows(b))
		return b, nil
	}
	// end-of-stream
	closeErr := c.closeExecutor()
	c.attachLocalProfile()
	return nil, closeErr
}

// closeExecutor closes the local executor at most once.
func (c *Coordinator) closeExecutor() error {
	var err error
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		err = c.executor.Close()
	})
	return err
}

// IsClosed reports whether the local executor has been closed.
func (c *Coordinator) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

func (c *Coordinator) attachLocalProfile() {
	p := c.executor.RuntimeProfile()
	if p == nil {
		return
	}
	c.profileLock.Lock()
	c.queryProfile.AddChild(p)
	c.profileLock.Unlock()
}

// Cancel is the public entry point: it always acquires the startup
// lock before running the cancellation algorithm.
func (c *Coordinator) Cancel() {
	c.startupLock.Lock()
	defer c.startupLock.Unlock()
	c.cancel(true)
}

// cancel runs the cancellation algorithm (spec §4.5). When
// lockAlready is true the caller already holds startupLock (e.g.
// Exec's own failure path, or a call arriving through
// UpdateFragmentExecStatus, which deliberately never takes
// startupLock itself to avoid lock-order inversion with
// backend_state.lock).
func (c *Coordinator) cancel(lockAlready bool) {
	_ = lockAlready // the lock is always held by the caller in this implementation; see Cancel and dispatch.
	c.cancelOnce.Do(func() {
		atomic.StoreInt32(&c.cancelled, 1)
	})
	c.streams.Cancel(c.queryID)
	c.execCancelMu.Lock()
	cancel := c.execCancel
	c.execCancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	for _, b := range c.backends.all() {
		initiated, done := b.snapshot()
		if !initiated || done {
			continue
		}
		cl, err := c.clientCache.GetClient(b.HostPort())
		if err != nil {
			// acquisition failure: skip this backend, keep going
			continue
		}
		status, err := cl.CancelPlanFragment(context.Background(), b.FragmentID())
		if err != nil {
			b.recordCancelFailure(ErrTransport, err.Error())
		} else if !status.OK() {
			b.recordCancelFailure(ErrRemoteExec, status.Error())
		}
		c.clientCache.ReleaseClient(b.HostPort(), cl)
	}
}

// UpdateFragmentExecStatus is the coordinator-served RPC handler
// (spec §4.3). It rejects unknown backend_num with an internal error,
// applies the monotone-failure invariant, attaches a done backend's
// profile to the query profile, and triggers global Cancel on any
// non-OK status.
func (c *Coordinator) UpdateFragmentExecStatus(backendNum int, status Status, done bool, profile *RuntimeProfile) Status {
	b, ok := c.backends.at(backendNum)
	if !ok {
		return StatusOK.Fail(ErrInternal, fmt.Sprintf("unknown backend_num %d", backendNum))
	}
	attach, triggerCancel, err := b.update(status, done, profile)
	if err != nil {
		return StatusOK.Fail(ErrInternal, err.Error())
	}
	if attach != nil {
		c.profileLock.Lock()
		c.queryProfile.AddChild(attach)
		c.profileLock.Unlock()
	}
	if triggerCancel {
		c.Cancel()
	}
	return StatusOK
}

// IsCancelled reports whether Cancel has been invoked for this query.
func (c *Coordinator) IsCancelled() bool {
	return atomic.LoadInt32(&c.cancelled) != 0
}

// Close releases the local executor if it has not already been
// closed; it is safe to call multiple times and safe to call without
// ever having called GetNext.
func (c *Coordinator) Close() error {
	return c.closeExecutor()
}
