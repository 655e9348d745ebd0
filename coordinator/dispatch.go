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
	"math"
	"runtime"
	"sync"

	"golang.org/x/exp/slices"
)

// dispatch runs the fragment-dispatcher algorithm (spec §4.2): it
// prepares the root fragment synchronously, rewrites second-level
// destinations to point at the coordinator, resolves hosts level by
// level in ascending order (so receivers exist before producers), and
// fans ExecPlanFragment RPCs out in parallel over a bounded worker pool.
//
// On any dispatch failure it invokes Cancel(lockAlready=true) and
// returns the first error; on success it returns nil.
func (c *Coordinator) dispatch(ctx context.Context, req *QueryExecRequest) error {
	root := req.Fragments[0]
	if err := c.executor.Prepare(root, root.Instances[0]); err != nil {
		c.cancel(true)
		return fmt.Errorf("%w: preparing root fragment: %s", ErrExecutor, err)
	}

	// Level 1's data-stream sink is always the coordinator itself;
	// deeper levels already carry correct destinations from planning.
	coordHostPort := c.selfAddr

	n := req.backendCount()
	backendNum := 0
	for level := 1; level < len(req.Fragments); level++ {
		frag := req.Fragments[level]
		locs := instanceLocations(frag)
		hosts, err := c.scheduler.GetHosts(locs)
		if err != nil {
			c.cancel(true)
			return fmt.Errorf("%w: resolving hosts for fragment level %d: %s", ErrInternal, level, err)
		}
		if len(hosts) != len(frag.Instances) {
			c.cancel(true)
			return fmt.Errorf("%w: scheduler returned %d hosts for %d instances at level %d", ErrInternal, len(hosts), len(frag.Instances), level)
		}
		for j := range frag.Instances {
			fragID, err := req.ID.FragmentID(backendNum+1, n)
			if err != nil {
				c.cancel(true)
				return err
			}
			params := frag.Instances[j]
			if level == 1 {
				params.Destination = coordHostPort
			}
			state := newBackendExecState(backendNum, fragID, hosts[j], &req.Fragments[level], &params)
			c.backends.append(state)
			backendNum++
		}
	}

	if err := c.fanOutExec(ctx, req); err != nil {
		for _, b := range c.backends.all() {
			b.clearBorrowedViews()
		}
		c.cancel(true)
		return err
	}
	for _, b := range c.backends.all() {
		b.clearBorrowedViews()
	}
	c.logSplitSizeDistribution()
	return nil
}

// instanceLocations gathers each instance's scan ranges as the data
// location hints the scheduler uses to pick hosts for this fragment.
func instanceLocations(frag FragmentRequest) []DataLocation {
	locs := make([]DataLocation, len(frag.Instances))
	for i, inst := range frag.Instances {
		if len(inst.ScanRanges) > 0 {
			locs[i] = inst.ScanRanges[0]
		}
	}
	return locs
}

// fanOutExec issues ExecPlanFragment RPCs for every backend in
// parallel over a bounded worker pool, sized the way plan/exec.go
// sizes its own task pool. It returns the first error encountered, if
// any; every backend's own success/failure is additionally recorded
// into its BackendExecState regardless of the aggregate result.
func (c *Coordinator) fanOutExec(ctx context.Context, req *QueryExecRequest) error {
	backends := c.backends.all()
	if len(backends) == 0 {
		return nil
	}
	workers := len(backends)
	max := c.MaxDispatchWorkers
	if max <= 0 {
		max = runtime.GOMAXPROCS(0) * 4
	}
	if workers > max {
		workers = max
	}

	work := make(chan *BackendExecState)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for b := range work {
				if err := c.execOneFragment(ctx, req, b); err != nil {
					once.Do(func() { firstErr = err })
				}
			}
		}()
	}
	for _, b := range backends {
		work <- b
	}
	close(work)
	wg.Wait()
	return firstErr
}

func (c *Coordinator) execOneFragment(ctx context.Context, req *QueryExecRequest, b *BackendExecState) error {
	cl, err := c.clientCache.GetClient(b.HostPort())
	if err != nil {
		err = fmt.Errorf("%w: acquiring client for %s: %s", ErrTransport, b.HostPort(), err)
		b.recordDispatchFailure(ErrTransport, err.Error())
		return err
	}
	defer c.clientCache.ReleaseClient(b.HostPort(), cl)

	rpcReq := &ExecFragmentRequest{
		ProtocolVersion: protocolVersionV1,
		FragmentID:      b.FragmentID(),
		Plan:            b.execRequest.Plan,
		Params:          *b.execParams,
		Coordinator:     c.selfAddr,
		BackendNum:      b.BackendNum(),
	}
	status, err := cl.ExecPlanFragment(ctx, rpcReq)
	if err != nil {
		err = fmt.Errorf("%w: ExecPlanFragment to %s: %s", ErrTransport, b.HostPort(), err)
		b.recordDispatchFailure(ErrTransport, err.Error())
		return err
	}
	if !status.OK() {
		err = fmt.Errorf("%w: backend %d (%s): %s", ErrRemoteExec, b.BackendNum(), b.HostPort(), status.Error())
		b.recordDispatchFailure(ErrRemoteExec, status.Error())
		return err
	}
	b.setInitiated()
	return nil
}

// logSplitSizeDistribution computes and logs the min/max/mean/stddev
// of per-backend total split sizes after a successful dispatch,
// mirroring the source's post-dispatch PrintBackendInfo summary.
func (c *Coordinator) logSplitSizeDistribution() {
	backends := c.backends.all()
	if len(backends) == 0 {
		return
	}
	sizes := make([]int64, len(backends))
	for i, b := range backends {
		sizes[i] = b.TotalSplitSize()
	}
	slices.Sort(sizes)

	var sum, sumSq float64
	for _, s := range sizes {
		f := float64(s)
		sum += f
		sumSq += f * f
	}
	n := float64(len(sizes))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)

	c.logger.Printf("dispatch split sizes: n=%d min=%d max=%d mean=%.1f stddev=%.1f",
		len(sizes), sizes[0], sizes[len(sizes)-1], mean, stddev)
}
