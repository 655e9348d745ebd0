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
	"io/fs"
	"sync"
	"time"

	"github.com/distromind/qcoord/ion"
	"github.com/distromind/qcoord/plan"
)

// batchPipe bridges plan.Exec's push-based output (repeated whole-chunk
// io.Writer.Write calls) to GetNext's pull-based contract. It is
// deliberately not an io.Pipe: io.Pipe.Read does not guarantee
// returning exactly one Write's worth of data, which would merge or
// split "batches" and break the one-Write-is-one-batch contract
// vm.QuerySink writers already rely on.
type batchPipe struct {
	ctx context.Context
	ch  chan []byte
}

func newBatchPipe(ctx context.Context) *batchPipe {
	return &batchPipe{ctx: ctx, ch: make(chan []byte)}
}

// Write implements io.Writer. It copies p, since the caller (vm's
// sink) may reuse or release the buffer once Write returns.
func (b *batchPipe) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case b.ch <- cp:
		return len(p), nil
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	}
}

// LocalFragmentExecutor is the default PlanFragmentExecutor: it drives
// the root fragment via plan.Exec (the same entry point LocalTransport
// uses) and adapts its push-based output into GetNext's pull contract
// through a batchPipe.
type LocalFragmentExecutor struct {
	// Decoder resolves table handles referenced by the plan.
	Decoder plan.Decoder
	// Runner is the local execution environment passed through to
	// plan.ExecParams.Runner.
	Runner plan.Runner
	// FS is the filesystem plan execution reads inputs from.
	FS fs.FS
	// Parallel is the local parallelism passed to plan.ExecParams;
	// zero means runtime.GOMAXPROCS(0).
	Parallel int

	tree     *plan.Tree
	pipe     *batchPipe
	cancelFn context.CancelFunc
	runDone  chan struct{}
	runErr   error
	stats    plan.ExecStats

	closeOnce sync.Once

	startedAt time.Time
	profile   *RuntimeProfile
}

// Prepare decodes req.Plan into a *plan.Tree. It must complete before
// any remote ExecPlanFragment RPC is issued, since the root fragment
// is what registers the receivers remote producers will connect to.
func (e *LocalFragmentExecutor) Prepare(req FragmentRequest, params FragmentParams) error {
	var st ion.Symtab
	buf, err := st.Unmarshal(req.Plan)
	if err != nil {
		return fmt.Errorf("coordinator: unmarshaling root fragment symbol table: %w", err)
	}
	t, err := plan.Decode(e.Decoder, &st, buf)
	if err != nil {
		return fmt.Errorf("coordinator: decoding root fragment: %w", err)
	}
	e.tree = t
	return nil
}

// Open starts the root fragment's execution in the background. It
// does not itself block waiting for the first batch of upstream data
// (unlike a natively pull-based executor, this push-based engine has
// no distinct "prepare the exchange, then wait for data" phase to
// observe); the first blocking point visible to the caller is the
// first GetNext call, which is equivalent from the caller's
// perspective since Wait only promises Open has been called, not that
// data has arrived.
func (e *LocalFragmentExecutor) Open(ctx context.Context) error {
	if e.tree == nil {
		return fmt.Errorf("%w: Open called before Prepare", ErrInternal)
	}
	var runCtx context.Context
	runCtx, e.cancelFn = context.WithCancel(ctx)
	e.pipe = newBatchPipe(runCtx)
	e.runDone = make(chan struct{})
	e.startedAt = time.Now()

	go func() {
		defer close(e.runDone)
		defer close(e.pipe.ch)
		ep := &plan.ExecParams{
			Plan:     e.tree,
			Output:   e.pipe,
			Parallel: e.Parallel,
			Context:  runCtx,
			Runner:   e.Runner,
			FS:       e.FS,
		}
		e.runErr = plan.Exec(ep)
		e.stats = ep.Stats
	}()
	return nil
}

// GetNext implements PlanFragmentExecutor.
func (e *LocalFragmentExecutor) GetNext() (Batch, error) {
	b, ok := <-e.pipe.ch
	if ok {
		return Batch(b), nil
	}
	<-e.runDone
	if e.runErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutor, e.runErr)
	}
	return nil, nil
}

// Close cancels any in-flight execution and waits for it to unwind.
func (e *LocalFragmentExecutor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.cancelFn != nil {
			e.cancelFn()
		}
		if e.runDone != nil {
			// drain any buffered batch so the producer goroutine
			// is not stuck sending on pipe.ch forever
			for {
				select {
				case _, ok := <-e.pipe.ch:
					if !ok {
						goto drained
					}
				case <-e.runDone:
					goto drained
				}
			}
		drained:
			<-e.runDone
		}
		if e.runErr != nil && e.runErr != context.Canceled {
			err = fmt.Errorf("%w: %s", ErrExecutor, e.runErr)
		}
	})
	return err
}

// RowDesc implements PlanFragmentExecutor.
func (e *LocalFragmentExecutor) RowDesc() []string {
	if e.tree == nil {
		return nil
	}
	names := make([]string, len(e.tree.Results))
	for i := range e.tree.Results {
		names[i] = e.tree.Results[i].Result()
	}
	return names
}

// RuntimeProfile implements PlanFragmentExecutor.
func (e *LocalFragmentExecutor) RuntimeProfile() *RuntimeProfile {
	if e.profile == nil {
		e.profile = NewRuntimeProfile("root-fragment")
	}
	e.profile.AddCounter("cache_hits", e.stats.CacheHits)
	e.profile.AddCounter("cache_misses", e.stats.CacheMisses)
	e.profile.AddCounter("bytes_scanned", e.stats.BytesScanned)
	if !e.startedAt.IsZero() {
		e.profile.AddTimer("total_time", time.Since(e.startedAt))
	}
	return e.profile
}
