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
	"sync/atomic"

	"github.com/distromind/qcoord/ion"
	"github.com/distromind/qcoord/plan"
)

// ExecStats accumulates query-wide execution statistics observed by
// the local executor adapter: row counts in addition to whatever the
// underlying plan execution already tracks (cache hits/misses, bytes
// scanned).
type ExecStats struct {
	plan.ExecStats
	numRows int64
}

// AddRows accumulates n rows observed from a GetNext batch.
func (e *ExecStats) AddRows(n int64) {
	atomic.AddInt64(&e.numRows, n)
}

// NumRows returns the cumulative row count observed so far.
func (e *ExecStats) NumRows() int64 {
	return atomic.LoadInt64(&e.numRows)
}

// countRows counts the top-level ion structs in a batch, the way each
// one becomes a row once rendered (mirrors plan/exec_test.go's rowcount
// helper). A Batch is one ion chunk that may carry many rows, so
// GetNext needs this instead of treating each batch as a single row.
func countRows(buf []byte) int64 {
	var n int64
	for len(buf) > 0 {
		if ion.IsBVM(buf) {
			buf = buf[4:]
			continue
		}
		if ion.TypeOf(buf) == ion.StructType {
			n++
		}
		skip := ion.SizeOf(buf)
		if skip <= 0 || skip > len(buf) {
			break
		}
		buf = buf[skip:]
	}
	return n
}
