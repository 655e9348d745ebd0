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
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/distromind/qcoord/ion"
	"github.com/distromind/qcoord/plan"
	"github.com/distromind/qcoord/vm"
)

// localFileHandle is a plan.TableHandle over one file in the query's
// -data directory, addressed by its path relative to that directory.
// It is the minimal decoder a standalone binary needs: the full
// catalog/indexing machinery (db.Tenant, blockfmt.Index) exists to
// make table lookups cheap across many files, which a one-shot CLI
// run does not need.
type localFileHandle struct {
	root fs.FS
	name string
}

func (h *localFileHandle) Size() int64 {
	fi, err := fs.Stat(h.root, h.name)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (h *localFileHandle) Open(ctx context.Context) (vm.Table, error) {
	f, err := h.root.Open(h.name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	ra, ok := f.(io.ReaderAt)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("coordinatord: %s does not support random access", h.name)
	}
	return vm.NewReaderAtTable(ra, fi.Size(), 1024*1024), nil
}

func (h *localFileHandle) Encode(dst *ion.Buffer, st *ion.Symtab) error {
	dst.WriteString(h.name)
	return nil
}

// localDecoder implements plan.Decoder against a single directory on
// local disk, grounded on plan's own exec_test.go fileHandle: a table
// reference decodes to the file of that name under the data root.
type localDecoder struct {
	root fs.FS
}

func (d *localDecoder) DecodeHandle(v ion.Datum) (plan.TableHandle, error) {
	str, ok := v.String()
	if !ok {
		return nil, fmt.Errorf("coordinatord: table handle is not a string")
	}
	return &localFileHandle{root: d.root, name: str}, nil
}
