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
	"bufio"
	"io"
	"log"
	"net"

	"github.com/distromind/qcoord/ion"
)

// Registry resolves an inbound UpdateFragmentExecStatus report's
// fragment-less query scope to the Coordinator instance it belongs
// to. A production deployment typically has one Coordinator per
// in-flight query, keyed by QueryId; the registry is how the listener
// dispatches a connection's reports to the right one.
type Registry interface {
	Lookup(id QueryId) (*Coordinator, bool)
}

// Serve accepts connections on ln and serves UpdateFragmentExecStatus
// RPCs against the Coordinator instances held in reg, until ln.Accept
// returns an error (typically because ln was closed).
//
// This mirrors plan.Serve/tenant/tnproto.Serve's per-connection
// dispatch loop, adapted to this package's single request/response
// frame per message instead of a streaming query result.
func Serve(ln net.Listener, reg Registry, logger *log.Logger) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConn(conn, reg, logger)
	}
}

func serveConn(conn net.Conn, reg Registry, logger *log.Logger) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for {
		f, err := readFrame(rd)
		if err != nil {
			if err != io.EOF && logger != nil {
				logger.Printf("coordinator: connection error: %s", err)
			}
			return
		}
		body, err := readBody(rd, f.length())
		if err != nil {
			if logger != nil {
				logger.Printf("coordinator: reading frame body: %s", err)
			}
			return
		}
		if f.kind() != frameUpdateStatus {
			writeFrame(conn, frameErr, []byte("coordinator: server only accepts UpdateFragmentExecStatus"))
			return
		}
		// Each request carries its own symbol table as a wire prefix
		// (see remoteClient.roundTrip); the client's interned IDs are
		// meaningless against any other *ion.Symtab.
		var st ion.Symtab
		body, err = st.Unmarshal(body)
		if err != nil {
			writeFrame(conn, frameErr, []byte(err.Error()))
			continue
		}
		req, err := DecodeUpdateStatusRequest(body, &st)
		if err != nil {
			writeFrame(conn, frameErr, []byte(err.Error()))
			continue
		}
		status := handleUpdateStatus(reg, req)
		var out ion.Buffer
		encodeStatus(&out, &wireSymtab, status)
		if err := writeFrame(conn, frameUpdateResult, out.Bytes()); err != nil {
			return
		}
	}
}

func handleUpdateStatus(reg Registry, req *UpdateStatusRequest) Status {
	// A fragment ID's Hi half is always the owning query's Hi (only Lo
	// is offset per backend_num), so the registry can resolve the
	// Coordinator from the fragment ID alone.
	c, ok := reg.Lookup(QueryId{Hi: req.FragmentID.Hi})
	if !ok {
		return StatusOK.Fail(ErrInternal, "unknown query for UpdateFragmentExecStatus")
	}
	return c.UpdateFragmentExecStatus(req.BackendNum, req.Status, req.Done, req.Profile)
}
