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
	"errors"
	"fmt"
)

// Error kinds, matching errors.Is against the sentinels below rather
// than a parallel status-code enum (see plan/exec.go's plain errors.Join
// usage for the same pattern in this tree).
var (
	// ErrTransport wraps an RPC-layer (network/connection) failure.
	ErrTransport = errors.New("coordinator: transport error")
	// ErrRemoteExec wraps a worker-reported non-OK execution status.
	ErrRemoteExec = errors.New("coordinator: remote execution error")
	// ErrInternal marks an invariant violation or programmer error
	// (unknown backend_num, precondition failure).
	ErrInternal = errors.New("coordinator: internal error")
	// ErrCancelled marks a query or fragment as explicitly cancelled.
	ErrCancelled = errors.New("coordinator: cancelled")
	// ErrExecutor wraps a local-fragment execution failure.
	ErrExecutor = errors.New("coordinator: executor error")
)

// Status is a BackendExecState's (or the query's) terminal or latest
// error condition. The zero Status is OK.
//
// Composition follows the "sticky-first-error with append" rule: once
// non-OK, the first error is never replaced, only appended to.
type Status struct {
	err error
}

// OK reports whether s is still in the non-error state.
func (s Status) OK() bool {
	return s.err == nil
}

// Error implements the error interface; it is the empty string when OK.
func (s Status) Error() string {
	if s.err == nil {
		return ""
	}
	return s.err.Error()
}

// Unwrap lets errors.Is/errors.As see through Status to the sentinel
// kind it was constructed with.
func (s Status) Unwrap() error {
	return s.err
}

// Fail transitions s to a non-OK status wrapping kind, or appends msg
// to the existing error if s is already non-OK (monotone failure:
// the first error code is sticky, later ones only contribute messages).
func (s Status) Fail(kind error, msg string) Status {
	if s.err == nil {
		return Status{err: fmt.Errorf("%w: %s", kind, msg)}
	}
	return Status{err: fmt.Errorf("%w; %s", s.err, msg)}
}

// StatusOK is the zero value spelled out for readability at call sites.
var StatusOK = Status{}

// statusKinds maps each error kind sentinel to the short wire name
// encodeStatus/DecodeUpdateStatusRequest use to identify it, since the
// sentinels themselves don't survive encoding as an ion value.
var statusKinds = []struct {
	name string
	err  error
}{
	{"transport", ErrTransport},
	{"remote_exec", ErrRemoteExec},
	{"internal", ErrInternal},
	{"cancelled", ErrCancelled},
	{"executor", ErrExecutor},
}

// statusKindName reports the wire name for the first sentinel err
// wraps, defaulting to "remote_exec" for an unrecognized or nil kind
// (the historical behavior before kinds were preserved across the wire).
func statusKindName(err error) string {
	for _, k := range statusKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "remote_exec"
}

func statusKindFromName(name string) error {
	for _, k := range statusKinds {
		if k.name == name {
			return k.err
		}
	}
	return ErrRemoteExec
}

// wireStatusErr reconstructs a Status decoded off the wire. msg is
// already the fully rendered error text (the kind's own message
// included); kind is carried separately so errors.Is against the
// original sentinel still matches after the round trip.
type wireStatusErr struct {
	kind error
	msg  string
}

func (e *wireStatusErr) Error() string { return e.msg }
func (e *wireStatusErr) Unwrap() error { return e.kind }

// statusFromWire builds a Status from a decoded (kind name, message)
// pair, the inverse of encodeStatus's (s.Error(), statusKindName(s)).
func statusFromWire(kindName, msg string) Status {
	if msg == "" {
		return StatusOK
	}
	return Status{err: &wireStatusErr{kind: statusKindFromName(kindName), msg: msg}}
}
