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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/distromind/qcoord/ion"
)

// protocolVersionV1 is the only wire protocol version currently spoken.
const protocolVersionV1 = 1

// frame/framekind mirror plan/partition.go's request-response framing:
// a 4-byte little-endian word packing an 8-bit kind and a 24-bit body
// length, followed by that many bytes of ion-encoded body. Unlike
// plan.Client/plan.Serve (which stream many data frames per query),
// every Coordinator RPC here is exactly one request frame answered by
// exactly one response frame.
type frame uint32

type frameKind uint32

const (
	frameSize = 4
	maxFrame  = (1 << 24) - 1
)

const (
	_ frameKind = iota // zero frame is invalid

	frameExecFragment
	frameExecResult
	frameCancelFragment
	frameCancelResult
	frameUpdateStatus
	frameUpdateResult
	frameErr
)

func (f frame) kind() frameKind { return frameKind(f >> 24) }
func (f frame) length() int     { return int(f & 0xffffff) }
func (f frame) put(dst []byte)  { binary.LittleEndian.PutUint32(dst, uint32(f)) }

func mkframe(kind frameKind, size int) frame {
	return frame(uint32(kind<<24) | (uint32(size) & 0xffffff))
}

func getframe(src []byte) frame {
	return frame(binary.LittleEndian.Uint32(src))
}

func readFrame(r *bufio.Reader) (frame, error) {
	buf, err := r.Peek(frameSize)
	if err != nil {
		return 0, err
	}
	r.Discard(frameSize)
	return getframe(buf), nil
}

func readBody(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, kind frameKind, body []byte) error {
	if len(body) > maxFrame {
		return fmt.Errorf("coordinator: wire message of %d bytes exceeds framing limit", len(body))
	}
	hdr := make([]byte, frameSize)
	mkframe(kind, len(body)).put(hdr)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// writeFrameParts writes a frame whose body is the concatenation of
// symtab and body, without copying them together first (mirroring
// plan/partition.go's Client.send, which writes its marshaled symtab
// and its plan bytes as two separate Pipe.Write calls after one frame
// header).
func writeFrameParts(w io.Writer, kind frameKind, symtab, body []byte) error {
	n := len(symtab) + len(body)
	if n > maxFrame {
		return fmt.Errorf("coordinator: wire message of %d bytes exceeds framing limit", n)
	}
	hdr := make([]byte, frameSize)
	mkframe(kind, n).put(hdr)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.Write(symtab); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ExecFragmentRequest is the payload of an ExecPlanFragment RPC:
// params = {protocol_version, request(fragment_id set), params,
// coord={host,port}, backend_num}, as specified in §6.
type ExecFragmentRequest struct {
	ProtocolVersion int
	FragmentID      QueryId
	Plan            []byte
	Params          FragmentParams
	Coordinator     HostPort
	BackendNum      int
}

var wireSymtab ion.Symtab

func init() {
	for _, s := range []string{
		"protocol_version", "fragment_id", "hi", "lo", "plan", "params",
		"scan_ranges", "key", "split_size", "instance", "destination", "coord", "host", "port",
		"backend_num", "status", "status_kind", "done", "profile", "profile_z",
	} {
		wireSymtab.Intern(s)
	}
}

func encodeQueryID(dst *ion.Buffer, st *ion.Symtab, id QueryId) {
	dst.BeginStruct(-1)
	dst.BeginField(st.Intern("hi"))
	dst.WriteUint(id.Hi)
	dst.BeginField(st.Intern("lo"))
	dst.WriteUint(id.Lo)
	dst.EndStruct()
}

func decodeQueryID(buf []byte, st *ion.Symtab) (QueryId, error) {
	var id QueryId
	inner, _ := ion.Contents(buf)
	for len(inner) > 0 {
		sym, rest, err := ion.ReadLabel(inner)
		if err != nil {
			return id, err
		}
		switch st.Get(sym) {
		case "hi":
			id.Hi, rest, err = ion.ReadUint(rest)
		case "lo":
			id.Lo, rest, err = ion.ReadUint(rest)
		default:
			rest = rest[ion.SizeOf(rest):]
		}
		if err != nil {
			return id, err
		}
		inner = rest
	}
	return id, nil
}

func encodeHostPort(dst *ion.Buffer, st *ion.Symtab, hp HostPort) {
	dst.BeginStruct(-1)
	dst.BeginField(st.Intern("host"))
	dst.WriteString(hp.Host)
	dst.BeginField(st.Intern("port"))
	dst.WriteInt(int64(hp.Port))
	dst.EndStruct()
}

func decodeHostPort(buf []byte, st *ion.Symtab) (HostPort, error) {
	var hp HostPort
	inner, _ := ion.Contents(buf)
	for len(inner) > 0 {
		sym, rest, err := ion.ReadLabel(inner)
		if err != nil {
			return hp, err
		}
		switch st.Get(sym) {
		case "host":
			hp.Host, rest, err = ion.ReadString(rest)
		case "port":
			var p int64
			p, rest, err = ion.ReadInt(rest)
			hp.Port = int(p)
		default:
			rest = rest[ion.SizeOf(rest):]
		}
		if err != nil {
			return hp, err
		}
		inner = rest
	}
	return hp, nil
}

func encodeFragmentParams(dst *ion.Buffer, st *ion.Symtab, p FragmentParams) {
	dst.BeginStruct(-1)
	if len(p.ScanRanges) > 0 {
		dst.BeginField(st.Intern("scan_ranges"))
		dst.BeginList(-1)
		for _, r := range p.ScanRanges {
			dst.BeginStruct(-1)
			dst.BeginField(st.Intern("key"))
			dst.WriteString(r.Key)
			dst.BeginField(st.Intern("split_size"))
			dst.WriteInt(r.SplitSize)
			dst.EndStruct()
		}
		dst.EndList()
	}
	if len(p.Instance) > 0 {
		dst.BeginField(st.Intern("instance"))
		dst.WriteBlob(p.Instance)
	}
	if p.Destination != (HostPort{}) {
		dst.BeginField(st.Intern("destination"))
		encodeHostPort(dst, st, p.Destination)
	}
	dst.EndStruct()
}

func decodeFragmentParams(buf []byte, st *ion.Symtab) (FragmentParams, error) {
	var p FragmentParams
	inner, _ := ion.Contents(buf)
	for len(inner) > 0 {
		sym, rest, err := ion.ReadLabel(inner)
		if err != nil {
			return p, err
		}
		switch st.Get(sym) {
		case "scan_ranges":
			items, _ := ion.Contents(rest)
			for len(items) > 0 {
				var loc DataLocation
				fields, _ := ion.Contents(items)
				for len(fields) > 0 {
					fsym, frest, ferr := ion.ReadLabel(fields)
					if ferr != nil {
						return p, ferr
					}
					switch st.Get(fsym) {
					case "key":
						loc.Key, frest, ferr = ion.ReadString(frest)
					case "split_size":
						loc.SplitSize, frest, ferr = ion.ReadInt(frest)
					default:
						frest = frest[ion.SizeOf(frest):]
					}
					if ferr != nil {
						return p, ferr
					}
					fields = frest
				}
				p.ScanRanges = append(p.ScanRanges, loc)
				items = items[ion.SizeOf(items):]
			}
			rest = rest[ion.SizeOf(rest):]
		case "instance":
			p.Instance, rest, err = ion.ReadBytes(rest)
		case "destination":
			p.Destination, err = decodeHostPort(rest, st)
			rest = rest[ion.SizeOf(rest):]
		default:
			rest = rest[ion.SizeOf(rest):]
		}
		if err != nil {
			return p, err
		}
		inner = rest
	}
	return p, nil
}

// Encode serializes r to dst.
func (r *ExecFragmentRequest) Encode(dst *ion.Buffer, st *ion.Symtab) {
	dst.BeginStruct(-1)
	dst.BeginField(st.Intern("protocol_version"))
	dst.WriteInt(int64(r.ProtocolVersion))
	dst.BeginField(st.Intern("fragment_id"))
	encodeQueryID(dst, st, r.FragmentID)
	dst.BeginField(st.Intern("plan"))
	dst.WriteBlob(r.Plan)
	dst.BeginField(st.Intern("params"))
	encodeFragmentParams(dst, st, r.Params)
	dst.BeginField(st.Intern("coord"))
	encodeHostPort(dst, st, r.Coordinator)
	dst.BeginField(st.Intern("backend_num"))
	dst.WriteInt(int64(r.BackendNum))
	dst.EndStruct()
}

// DecodeExecFragmentRequest decodes an ExecFragmentRequest from buf.
func DecodeExecFragmentRequest(buf []byte, st *ion.Symtab) (*ExecFragmentRequest, error) {
	r := &ExecFragmentRequest{}
	inner, _ := ion.Contents(buf)
	for len(inner) > 0 {
		sym, rest, err := ion.ReadLabel(inner)
		if err != nil {
			return nil, err
		}
		switch st.Get(sym) {
		case "protocol_version":
			var v int64
			v, rest, err = ion.ReadInt(rest)
			r.ProtocolVersion = int(v)
		case "fragment_id":
			r.FragmentID, err = decodeQueryID(rest, st)
			rest = rest[ion.SizeOf(rest):]
		case "plan":
			r.Plan, rest, err = ion.ReadBytes(rest)
		case "params":
			r.Params, err = decodeFragmentParams(rest, st)
			rest = rest[ion.SizeOf(rest):]
		case "coord":
			r.Coordinator, err = decodeHostPort(rest, st)
			rest = rest[ion.SizeOf(rest):]
		case "backend_num":
			var v int64
			v, rest, err = ion.ReadInt(rest)
			r.BackendNum = int(v)
		default:
			rest = rest[ion.SizeOf(rest):]
		}
		if err != nil {
			return nil, err
		}
		inner = rest
	}
	return r, nil
}

// encodeStatus/decodeStatus serialize a Status as an error-message
// string (empty when ok) plus, when non-ok, the short name of the
// error kind it wraps, so the kind survives the round trip instead of
// always being reconstructed as ErrRemoteExec.
func encodeStatus(dst *ion.Buffer, st *ion.Symtab, s Status) {
	dst.BeginStruct(-1)
	dst.BeginField(st.Intern("status"))
	dst.WriteString(s.Error())
	if !s.OK() {
		dst.BeginField(st.Intern("status_kind"))
		dst.WriteString(statusKindName(s.Unwrap()))
	}
	dst.EndStruct()
}

func decodeStatus(buf []byte, st *ion.Symtab) (Status, error) {
	inner, _ := ion.Contents(buf)
	var msg, kind string
	for len(inner) > 0 {
		sym, rest, err := ion.ReadLabel(inner)
		if err != nil {
			return Status{}, err
		}
		switch st.Get(sym) {
		case "status":
			msg, rest, err = ion.ReadString(rest)
		case "status_kind":
			kind, rest, err = ion.ReadString(rest)
		default:
			rest = rest[ion.SizeOf(rest):]
		}
		if err != nil {
			return Status{}, err
		}
		inner = rest
	}
	return statusFromWire(kind, msg), nil
}

// CancelFragmentRequest is the payload of a CancelPlanFragment RPC:
// params = {protocol_version, fragment_id}.
type CancelFragmentRequest struct {
	ProtocolVersion int
	FragmentID      QueryId
}

func (r *CancelFragmentRequest) Encode(dst *ion.Buffer, st *ion.Symtab) {
	dst.BeginStruct(-1)
	dst.BeginField(st.Intern("protocol_version"))
	dst.WriteInt(int64(r.ProtocolVersion))
	dst.BeginField(st.Intern("fragment_id"))
	encodeQueryID(dst, st, r.FragmentID)
	dst.EndStruct()
}

func DecodeCancelFragmentRequest(buf []byte, st *ion.Symtab) (*CancelFragmentRequest, error) {
	r := &CancelFragmentRequest{}
	inner, _ := ion.Contents(buf)
	for len(inner) > 0 {
		sym, rest, err := ion.ReadLabel(inner)
		if err != nil {
			return nil, err
		}
		switch st.Get(sym) {
		case "protocol_version":
			var v int64
			v, rest, err = ion.ReadInt(rest)
			r.ProtocolVersion = int(v)
		case "fragment_id":
			r.FragmentID, err = decodeQueryID(rest, st)
			rest = rest[ion.SizeOf(rest):]
		default:
			rest = rest[ion.SizeOf(rest):]
		}
		if err != nil {
			return nil, err
		}
		inner = rest
	}
	return r, nil
}

// UpdateStatusRequest is the payload of an UpdateFragmentExecStatus
// RPC served by the coordinator.
type UpdateStatusRequest struct {
	FragmentID QueryId
	BackendNum int
	Status     Status
	Done       bool
	Profile    *RuntimeProfile
}

func (r *UpdateStatusRequest) Encode(dst *ion.Buffer, st *ion.Symtab) {
	dst.BeginStruct(-1)
	dst.BeginField(st.Intern("fragment_id"))
	encodeQueryID(dst, st, r.FragmentID)
	dst.BeginField(st.Intern("backend_num"))
	dst.WriteInt(int64(r.BackendNum))
	dst.BeginField(st.Intern("status"))
	dst.WriteString(r.Status.Error())
	if !r.Status.OK() {
		dst.BeginField(st.Intern("status_kind"))
		dst.WriteString(statusKindName(r.Status.Unwrap()))
	}
	dst.BeginField(st.Intern("done"))
	dst.WriteBool(r.Done)
	if r.Profile != nil {
		var raw ion.Buffer
		r.Profile.Encode(&raw, st)
		if raw.Size() > compressThreshold {
			dst.BeginField(st.Intern("profile_z"))
			r.Profile.EncodeCompressed(dst)
		} else {
			dst.BeginField(st.Intern("profile"))
			dst.UnsafeAppend(raw.Bytes())
		}
	}
	dst.EndStruct()
}

func DecodeUpdateStatusRequest(buf []byte, st *ion.Symtab) (*UpdateStatusRequest, error) {
	r := &UpdateStatusRequest{}
	inner, _ := ion.Contents(buf)
	var statusMsg, statusKind string
	for len(inner) > 0 {
		sym, rest, err := ion.ReadLabel(inner)
		if err != nil {
			return nil, err
		}
		switch st.Get(sym) {
		case "fragment_id":
			r.FragmentID, err = decodeQueryID(rest, st)
			rest = rest[ion.SizeOf(rest):]
		case "backend_num":
			var v int64
			v, rest, err = ion.ReadInt(rest)
			r.BackendNum = int(v)
		case "status":
			statusMsg, rest, err = ion.ReadString(rest)
		case "status_kind":
			statusKind, rest, err = ion.ReadString(rest)
		case "done":
			r.Done, rest, err = ion.ReadBool(rest)
		case "profile":
			p := &RuntimeProfile{}
			err = p.decode(rest, st)
			r.Profile = p
			rest = rest[ion.SizeOf(rest):]
		case "profile_z":
			p := &RuntimeProfile{}
			err = p.DecodeCompressed(rest)
			r.Profile = p
			rest = rest[ion.SizeOf(rest):]
		default:
			rest = rest[ion.SizeOf(rest):]
		}
		if err != nil {
			return nil, err
		}
		inner = rest
	}
	r.Status = statusFromWire(statusKind, statusMsg)
	return r, nil
}
