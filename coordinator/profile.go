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
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/distromind/qcoord/ion"
)

// compressThreshold is the encoded-profile size above which
// UpdateFragmentExecStatus callers should prefer EncodeCompressed over
// Encode. Below it, zstd's frame overhead outweighs the savings.
const compressThreshold = 4096

// RuntimeProfile is a hierarchical counter/timer tree produced by
// fragment execution. The Coordinator owns a root profile to which
// each finished backend's profile and the local fragment's profile
// are attached as children (see Coordinator.profileLock for the
// concurrency discipline around AddChild).
type RuntimeProfile struct {
	Name     string
	Counters map[string]int64
	Timers   map[string]time.Duration
	Children []*RuntimeProfile
}

// NewRuntimeProfile returns an empty named profile node.
func NewRuntimeProfile(name string) *RuntimeProfile {
	return &RuntimeProfile{Name: name}
}

// AddCounter sets (or overwrites) a counter value on p.
func (p *RuntimeProfile) AddCounter(name string, v int64) {
	if p.Counters == nil {
		p.Counters = make(map[string]int64)
	}
	p.Counters[name] = v
}

// AddTimer sets (or overwrites) a timer value on p.
func (p *RuntimeProfile) AddTimer(name string, d time.Duration) {
	if p.Timers == nil {
		p.Timers = make(map[string]time.Duration)
	}
	p.Timers[name] = d
}

// AddChild attaches child as a new child node of p.
//
// AddChild itself is not synchronized: profiles may be attached from
// both the GetNext end-of-stream path and from UpdateFragmentExecStatus
// callbacks running on RPC-server goroutines, so all callers within
// this package go through Coordinator.profileLock rather than locking
// here. A RuntimeProfile used outside a Coordinator must provide its
// own external synchronization if shared across goroutines.
func (p *RuntimeProfile) AddChild(child *RuntimeProfile) {
	p.Children = append(p.Children, child)
}

// PrettyPrint renders the profile tree as an indented human-readable
// dump, used for the verbose-mode cumulative-profile log at
// end-of-stream.
func (p *RuntimeProfile) PrettyPrint() string {
	var b strings.Builder
	p.prettyPrint(&b, 0)
	return b.String()
}

func (p *RuntimeProfile) prettyPrint(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s:\n", indent, p.Name)
	for _, k := range sortedKeys(p.Counters) {
		fmt.Fprintf(b, "%s  - %s: %d\n", indent, k, p.Counters[k])
	}
	for _, k := range sortedTimerKeys(p.Timers) {
		fmt.Fprintf(b, "%s  - %s: %s\n", indent, k, p.Timers[k])
	}
	for _, c := range p.Children {
		c.prettyPrint(b, depth+1)
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTimerKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// profileSymtab is a static symbol table used for encoding profile
// trees over remote transports, mirroring plan.ExecStats's statsSymtab:
// we don't pay symbol-table overhead per message because the schema is
// fixed and known ahead of time.
var profileSymtab ion.Symtab

func init() {
	for _, s := range []string{"name", "counters", "timers", "children"} {
		profileSymtab.Intern(s)
	}
}

// Marshal encodes p using the package's static symbol table.
func (p *RuntimeProfile) Marshal(dst *ion.Buffer) {
	p.Encode(dst, &profileSymtab)
}

// Encode encodes the profile tree to dst using the provided symbol table.
func (p *RuntimeProfile) Encode(dst *ion.Buffer, st *ion.Symtab) {
	dst.BeginStruct(-1)
	dst.BeginField(st.Intern("name"))
	dst.WriteString(p.Name)
	if len(p.Counters) > 0 {
		dst.BeginField(st.Intern("counters"))
		dst.BeginStruct(-1)
		for _, k := range sortedKeys(p.Counters) {
			dst.BeginField(st.Intern(k))
			dst.WriteInt(p.Counters[k])
		}
		dst.EndStruct()
	}
	if len(p.Timers) > 0 {
		dst.BeginField(st.Intern("timers"))
		dst.BeginStruct(-1)
		for _, k := range sortedTimerKeys(p.Timers) {
			dst.BeginField(st.Intern(k))
			dst.WriteInt(int64(p.Timers[k]))
		}
		dst.EndStruct()
	}
	if len(p.Children) > 0 {
		dst.BeginField(st.Intern("children"))
		dst.BeginList(-1)
		for _, c := range p.Children {
			c.Encode(dst, st)
		}
		dst.EndList()
	}
	dst.EndStruct()
}

// Decode decodes a profile tree from buf using the package's static
// symbol table.
func (p *RuntimeProfile) Decode(buf []byte) error {
	return p.decode(buf, &profileSymtab)
}

var profileZstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))

// EncodeCompressed ion-encodes p and zstd-compresses the result,
// worthwhile once a profile tree accumulates enough per-backend
// children that its raw encoding crosses compressThreshold (deep
// fan-outs repeat the same counter/timer names across many children,
// which zstd's dictionary compresses well). Compression level mirrors
// block storage's fastest zstd setting (see compr.Compression), since
// this runs inline on the UpdateFragmentExecStatus hot path rather than
// as an offline background job.
func (p *RuntimeProfile) EncodeCompressed(dst *ion.Buffer) {
	var raw ion.Buffer
	p.Marshal(&raw)
	dst.WriteBlob(profileZstdEncoder.EncodeAll(raw.Bytes(), nil))
}

// DecodeCompressed reverses EncodeCompressed: buf must be an ion blob
// containing a zstd frame wrapping an ion-encoded profile tree.
func (p *RuntimeProfile) DecodeCompressed(buf []byte) error {
	blob, _, err := ion.ReadBytes(buf)
	if err != nil {
		return fmt.Errorf("coordinator.RuntimeProfile.DecodeCompressed: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("coordinator.RuntimeProfile.DecodeCompressed: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return fmt.Errorf("coordinator.RuntimeProfile.DecodeCompressed: %w", err)
	}
	return p.Decode(raw)
}

func (p *RuntimeProfile) decode(buf []byte, st *ion.Symtab) error {
	if len(buf) == 0 {
		return fmt.Errorf("coordinator.RuntimeProfile cannot be 0 encoded bytes")
	}
	if ion.TypeOf(buf) != ion.StructType {
		return fmt.Errorf("coordinator.RuntimeProfile.Decode: unexpected ion type %s", ion.TypeOf(buf))
	}
	inner, _ := ion.Contents(buf)
	if inner == nil {
		return fmt.Errorf("coordinator.RuntimeProfile.Decode: invalid TLV bytes")
	}
	var err error
	var sym ion.Symbol
	for len(inner) > 0 {
		sym, inner, err = ion.ReadLabel(inner)
		if err != nil {
			return fmt.Errorf("coordinator.RuntimeProfile.Decode: %w", err)
		}
		switch st.Get(sym) {
		case "name":
			p.Name, inner, err = ion.ReadString(inner)
		case "counters":
			err = p.decodeCounters(inner, st)
			inner = inner[ion.SizeOf(inner):]
		case "timers":
			err = p.decodeTimers(inner, st)
			inner = inner[ion.SizeOf(inner):]
		case "children":
			err = p.decodeChildren(inner, st)
			inner = inner[ion.SizeOf(inner):]
		default:
			inner = inner[ion.SizeOf(inner):]
		}
		if err != nil {
			return fmt.Errorf("coordinator.RuntimeProfile.Decode: %w", err)
		}
	}
	return nil
}

func (p *RuntimeProfile) decodeCounters(buf []byte, st *ion.Symtab) error {
	fields, _ := ion.Contents(buf)
	for len(fields) > 0 {
		sym, rest, err := ion.ReadLabel(fields)
		if err != nil {
			return err
		}
		v, rest2, err := ion.ReadInt(rest)
		if err != nil {
			return err
		}
		p.AddCounter(st.Get(sym), v)
		fields = rest2
	}
	return nil
}

func (p *RuntimeProfile) decodeTimers(buf []byte, st *ion.Symtab) error {
	fields, _ := ion.Contents(buf)
	for len(fields) > 0 {
		sym, rest, err := ion.ReadLabel(fields)
		if err != nil {
			return err
		}
		v, rest2, err := ion.ReadInt(rest)
		if err != nil {
			return err
		}
		p.AddTimer(st.Get(sym), time.Duration(v))
		fields = rest2
	}
	return nil
}

func (p *RuntimeProfile) decodeChildren(buf []byte, st *ion.Symtab) error {
	items, _ := ion.Contents(buf)
	for len(items) > 0 {
		child := &RuntimeProfile{}
		if err := child.decode(items, st); err != nil {
			return err
		}
		p.Children = append(p.Children, child)
		items = items[ion.SizeOf(items):]
	}
	return nil
}
