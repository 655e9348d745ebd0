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
	"strings"
	"testing"
	"time"

	"github.com/distromind/qcoord/ion"
)

func buildSampleProfile() *RuntimeProfile {
	root := NewRuntimeProfile("query")
	root.AddCounter("rows", 100)
	root.AddTimer("total_time", 250*time.Millisecond)

	child := NewRuntimeProfile("backend-1")
	child.AddCounter("bytes_scanned", 4096)
	child.AddTimer("scan_time", 10*time.Millisecond)
	root.AddChild(child)

	grandchild := NewRuntimeProfile("backend-1/scan")
	grandchild.AddCounter("cache_hits", 3)
	child.AddChild(grandchild)

	return root
}

func TestRuntimeProfileRoundTrip(t *testing.T) {
	root := buildSampleProfile()

	var buf ion.Buffer
	root.Marshal(&buf)

	got := &RuntimeProfile{}
	if err := got.Decode(buf.Bytes()); err != nil {
		t.Fatalf("Decode: %s", err)
	}

	if got.Name != "query" {
		t.Fatalf("Name = %q, want query", got.Name)
	}
	if got.Counters["rows"] != 100 {
		t.Fatalf("Counters[rows] = %d, want 100", got.Counters["rows"])
	}
	if got.Timers["total_time"] != 250*time.Millisecond {
		t.Fatalf("Timers[total_time] = %s, want 250ms", got.Timers["total_time"])
	}
	if len(got.Children) != 1 {
		t.Fatalf("len(Children) = %d, want 1", len(got.Children))
	}
	gotChild := got.Children[0]
	if gotChild.Name != "backend-1" {
		t.Fatalf("Children[0].Name = %q, want backend-1", gotChild.Name)
	}
	if gotChild.Counters["bytes_scanned"] != 4096 {
		t.Fatalf("Children[0].Counters[bytes_scanned] = %d, want 4096", gotChild.Counters["bytes_scanned"])
	}
	if len(gotChild.Children) != 1 || gotChild.Children[0].Counters["cache_hits"] != 3 {
		t.Fatalf("grandchild not round-tripped correctly: %+v", gotChild.Children)
	}
}

func TestRuntimeProfileCompressedRoundTrip(t *testing.T) {
	root := buildSampleProfile()

	var buf ion.Buffer
	root.EncodeCompressed(&buf)

	got := &RuntimeProfile{}
	if err := got.DecodeCompressed(buf.Bytes()); err != nil {
		t.Fatalf("DecodeCompressed: %s", err)
	}
	if got.Name != root.Name {
		t.Fatalf("Name = %q, want %q", got.Name, root.Name)
	}
	if got.Counters["rows"] != 100 {
		t.Fatalf("Counters[rows] = %d, want 100", got.Counters["rows"])
	}
	if len(got.Children) != 1 || got.Children[0].Name != "backend-1" {
		t.Fatalf("children did not round-trip through compression: %+v", got.Children)
	}
}

func TestRuntimeProfilePrettyPrintIncludesAllNodes(t *testing.T) {
	root := buildSampleProfile()
	out := root.PrettyPrint()
	for _, want := range []string{"query:", "backend-1:", "backend-1/scan:", "rows", "cache_hits"} {
		if !strings.Contains(out, want) {
			t.Fatalf("PrettyPrint output missing %q:\n%s", want, out)
		}
	}
}
