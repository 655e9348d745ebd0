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
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"github.com/distromind/qcoord/coordinator"
	"github.com/distromind/qcoord/ion"
	"github.com/distromind/qcoord/plan"
)

// runQuery drives exactly one query to completion: it opens its own
// RPC listener (so any remote fragments it dispatches have somewhere
// to send UpdateFragmentExecStatus reports), builds a Coordinator
// around the root fragment named by -root, optionally dispatches one
// level of remote fragments, and streams the result to stdout as
// newline-delimited JSON before shutting the listener back down.
//
// Submitting a query against an already-running "serve" daemon would
// need a registration RPC this module does not define; query planning
// and submission protocols are out of scope, so each invocation is a
// self-contained coordinator for the query it runs.
func runQuery(args []string) {
	queryCmd := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := queryCmd.String("c", "coordinatord.yaml", "path to the daemon's YAML config file")
	rootPath := queryCmd.String("root", "", "path to the compiled root fragment (ion symtab+plan.Tree)")
	fragmentPath := queryCmd.String("fragment", "", "path to a compiled remote fragment shared by all its instances")
	ranges := queryCmd.String("ranges", "", "comma-separated scan-range keys, one remote fragment instance per key")
	dataDir := queryCmd.String("data", ".", "directory local table references are resolved against")
	printStats := queryCmd.Bool("S", false, "print the query's runtime profile to stderr")
	if queryCmd.Parse(args) != nil {
		os.Exit(1)
	}
	if *rootPath == "" {
		fmt.Fprintln(os.Stderr, "coordinatord query: -root is required")
		os.Exit(1)
	}
	logger := log.New(os.Stderr, "", log.Lshortfile)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	root, err := os.ReadFile(*rootPath)
	if err != nil {
		logger.Fatal(err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Fatalf("listening on %s: %s", cfg.Listen, err)
	}
	defer ln.Close()
	reg := newRegistry()
	go coordinator.Serve(ln, reg, logger)

	selfAddr, err := hostPortOf(ln.Addr())
	if err != nil {
		logger.Fatal(err)
	}

	sched, err := newScheduler(cfg)
	if err != nil {
		logger.Fatal(err)
	}
	cache := &coordinator.PooledClientCache{DialTimeout: cfg.DialTimeout}

	executor := &coordinator.LocalFragmentExecutor{
		Decoder: &localDecoder{root: os.DirFS(*dataDir)},
		Runner:  &plan.FSRunner{FS: os.DirFS(*dataDir)},
		FS:      os.DirFS(*dataDir),
	}
	c := coordinator.New(executor, sched, cache, selfAddr, logger)
	c.MaxDispatchWorkers = cfg.WorkerPoolSize

	req, err := buildRequest(root, *fragmentPath, *ranges)
	if err != nil {
		logger.Fatal(err)
	}
	reg.register(req.ID, c)
	defer reg.unregister(req.ID)

	ctx := context.Background()
	if err := c.Exec(ctx, req); err != nil {
		logger.Fatalf("dispatch: %s", err)
	}
	if err := c.Wait(ctx); err != nil {
		logger.Fatalf("wait: %s", err)
	}
	if err := drainRows(c, os.Stdout); err != nil {
		logger.Fatalf("reading results: %s", err)
	}
	c.Close()

	if *printStats {
		fmt.Fprintln(os.Stderr, c.Profile().PrettyPrint())
	}
}

// buildRequest assembles a QueryExecRequest from the root fragment and,
// if fragmentPath is non-empty, a single level of remote instances, one
// per comma-separated key in ranges.
func buildRequest(root []byte, fragmentPath, ranges string) (*coordinator.QueryExecRequest, error) {
	req := &coordinator.QueryExecRequest{
		ID: coordinator.NewQueryId(root),
		Fragments: []coordinator.FragmentRequest{
			{Plan: root, Instances: []coordinator.FragmentParams{{}}},
		},
	}
	if fragmentPath == "" {
		return req, nil
	}
	frag, err := os.ReadFile(fragmentPath)
	if err != nil {
		return nil, err
	}
	keys := strings.Split(ranges, ",")
	instances := make([]coordinator.FragmentParams, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		instances = append(instances, coordinator.FragmentParams{
			ScanRanges: []coordinator.DataLocation{{Key: k}},
		})
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("coordinatord: -fragment given without any -ranges keys")
	}
	req.Fragments = append(req.Fragments, coordinator.FragmentRequest{Plan: frag, Instances: instances})
	return req, nil
}

// drainRows pulls batches from c until end-of-stream, rendering each
// one as JSON the way cmd/sneller's -j flag does.
func drainRows(c *coordinator.Coordinator, w *os.File) error {
	out := bufio.NewWriter(w)
	defer out.Flush()
	for {
		b, err := c.GetNext()
		if err != nil {
			return err
		}
		if b == nil {
			return nil
		}
		if _, err := ion.ToJSON(out, bufio.NewReader(bytes.NewReader(b))); err != nil {
			return err
		}
	}
}

func hostPortOf(addr net.Addr) (coordinator.HostPort, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return coordinator.HostPort{}, fmt.Errorf("coordinatord: unexpected listener address type %T", addr)
	}
	host := tcp.IP.String()
	if tcp.IP.IsUnspecified() {
		host = "127.0.0.1"
	}
	return coordinator.HostPort{Host: host, Port: tcp.Port}, nil
}
