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
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/distromind/qcoord/coordinator"
)

// runServe starts the long-running half of the daemon: a listener
// that serves UpdateFragmentExecStatus RPCs against the registry of
// in-flight Coordinators, until it receives a termination signal. A
// "query" invocation builds and registers its own Coordinator against
// its own listener (see query.go); this registry exists for a
// deployment where query submission is wired up separately.
func runServe(args []string) {
	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := serveCmd.String("c", "coordinatord.yaml", "path to the daemon's YAML config file")
	if serveCmd.Parse(args) != nil {
		os.Exit(1)
	}
	logger := log.New(os.Stderr, "", log.Lshortfile)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	reg := newRegistry()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Fatalf("listening on %s: %s", cfg.Listen, err)
	}
	logger.Printf("coordinatord %s listening on %v (scheduling=%s, peers=%s)", version, ln.Addr(), cfg.Scheduling, peerList(cfg.Peers))

	go func() {
		if err := coordinator.Serve(ln, reg, logger); err != nil {
			logger.Printf("coordinator.Serve exited: %s", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	ln.Close()
}

func peerList(peers []peerConfig) string {
	if len(peers) == 0 {
		return "none"
	}
	s := make([]string, len(peers))
	for i := range peers {
		s[i] = peers[i].String()
	}
	return strings.Join(s, ",")
}

func newScheduler(cfg *config) (coordinator.Scheduler, error) {
	hosts := make([]coordinator.HostPort, len(cfg.Peers))
	for i, p := range cfg.Peers {
		hosts[i] = coordinator.HostPort{Host: p.Host, Port: p.Port}
	}
	switch cfg.Scheduling {
	case "hash":
		return &coordinator.HashScheduler{Hosts: hosts}, nil
	default:
		return &coordinator.StaticScheduler{Hosts: hosts}, nil
	}
}
