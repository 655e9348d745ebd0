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
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// peerConfig is one entry of the config's peers list: a backend this
// coordinator may dispatch fragments to.
type peerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// config is coordinatord's on-disk YAML configuration: the set of
// backends it schedules fragments across, and the listener/pool
// settings for its own RPC server.
type config struct {
	// Listen is the address UpdateFragmentExecStatus/ExecPlanFragment
	// RPCs are served on.
	Listen string `json:"listen"`
	// Peers is the fixed backend list used when Scheduling is "hash" or
	// "static"; a production deployment would instead resolve this
	// dynamically, but a static list is enough for a standalone daemon.
	Peers []peerConfig `json:"peers"`
	// Scheduling selects the Scheduler implementation: "static"
	// (round-robin) or "hash" (siphash-based locality).
	Scheduling string `json:"scheduling"`
	// DialTimeout bounds how long the client cache waits to establish
	// a new connection to a backend.
	DialTimeout time.Duration `json:"dialTimeout"`
	// WorkerPoolSize caps how many ExecPlanFragment RPCs dispatch
	// in parallel; zero means the dispatcher picks its own default
	// (see dispatch.go's fanOutExec).
	WorkerPoolSize int `json:"workerPoolSize"`
}

func loadConfig(path string) (*config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:9100"
	}
	if cfg.Scheduling == "" {
		cfg.Scheduling = "static"
	}
	return &cfg, nil
}

func (c *peerConfig) String() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
