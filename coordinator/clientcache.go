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
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/distromind/qcoord/ion"
)

// remoteClient is a single pooled RPC connection to one backend,
// speaking the frame protocol defined in wire.go. It implements Client.
type remoteClient struct {
	conn net.Conn
	rd   *bufio.Reader
	st   ion.Symtab
	iob  ion.Buffer
	stio ion.Buffer
}

func dialRemote(hp HostPort, timeout time.Duration) (*remoteClient, error) {
	conn, err := net.DialTimeout("tcp", hp.String(), timeout)
	if err != nil {
		return nil, err
	}
	return &remoteClient{conn: conn, rd: bufio.NewReader(conn)}, nil
}

// roundTrip encodes a request with its own fresh symbol table and
// marshals that table onto the wire ahead of the body (mirroring
// plan/partition.go's Client.send), since the server decodes each
// request on its own independent *ion.Symtab and has no other way to
// learn what the encoder's interned symbol IDs mean.
func (c *remoteClient) roundTrip(reqKind frameKind, encode func(*ion.Buffer, *ion.Symtab), wantKind frameKind) ([]byte, error) {
	c.st.Reset()
	c.iob.Reset()
	c.stio.Reset()
	encode(&c.iob, &c.st)
	c.st.Marshal(&c.stio, true)
	if err := writeFrameParts(c.conn, reqKind, c.stio.Bytes(), c.iob.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: writing request: %s", ErrTransport, err)
	}
	f, err := readFrame(c.rd)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response frame: %s", ErrTransport, err)
	}
	body, err := readBody(c.rd, f.length())
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %s", ErrTransport, err)
	}
	if f.kind() == frameErr {
		return nil, fmt.Errorf("%w: %s", ErrRemoteExec, string(body))
	}
	if f.kind() != wantKind {
		return nil, fmt.Errorf("%w: unexpected response frame kind %d", ErrTransport, f.kind())
	}
	return body, nil
}

func (c *remoteClient) ExecPlanFragment(ctx context.Context, req *ExecFragmentRequest) (Status, error) {
	body, err := c.roundTrip(frameExecFragment, req.Encode, frameExecResult)
	if err != nil {
		return Status{}, err
	}
	return decodeStatus(body, &wireSymtab)
}

func (c *remoteClient) CancelPlanFragment(ctx context.Context, fragmentID QueryId) (Status, error) {
	req := &CancelFragmentRequest{ProtocolVersion: protocolVersionV1, FragmentID: fragmentID}
	body, err := c.roundTrip(frameCancelFragment, req.Encode, frameCancelResult)
	if err != nil {
		return Status{}, err
	}
	return decodeStatus(body, &wireSymtab)
}

func (c *remoteClient) Close() error {
	return c.conn.Close()
}

// PooledClientCache is a ClientCache backed by a sync.Pool-per-host
// map of framed RPC clients, grounded on tenant/tnproto.Remote's
// clientPool pattern: connections are reused across dispatch and
// cancellation calls instead of being dialed fresh each time.
type PooledClientCache struct {
	// DialTimeout bounds how long GetClient waits for a new
	// connection; zero means no timeout.
	DialTimeout time.Duration

	mu    sync.Mutex
	pools map[string]*sync.Pool
}

func (c *PooledClientCache) poolFor(hp HostPort) *sync.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pools == nil {
		c.pools = make(map[string]*sync.Pool)
	}
	key := hp.String()
	p, ok := c.pools[key]
	if !ok {
		p = &sync.Pool{}
		c.pools[key] = p
	}
	return p
}

// GetClient implements ClientCache.
func (c *PooledClientCache) GetClient(hp HostPort) (Client, error) {
	pool := c.poolFor(hp)
	if v := pool.Get(); v != nil {
		return v.(*remoteClient), nil
	}
	return dialRemote(hp, c.DialTimeout)
}

// ReleaseClient implements ClientCache.
func (c *PooledClientCache) ReleaseClient(hp HostPort, cl Client) {
	rc, ok := cl.(*remoteClient)
	if !ok {
		cl.Close()
		return
	}
	c.poolFor(hp).Put(rc)
}
