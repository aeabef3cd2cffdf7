package rpc

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/nlog"
)

// Client is a persistent, duplex connection to the orchestrator (§4.2).
// A single TCP connection carries all RPCs; calls may be issued
// concurrently and are demultiplexed by request id.
type Client struct {
	conn   net.Conn
	nextID atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]chan frame
	closed  chan struct{}
	closeOnce sync.Once
}

// Dial opens a single connection to addr and starts its reader loop.
// Callers implementing §4.5's connect-with-retry loop should call Dial in
// their own retry wrapper; Dial itself makes exactly one attempt.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DefaultCallTimeout)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "dial "+addr)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tuneConn(tc); err != nil {
			nlog.Warningf("rpc: tune client conn: %v", err)
		}
	}
	c := &Client{
		conn:    conn,
		pending: make(map[uint32]chan frame),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		f, err := readFrame(c.conn)
		if err != nil {
			c.failAllPending(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[f.reqID]
		if ok {
			delete(c.pending, f.reqID)
		}
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	_ = err
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) call(ctx context.Context, method Method, payload []byte) ([]byte, error) {
	id := c.nextID.Add(1)
	ch := make(chan frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := writeFrame(c.conn, frame{kind: uint8(method), reqID: id, payload: payload}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	select {
	case f, ok := <-ch:
		if !ok {
			return nil, errs.New(errs.Unavailable, "connection closed before reply")
		}
		if replyStatus(f.kind) == statusErr {
			return nil, errs.New(errs.Protocol, string(f.payload))
		}
		return f.payload, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, errs.Wrap(errs.Network, ctx.Err(), method.String()+" timed out")
	case <-c.closed:
		return nil, errs.New(errs.Unavailable, "client closed")
	}
}

func (c *Client) Register(ctx context.Context, nodeID string) error {
	_, err := c.call(ctx, MethodRegister, encodeRegisterReq(nodeID))
	return err
}

// SchedInfo returns this node's serialized plan slice. An empty byte
// slice (and nil error) means no plan has been installed yet (§6).
func (c *Client) SchedInfo(ctx context.Context, nodeID string) ([]byte, error) {
	return c.call(ctx, MethodSchedInfo, encodeSchedInfoReq(nodeID))
}

func (c *Client) Sync(ctx context.Context, nodeID string) (SyncReply, error) {
	payload, err := c.call(ctx, MethodSync, encodeSyncReq(nodeID))
	if err != nil {
		return SyncReply{}, err
	}
	return decodeSyncReply(payload)
}

func (c *Client) DMiss(ctx context.Context, nodeID, taskName string) error {
	_, err := c.call(ctx, MethodDMiss, encodeDMissReq(nodeID, taskName))
	return err
}

// PollSync polls Sync every interval until ack==1 or ctx is cancelled,
// per §4.6's "polls Sync every 100 ms until ack=1". The returned
// SyncReply's (Sec, Nsec) is the agreed common start instant.
func (c *Client) PollSync(ctx context.Context, nodeID string, interval time.Duration) (SyncReply, error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		r, err := c.Sync(ctx, nodeID)
		if err != nil {
			return SyncReply{}, err
		}
		if r.Ack == 1 {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return SyncReply{}, errs.Wrap(errs.Network, ctx.Err(), "PollSync cancelled")
		case <-t.C:
		}
	}
}
