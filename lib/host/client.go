package host

import (
	"context"
	"sync/atomic"
)

// Client issues commands against the host, like a connection would
type Client struct {
	h        *Host
	id       uint64
	protocol atomic.Int32
}

// NewClient creates a client speaking the configured default protocol
func (h *Host) NewClient() *Client {
	c := &Client{h: h, id: h.newHandle()}
	c.protocol.Store(int32(h.cfg.DefaultProtocol))
	return c
}

// SetProtocol switches the reply shapes of the client (2 or 3)
func (c *Client) SetProtocol(v int) {
	if v != 2 && v != 3 {
		return
	}
	c.protocol.Store(int32(v))
}

// Protocol returns the protocol version of the client
func (c *Client) Protocol() int {
	return int(c.protocol.Load())
}

// DoAsync runs a command and returns a channel that receives its reply.
// Commands that block the client deliver their reply once unblocked.
func (c *Client) DoAsync(args ...string) <-chan *Reply {
	ch := make(chan *Reply, 1)
	if len(args) == 0 {
		ch <- NewErrorReply("ERR empty command")
		return ch
	}
	if c.h.closing.Load() {
		ch <- NewErrorReply("ERR " + ErrHostClosed.Error())
		return ch
	}

	argv := make([][]byte, len(args))
	for i, a := range args {
		argv[i] = []byte(a)
	}

	inv := &invocation{
		args:     argv,
		protocol: c.Protocol(),
		client:   ch,
	}

	c.h.lockGIL()
	r := c.h.dispatch(inv, 0)
	c.h.unlockGIL()

	if !inv.blocked {
		ch <- shape(r, inv.protocol)
	}
	return ch
}

// Do runs a command and waits for its reply. Error replies are returned as
// replies, the error is only set if ctx expired or the host is closed.
func (c *Client) Do(ctx context.Context, args ...string) (*Reply, error) {
	if c.h.closing.Load() {
		return nil, ErrHostClosed
	}

	select {
	case r := <-c.DoAsync(args...):
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
