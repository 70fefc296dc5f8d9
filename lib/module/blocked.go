package module

import (
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// BlockedClient is the token of a client whose reply was deferred. It is
// consumed by exactly one of Reply, Close or Abort.
//
//	bc := ctx.BlockClient()
//	go func() {
//		guard := detached.Lock()
//		defer guard.Release()
//		bc.Reply(guard, module.SimpleString("OK"), nil)
//	}()
//	return module.NoReply{}, nil
type BlockedClient struct {
	api      raw.API
	bc       raw.BlockedClientHandle
	consumed atomic.Bool
}

// BlockClient suspends the reply of the running command. The handler has to
// return NoReply afterwards.
func (c *Context) BlockClient() *BlockedClient {
	c.require(raw.FeatureBlockClient)
	b := &BlockedClient{api: c.api, bc: c.api.BlockClient(c.ctx)}
	blockedClientsTotal.Inc()
	runtime.SetFinalizer(b, finalizeBlockedClient)
	return b
}

// finalizeBlockedClient releases a client whose token was dropped unconsumed
func finalizeBlockedClient(b *BlockedClient) {
	if !b.consumed.CompareAndSwap(false, true) {
		return
	}
	leakedBlockedClients.Inc()
	Logger.Warningf("blocked client %d was garbage collected without a reply", b.bc)
	b.api.UnblockClient(b.bc, nil)
}

func (b *BlockedClient) consume() bool {
	if !b.consumed.CompareAndSwap(false, true) {
		return false
	}
	runtime.SetFinalizer(b, nil)
	return true
}

// Reply writes v, or err as error reply, to the client and unblocks it
func (b *BlockedClient) Reply(li LockIndicator, v Value, err error) error {
	mustHold(li)
	if !b.consume() {
		return NewError(CodeNotFound, "blocked client already consumed")
	}

	ts := b.api.GetThreadSafeContext(b.bc)
	c := newContext(b.api, ts, nil)
	c.Reply(v, err)
	b.api.UnblockClient(b.bc, nil)
	b.api.FreeThreadSafeContext(ts)
	return nil
}

// Close unblocks the client without a reply, it receives null. Closing a
// consumed token has no effect.
func (b *BlockedClient) Close() {
	if b.consume() {
		b.api.UnblockClient(b.bc, nil)
	}
}

// Abort aborts the block, the client receives null
func (b *BlockedClient) Abort() error {
	if !b.consume() {
		return NewError(CodeNotFound, "blocked client already consumed")
	}
	if b.api.AbortBlock(b.bc) != raw.StatusOK {
		return NewError(CodeNotFound, "blocked client is gone")
	}
	return nil
}
