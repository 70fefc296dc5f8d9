package host

import (
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// --------------------------------------------------------------------------
// Blocked Clients
// --------------------------------------------------------------------------

type blockedClient struct {
	id       raw.BlockedClientHandle
	module   string
	protocol int
	reply    chan<- *Reply

	// replies written through thread-safe contexts bound to the client,
	// guarded by the gil
	builder replyBuilder

	done atomic.Bool
}

func (h *Host) BlockClient(ctx raw.CtxHandle) raw.BlockedClientHandle {
	h.require(raw.FeatureBlockClient, "BlockClient")

	c := h.ctx(ctx)
	if c.kind != ctxCommand || c.reply == nil {
		protocolViolation("BlockClient called from a %s context without a client", c.kind)
	}
	if c.blocked != nil {
		protocolViolation("client of command %s is already blocked", c.name)
	}

	bc := &blockedClient{
		id:       raw.BlockedClientHandle(h.newHandle()),
		module:   c.module,
		protocol: c.protocol,
		reply:    c.reply,
	}
	c.blocked = bc
	h.blocked.Store(bc.id, bc)
	return bc.id
}

func (h *Host) UnblockClient(bc raw.BlockedClientHandle, _ any) raw.Status {
	return h.finishBlocked(bc, false)
}

func (h *Host) AbortBlock(bc raw.BlockedClientHandle) raw.Status {
	return h.finishBlocked(bc, true)
}

func (h *Host) finishBlocked(id raw.BlockedClientHandle, abort bool) raw.Status {
	h.require(raw.FeatureBlockClient, "UnblockClient")

	bc, ok := h.blocked.Load(id)
	if !ok || !bc.done.CompareAndSwap(false, true) {
		return raw.StatusErr
	}
	h.events.Push(event{kind: evUnblock, bc: bc, abort: abort})
	return raw.StatusOK
}

// deliverBlocked sends the buffered reply, or null, to the client. Runs with
// the gil held.
func (h *Host) deliverBlocked(bc *blockedClient, abort bool) {
	h.blocked.Delete(bc.id)

	r, complete := bc.builder.result()
	switch {
	case abort || r == nil:
		r = NewNull()
	case !complete:
		Logger.Warningf("blocked client %d got an incomplete aggregate reply", bc.id)
	}
	bc.reply <- shape(r, bc.protocol)
}

// --------------------------------------------------------------------------
// Thread-Safe Contexts
// --------------------------------------------------------------------------

func (h *Host) GetThreadSafeContext(bc raw.BlockedClientHandle) raw.CtxHandle {
	h.require(raw.FeatureThreadSafeContext, "GetThreadSafeContext")

	if bc == 0 {
		return h.newCtx(ctxThreadSafe, "", 2).id
	}

	b, ok := h.blocked.Load(bc)
	if !ok {
		protocolViolation("GetThreadSafeContext for unknown blocked client %d", bc)
	}
	c := h.newCtx(ctxThreadSafe, b.module, b.protocol)
	c.bc = b
	return c.id
}

func (h *Host) GetDetachedThreadSafeContext(ctx raw.CtxHandle) raw.CtxHandle {
	h.require(raw.FeatureThreadSafeContext, "GetDetachedThreadSafeContext")

	module := ""
	if c, ok := h.contexts.Load(ctx); ok {
		module = c.module
	}
	return h.newCtx(ctxDetached, module, 2).id
}

func (h *Host) FreeThreadSafeContext(ctx raw.CtxHandle) {
	c := h.ctx(ctx)
	if c.kind != ctxThreadSafe && c.kind != ctxDetached {
		protocolViolation("FreeThreadSafeContext on a %s context", c.kind)
	}
	h.freeCtx(c)
}

func (h *Host) ThreadSafeContextLock(ctx raw.CtxHandle) {
	h.ctx(ctx)
	h.lockGIL()
}

func (h *Host) ThreadSafeContextUnlock(ctx raw.CtxHandle) {
	h.ctx(ctx)
	h.unlockGIL()
}

// --------------------------------------------------------------------------
// Waiters (blocking pops)
// --------------------------------------------------------------------------

// waiter is a pending blocking pop, guarded by the gil
type waiter struct {
	keys   []string
	done   bool
	timer  *time.Timer
	finish func(r *Reply)
}

func (h *Host) addWaiter(w *waiter, timeout time.Duration) {
	for _, k := range w.keys {
		h.waiters[k] = append(h.waiters[k], w)
	}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			h.events.Push(event{kind: evWaiterTimeout, waiter: w})
		})
	}
}

func (h *Host) removeWaiter(w *waiter) {
	for _, k := range w.keys {
		ws := h.waiters[k]
		for i, other := range ws {
			if other == w {
				ws = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		if len(ws) == 0 {
			delete(h.waiters, k)
		} else {
			h.waiters[k] = ws
		}
	}
}

func (h *Host) finishWaiter(w *waiter, r *Reply) {
	if w.done {
		return
	}
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.finish(r)
}

// serveWaiters hands elements of the list at key to waiting pops, oldest first
func (h *Host) serveWaiters(key string) {
	for len(h.waiters[key]) > 0 {
		obj, _ := h.lookup(key, objList)
		if obj == nil || len(obj.list) == 0 {
			return
		}
		w := h.waiters[key][0]
		h.removeWaiter(w)
		h.finishWaiter(w, NewArray(NewString(key), NewBytes(h.popFront(key, obj))))
	}
}

// --------------------------------------------------------------------------
// Promises
// --------------------------------------------------------------------------

// promise is the pending result of a call with CallBlocking, guarded by the gil
type promise struct {
	id       uint64
	module   string
	protocol int
	waiter   *waiter

	handler raw.UnblockFunc
	data    any

	result    *Reply
	completed bool
	fired     bool
}

func (h *Host) newPromise(protocol int, module string) *promise {
	p := &promise{id: h.newHandle(), module: module, protocol: protocol}
	h.promises.Store(p.id, p)
	return p
}

// completePromise stores the result and schedules the handler if one is set
func (h *Host) completePromise(p *promise, r *Reply) {
	if p.completed {
		return
	}
	p.completed = true
	p.result = r
	if p.handler != nil {
		h.events.Push(event{kind: evPromise, promise: p})
	}
}

// firePromise invokes the unblock handler with a fresh root reply
func (h *Host) firePromise(p *promise) {
	if p.fired {
		return
	}
	p.fired = true
	h.promises.Delete(p.id)

	reply := h.newRoot(shape(p.result, p.protocol), nil)
	c := h.newCtx(ctxUnblock, p.module, p.protocol)
	defer h.freeCtx(c)

	p.handler(c.id, reply, p.data)
}

// releasePromise runs when the promise reply is freed. Promises with a
// handler stay alive until it fired, all others are cancelled.
func (h *Host) releasePromise(p *promise) {
	if p.handler != nil {
		return
	}
	if p.waiter != nil && !p.waiter.done {
		h.removeWaiter(p.waiter)
		p.waiter.done = true
		if p.waiter.timer != nil {
			p.waiter.timer.Stop()
		}
	}
	h.promises.Delete(p.id)
	Logger.Debugf("promise %d released without handler", p.id)
}

func (h *Host) promiseOf(reply raw.ReplyHandle) *promise {
	h.require(raw.FeatureBlockingCall, "CallReplyPromise")
	obj, _ := h.reply(reply)
	if obj == nil || obj.promise == nil {
		protocolViolation("reply %d is not a promise", reply)
	}
	return obj.promise
}

func (h *Host) CallReplyPromiseSetUnblockHandler(reply raw.ReplyHandle, fn raw.UnblockFunc, data any) {
	p := h.promiseOf(reply)
	if p.handler != nil {
		protocolViolation("unblock handler of promise %d already set", p.id)
	}
	p.handler = fn
	p.data = data
	if p.completed {
		h.events.Push(event{kind: evPromise, promise: p})
	}
}

// CallReplyPromiseAbort fails a pending promise. A registered handler still
// fires, with an ABORTED error reply.
func (h *Host) CallReplyPromiseAbort(reply raw.ReplyHandle) raw.Status {
	p := h.promiseOf(reply)
	if p.completed {
		return raw.StatusErr
	}
	if p.waiter != nil && !p.waiter.done {
		h.removeWaiter(p.waiter)
		p.waiter.done = true
		if p.waiter.timer != nil {
			p.waiter.timer.Stop()
		}
	}
	h.completePromise(p, NewErrorReply(errAborted))
	return raw.StatusOK
}

const (
	errAborted  = "ABORTED blocking call was aborted"
	errShutdown = "ABORTED host is shutting down"
)
