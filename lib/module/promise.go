package module

import (
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// PromiseReply is the result of CallBlocking: Resolved or *FutureCallReply
type PromiseReply interface {
	isPromiseReply()
}

// Resolved is a blocking call that completed immediately
type Resolved struct {
	Reply *RootReply
}

func (Resolved) isPromiseReply() {}

// CallBlocking runs a command that may block. If it cannot complete right
// away a *FutureCallReply is returned and the command handler should register
// an unblock handler, typically after blocking its own client.
func (c *Context) CallBlocking(opts BlockingCallOptions, cmd string, args ...string) PromiseReply {
	c.require(raw.FeatureCall | raw.FeatureBlockingCall)
	if opts.flags.Has(raw.CallResp3) {
		c.require(raw.FeatureResp3)
	}
	callsTotal.Inc()

	h := c.api.Call(c.ctx, cmd, opts.flags, toArgs(args))
	if h == 0 || c.api.CallReplyType(h) != raw.ReplyPromise {
		return Resolved{Reply: newRootReply(c.api, h)}
	}

	futuresTotal.Inc()
	f := &FutureCallReply{api: c.api, h: h, module: c.module}
	runtime.SetFinalizer(f, finalizeFuture)
	return f
}

// --------------------------------------------------------------------------
// Future
// --------------------------------------------------------------------------

const (
	futurePending int32 = iota
	futureHandled
	futureDiscarded
)

// FutureCallReply is a pending blocking call
type FutureCallReply struct {
	api    raw.API
	h      raw.ReplyHandle
	module *Module
	state  atomic.Int32
}

func (*FutureCallReply) isPromiseReply() {}

// SetUnblockHandler registers fn, which runs once with the lock held when the
// call completes. The reply passed to fn is freed after fn returns, and so is
// the promise handle unless it was disposed before. Registering a second
// handler panics.
func (f *FutureCallReply) SetUnblockHandler(fn func(ctx *Context, reply *RootReply)) *FutureHandler {
	if !f.state.CompareAndSwap(futurePending, futureHandled) {
		protocolViolation("unblock handler already set or future discarded")
	}
	runtime.SetFinalizer(f, nil)

	fh := &FutureHandler{api: f.api, h: f.h}
	api, m := f.api, f.module
	f.api.CallReplyPromiseSetUnblockHandler(f.h, func(ctx raw.CtxHandle, reply raw.ReplyHandle, _ any) {
		root := newRootReply(api, reply)
		defer root.Free()
		defer fh.release()
		fn(newContext(api, ctx, m), root)
	}, nil)

	return fh
}

// Discard aborts the pending call and releases the future without handler
func (f *FutureCallReply) Discard(li LockIndicator) {
	mustHold(li)
	if !f.state.CompareAndSwap(futurePending, futureDiscarded) {
		return
	}
	runtime.SetFinalizer(f, nil)
	f.abortAndFree()
}

func (f *FutureCallReply) abortAndFree() {
	Logger.Warningf("future reply %d discarded without unblock handler, aborting the call", f.h)
	if f.api.CallReplyPromiseAbort(f.h) == raw.StatusOK {
		futuresAborted.Inc()
	}
	futuresDropped.Inc()
	f.api.FreeCallReply(f.h)
}

// finalizeFuture aborts a future that was dropped without a handler. It runs
// on the finalizer goroutine and takes the lock itself.
func finalizeFuture(f *FutureCallReply) {
	if !f.state.CompareAndSwap(futurePending, futureDiscarded) {
		return
	}
	ts := NewThreadSafeContext(f.api)
	defer ts.Free()
	guard := ts.Lock()
	defer guard.Release()
	f.abortAndFree()
}

// FutureHandler owns the promise handle after a handler was registered.
// The handle is released by Dispose or AbortAndDispose, otherwise once the
// handler ran.
type FutureHandler struct {
	api      raw.API
	h        raw.ReplyHandle
	disposed atomic.Bool
}

// Dispose releases the promise handle. The handler still fires.
func (h *FutureHandler) Dispose(li LockIndicator) {
	mustHold(li)
	h.release()
}

// release frees the promise handle once, the caller holds the lock
func (h *FutureHandler) release() {
	if h.disposed.CompareAndSwap(false, true) {
		h.api.FreeCallReply(h.h)
	}
}

// AbortAndDispose aborts the pending call, the handler fires once with a
// CodeAborted error reply. Returns a CodeNotFound error if the call already
// completed.
func (h *FutureHandler) AbortAndDispose(li LockIndicator) error {
	mustHold(li)
	if h.disposed.Load() {
		return NewError(CodeNotFound, "future handler already disposed")
	}
	st := h.api.CallReplyPromiseAbort(h.h)
	h.Dispose(li)
	if st != raw.StatusOK {
		return NewError(CodeNotFound, "blocking call already completed")
	}
	futuresAborted.Inc()
	return nil
}
