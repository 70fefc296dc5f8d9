package module

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// --------------------------------------------------------------------------
// Lock Indicator
// --------------------------------------------------------------------------

// LockIndicator is implemented by every value that proves the caller holds
// the store lock: *Context inside callbacks and *ContextGuard after
// ThreadSafeContext.Lock.
type LockIndicator interface {
	lockHeld()
}

// mustHold panics unless li proves the lock is held
func mustHold(li LockIndicator) {
	switch l := li.(type) {
	case nil:
		protocolViolation("lock indicator is nil")
	case *Context:
		if l == nil {
			protocolViolation("lock indicator is nil")
		}
	case *ContextGuard:
		if l == nil {
			protocolViolation("lock indicator is nil")
		}
	}
	li.lockHeld()
}

// --------------------------------------------------------------------------
// Thread-Safe Context
// --------------------------------------------------------------------------

// ThreadSafeContext can be used from any goroutine. It can be shared, but
// Lock is exclusive for the whole process.
type ThreadSafeContext struct {
	api    raw.API
	ctx    raw.CtxHandle
	module *Module
	freed  atomic.Bool
}

// NewThreadSafeContext creates a context that is not bound to a client
func NewThreadSafeContext(api raw.API) *ThreadSafeContext {
	if !api.SupportsFeature(raw.FeatureThreadSafeContext) {
		protocolViolation("the store does not support %s", raw.FeatureThreadSafeContext)
	}
	return &ThreadSafeContext{api: api, ctx: api.GetThreadSafeContext(0)}
}

// Lock blocks until the store lock is acquired. Release the guard with defer.
func (t *ThreadSafeContext) Lock() *ContextGuard {
	if t.freed.Load() {
		protocolViolation("thread-safe context used after Free")
	}
	t.api.ThreadSafeContextLock(t.ctx)
	return &ContextGuard{ctx: newContext(t.api, t.ctx, t.module)}
}

// Free releases the context. It must not be locked.
func (t *ThreadSafeContext) Free() {
	if t.freed.CompareAndSwap(false, true) {
		t.api.FreeThreadSafeContext(t.ctx)
	}
}

// ContextGuard holds the store lock until Release. Every method panics once
// the guard was released.
type ContextGuard struct {
	ctx      *Context
	released atomic.Bool
}

func (g *ContextGuard) lockHeld() {
	if g.released.Load() {
		protocolViolation("context guard used after Release")
	}
}

// context returns the locked context after checking the guard
func (g *ContextGuard) context() *Context {
	g.lockHeld()
	return g.ctx
}

// Release gives the lock back. Calling it more than once has no effect.
func (g *ContextGuard) Release() {
	if g.released.CompareAndSwap(false, true) {
		g.ctx.api.ThreadSafeContextUnlock(g.ctx.ctx)
	}
}

func (g *ContextGuard) Module() *Module { return g.context().Module() }

func (g *ContextGuard) API() raw.API { return g.context().API() }

// Call is Context.Call under the guard
func (g *ContextGuard) Call(cmd string, args ...string) (Value, error) {
	return g.context().Call(cmd, args...)
}

// CallExt is Context.CallExt under the guard
func (g *ContextGuard) CallExt(opts CallOptions, cmd string, args ...string) *RootReply {
	return g.context().CallExt(opts, cmd, args...)
}

// ScanKeys is Context.ScanKeys under the guard. The cursor must be closed
// before the guard is released.
func (g *ContextGuard) ScanKeys() *KeysCursor {
	return g.context().ScanKeys()
}

func (g *ContextGuard) Log(level raw.LogLevel, format string, args ...any) {
	g.context().Log(level, format, args...)
}

func (g *ContextGuard) LogDebug(format string, args ...any) {
	g.context().LogDebug(format, args...)
}

func (g *ContextGuard) LogNotice(format string, args ...any) {
	g.context().LogNotice(format, args...)
}

func (g *ContextGuard) LogWarning(format string, args ...any) {
	g.context().LogWarning(format, args...)
}

// --------------------------------------------------------------------------
// Detached Context
// --------------------------------------------------------------------------

// DetachedContext is a long lived thread-safe context owned by a module.
// It is created when the module is loaded and lives as long as the store.
type DetachedContext struct {
	ThreadSafeContext
}

func newDetachedContext(api raw.API, ctx raw.CtxHandle, m *Module) *DetachedContext {
	d := &DetachedContext{}
	d.api = api
	d.ctx = api.GetDetachedThreadSafeContext(ctx)
	d.module = m
	return d
}

// Log writes to the store log without taking the lock. A nil
// DetachedContext logs through the package logger.
func (d *DetachedContext) Log(level raw.LogLevel, format string, args ...any) {
	if d == nil {
		logFallback(level, format, args...)
		return
	}
	d.api.Log(d.ctx, level, fmt.Sprintf(format, args...))
}

func (d *DetachedContext) LogDebug(format string, args ...any) {
	d.Log(raw.LogDebug, format, args...)
}

func (d *DetachedContext) LogNotice(format string, args ...any) {
	d.Log(raw.LogNotice, format, args...)
}

func (d *DetachedContext) LogWarning(format string, args ...any) {
	d.Log(raw.LogWarning, format, args...)
}

func logFallback(level raw.LogLevel, format string, args ...any) {
	switch level {
	case raw.LogDebug, raw.LogVerbose:
		Logger.Debugf(format, args...)
	case raw.LogNotice:
		Logger.Infof(format, args...)
	default:
		Logger.Warningf(format, args...)
	}
}

// --------------------------------------------------------------------------
// GIL Guard
// --------------------------------------------------------------------------

// GILGuard protects module global data that is only accessed with the store
// lock held:
//
//	var fired = module.NewGILGuard([]string{})
//
//	func handler(ctx *module.Context, args []string) (module.Value, error) {
//		list := fired.Lock(ctx)
//		*list = append(*list, args[1])
//		...
//	}
type GILGuard[T any] struct {
	v T
}

// NewGILGuard wraps v
func NewGILGuard[T any](v T) *GILGuard[T] {
	return &GILGuard[T]{v: v}
}

// Lock returns the protected value. The pointer must not be kept after the
// lock was released.
func (g *GILGuard[T]) Lock(li LockIndicator) *T {
	mustHold(li)
	return &g.v
}
