package module

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("module")

// Context is handed to every callback that runs with the global lock held:
// commands, timers, unblock handlers and event handlers. It must not be used
// after the callback returned.
type Context struct {
	api    raw.API
	ctx    raw.CtxHandle
	module *Module
}

func newContext(api raw.API, ctx raw.CtxHandle, m *Module) *Context {
	return &Context{api: api, ctx: ctx, module: m}
}

// lockHeld marks Context as a LockIndicator
func (c *Context) lockHeld() {}

// Module returns the module the context belongs to, nil for contexts created
// outside of a module
func (c *Context) Module() *Module {
	return c.module
}

// API returns the raw function table
func (c *Context) API() raw.API {
	return c.api
}

func (c *Context) require(f raw.Feature) {
	if !c.api.SupportsFeature(f) {
		protocolViolation("the store does not support %s", f)
	}
}

// --------------------------------------------------------------------------
// Calls
// --------------------------------------------------------------------------

func toArgs(args []string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}

// Call runs a command with RESP3 replies and projects the result. Error
// replies, including unknown commands, are returned as *Error.
func (c *Context) Call(cmd string, args ...string) (Value, error) {
	root := c.CallExt(defaultCallOptions, cmd, args...)
	defer root.Free()
	return root.Value()
}

// CallExt runs a command and returns the owning root of its reply
func (c *Context) CallExt(opts CallOptions, cmd string, args ...string) *RootReply {
	c.require(raw.FeatureCall)
	if opts.flags.Has(raw.CallResp3) {
		c.require(raw.FeatureResp3)
	}
	callsTotal.Inc()
	return newRootReply(c.api, c.api.Call(c.ctx, cmd, opts.flags, toArgs(args)))
}

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

// Reply sends the result of a command. A non-nil err becomes an error reply,
// a nil Value a null reply and NoReply sends nothing.
func (c *Context) Reply(v Value, err error) raw.Status {
	if err != nil {
		return c.ReplyError(err)
	}
	return writeValue(c.api, c.ctx, v)
}

// ReplyError sends err as error reply. CodeWrongArity uses the standard wrong
// arity reply of the store.
func (c *Context) ReplyError(err error) raw.Status {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeWrongArity {
		return c.api.WrongArity(c.ctx)
	}
	return c.api.ReplyWithError(c.ctx, replyText(err))
}

// --------------------------------------------------------------------------
// Logging (does not need the lock)
// --------------------------------------------------------------------------

// Log writes a line to the store log
func (c *Context) Log(level raw.LogLevel, format string, args ...any) {
	c.api.Log(c.ctx, level, fmt.Sprintf(format, args...))
}

func (c *Context) LogDebug(format string, args ...any) {
	c.Log(raw.LogDebug, format, args...)
}

func (c *Context) LogNotice(format string, args ...any) {
	c.Log(raw.LogNotice, format, args...)
}

func (c *Context) LogWarning(format string, args ...any) {
	c.Log(raw.LogWarning, format, args...)
}
