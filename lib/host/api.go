package host

import (
	"strings"
	"sync"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

var _ raw.API = (*Host)(nil)

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

const allFeatures = raw.FeatureCall | raw.FeatureResp3 | raw.FeatureBlockingCall |
	raw.FeatureBlockClient | raw.FeatureThreadSafeContext | raw.FeatureTimers | raw.FeatureScan |
	raw.FeatureKeys | raw.FeatureNotifications | raw.FeatureServerEvents

func (h *Host) SupportsFeature(feature raw.Feature) bool {
	return raw.Feature(h.features.Load())&feature == feature
}

// DisableFeatures removes features from the API, making the host behave like
// an older store version. Calling a function of a disabled feature is a
// protocol violation.
func (h *Host) DisableFeatures(features raw.Feature) {
	for {
		old := h.features.Load()
		if h.features.CompareAndSwap(old, old&^uint64(features)) {
			return
		}
	}
}

func (h *Host) require(feature raw.Feature, fn string) {
	if !h.SupportsFeature(feature) {
		protocolViolation("%s requires the unsupported feature %s", fn, feature)
	}
}

// --------------------------------------------------------------------------
// Reply Objects
// --------------------------------------------------------------------------

// rootState is shared by a root reply and all child handles handed out for it
type rootState struct {
	handle   raw.ReplyHandle
	mu       sync.Mutex
	children map[childKey]raw.ReplyHandle
}

type childKey struct {
	parent raw.ReplyHandle
	idx    int
}

type replyObj struct {
	r       *Reply
	root    *rootState
	promise *promise
}

func (h *Host) newRoot(r *Reply, p *promise) raw.ReplyHandle {
	id := raw.ReplyHandle(h.newHandle())
	h.replies.Store(id, &replyObj{
		r:       r,
		root:    &rootState{handle: id, children: make(map[childKey]raw.ReplyHandle)},
		promise: p,
	})
	h.liveRoots.Add(1)
	return id
}

// child returns the handle of a child reply, creating it on first access
func (h *Host) child(parent raw.ReplyHandle, obj *replyObj, idx int, r *Reply) raw.ReplyHandle {
	root := obj.root
	root.mu.Lock()
	defer root.mu.Unlock()

	key := childKey{parent: parent, idx: idx}
	if id, ok := root.children[key]; ok {
		return id
	}
	id := raw.ReplyHandle(h.newHandle())
	h.replies.Store(id, &replyObj{r: r, root: root})
	root.children[key] = id
	return id
}

// reply resolves a reply handle; nil for the nil handle
func (h *Host) reply(id raw.ReplyHandle) (*replyObj, *Reply) {
	if id == 0 {
		return nil, nil
	}
	obj, ok := h.replies.Load(id)
	if !ok {
		protocolViolation("use of unknown or freed reply handle %d", id)
	}
	return obj, obj.r
}

// --------------------------------------------------------------------------
// Command Invocation and Call Replies
// --------------------------------------------------------------------------

func (h *Host) Call(ctx raw.CtxHandle, cmd string, flags raw.CallFlags, args [][]byte) raw.ReplyHandle {
	h.require(raw.FeatureCall, "Call")
	if flags.Has(raw.CallBlocking) {
		h.require(raw.FeatureBlockingCall, "Call with CallBlocking")
	}
	if flags.Has(raw.CallResp3) {
		h.require(raw.FeatureResp3, "Call with CallResp3")
	}

	caller := h.ctx(ctx)
	// notification callbacks write through post notification jobs
	if caller.kind == ctxNotify {
		flags |= raw.CallNoWrites | raw.CallErrorsAsReplies
	}

	protocol := 2
	switch {
	case flags.Has(raw.CallResp3):
		protocol = 3
	case flags.Has(raw.CallRespAuto):
		protocol = caller.protocol
	}

	argv := make([][]byte, 0, len(args)+1)
	argv = append(argv, []byte(cmd))
	argv = append(argv, args...)

	inv := &invocation{
		args:     argv,
		protocol: protocol,
		blocking: flags.Has(raw.CallBlocking),
		module:   caller.module,
	}

	r := h.dispatch(inv, flags)
	if inv.promise != nil {
		return h.newRoot(&Reply{Type: raw.ReplyPromise}, inv.promise)
	}
	if r == nil {
		return 0
	}
	return h.newRoot(shape(r, protocol), nil)
}

func (h *Host) CallReplyType(reply raw.ReplyHandle) raw.ReplyType {
	_, r := h.reply(reply)
	if r == nil {
		return raw.ReplyUnknown
	}
	return r.Type
}

func (h *Host) CallReplyInteger(reply raw.ReplyHandle) int64 {
	_, r := h.reply(reply)
	if r == nil {
		return 0
	}
	return r.Int
}

func (h *Host) CallReplyStringPtr(reply raw.ReplyHandle) []byte {
	_, r := h.reply(reply)
	if r == nil {
		return nil
	}
	return r.Str
}

func (h *Host) CallReplyLength(reply raw.ReplyHandle) int {
	_, r := h.reply(reply)
	if r == nil {
		return 0
	}
	return r.Len()
}

func (h *Host) CallReplyArrayElement(reply raw.ReplyHandle, idx int) raw.ReplyHandle {
	obj, r := h.reply(reply)
	if r == nil || r.Type != raw.ReplyArray || idx < 0 || idx >= len(r.Elems) {
		return 0
	}
	return h.child(reply, obj, idx, r.Elems[idx])
}

func (h *Host) CallReplyMapElement(reply raw.ReplyHandle, idx int) (key, value raw.ReplyHandle) {
	obj, r := h.reply(reply)
	if r == nil || r.Type != raw.ReplyMap || idx < 0 || idx >= len(r.Map) {
		return 0, 0
	}
	p := r.Map[idx]
	return h.child(reply, obj, 2*idx, p.Key), h.child(reply, obj, 2*idx+1, p.Value)
}

func (h *Host) CallReplySetElement(reply raw.ReplyHandle, idx int) raw.ReplyHandle {
	obj, r := h.reply(reply)
	if r == nil || r.Type != raw.ReplySet || idx < 0 || idx >= len(r.Elems) {
		return 0
	}
	return h.child(reply, obj, idx, r.Elems[idx])
}

func (h *Host) CallReplyBool(reply raw.ReplyHandle) bool {
	_, r := h.reply(reply)
	return r != nil && r.Bool
}

func (h *Host) CallReplyDouble(reply raw.ReplyHandle) float64 {
	_, r := h.reply(reply)
	if r == nil {
		return 0
	}
	return r.Double
}

func (h *Host) CallReplyBigNumber(reply raw.ReplyHandle) []byte {
	_, r := h.reply(reply)
	if r == nil || r.Type != raw.ReplyBigNumber {
		return nil
	}
	return r.Str
}

func (h *Host) CallReplyVerbatim(reply raw.ReplyHandle) ([]byte, string) {
	_, r := h.reply(reply)
	if r == nil || r.Type != raw.ReplyVerbatimString {
		return nil, ""
	}
	return r.Str, r.Format
}

func (h *Host) FreeCallReply(reply raw.ReplyHandle) {
	if reply == 0 {
		return
	}

	obj, ok := h.replies.Load(reply)
	if !ok {
		h.doubleFrees.Add(1)
		Logger.Warningf("free of unknown reply handle %d", reply)
		return
	}

	// children are released together with their root
	if obj.root.handle != reply {
		return
	}

	obj.root.mu.Lock()
	for _, id := range obj.root.children {
		h.replies.Delete(id)
	}
	obj.root.children = nil
	obj.root.mu.Unlock()

	h.replies.Delete(reply)
	h.liveRoots.Add(-1)

	if obj.promise != nil {
		h.releasePromise(obj.promise)
	}
}

// --------------------------------------------------------------------------
// Replying to the Client
// --------------------------------------------------------------------------

// builderOf returns the builder replies of ctx go to, nil if they are dropped
func (h *Host) builderOf(ctx raw.CtxHandle) *replyBuilder {
	c := h.ctx(ctx)
	if c.builder != nil {
		return c.builder
	}
	if c.bc != nil {
		return &c.bc.builder
	}
	Logger.Debugf("reply on %s context %d is dropped", c.kind, ctx)
	return nil
}

func (h *Host) replyWith(ctx raw.CtxHandle, r *Reply, n int) raw.Status {
	if b := h.builderOf(ctx); b != nil {
		b.add(r, n)
	}
	return raw.StatusOK
}

func (h *Host) ReplyWithLongLong(ctx raw.CtxHandle, v int64) raw.Status {
	return h.replyWith(ctx, NewInteger(v), 0)
}

func (h *Host) ReplyWithSimpleString(ctx raw.CtxHandle, s string) raw.Status {
	return h.replyWith(ctx, NewString(s), 0)
}

func (h *Host) ReplyWithError(ctx raw.CtxHandle, msg string) raw.Status {
	return h.replyWith(ctx, NewErrorReply(msg), 0)
}

func (h *Host) ReplyWithStringBuffer(ctx raw.CtxHandle, b []byte) raw.Status {
	return h.replyWith(ctx, NewBytes(append([]byte(nil), b...)), 0)
}

func (h *Host) ReplyWithArray(ctx raw.CtxHandle, n int) raw.Status {
	return h.replyWith(ctx, NewArray(), n)
}

func (h *Host) ReplyWithMap(ctx raw.CtxHandle, n int) raw.Status {
	return h.replyWith(ctx, NewMap(), n)
}

func (h *Host) ReplyWithSet(ctx raw.CtxHandle, n int) raw.Status {
	return h.replyWith(ctx, NewSet(), n)
}

func (h *Host) ReplyWithNull(ctx raw.CtxHandle) raw.Status {
	return h.replyWith(ctx, NewNull(), 0)
}

func (h *Host) ReplyWithBool(ctx raw.CtxHandle, v bool) raw.Status {
	return h.replyWith(ctx, NewBool(v), 0)
}

func (h *Host) ReplyWithDouble(ctx raw.CtxHandle, v float64) raw.Status {
	return h.replyWith(ctx, NewDouble(v), 0)
}

func (h *Host) ReplyWithBigNumber(ctx raw.CtxHandle, digits string) raw.Status {
	return h.replyWith(ctx, NewBigNumber(digits), 0)
}

func (h *Host) ReplyWithVerbatimString(ctx raw.CtxHandle, data []byte, format string) raw.Status {
	if len(format) != raw.VerbatimFormatLength {
		return raw.StatusErr
	}
	return h.replyWith(ctx, NewVerbatim(format, append([]byte(nil), data...)), 0)
}

func (h *Host) WrongArity(ctx raw.CtxHandle) raw.Status {
	name := "unknown"
	if c := h.ctx(ctx); c.kind == ctxCommand && c.name != "" {
		name = c.name
	}
	return h.replyWith(ctx, NewErrorReply(wrongArityMsg(name)), 0)
}

func wrongArityMsg(name string) string {
	return "ERR wrong number of arguments for '" + strings.ToLower(name) + "' command"
}

// --------------------------------------------------------------------------
// Logging and Registration
// --------------------------------------------------------------------------

func (h *Host) Log(ctx raw.CtxHandle, level raw.LogLevel, msg string) {
	module := "-"
	if c, ok := h.contexts.Load(ctx); ok && c.module != "" {
		module = c.module
	}

	switch level {
	case raw.LogDebug, raw.LogVerbose:
		Logger.Debugf("<%s> %s", module, msg)
	case raw.LogNotice:
		Logger.Infof("<%s> %s", module, msg)
	default:
		Logger.Warningf("<%s> %s", module, msg)
	}
}

func (h *Host) CreateCommand(ctx raw.CtxHandle, name string, fn raw.CommandFunc, flags string) raw.Status {
	c := h.ctx(ctx)
	if c.kind != ctxLoad {
		Logger.Errorf("CreateCommand(%s) called outside of a module entry point", name)
		return raw.StatusErr
	}

	lname := strings.ToLower(name)
	if lname == "" || fn == nil {
		return raw.StatusErr
	}
	if _, exists := h.commands[lname]; exists {
		Logger.Errorf("module %s: command %s already exists", c.module, name)
		return raw.StatusErr
	}

	cmd := &command{
		name:   lname,
		arity:  -1,
		module: c.module,
		fn:     fn,
	}
	for _, f := range strings.Fields(flags) {
		switch strings.ToLower(f) {
		case "write":
			cmd.write = true
		case "readonly":
		default:
			Logger.Errorf("module %s: unknown flag %q for command %s", c.module, f, name)
			return raw.StatusErr
		}
	}

	h.addCommand(cmd)
	Logger.Debugf("module %s registered command %s", c.module, lname)
	return raw.StatusOK
}
