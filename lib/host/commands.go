package host

import (
	"sort"
	"strings"

	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Command Table
// --------------------------------------------------------------------------

type builtinFunc func(h *Host, inv *invocation) *Reply

type command struct {
	name   string
	arity  int // exact argument count including the name if positive, minimum if negative
	write  bool
	module string // empty for builtins

	builtin builtinFunc
	fn      raw.CommandFunc

	calls metrics.Counter
}

// invocation is a single execution of a command, either from a client or
// through Call
type invocation struct {
	args     [][]byte // full argv, the command name first
	protocol int
	module   string // calling module, empty for clients

	// client waiting for the reply, nil for nested calls
	client chan<- *Reply
	// the call may turn into a promise
	blocking bool

	// outcome of blocking commands
	blocked bool
	promise *promise
}

func (inv *invocation) name() string {
	return strings.ToLower(string(inv.args[0]))
}

func (inv *invocation) arg(i int) string {
	return string(inv.args[i])
}

func (h *Host) addCommand(cmd *command) {
	cmd.calls = metrics.GetOrRegisterCounter("commands."+cmd.name, h.registry)
	h.commands[cmd.name] = cmd
}

func (c *command) arityOK(argc int) bool {
	if c.arity >= 0 {
		return argc == c.arity
	}
	return argc >= -c.arity
}

// CommandNames returns the names of all commands, sorted
func (h *Host) CommandNames() []string {
	h.lockGIL()
	defer h.unlockGIL()

	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// dispatch runs a command with the GIL held. A nil reply means the call
// produced no object (pre-execution failure without CallErrorsAsReplies) or
// the invocation blocked or turned into a promise.
func (h *Host) dispatch(inv *invocation, flags raw.CallFlags) *Reply {
	name := inv.name()
	nested := inv.client == nil

	cmd, ok := h.commands[name]
	if !ok {
		if nested && !flags.Has(raw.CallErrorsAsReplies) {
			return nil
		}
		return NewErrorReply("ERR unknown command '" + string(inv.args[0]) + "'")
	}

	if nested && flags.Has(raw.CallNoWrites) && cmd.write {
		if !flags.Has(raw.CallErrorsAsReplies) {
			return nil
		}
		return NewErrorReply("ERR Write command '" + name + "' was called while write is not allowed.")
	}

	if !cmd.arityOK(len(inv.args)) {
		return NewErrorReply(wrongArityMsg(name))
	}

	cmd.calls.Inc(1)
	size := 0
	for _, a := range inv.args {
		size += len(a)
	}
	h.argSizes.Add(size)

	if cmd.builtin != nil {
		return cmd.builtin(h, inv)
	}
	return h.runModuleCommand(cmd, inv)
}

// runModuleCommand calls a module command and collects its reply
func (h *Host) runModuleCommand(cmd *command, inv *invocation) *Reply {
	c := h.newCtx(ctxCommand, cmd.module, inv.protocol)
	defer h.freeCtx(c)

	c.name = cmd.name
	c.builder = &replyBuilder{}
	c.reply = inv.client

	status := cmd.fn(c.id, inv.args)

	if c.blocked != nil {
		inv.blocked = true
		if c.builder.written() {
			Logger.Warningf("command %s replied and blocked the client, reply dropped", cmd.name)
		}
		return nil
	}

	r, complete := c.builder.result()
	if c.builder.extra > 0 {
		Logger.Warningf("command %s wrote %d extra replies", cmd.name, c.builder.extra)
	}
	if !complete {
		Logger.Warningf("command %s left an incomplete aggregate reply", cmd.name)
	}
	if r == nil {
		if status != raw.StatusOK {
			return NewErrorReply("ERR command " + cmd.name + " failed")
		}
		Logger.Warningf("command %s returned without a reply", cmd.name)
		return NewNull()
	}
	return r
}
