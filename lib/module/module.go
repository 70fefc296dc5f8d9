package module

import (
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// Handler implements a command. args[0] is the command name. The returned
// value is sent to the client, a non-nil error is sent as error reply.
type Handler func(ctx *Context, args []string) (Value, error)

// Command describes a module command
type Command struct {
	Name    string
	Flags   string // "write" or "readonly"
	Handler Handler
}

// Module bundles the commands of a module. Load is its entry point:
//
//	m := &module.Module{Name: "hello", Commands: []module.Command{...}}
//	err := h.LoadModule(m.Name, m.Load)
type Module struct {
	Name     string
	Version  string
	Commands []Command

	// OnLoad runs after the commands were registered, a non-nil error fails
	// the load
	OnLoad func(ctx *Context) error

	api      raw.API
	detached *DetachedContext
}

// Load registers the commands of the module. It has the raw.OnLoadFunc
// signature.
func (m *Module) Load(api raw.API, ctx raw.CtxHandle) raw.Status {
	m.api = api
	c := newContext(api, ctx, m)

	if api.SupportsFeature(raw.FeatureThreadSafeContext) {
		m.detached = newDetachedContext(api, ctx, m)
	}

	for _, cmd := range m.Commands {
		if api.CreateCommand(ctx, cmd.Name, m.wrap(cmd), cmd.Flags) != raw.StatusOK {
			Logger.Errorf("module %s: failed to register command %s", m.Name, cmd.Name)
			m.unload()
			return raw.StatusErr
		}
	}

	if m.OnLoad != nil {
		if err := m.OnLoad(c); err != nil {
			c.LogWarning("module %s failed to load: %v", m.Name, err)
			m.unload()
			return raw.StatusErr
		}
	}

	c.LogNotice("module %s %s loaded (%d commands)", m.Name, m.Version, len(m.Commands))
	return raw.StatusOK
}

func (m *Module) unload() {
	if m.detached != nil {
		m.detached.Free()
		m.detached = nil
	}
}

// Detached returns the detached context of the module, nil before Load
func (m *Module) Detached() *DetachedContext {
	return m.detached
}

// wrap turns a handler into a raw command callback
func (m *Module) wrap(cmd Command) raw.CommandFunc {
	calls := commandCounter(m.Name, cmd.Name)
	return func(ctx raw.CtxHandle, argv [][]byte) raw.Status {
		calls.Inc()
		args := make([]string, len(argv))
		for i, a := range argv {
			args[i] = string(a)
		}

		c := newContext(m.api, ctx, m)
		v, err := cmd.Handler(c, args)
		return c.Reply(v, err)
	}
}
