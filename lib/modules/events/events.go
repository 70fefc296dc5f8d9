// Package events subscribes to keyspace notifications and server events and
// keeps counters of what it saw. Writes to strings are counted in the key
// events:sets by a post notification job, since notification handlers must
// not write.
//
// Commands:
//
//	EVENTS.COUNT [event] -> map of event name to count sorted by name, or one count
//	EVENTS.SEND key      -> raises the module event "sent" on key
//	EVENTS.FLUSHES       -> number of completed FLUSHALLs
//	EVENTS.RESET         -> clears the counters
package events

import (
	"maps"
	"slices"
	"strings"

	"github.com/ValentinKolb/kvmod/lib/module"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// SetsKey counts string writes outside of the events: namespace
const SetsKey = "events:sets"

type state struct {
	counts  map[string]int64
	flushes int64
}

type eventsModule struct {
	state *module.GILGuard[state]
}

// New creates the events module
func New() *module.Module {
	em := &eventsModule{state: module.NewGILGuard(state{counts: map[string]int64{}})}

	return &module.Module{
		Name:    "events",
		Version: "1.0.0",
		Commands: []module.Command{
			{Name: "EVENTS.COUNT", Flags: "readonly", Handler: em.count},
			{Name: "EVENTS.SEND", Flags: "write", Handler: em.send},
			{Name: "EVENTS.FLUSHES", Flags: "readonly", Handler: em.flushes},
			{Name: "EVENTS.RESET", Flags: "write", Handler: em.reset},
		},
		OnLoad: em.subscribe,
	}
}

func (em *eventsModule) subscribe(ctx *module.Context) error {
	if err := ctx.SubscribeKeyspaceEvents(raw.NotifyAll, em.onKeyspaceEvent); err != nil {
		return err
	}
	return ctx.SubscribeServerEvent(raw.ServerEventFlush, em.onFlush)
}

func (em *eventsModule) onKeyspaceEvent(ctx *module.Context, _ raw.NotifyEvent, event, key string) {
	if strings.HasPrefix(key, "events:") {
		return
	}
	s := em.state.Lock(ctx)
	s.counts[event]++

	if event != "set" {
		return
	}
	err := ctx.AddPostNotificationJob(func(ctx *module.Context) {
		if _, err := ctx.Call("INCR", SetsKey); err != nil {
			ctx.LogWarning("failed to count write to %s: %v", key, err)
		}
	})
	if err != nil {
		ctx.LogWarning("%v", err)
	}
}

func (em *eventsModule) onFlush(ctx *module.Context, _ raw.ServerEvent, subevent uint64) {
	if subevent == raw.FlushEnded {
		em.state.Lock(ctx).flushes++
	}
}

func (em *eventsModule) count(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) > 2 {
		return nil, module.ErrWrongArity
	}
	s := em.state.Lock(ctx)
	if len(args) == 2 {
		return module.Integer(s.counts[args[1]]), nil
	}

	out := module.NewMap()
	for _, event := range slices.Sorted(maps.Keys(s.counts)) {
		out.Set(module.BulkString(event), module.Integer(s.counts[event]))
	}
	return out, nil
}

func (em *eventsModule) send(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	if err := ctx.NotifyKeyspaceEvent(raw.NotifyModule, "sent", args[1]); err != nil {
		return nil, err
	}
	return module.SimpleString("OK"), nil
}

func (em *eventsModule) flushes(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 1 {
		return nil, module.ErrWrongArity
	}
	return module.Integer(em.state.Lock(ctx).flushes), nil
}

func (em *eventsModule) reset(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 1 {
		return nil, module.ErrWrongArity
	}
	s := em.state.Lock(ctx)
	clear(s.counts)
	s.flushes = 0
	return module.SimpleString("OK"), nil
}
