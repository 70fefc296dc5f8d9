// Package timers exposes deferred timers as commands. Fired payloads are
// kept in module state that is only touched with the store lock held.
//
// Commands:
//
//	TIMER.SET ms payload -> timer id
//	TIMER.STOP id        -> payload of the stopped timer
//	TIMER.INFO id        -> [remaining ms, payload]
//	TIMER.FIRED          -> payloads of all fired timers, oldest first
package timers

import (
	"strconv"
	"time"

	"github.com/ValentinKolb/kvmod/lib/module"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

type timerModule struct {
	fired *module.GILGuard[[]string]
}

// New creates the timers module
func New() *module.Module {
	tm := &timerModule{fired: module.NewGILGuard([]string{})}

	return &module.Module{
		Name:    "timers",
		Version: "1.0.0",
		Commands: []module.Command{
			{Name: "TIMER.SET", Flags: "write", Handler: tm.set},
			{Name: "TIMER.STOP", Flags: "write", Handler: tm.stop},
			{Name: "TIMER.INFO", Flags: "readonly", Handler: tm.info},
			{Name: "TIMER.FIRED", Flags: "readonly", Handler: tm.list},
		},
	}
}

func parseID(s string) (raw.TimerID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, module.Errorf("invalid timer id")
	}
	return raw.TimerID(id), nil
}

func (tm *timerModule) set(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 3 {
		return nil, module.ErrWrongArity
	}
	ms, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return nil, module.Errorf("value is not an integer or out of range")
	}

	id := module.CreateTimer(ctx, time.Duration(ms)*time.Millisecond, tm.onFire, args[2])
	return module.Integer(int64(id)), nil
}

func (tm *timerModule) onFire(ctx *module.Context, payload string) {
	fired := tm.fired.Lock(ctx)
	*fired = append(*fired, payload)
	ctx.LogDebug("timer fired with payload %q", payload)
}

func (tm *timerModule) stop(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	id, err := parseID(args[1])
	if err != nil {
		return nil, err
	}

	payload, err := module.StopTimer[string](ctx, id)
	if err != nil {
		return nil, err
	}
	return module.BulkString(payload), nil
}

func (tm *timerModule) info(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 2 {
		return nil, module.ErrWrongArity
	}
	id, err := parseID(args[1])
	if err != nil {
		return nil, err
	}

	remaining, payload, err := module.GetTimerInfo[string](ctx, id)
	if err != nil {
		return nil, err
	}
	return module.Array{module.Integer(remaining.Milliseconds()), module.BulkString(*payload)}, nil
}

func (tm *timerModule) list(ctx *module.Context, args []string) (module.Value, error) {
	if len(args) != 1 {
		return nil, module.ErrWrongArity
	}

	fired := *tm.fired.Lock(ctx)
	out := make(module.Array, len(fired))
	for i, p := range fired {
		out[i] = module.BulkString(p)
	}
	return out, nil
}
