package module

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// timerBox is the payload handed to the store. The type parameter is checked
// when the payload is taken back.
type timerBox[T any] struct {
	data T
	cb   func(*Context, T)
}

// CreateTimer schedules cb to run once after d with the lock held. Durations
// are rounded up to whole milliseconds.
func CreateTimer[T any](ctx *Context, d time.Duration, cb func(*Context, T), data T) raw.TimerID {
	ctx.require(raw.FeatureTimers)

	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	api, m := ctx.api, ctx.module
	box := &timerBox[T]{data: data, cb: cb}

	timersCreated.Inc()
	return api.CreateTimer(ctx.ctx, ms, func(c raw.CtxHandle, payload any) {
		b, ok := payload.(*timerBox[T])
		if !ok {
			protocolViolation("timer fired with foreign payload %T", payload)
		}
		timersFired.Inc()
		b.cb(newContext(api, c, m), b.data)
	}, box)
}

// StopTimer cancels a pending timer and returns its payload. The timer is left
// untouched if T does not match the payload type.
func StopTimer[T any](ctx *Context, id raw.TimerID) (T, error) {
	var zero T
	ctx.require(raw.FeatureTimers)

	if _, err := lookupTimer[T](ctx, id); err != nil {
		return zero, err
	}
	payload, st := ctx.api.StopTimer(ctx.ctx, id)
	if st != raw.StatusOK {
		return zero, timerNotFound(id)
	}
	return payload.(*timerBox[T]).data, nil
}

// GetTimerInfo returns the time left and a pointer to the payload of a
// pending timer. The pointer is valid until the timer fires or is stopped.
func GetTimerInfo[T any](ctx *Context, id raw.TimerID) (time.Duration, *T, error) {
	ctx.require(raw.FeatureTimers)

	remainingMs, payload, st := ctx.api.GetTimerInfo(ctx.ctx, id)
	if st != raw.StatusOK {
		return 0, nil, timerNotFound(id)
	}
	b, err := boxOf[T](id, payload)
	if err != nil {
		return 0, nil, err
	}
	return time.Duration(remainingMs) * time.Millisecond, &b.data, nil
}

func lookupTimer[T any](ctx *Context, id raw.TimerID) (*timerBox[T], error) {
	_, payload, st := ctx.api.GetTimerInfo(ctx.ctx, id)
	if st != raw.StatusOK {
		return nil, timerNotFound(id)
	}
	return boxOf[T](id, payload)
}

func boxOf[T any](id raw.TimerID, payload any) (*timerBox[T], error) {
	b, ok := payload.(*timerBox[T])
	if !ok {
		var want T
		return nil, NewError(CodeWrongType, fmt.Sprintf("timer %d does not carry a %T payload", id, want))
	}
	return b, nil
}

func timerNotFound(id raw.TimerID) error {
	return NewError(CodeNotFound, fmt.Sprintf("timer %d not found", id))
}
