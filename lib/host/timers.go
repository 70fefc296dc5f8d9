package host

import (
	"time"

	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/lni/dragonboat/v4/logger"
)

var timerLogger = logger.GetLogger("host/timer")

// timer is a pending one-shot timer
type timer struct {
	id       raw.TimerID
	module   string
	deadline time.Time
	fn       raw.TimerFunc
	data     any
}

// --------------------------------------------------------------------------
// Timer API
// --------------------------------------------------------------------------

func (h *Host) CreateTimer(ctx raw.CtxHandle, periodMs int64, fn raw.TimerFunc, data any) raw.TimerID {
	h.require(raw.FeatureTimers, "CreateTimer")
	c := h.ctx(ctx)
	if periodMs < 0 {
		periodMs = 0
	}

	h.timerMu.Lock()
	h.nextTimer++
	if h.nextTimer == 0 {
		h.nextTimer++
	}
	t := &timer{
		id:       h.nextTimer,
		module:   c.module,
		deadline: time.Now().Add(time.Duration(periodMs) * time.Millisecond),
		fn:       fn,
		data:     data,
	}
	h.timers.Add(uint64(t.id), uint64(t.deadline.UnixNano()), t)
	h.timerMu.Unlock()

	timerLogger.Debugf("timer %d created (%d ms)", t.id, periodMs)
	h.wakeTimerLoop()
	return t.id
}

func (h *Host) StopTimer(ctx raw.CtxHandle, id raw.TimerID) (any, raw.Status) {
	h.require(raw.FeatureTimers, "StopTimer")
	h.ctx(ctx)

	h.timerMu.Lock()
	t, ok := h.timers.RemoveByKey(uint64(id))
	h.timerMu.Unlock()

	if !ok {
		return nil, raw.StatusErr
	}
	timerLogger.Debugf("timer %d stopped", id)
	return t.data, raw.StatusOK
}

func (h *Host) GetTimerInfo(ctx raw.CtxHandle, id raw.TimerID) (uint64, any, raw.Status) {
	h.require(raw.FeatureTimers, "GetTimerInfo")
	h.ctx(ctx)

	h.timerMu.Lock()
	_, t, ok := h.timers.GetByKey(uint64(id))
	h.timerMu.Unlock()

	if !ok {
		return 0, nil, raw.StatusErr
	}

	// round up, a pending timer never reports less than it has left.
	// An overdue timer waits for the gil and is still live, it reports 1ms.
	remaining := time.Until(t.deadline)
	if remaining < time.Millisecond {
		return 1, t.data, raw.StatusOK
	}
	ms := uint64((remaining + time.Millisecond - 1) / time.Millisecond)
	return ms, t.data, raw.StatusOK
}

// --------------------------------------------------------------------------
// Timer Loop
// --------------------------------------------------------------------------

func (h *Host) wakeTimerLoop() {
	select {
	case h.timerWake <- struct{}{}:
	default:
	}
}

func (h *Host) timerLoop() {
	defer h.wg.Done()

	sleep := time.NewTimer(h.cfg.TimerIdle)
	defer sleep.Stop()

	for {
		wait := h.cfg.TimerIdle
		h.timerMu.Lock()
		if _, deadline, ok := h.timers.Peek(); ok {
			wait = time.Until(time.Unix(0, int64(deadline)))
		}
		h.timerMu.Unlock()

		if wait > 0 {
			if !sleep.Stop() {
				select {
				case <-sleep.C:
				default:
				}
			}
			sleep.Reset(wait)

			select {
			case <-sleep.C:
			case <-h.timerWake:
			case <-h.closed:
				return
			}
			continue
		}

		h.fireDueTimers()
	}
}

// fireDueTimers runs all expired timers under a single gil acquisition.
// Popping under the gil keeps StopTimer and firing mutually exclusive.
func (h *Host) fireDueTimers() {
	h.lockGIL()
	defer h.unlockGIL()

	for {
		now := uint64(time.Now().UnixNano())

		h.timerMu.Lock()
		_, deadline, ok := h.timers.Peek()
		if !ok || deadline > now {
			h.timerMu.Unlock()
			return
		}
		_, _, t, _ := h.timers.PopMin()
		h.timerMu.Unlock()

		c := h.newCtx(ctxTimer, t.module, 2)
		timerLogger.Debugf("timer %d fired", t.id)
		t.fn(c.id, t.data)
		h.freeCtx(c)
	}
}

func (h *Host) pendingTimers() int {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	return h.timers.Len()
}
