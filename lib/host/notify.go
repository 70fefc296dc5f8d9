package host

import (
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// notifyDepthLimit bounds notifications raised from notification callbacks
const notifyDepthLimit = 16

// subscriber is a keyspace notification subscription of a module
type subscriber struct {
	module string
	types  raw.NotifyEvent
	fn     raw.NotificationFunc
}

type serverSubscriber struct {
	module string
	fn     raw.ServerEventFunc
}

type postJob struct {
	module string
	fn     raw.PostJobFunc
	data   any
}

// --------------------------------------------------------------------------
// Keyspace Notifications
// --------------------------------------------------------------------------

func (h *Host) SubscribeToKeyspaceEvents(ctx raw.CtxHandle, types raw.NotifyEvent, fn raw.NotificationFunc) raw.Status {
	h.require(raw.FeatureNotifications, "SubscribeToKeyspaceEvents")
	c := h.ctx(ctx)
	if fn == nil || types == 0 {
		return raw.StatusErr
	}
	h.subscribers = append(h.subscribers, &subscriber{module: c.module, types: types, fn: fn})
	Logger.Debugf("module %s subscribed to keyspace events %b", c.module, types)
	return raw.StatusOK
}

func (h *Host) NotifyKeyspaceEvent(ctx raw.CtxHandle, types raw.NotifyEvent, event string, key []byte) raw.Status {
	h.require(raw.FeatureNotifications, "NotifyKeyspaceEvent")
	h.ctx(ctx)
	if types == 0 || event == "" {
		return raw.StatusErr
	}
	h.notify(types, event, string(key))
	return raw.StatusOK
}

// notify runs the matching subscriptions synchronously, the gil is held
func (h *Host) notify(types raw.NotifyEvent, event, key string) {
	if len(h.subscribers) == 0 {
		return
	}
	if h.notifyDepth >= notifyDepthLimit {
		Logger.Warningf("dropping %s notification for %q, nested too deep", event, key)
		return
	}

	h.notifyDepth++
	defer func() { h.notifyDepth-- }()

	for _, sub := range h.subscribers {
		if sub.types&types == 0 {
			continue
		}
		c := h.newCtx(ctxNotify, sub.module, 3)
		sub.fn(c.id, types, event, []byte(key))
		h.freeCtx(c)
	}
}

// --------------------------------------------------------------------------
// Post Notification Jobs
// --------------------------------------------------------------------------

func (h *Host) AddPostNotificationJob(ctx raw.CtxHandle, fn raw.PostJobFunc, data any) raw.Status {
	h.require(raw.FeatureNotifications, "AddPostNotificationJob")
	c := h.ctx(ctx)
	if fn == nil {
		return raw.StatusErr
	}
	h.postJobs = append(h.postJobs, postJob{module: c.module, fn: fn, data: data})
	return raw.StatusOK
}

// runPostJobs drains the job list, jobs may schedule further jobs
func (h *Host) runPostJobs() {
	for len(h.postJobs) > 0 {
		job := h.postJobs[0]
		h.postJobs = h.postJobs[1:]

		c := h.newCtx(ctxPostJob, job.module, 3)
		job.fn(c.id, job.data)
		h.freeCtx(c)
	}
	h.postJobs = nil
}

// --------------------------------------------------------------------------
// Server Events
// --------------------------------------------------------------------------

func (h *Host) SubscribeToServerEvent(ctx raw.CtxHandle, event raw.ServerEvent, fn raw.ServerEventFunc) raw.Status {
	h.require(raw.FeatureServerEvents, "SubscribeToServerEvent")
	c := h.ctx(ctx)
	if fn == nil || (event != raw.ServerEventFlush && event != raw.ServerEventShutdown) {
		return raw.StatusErr
	}
	h.serverEvents[event] = append(h.serverEvents[event], &serverSubscriber{module: c.module, fn: fn})
	return raw.StatusOK
}

func (h *Host) fireServerEvent(event raw.ServerEvent, subevent uint64) {
	for _, sub := range h.serverEvents[event] {
		c := h.newCtx(ctxServerEvent, sub.module, 3)
		sub.fn(c.id, event, subevent)
		h.freeCtx(c)
	}
}
