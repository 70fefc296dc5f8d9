package module

import (
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// KeyspaceEventHandler is called with the lock held right after a key
// changed. Write commands are rejected in the handler; schedule a post
// notification job to write.
type KeyspaceEventHandler func(ctx *Context, types raw.NotifyEvent, event, key string)

// ServerEventHandler is called with the lock held on a server event
type ServerEventHandler func(ctx *Context, event raw.ServerEvent, subevent uint64)

// SubscribeKeyspaceEvents calls fn for every notification matching types.
// There is no way to unsubscribe.
func (c *Context) SubscribeKeyspaceEvents(types raw.NotifyEvent, fn KeyspaceEventHandler) error {
	c.require(raw.FeatureNotifications)
	api, m := c.api, c.module
	status := api.SubscribeToKeyspaceEvents(c.ctx, types, func(ctx raw.CtxHandle, t raw.NotifyEvent, event string, key []byte) {
		notificationsTotal.Inc()
		fn(newContext(api, ctx, m), t, event, string(key))
	})
	if status != raw.StatusOK {
		return Errorf("cannot subscribe to %s events", types)
	}
	return nil
}

// NotifyKeyspaceEvent raises a notification, subscribers run before it
// returns
func (c *Context) NotifyKeyspaceEvent(types raw.NotifyEvent, event, key string) error {
	c.require(raw.FeatureNotifications)
	if c.api.NotifyKeyspaceEvent(c.ctx, types, event, []byte(key)) != raw.StatusOK {
		return Errorf("invalid notification %q", event)
	}
	return nil
}

// AddPostNotificationJob runs fn once the current notifications are done and
// before the lock is released. Jobs may write and add further jobs.
func (c *Context) AddPostNotificationJob(fn func(ctx *Context)) error {
	c.require(raw.FeatureNotifications)
	api, m := c.api, c.module
	status := api.AddPostNotificationJob(c.ctx, func(ctx raw.CtxHandle, _ any) {
		postJobsTotal.Inc()
		fn(newContext(api, ctx, m))
	}, nil)
	if status != raw.StatusOK {
		return Errorf("cannot add post notification job")
	}
	return nil
}

// SubscribeServerEvent calls fn on every occurrence of event
func (c *Context) SubscribeServerEvent(event raw.ServerEvent, fn ServerEventHandler) error {
	c.require(raw.FeatureServerEvents)
	api, m := c.api, c.module
	status := api.SubscribeToServerEvent(c.ctx, event, func(ctx raw.CtxHandle, e raw.ServerEvent, sub uint64) {
		fn(newContext(api, ctx, m), e, sub)
	})
	if status != raw.StatusOK {
		return Errorf("cannot subscribe to server event %s", event)
	}
	return nil
}
