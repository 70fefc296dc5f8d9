package host_test

import (
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// --------------------------------------------------------------------------
// Keyspace Notifications
// --------------------------------------------------------------------------

func TestKeyspaceNotifications(t *testing.T) {
	var api raw.API
	var got []string

	hs := hosttest.New(t, hosttest.Module{
		Name: "notify",
		OnLoad: func(a raw.API, ctx raw.CtxHandle) raw.Status {
			api = a
			if a.SubscribeToKeyspaceEvents(ctx, raw.NotifyAll, nil) != raw.StatusErr {
				return raw.StatusErr
			}
			types := raw.NotifyString | raw.NotifyGeneric | raw.NotifyExpired | raw.NotifyModule
			return a.SubscribeToKeyspaceEvents(ctx, types, func(_ raw.CtxHandle, _ raw.NotifyEvent, event string, key []byte) {
				got = append(got, event+":"+string(key))
			})
		},
	}, rawModule(&api, map[string]raw.CommandFunc{
		"t.send": func(ctx raw.CtxHandle, argv [][]byte) raw.Status {
			if api.NotifyKeyspaceEvent(ctx, raw.NotifyModule, "", argv[1]) != raw.StatusErr {
				return api.ReplyWithError(ctx, "ERR empty event accepted")
			}
			api.NotifyKeyspaceEvent(ctx, raw.NotifyModule, "custom", argv[1])
			return api.ReplyWithSimpleString(ctx, "OK")
		},
	}))

	hs.Do("SET", "a", "1")
	hs.Do("RPUSH", "l", "x") // lists are not subscribed
	hs.Do("INCR", "n")
	hs.Do("DEL", "a", "missing")
	hs.Do("SET", "e", "v")
	hs.Do("PEXPIRE", "e", "1")
	hs.Eventually(func() bool {
		return hs.Do("GET", "e").Type == raw.ReplyNull
	}, "key expired")
	hs.ExpectString(hs.Do("T.SEND", "k"), "OK")

	want := []string{"set:a", "incrby:n", "del:a", "set:e", "expire:e", "expired:e", "custom:k"}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNotificationWrites(t *testing.T) {
	var rejected string
	var order []string

	hs := hosttest.New(t, hosttest.Module{
		Name: "notify",
		OnLoad: func(api raw.API, ctx raw.CtxHandle) raw.Status {
			return api.SubscribeToKeyspaceEvents(ctx, raw.NotifyString, func(c raw.CtxHandle, _ raw.NotifyEvent, event string, key []byte) {
				if string(key) != "a" {
					return
				}
				order = append(order, event)

				root := api.Call(c, "SET", 0, args("other", "x"))
				if api.CallReplyType(root) == raw.ReplyError {
					rejected = string(api.CallReplyStringPtr(root))
				}
				api.FreeCallReply(root)

				api.AddPostNotificationJob(c, func(jc raw.CtxHandle, data any) {
					order = append(order, data.(string))
					api.FreeCallReply(api.Call(jc, "INCR", 0, args("jobs")))
				}, "job")
			})
		},
	})

	hs.ExpectString(hs.Do("SET", "a", "1"), "OK")
	// the job ran before the reply was sent
	hs.ExpectString(hs.Do("GET", "jobs"), "1")
	hs.ExpectNull(hs.Do("GET", "other"))

	if !strings.HasPrefix(rejected, "ERR Write command 'set'") {
		t.Errorf("Expected write to be rejected, got %q", rejected)
	}
	if !slices.Equal(order, []string{"set", "job"}) {
		t.Errorf("Expected [set job], got %v", order)
	}
	hs.AssertClean()
}

func TestNotificationDepth(t *testing.T) {
	var api raw.API
	calls := 0

	hs := hosttest.New(t, hosttest.Module{
		Name: "notify",
		OnLoad: func(a raw.API, ctx raw.CtxHandle) raw.Status {
			return a.SubscribeToKeyspaceEvents(ctx, raw.NotifyModule, func(c raw.CtxHandle, types raw.NotifyEvent, event string, key []byte) {
				calls++
				a.NotifyKeyspaceEvent(c, types, event, key)
			})
		},
	}, rawModule(&api, map[string]raw.CommandFunc{
		"t.send": func(ctx raw.CtxHandle, argv [][]byte) raw.Status {
			api.NotifyKeyspaceEvent(ctx, raw.NotifyModule, "loop", argv[1])
			return api.ReplyWithSimpleString(ctx, "OK")
		},
	}))

	hs.ExpectString(hs.Do("T.SEND", "k"), "OK")
	if calls != 16 {
		t.Errorf("Expected nested notifications to stop after 16 levels, got %d", calls)
	}
}

// --------------------------------------------------------------------------
// Server Events
// --------------------------------------------------------------------------

func TestServerEvents(t *testing.T) {
	var got []string

	hs := hosttest.New(t, hosttest.Module{
		Name: "events",
		OnLoad: func(api raw.API, ctx raw.CtxHandle) raw.Status {
			if api.SubscribeToServerEvent(ctx, raw.ServerEvent(42), func(raw.CtxHandle, raw.ServerEvent, uint64) {}) != raw.StatusErr {
				return raw.StatusErr
			}
			onFlush := func(c raw.CtxHandle, _ raw.ServerEvent, sub uint64) {
				root := api.Call(c, "DBSIZE", 0, nil)
				defer api.FreeCallReply(root)
				phase := "started"
				if sub == raw.FlushEnded {
					phase = "ended"
				}
				got = append(got, phase+":"+strconv.FormatInt(api.CallReplyInteger(root), 10))
			}
			onShutdown := func(raw.CtxHandle, raw.ServerEvent, uint64) {
				got = append(got, "shutdown")
			}
			if api.SubscribeToServerEvent(ctx, raw.ServerEventFlush, onFlush) != raw.StatusOK {
				return raw.StatusErr
			}
			return api.SubscribeToServerEvent(ctx, raw.ServerEventShutdown, onShutdown)
		},
	})

	hs.Do("SET", "a", "1")
	hs.Do("SET", "b", "2")
	hs.ExpectString(hs.Do("FLUSHALL"), "OK")
	hs.ExpectInteger(hs.Do("DBSIZE"), 0)

	if err := hs.Host.Close(); err != nil {
		t.Fatalf("Failed to close host: %v", err)
	}

	want := []string{"started:2", "ended:0", "shutdown"}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
