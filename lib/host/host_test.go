package host_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/kvmod/lib/common"
	"github.com/ValentinKolb/kvmod/lib/host"
	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// rawModule registers plain raw.CommandFuncs. The commands receive the API
// through the pointer, which is set once the module is loaded.
func rawModule(api *raw.API, cmds map[string]raw.CommandFunc) hosttest.Module {
	return hosttest.Module{
		Name: "rawtest",
		OnLoad: func(a raw.API, ctx raw.CtxHandle) raw.Status {
			*api = a
			for name, fn := range cmds {
				flags := ""
				if name == "t.write" {
					flags = "write"
				}
				if a.CreateCommand(ctx, name, fn, flags) != raw.StatusOK {
					return raw.StatusErr
				}
			}
			return raw.StatusOK
		},
	}
}

func args(a ...string) [][]byte {
	out := make([][]byte, len(a))
	for i, s := range a {
		out[i] = []byte(s)
	}
	return out
}

// --------------------------------------------------------------------------
// Builtin Commands
// --------------------------------------------------------------------------

func TestBuiltins(t *testing.T) {
	hs := hosttest.New(t)

	t.Run("StringsAndCounters", func(t *testing.T) {
		hs.ExpectString(hs.Do("SET", "k", "v"), "OK")
		hs.ExpectString(hs.Do("GET", "k"), "v")
		hs.ExpectNull(hs.Do("SET", "k", "other", "NX"))
		hs.ExpectString(hs.Do("GET", "k"), "v")
		hs.ExpectInteger(hs.Do("INCR", "n"), 1)
		hs.ExpectInteger(hs.Do("INCRBY", "n", "41"), 42)
		hs.ExpectError(hs.Do("INCR", "k"), "ERR value is not an integer")
		hs.ExpectInteger(hs.Do("DEL", "k", "n", "missing"), 2)
		hs.ExpectNull(hs.Do("GET", "k"))
	})

	t.Run("Errors", func(t *testing.T) {
		hs.ExpectError(hs.Do("NOPE"), "ERR unknown command")
		hs.ExpectError(hs.Do("GET"), "ERR wrong number of arguments for 'get'")
		hs.Do("RPUSH", "list", "a")
		hs.ExpectError(hs.Do("GET", "list"), "WRONGTYPE")
		hs.Do("DEL", "list")
	})

	t.Run("Lists", func(t *testing.T) {
		hs.ExpectInteger(hs.Do("RPUSH", "l", "b", "c"), 2)
		hs.ExpectInteger(hs.Do("LPUSH", "l", "a"), 3)
		r := hs.Do("LRANGE", "l", "0", "-1")
		hs.ExpectType(r, raw.ReplyArray)
		if r.Len() != 3 || string(r.Elems[0].Str) != "a" || string(r.Elems[2].Str) != "c" {
			t.Errorf("Expected [a b c], got %v", r)
		}
		hs.ExpectString(hs.Do("LPOP", "l"), "a")
		hs.ExpectInteger(hs.Do("LLEN", "l"), 2)
		hs.Do("DEL", "l")
	})

	t.Run("ProtocolShapes", func(t *testing.T) {
		hs.Do("HSET", "h", "f1", "v1", "f2", "v2")

		r := hs.Do("HGETALL", "h")
		hs.ExpectType(r, raw.ReplyMap)
		if r.Len() != 2 || string(r.Map[0].Key.Str) != "f1" || string(r.Map[1].Value.Str) != "v2" {
			t.Errorf("Expected ordered map f1=v1 f2=v2, got %v", r)
		}

		c2 := hs.Host.NewClient()
		c2.SetProtocol(2)
		r = hs.DoWith(c2, "HGETALL", "h")
		hs.ExpectType(r, raw.ReplyArray)
		if r.Len() != 4 {
			t.Errorf("Expected flattened array of 4, got %v", r)
		}
		hs.ExpectInteger(hs.DoWith(c2, "DEBUG", "PROTOCOL", "true"), 1)
		hs.ExpectString(hs.DoWith(c2, "DEBUG", "PROTOCOL", "double"), "3.141")
		hs.Do("DEL", "h")
	})

	t.Run("DebugProtocol", func(t *testing.T) {
		for _, kind := range host.DebugProtocolKinds() {
			r := hs.Do("DEBUG", "PROTOCOL", kind)
			if r == nil {
				t.Errorf("Expected reply for %s", kind)
			}
		}
		hs.ExpectError(hs.Do("DEBUG", "PROTOCOL", "nope"), "ERR unknown protocol kind")
	})
}

func TestBLPopClient(t *testing.T) {
	hs := hosttest.New(t)

	t.Run("ServedByPush", func(t *testing.T) {
		ch := hs.Client.DoAsync("BLPOP", "q", "0")
		hs.ExpectPending(ch, 20*time.Millisecond)

		hs.ExpectInteger(hs.Do("RPUSH", "q", "x"), 1)

		r := hs.Await(ch)
		hs.ExpectType(r, raw.ReplyArray)
		if string(r.Elems[0].Str) != "q" || string(r.Elems[1].Str) != "x" {
			t.Errorf("Expected [q x], got %v", r)
		}
		hs.ExpectInteger(hs.Do("LLEN", "q"), 0)
	})

	t.Run("Timeout", func(t *testing.T) {
		start := time.Now()
		r := hs.Await(hs.Client.DoAsync("BLPOP", "q", "0.05"))
		hs.ExpectNull(r)
		if time.Since(start) < 40*time.Millisecond {
			t.Errorf("Expected to wait for the timeout, returned after %s", time.Since(start))
		}
	})

	t.Run("Immediate", func(t *testing.T) {
		hs.Do("RPUSH", "q", "y")
		r := hs.Do("BLPOP", "q", "0")
		if r.Len() != 2 || string(r.Elems[1].Str) != "y" {
			t.Errorf("Expected [q y], got %v", r)
		}
	})
}

// --------------------------------------------------------------------------
// Call Replies
// --------------------------------------------------------------------------

func TestCallReplies(t *testing.T) {
	var api raw.API
	var observed []string

	hs := hosttest.New(t, rawModule(&api, map[string]raw.CommandFunc{
		"t.nested": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			root := api.Call(ctx, "DEBUG", raw.CallResp3, args("PROTOCOL", "nested"))
			if api.CallReplyType(root) != raw.ReplyArray {
				observed = append(observed, "not an array")
			}

			// children keep their handle across accesses
			first := api.CallReplyArrayElement(root, 1)
			second := api.CallReplyArrayElement(root, 1)
			if first != second {
				observed = append(observed, "child handle changed")
			}
			observed = append(observed, string(api.CallReplyStringPtr(first)))

			m := api.CallReplyArrayElement(root, 3)
			k, v := api.CallReplyMapElement(m, 0)
			observed = append(observed, string(api.CallReplyStringPtr(k)))
			if api.CallReplyLength(v) != 2 {
				observed = append(observed, "inner array length")
			}
			if api.CallReplyArrayElement(root, 99) != 0 {
				observed = append(observed, "out of range child")
			}

			// freeing a child is a no-op, freeing the root releases the tree
			api.FreeCallReply(first)
			api.FreeCallReply(root)
			return api.ReplyWithSimpleString(ctx, "OK")
		},
		"t.doublefree": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			root := api.Call(ctx, "PING", 0, nil)
			api.FreeCallReply(root)
			api.FreeCallReply(root)
			return api.ReplyWithNull(ctx)
		},
		"t.flags": func(ctx raw.CtxHandle, a [][]byte) raw.Status {
			var flags raw.CallFlags = raw.CallNoWrites
			if len(a) > 1 {
				flags |= raw.CallErrorsAsReplies
			}
			root := api.Call(ctx, "SET", flags, args("k", "v"))
			if root == 0 {
				return api.ReplyWithSimpleString(ctx, "nil handle")
			}
			defer api.FreeCallReply(root)
			return api.ReplyWithError(ctx, string(api.CallReplyStringPtr(root)))
		},
		"t.resp2": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			root := api.Call(ctx, "DEBUG", 0, args("PROTOCOL", "map"))
			defer api.FreeCallReply(root)
			return api.ReplyWithLongLong(ctx, int64(api.CallReplyType(root)))
		},
	}))

	t.Run("LazyChildren", func(t *testing.T) {
		hs.ExpectString(hs.Do("T.NESTED"), "OK")
		if len(observed) != 2 || observed[0] != "two" || observed[1] != "k" {
			t.Errorf("Expected [two k], got %v", observed)
		}
		hs.AssertClean()
	})

	t.Run("DoubleFree", func(t *testing.T) {
		hs.ExpectNull(hs.Do("T.DOUBLEFREE"))
		if s := hs.Host.Stats(); s.DoubleFrees != 1 || s.LiveRootReplies != 0 {
			t.Errorf("Expected 1 double free and no live roots, got %d and %d", s.DoubleFrees, s.LiveRootReplies)
		}
	})

	t.Run("NoWrites", func(t *testing.T) {
		hs.ExpectString(hs.Do("T.FLAGS"), "nil handle")
		hs.ExpectError(hs.Do("T.FLAGS", "errors"), "ERR Write command 'set'")
		hs.ExpectNull(hs.Do("GET", "k"))
	})

	t.Run("Resp2Call", func(t *testing.T) {
		hs.ExpectInteger(hs.Do("T.RESP2"), int64(raw.ReplyArray))
	})
}

// --------------------------------------------------------------------------
// Blocked Clients
// --------------------------------------------------------------------------

func TestBlockedClients(t *testing.T) {
	var api raw.API
	release := make(chan raw.BlockedClientHandle, 1)

	hs := hosttest.New(t, rawModule(&api, map[string]raw.CommandFunc{
		"t.block": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			release <- api.BlockClient(ctx)
			return raw.StatusOK
		},
	}))

	t.Run("ReplyThroughThreadSafeContext", func(t *testing.T) {
		ch := hs.Client.DoAsync("T.BLOCK")
		bc := <-release
		hs.ExpectPending(ch, 20*time.Millisecond)

		// other clients are not blocked
		hs.ExpectString(hs.Do("PING"), "PONG")

		go func() {
			tsc := api.GetThreadSafeContext(bc)
			api.ThreadSafeContextLock(tsc)
			api.ReplyWithArray(tsc, 2)
			api.ReplyWithLongLong(tsc, 1)
			api.ReplyWithSimpleString(tsc, "done")
			api.UnblockClient(bc, nil)
			api.ThreadSafeContextUnlock(tsc)
			api.FreeThreadSafeContext(tsc)
		}()

		r := hs.Await(ch)
		hs.ExpectType(r, raw.ReplyArray)
		if r.Len() != 2 || r.Elems[0].Int != 1 || string(r.Elems[1].Str) != "done" {
			t.Errorf("Expected [1 done], got %v", r)
		}
	})

	t.Run("UnblockWithoutReply", func(t *testing.T) {
		ch := hs.Client.DoAsync("T.BLOCK")
		bc := <-release
		if api.UnblockClient(bc, nil) != raw.StatusOK {
			t.Fatalf("Expected unblock to succeed")
		}
		hs.ExpectNull(hs.Await(ch))

		if api.UnblockClient(bc, nil) != raw.StatusErr {
			t.Errorf("Expected second unblock to fail")
		}
	})

	t.Run("Abort", func(t *testing.T) {
		ch := hs.Client.DoAsync("T.BLOCK")
		bc := <-release
		tsc := api.GetThreadSafeContext(bc)
		api.ThreadSafeContextLock(tsc)
		api.ReplyWithSimpleString(tsc, "discarded")
		api.ThreadSafeContextUnlock(tsc)
		api.FreeThreadSafeContext(tsc)

		if api.AbortBlock(bc) != raw.StatusOK {
			t.Fatalf("Expected abort to succeed")
		}
		hs.ExpectNull(hs.Await(ch))
	})

	t.Run("ManyConcurrent", func(t *testing.T) {
		const n = 20
		chans := make([]<-chan *host.Reply, n)
		handles := make([]raw.BlockedClientHandle, n)
		for i := 0; i < n; i++ {
			chans[i] = hs.Host.NewClient().DoAsync("T.BLOCK")
			handles[i] = <-release
		}

		var wg sync.WaitGroup
		for i := n - 1; i >= 0; i-- {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tsc := api.GetThreadSafeContext(handles[i])
				api.ThreadSafeContextLock(tsc)
				api.ReplyWithLongLong(tsc, int64(i))
				api.UnblockClient(handles[i], nil)
				api.ThreadSafeContextUnlock(tsc)
				api.FreeThreadSafeContext(tsc)
			}(i)
		}
		wg.Wait()

		for i, ch := range chans {
			hs.ExpectInteger(hs.Await(ch), int64(i))
		}
		hs.AssertClean()
	})
}

// --------------------------------------------------------------------------
// Promises
// --------------------------------------------------------------------------

func TestPromises(t *testing.T) {
	var api raw.API
	type fired struct {
		typ  raw.ReplyType
		text string
	}
	results := make(chan fired, 4)
	promises := make(chan raw.ReplyHandle, 1)

	handler := func(ctx raw.CtxHandle, reply raw.ReplyHandle, data any) {
		f := fired{typ: api.CallReplyType(reply)}
		switch f.typ {
		case raw.ReplyArray:
			f.text = string(api.CallReplyStringPtr(api.CallReplyArrayElement(reply, 1)))
		case raw.ReplyError:
			f.text = string(api.CallReplyStringPtr(reply))
		}
		api.FreeCallReply(reply)
		results <- f
	}

	hs := hosttest.New(t, rawModule(&api, map[string]raw.CommandFunc{
		"t.pop": func(ctx raw.CtxHandle, a [][]byte) raw.Status {
			root := api.Call(ctx, "BLPOP", raw.CallBlocking|raw.CallResp3, args(string(a[1]), "0"))
			if api.CallReplyType(root) != raw.ReplyPromise {
				defer api.FreeCallReply(root)
				return api.ReplyWithSimpleString(ctx, "resolved")
			}
			api.CallReplyPromiseSetUnblockHandler(root, handler, nil)
			promises <- root
			return api.ReplyWithSimpleString(ctx, "future")
		},
		"t.abort": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			root := <-promises
			status := api.CallReplyPromiseAbort(root)
			api.FreeCallReply(root)
			return api.ReplyWithLongLong(ctx, int64(status))
		},
		"t.free": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			api.FreeCallReply(<-promises)
			return api.ReplyWithNull(ctx)
		},
	}))

	t.Run("Resolved", func(t *testing.T) {
		hs.Do("RPUSH", "p", "now")
		hs.ExpectString(hs.Do("T.POP", "p"), "resolved")
		select {
		case f := <-results:
			t.Errorf("Expected no handler call, got %v", f)
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("Future", func(t *testing.T) {
		hs.ExpectString(hs.Do("T.POP", "p"), "future")
		hs.Do("T.FREE")

		select {
		case f := <-results:
			t.Fatalf("Handler fired before the push: %v", f)
		case <-time.After(20 * time.Millisecond):
		}

		hs.Do("RPUSH", "p", "later")
		select {
		case f := <-results:
			if f.typ != raw.ReplyArray || f.text != "later" {
				t.Errorf("Expected [p later], got %v", f)
			}
		case <-time.After(hosttest.DefaultTimeout):
			t.Fatalf("Timeout waiting for the unblock handler")
		}
		hs.AssertClean()
	})

	t.Run("Abort", func(t *testing.T) {
		hs.ExpectString(hs.Do("T.POP", "p"), "future")
		hs.ExpectInteger(hs.Do("T.ABORT"), int64(raw.StatusOK))

		select {
		case f := <-results:
			if f.typ != raw.ReplyError || f.text[:7] != "ABORTED" {
				t.Errorf("Expected ABORTED error, got %v", f)
			}
		case <-time.After(hosttest.DefaultTimeout):
			t.Fatalf("Timeout waiting for the unblock handler")
		}

		// the element is not consumed by the aborted pop
		hs.Do("RPUSH", "p", "kept")
		hs.ExpectInteger(hs.Do("LLEN", "p"), 1)
		hs.AssertClean()
	})
}

// --------------------------------------------------------------------------
// Timers
// --------------------------------------------------------------------------

func TestTimers(t *testing.T) {
	var api raw.API
	fired := make(chan any, 1)
	ids := make(chan raw.TimerID, 1)

	hs := hosttest.New(t, rawModule(&api, map[string]raw.CommandFunc{
		"t.timer": func(ctx raw.CtxHandle, a [][]byte) raw.Status {
			ms := int64(10)
			if string(a[1]) == "long" {
				ms = 60_000
			}
			ids <- api.CreateTimer(ctx, ms, func(_ raw.CtxHandle, data any) { fired <- data }, string(a[1]))
			return api.ReplyWithNull(ctx)
		},
		"t.info": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			id := <-ids
			ids <- id
			ms, data, status := api.GetTimerInfo(ctx, id)
			if status != raw.StatusOK {
				return api.ReplyWithError(ctx, "ERR not found")
			}
			api.ReplyWithArray(ctx, 2)
			api.ReplyWithLongLong(ctx, int64(ms))
			return api.ReplyWithSimpleString(ctx, data.(string))
		},
		"t.stop": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			data, status := api.StopTimer(ctx, <-ids)
			if status != raw.StatusOK {
				return api.ReplyWithError(ctx, "ERR not found")
			}
			return api.ReplyWithSimpleString(ctx, data.(string))
		},
	}))

	t.Run("Fires", func(t *testing.T) {
		hs.Do("T.TIMER", "short")
		select {
		case data := <-fired:
			if data != "short" {
				t.Errorf("Expected payload short, got %v", data)
			}
		case <-time.After(hosttest.DefaultTimeout):
			t.Fatalf("Timer did not fire")
		}
		hs.ExpectError(hs.Do("T.STOP"), "ERR not found")
	})

	t.Run("InfoAndStop", func(t *testing.T) {
		hs.Do("T.TIMER", "long")
		r := hs.Do("T.INFO")
		hs.ExpectType(r, raw.ReplyArray)
		if ms := r.Elems[0].Int; ms <= 0 || ms > 60_000 {
			t.Errorf("Expected remaining in (0, 60000], got %d", ms)
		}
		hs.ExpectString(r.Elems[1], "long")
		hs.ExpectString(hs.Do("T.STOP"), "long")
		if s := hs.Host.Stats(); s.PendingTimers != 0 {
			t.Errorf("Expected no pending timers, got %d", s.PendingTimers)
		}
	})
}

func TestOverdueTimerInfo(t *testing.T) {
	var api raw.API

	hs := hosttest.New(t, rawModule(&api, map[string]raw.CommandFunc{
		"t.overdue": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			id := api.CreateTimer(ctx, 1, func(raw.CtxHandle, any) {}, "late")
			// the gil is held, the timer loop cannot fire it
			time.Sleep(20 * time.Millisecond)
			ms, _, status := api.GetTimerInfo(ctx, id)
			if _, stopStatus := api.StopTimer(ctx, id); stopStatus != raw.StatusOK {
				return api.ReplyWithError(ctx, "ERR overdue timer not stoppable")
			}
			if status != raw.StatusOK {
				return api.ReplyWithError(ctx, "ERR not found")
			}
			return api.ReplyWithLongLong(ctx, int64(ms))
		},
	}))

	r := hs.Do("T.OVERDUE")
	hs.ExpectType(r, raw.ReplyInteger)
	if r.Int < 1 {
		t.Errorf("Expected remaining time of at least 1ms, got %d", r.Int)
	}
}

// --------------------------------------------------------------------------
// Scan
// --------------------------------------------------------------------------

func TestScan(t *testing.T) {
	var api raw.API
	var seen []string
	var steps int

	hs := hosttest.New(t, rawModule(&api, map[string]raw.CommandFunc{
		"t.scan": func(ctx raw.CtxHandle, _ [][]byte) raw.Status {
			cur := api.ScanCursorCreate()
			defer api.ScanCursorDestroy(cur)
			for {
				steps++
				more := api.Scan(ctx, cur, func(_ raw.CtxHandle, key []byte) {
					seen = append(seen, string(key))
				})
				if !more {
					break
				}
			}
			return api.ReplyWithLongLong(ctx, int64(len(seen)))
		},
	}))

	for i := 0; i < 25; i++ {
		hs.Do("SET", string(rune('a'+i)), "v")
	}

	hs.ExpectInteger(hs.Do("T.SCAN"), 25)
	if steps != 3 {
		t.Errorf("Expected 3 scan steps with batch size 10, got %d", steps)
	}

	unique := make(map[string]bool)
	for _, k := range seen {
		if unique[k] {
			t.Errorf("Key %s visited twice", k)
		}
		unique[k] = true
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func TestCloseReleasesWaiters(t *testing.T) {
	cfg := common.DefaultHostConfig()
	cfg.LogLevel = "error"
	h, err := host.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create host: %v", err)
	}

	ch := h.NewClient().DoAsync("BLPOP", "never", "0")
	h.Close()

	select {
	case r := <-ch:
		if r.Type != raw.ReplyNull {
			t.Errorf("Expected null reply on close, got %v", r)
		}
	case <-time.After(hosttest.DefaultTimeout):
		t.Fatalf("Blocked client was not released on close")
	}

	if _, err := h.NewClient().Do(context.Background(), "PING"); err != host.ErrHostClosed {
		t.Errorf("Expected ErrHostClosed, got %v", err)
	}
}

func TestLoadModule(t *testing.T) {
	hs := hosttest.New(t)

	failing := func(api raw.API, ctx raw.CtxHandle) raw.Status {
		api.CreateCommand(ctx, "bad.cmd", func(raw.CtxHandle, [][]byte) raw.Status { return raw.StatusOK }, "")
		return raw.StatusErr
	}
	if err := hs.Host.LoadModule("bad", failing); err == nil {
		t.Errorf("Expected load error")
	}
	hs.ExpectError(hs.Do("BAD.CMD"), "ERR unknown command")

	dup := func(api raw.API, ctx raw.CtxHandle) raw.Status {
		return api.CreateCommand(ctx, "get", func(raw.CtxHandle, [][]byte) raw.Status { return raw.StatusOK }, "")
	}
	if err := hs.Host.LoadModule("dup", dup); err == nil {
		t.Errorf("Expected error when overriding a builtin command")
	}
}

func TestDisabledFeature(t *testing.T) {
	hs := hosttest.New(t)
	hs.Host.DisableFeatures(raw.FeatureTimers)

	if hs.Host.SupportsFeature(raw.FeatureTimers) {
		t.Fatalf("Expected timers to be disabled")
	}
	if !hs.Host.SupportsFeature(raw.FeatureCall | raw.FeatureScan) {
		t.Errorf("Expected other features to stay enabled")
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Expected protocol violation panic")
		}
	}()
	hs.Host.CreateTimer(0, 10, func(raw.CtxHandle, any) {}, nil)
}

func TestStatsArgSizes(t *testing.T) {
	hs := hosttest.New(t)

	for range 10 {
		hs.ExpectString(hs.Do("SET", "k", "v"), "OK")
	}

	s := hs.Host.Stats()
	if s.Commands < 10 {
		t.Errorf("Expected at least 10 commands, got %d", s.Commands)
	}
	// "SET" "k" "v" is 5 bytes
	if s.ArgBytesMean != 5 {
		t.Errorf("Expected mean argument size 5, got %d", s.ArgBytesMean)
	}
	if s.ArgBytesMedian != 8 {
		t.Errorf("Expected median estimate 8, got %d", s.ArgBytesMedian)
	}
}
