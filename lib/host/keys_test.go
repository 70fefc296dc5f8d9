package host_test

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// --------------------------------------------------------------------------
// Expiry
// --------------------------------------------------------------------------

func TestExpire(t *testing.T) {
	hs := hosttest.New(t)

	hs.ExpectString(hs.Do("SET", "k", "v"), "OK")
	hs.ExpectInteger(hs.Do("PTTL", "k"), -1)
	hs.ExpectInteger(hs.Do("PTTL", "missing"), -2)
	hs.ExpectInteger(hs.Do("PEXPIRE", "missing", "100"), 0)

	hs.ExpectInteger(hs.Do("PEXPIRE", "k", "30"), 1)
	r := hs.Do("PTTL", "k")
	hs.ExpectType(r, raw.ReplyInteger)
	if r.Int <= 0 || r.Int > 30 {
		t.Errorf("Expected ttl in (0, 30], got %d", r.Int)
	}

	hs.Eventually(func() bool {
		return hs.Do("GET", "k").Type == raw.ReplyNull
	}, "key expired")
	hs.ExpectInteger(hs.Do("EXISTS", "k"), 0)
	hs.ExpectInteger(hs.Do("DBSIZE"), 0)

	// SET drops the ttl
	hs.Do("SET", "k", "v")
	hs.Do("PEXPIRE", "k", "10000")
	hs.Do("SET", "k", "w")
	hs.ExpectInteger(hs.Do("PTTL", "k"), -1)

	hs.ExpectInteger(hs.Do("PEXPIRE", "k", "0"), 1)
	hs.ExpectNull(hs.Do("GET", "k"))
	hs.ExpectError(hs.Do("PEXPIRE", "k", "soon"), "ERR value is not an integer")
}

// --------------------------------------------------------------------------
// Key API
// --------------------------------------------------------------------------

// keyScenarios registers t.key <scenario>, which replies OK or the error of
// the scenario
func keyScenarios(api *raw.API, scenarios map[string]func(raw.API, raw.CtxHandle) error) hosttest.Module {
	return rawModule(api, map[string]raw.CommandFunc{
		"t.key": func(ctx raw.CtxHandle, argv [][]byte) raw.Status {
			run, ok := scenarios[string(argv[1])]
			if !ok {
				return (*api).ReplyWithError(ctx, "ERR unknown scenario")
			}
			if err := run(*api, ctx); err != nil {
				return (*api).ReplyWithError(ctx, "ERR "+err.Error())
			}
			return (*api).ReplyWithSimpleString(ctx, "OK")
		},
	})
}

func TestKeyAPI(t *testing.T) {
	var api raw.API
	var batches int

	hs := hosttest.New(t, keyScenarios(&api, map[string]func(raw.API, raw.CtxHandle) error{
		"strings": func(api raw.API, ctx raw.CtxHandle) error {
			k := api.OpenKey(ctx, []byte("s"), raw.KeyRead|raw.KeyWrite)
			defer api.CloseKey(k)

			if api.KeyType(k) != raw.KeyTypeEmpty {
				return fmt.Errorf("expected empty key")
			}
			if api.StringSet(k, []byte("hello")) != raw.StatusOK {
				return fmt.Errorf("StringSet failed")
			}
			if api.KeyType(k) != raw.KeyTypeString || api.ValueLength(k) != 5 {
				return fmt.Errorf("expected string of length 5")
			}
			if v, status := api.StringGet(k); status != raw.StatusOK || string(v) != "hello" {
				return fmt.Errorf("expected hello, got %q", v)
			}

			if api.SetExpire(k, 10000) != raw.StatusOK || api.GetExpire(k) <= 0 {
				return fmt.Errorf("expected a ttl")
			}
			api.StringSet(k, []byte("again"))
			if api.GetExpire(k) != raw.NoExpire {
				return fmt.Errorf("expected StringSet to drop the ttl")
			}
			if api.SetExpire(k, -5) != raw.StatusErr {
				return fmt.Errorf("expected negative expire to fail")
			}
			return nil
		},
		"readonly": func(api raw.API, ctx raw.CtxHandle) error {
			k := api.OpenKey(ctx, []byte("s"), raw.KeyRead)
			defer api.CloseKey(k)

			if api.StringSet(k, []byte("x")) != raw.StatusErr || api.DeleteKey(k) != raw.StatusErr {
				return fmt.Errorf("expected writes through a read key to fail")
			}
			if _, status := api.ListPop(k, raw.ListHead); status != raw.StatusErr {
				return fmt.Errorf("expected ListPop through a read key to fail")
			}
			return nil
		},
		"missing": func(api raw.API, ctx raw.CtxHandle) error {
			k := api.OpenKey(ctx, []byte("nope"), raw.KeyRead)
			defer api.CloseKey(k)

			if k != 0 {
				return fmt.Errorf("expected zero handle for a missing key")
			}
			if api.KeyType(k) != raw.KeyTypeEmpty || api.ValueLength(k) != 0 || api.GetExpire(k) != raw.NoExpire {
				return fmt.Errorf("expected the zero handle to read as empty")
			}
			return nil
		},
		"lists": func(api raw.API, ctx raw.CtxHandle) error {
			k := api.OpenKey(ctx, []byte("l"), raw.KeyWrite)
			defer api.CloseKey(k)

			api.ListPush(k, raw.ListTail, []byte("b"))
			api.ListPush(k, raw.ListHead, []byte("a"))
			api.ListPush(k, raw.ListTail, []byte("c"))
			if api.ValueLength(k) != 3 {
				return fmt.Errorf("expected 3 elements, got %d", api.ValueLength(k))
			}
			if v, _ := api.ListPop(k, raw.ListTail); string(v) != "c" {
				return fmt.Errorf("expected c from the tail, got %q", v)
			}
			if v, _ := api.ListPop(k, raw.ListHead); string(v) != "a" {
				return fmt.Errorf("expected a from the head, got %q", v)
			}

			s := api.OpenKey(ctx, []byte("s"), raw.KeyWrite)
			defer api.CloseKey(s)
			if api.ListPush(s, raw.ListTail, []byte("x")) != raw.StatusErr {
				return fmt.Errorf("expected ListPush on a string to fail")
			}
			return nil
		},
		"hashes": func(api raw.API, ctx raw.CtxHandle) error {
			k := api.OpenKey(ctx, []byte("h"), raw.KeyRead|raw.KeyWrite)
			defer api.CloseKey(k)

			for i := range 25 {
				api.HashSet(k, []byte("f"+strconv.Itoa(i)), []byte(strconv.Itoa(i)))
			}
			if v, ok, _ := api.HashGet(k, []byte("f7")); !ok || string(v) != "7" {
				return fmt.Errorf("expected f7=7, got %q", v)
			}
			if _, ok, _ := api.HashGet(k, []byte("nope")); ok {
				return fmt.Errorf("expected missing field")
			}

			cur := api.ScanCursorCreate()
			defer api.ScanCursorDestroy(cur)
			var fields []string
			for {
				batches++
				more := api.ScanKey(k, cur, func(_ raw.KeyHandle, field, value []byte) {
					fields = append(fields, string(field)+"="+string(value))
				})
				if !more {
					break
				}
			}
			if len(fields) != 25 || fields[0] != "f0=0" || fields[24] != "f24=24" {
				return fmt.Errorf("expected 25 fields in insertion order, got %v", fields)
			}

			for i := range 25 {
				api.HashSet(k, []byte("f"+strconv.Itoa(i)), nil)
			}
			if api.KeyType(k) != raw.KeyTypeEmpty {
				return fmt.Errorf("expected the hash to be deleted with its last field")
			}
			return nil
		},
		"push": func(api raw.API, ctx raw.CtxHandle) error {
			k := api.OpenKey(ctx, []byte("q"), raw.KeyWrite)
			defer api.CloseKey(k)
			api.ListPush(k, raw.ListTail, []byte("job"))
			return nil
		},
	}))

	for _, scenario := range []string{"strings", "readonly", "missing", "lists"} {
		hs.ExpectString(hs.Do("T.KEY", scenario), "OK")
	}
	hs.ExpectString(hs.Do("GET", "s"), "again")
	hs.ExpectInteger(hs.Do("LLEN", "l"), 1)

	hs.ExpectString(hs.Do("T.KEY", "hashes"), "OK")
	// 25 fields in batches of 10
	if batches != 3 {
		t.Errorf("Expected 3 scan steps, got %d", batches)
	}

	ch := hs.Host.NewClient().DoAsync("BLPOP", "q", "0")
	hs.ExpectPending(ch, 20*time.Millisecond)
	hs.ExpectString(hs.Do("T.KEY", "push"), "OK")
	r := hs.Await(ch)
	hs.ExpectType(r, raw.ReplyArray)
	if r.Len() != 2 || string(r.Elems[1].Str) != "job" {
		t.Errorf("Expected [q job], got %v", r)
	}

	if n := hs.Host.Stats().OpenKeys; n != 0 {
		t.Errorf("Expected all keys closed, got %d open", n)
	}
	hs.AssertClean()
}

func TestUnknownKeyHandle(t *testing.T) {
	hs := hosttest.New(t)

	defer func() {
		if recover() == nil {
			t.Errorf("Expected protocol violation panic")
		}
	}()
	hs.Host.KeyType(raw.KeyHandle(1 << 40))
}
