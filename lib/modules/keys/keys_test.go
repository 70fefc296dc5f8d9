package keys_test

import (
	"strconv"
	"testing"

	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/modules/keys"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

func newHarness(t *testing.T) *hosttest.Harness {
	m := keys.New()
	return hosttest.New(t, hosttest.Module{Name: m.Name, OnLoad: m.Load})
}

func TestStrings(t *testing.T) {
	hs := newHarness(t)

	hs.ExpectNull(hs.Do("KEY.GET", "k"))
	hs.ExpectString(hs.Do("KEY.SET", "k", "v"), "OK")
	hs.ExpectString(hs.Do("KEY.GET", "k"), "v")
	hs.ExpectString(hs.Do("KEY.TYPE", "k"), "string")
	hs.ExpectString(hs.Do("KEY.TYPE", "nope"), "empty")
	hs.ExpectInteger(hs.Do("KEY.TTL", "k"), -1)
	hs.ExpectInteger(hs.Do("KEY.TTL", "nope"), -2)

	hs.ExpectString(hs.Do("KEY.SET", "t", "v", "PX", "10000"), "OK")
	r := hs.Do("KEY.TTL", "t")
	hs.ExpectType(r, raw.ReplyInteger)
	if r.Int <= 0 || r.Int > 10000 {
		t.Errorf("Expected ttl in (0, 10000], got %d", r.Int)
	}
	hs.ExpectString(hs.Do("KEY.PERSIST", "t"), "OK")
	hs.ExpectInteger(hs.Do("PTTL", "t"), -1)
	hs.ExpectError(hs.Do("KEY.PERSIST", "nope"), "ERR RemoveExpire failed")

	hs.ExpectString(hs.Do("KEY.SET", "short", "v", "PX", "5"), "OK")
	hs.Eventually(func() bool {
		return hs.Do("KEY.GET", "short").Type == raw.ReplyNull
	}, "key expired")

	hs.ExpectInteger(hs.Do("KEY.DEL", "k"), 1)
	hs.ExpectInteger(hs.Do("KEY.DEL", "k"), 0)
	hs.AssertClean()
}

func TestListsAndHashes(t *testing.T) {
	hs := newHarness(t)

	hs.ExpectInteger(hs.Do("KEY.PUSH", "l", "TAIL", "b", "c"), 2)
	hs.ExpectInteger(hs.Do("KEY.PUSH", "l", "head", "a"), 3)
	hs.ExpectString(hs.Do("KEY.POP", "l", "HEAD"), "a")
	hs.ExpectString(hs.Do("KEY.POP", "l", "TAIL"), "c")
	hs.ExpectString(hs.Do("LPOP", "l"), "b")
	hs.ExpectNull(hs.Do("KEY.POP", "l", "HEAD"))
	hs.ExpectError(hs.Do("KEY.PUSH", "l", "middle", "x"), "ERR list end must be HEAD or TAIL")

	hs.ExpectString(hs.Do("KEY.HSET", "h", "f", "v"), "OK")
	hs.ExpectString(hs.Do("KEY.HGET", "h", "f"), "v")
	hs.ExpectString(hs.Do("HGET", "h", "f"), "v")
	hs.ExpectNull(hs.Do("KEY.HGET", "h", "other"))
	hs.ExpectString(hs.Do("KEY.HDEL", "h", "f"), "OK")
	hs.ExpectString(hs.Do("KEY.TYPE", "h"), "empty")

	hs.Do("SET", "s", "x")
	hs.ExpectError(hs.Do("KEY.PUSH", "s", "TAIL", "x"), "WRONGTYPE")
	hs.ExpectError(hs.Do("KEY.HGET", "s", "f"), "WRONGTYPE")
	hs.ExpectError(hs.Do("KEY.FIELDS", "s"), "WRONGTYPE")
	hs.ExpectError(hs.Do("KEY.SET", "s", "x", "EX", "1"), "ERR syntax error")
	hs.AssertClean()
}

func TestFields(t *testing.T) {
	hs := newHarness(t)

	for i := range 12 {
		hs.Do("KEY.HSET", "h", "f"+strconv.Itoa(i), strconv.Itoa(i*i))
	}

	r := hs.Do("KEY.FIELDS", "h")
	hs.ExpectType(r, raw.ReplyArray)
	if len(r.Elems) != 24 {
		t.Fatalf("Expected 24 elements, got %d", len(r.Elems))
	}
	for i := range 12 {
		name, value := string(r.Elems[2*i].Str), string(r.Elems[2*i+1].Str)
		if name != "f"+strconv.Itoa(i) || value != strconv.Itoa(i*i) {
			t.Errorf("Expected f%d=%d, got %s=%s", i, i*i, name, value)
		}
	}

	hs.Do("SADD", "s", "x", "y")
	r = hs.Do("KEY.FIELDS", "s")
	if len(r.Elems) != 4 || string(r.Elems[0].Str) != "x" || string(r.Elems[2].Str) != "y" {
		t.Errorf("Expected [x \"\" y \"\"], got %v", r)
	}
	hs.AssertClean()
}
