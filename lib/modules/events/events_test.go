package events_test

import (
	"testing"

	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/modules/events"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

func newHarness(t *testing.T) *hosttest.Harness {
	m := events.New()
	return hosttest.New(t, hosttest.Module{Name: m.Name, OnLoad: m.Load})
}

func TestCountsEvents(t *testing.T) {
	hs := newHarness(t)

	hs.Do("SET", "a", "1")
	hs.Do("SET", "b", "2")
	hs.Do("RPUSH", "l", "x")
	hs.Do("DEL", "a")
	hs.ExpectString(hs.Do("EVENTS.SEND", "k"), "OK")

	hs.ExpectInteger(hs.Do("EVENTS.COUNT", "set"), 2)
	hs.ExpectInteger(hs.Do("EVENTS.COUNT", "rpush"), 1)
	hs.ExpectInteger(hs.Do("EVENTS.COUNT", "nope"), 0)

	r := hs.Do("EVENTS.COUNT")
	hs.ExpectType(r, raw.ReplyMap)
	names := make([]string, len(r.Map))
	for i, p := range r.Map {
		names[i] = string(p.Key.Str)
	}
	want := []string{"del", "rpush", "sent", "set"}
	if len(names) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected events %v, got %v", want, names)
			break
		}
	}

	// the post notification job counted both writes
	hs.ExpectString(hs.Do("GET", events.SetsKey), "2")

	hs.ExpectString(hs.Do("EVENTS.RESET"), "OK")
	hs.ExpectInteger(hs.Do("EVENTS.COUNT", "set"), 0)
	hs.AssertClean()
}

func TestCountsFlushes(t *testing.T) {
	hs := newHarness(t)

	hs.Do("SET", "a", "1")
	hs.ExpectString(hs.Do("FLUSHALL"), "OK")
	hs.ExpectString(hs.Do("FLUSHALL"), "OK")
	hs.ExpectInteger(hs.Do("EVENTS.FLUSHES"), 2)
	hs.ExpectError(hs.Do("EVENTS.FLUSHES", "extra"), "ERR wrong number of arguments")
}
