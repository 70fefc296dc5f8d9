package timers_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/modules/timers"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

func newHarness(t *testing.T) *hosttest.Harness {
	m := timers.New()
	return hosttest.New(t, hosttest.Module{Name: m.Name, OnLoad: m.Load})
}

func timerID(hs *hosttest.Harness, ms int, payload string) string {
	hs.T.Helper()
	r := hs.Do("TIMER.SET", strconv.Itoa(ms), payload)
	hs.ExpectType(r, raw.ReplyInteger)
	return strconv.FormatInt(r.Int, 10)
}

func TestStopReturnsPayload(t *testing.T) {
	hs := newHarness(t)

	id := timerID(hs, 10000, "abc")

	info := hs.Do("TIMER.INFO", id)
	hs.ExpectType(info, raw.ReplyArray)
	if ms := info.Elems[0].Int; ms <= 0 || ms > 10000 {
		t.Errorf("Expected remaining time in (0, 10000], got %d", ms)
	}
	if string(info.Elems[1].Str) != "abc" {
		t.Errorf("Expected payload abc, got %v", info.Elems[1])
	}

	hs.ExpectString(hs.Do("TIMER.STOP", id), "abc")
	hs.ExpectError(hs.Do("TIMER.STOP", id), "ERR timer "+id+" not found")
	hs.ExpectError(hs.Do("TIMER.INFO", id), "ERR timer "+id+" not found")

	r := hs.Do("TIMER.FIRED")
	hs.ExpectType(r, raw.ReplyArray)
	if len(r.Elems) != 0 {
		t.Errorf("Expected no fired timers, got %v", r)
	}
}

func TestTimersFire(t *testing.T) {
	hs := newHarness(t)

	ids := []string{
		timerID(hs, 30, "second"),
		timerID(hs, 5, "first"),
	}

	hs.Eventually(func() bool {
		return len(hs.Do("TIMER.FIRED").Elems) == 2
	}, "both timers fired")

	fired := hs.Do("TIMER.FIRED")
	if string(fired.Elems[0].Str) != "first" || string(fired.Elems[1].Str) != "second" {
		t.Errorf("Expected [first second], got %v", fired)
	}

	for _, id := range ids {
		hs.ExpectError(hs.Do("TIMER.INFO", id), "ERR timer")
	}

	// no timer fires twice
	time.Sleep(50 * time.Millisecond)
	if n := len(hs.Do("TIMER.FIRED").Elems); n != 2 {
		t.Errorf("Expected 2 fired timers, got %d", n)
	}
}

func TestArguments(t *testing.T) {
	hs := newHarness(t)

	hs.ExpectError(hs.Do("TIMER.SET", "10"), "ERR wrong number of arguments")
	hs.ExpectError(hs.Do("TIMER.SET", "soon", "x"), "ERR value is not an integer")
	hs.ExpectError(hs.Do("TIMER.STOP", "abc"), "ERR invalid timer id")
	hs.ExpectError(hs.Do("TIMER.INFO", "1"), "ERR timer 1 not found")
}
