package modules_test

import (
	"testing"

	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/modules"
)

func TestLoadAll(t *testing.T) {
	hs := hosttest.New(t)

	if err := modules.LoadAll(hs.Host, modules.Names()); err != nil {
		t.Fatalf("Failed to load bundled modules: %v", err)
	}

	loaded := hs.Host.Modules()
	if len(loaded) != len(modules.Registry) {
		t.Errorf("Expected %d modules, got %v", len(modules.Registry), loaded)
	}

	hs.ExpectString(hs.Do("BLOCK.SLEEP", "1"), "OK")
	hs.ExpectInteger(hs.Do("THREADS.INCR", "n", "2"), 2)

	// writes through the key API reach the event subscribers
	hs.ExpectString(hs.Do("KEY.SET", "k", "v"), "OK")
	hs.ExpectInteger(hs.Do("EVENTS.COUNT", "set"), 1)
	hs.ExpectString(hs.Do("GET", "events:sets"), "1")
}

func TestLookupUnknown(t *testing.T) {
	if _, err := modules.Lookup("nope"); err == nil {
		t.Errorf("Expected error for unknown module")
	}

	m, err := modules.Lookup("timers")
	if err != nil {
		t.Fatalf("Expected timers module, got %v", err)
	}
	if m.Name != "timers" {
		t.Errorf("Expected name timers, got %s", m.Name)
	}
}
