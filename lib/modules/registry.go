package modules

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/kvmod/lib/host"
	"github.com/ValentinKolb/kvmod/lib/module"
	"github.com/ValentinKolb/kvmod/lib/modules/blocking"
	"github.com/ValentinKolb/kvmod/lib/modules/events"
	"github.com/ValentinKolb/kvmod/lib/modules/inspect"
	"github.com/ValentinKolb/kvmod/lib/modules/keys"
	"github.com/ValentinKolb/kvmod/lib/modules/lockmgr"
	"github.com/ValentinKolb/kvmod/lib/modules/timers"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("modules")

// Registry maps module names to their constructors
var Registry = map[string]func() *module.Module{
	"lockmgr":  lockmgr.New,
	"blocking": blocking.New,
	"timers":   timers.New,
	"inspect":  inspect.New,
	"keys":     keys.New,
	"events":   events.New,
}

// Names returns the names of all bundled modules
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup creates a fresh instance of the named module
func Lookup(name string) (*module.Module, error) {
	create, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown module %q (available: %v)", name, Names())
	}
	return create(), nil
}

// LoadAll loads the named modules into h, in order
func LoadAll(h *host.Host, names []string) error {
	for _, name := range names {
		m, err := Lookup(name)
		if err != nil {
			return err
		}
		if err := h.LoadModule(m.Name, m.Load); err != nil {
			return fmt.Errorf("failed to load module %s: %w", name, err)
		}
		Logger.Infof("module %s %s loaded", m.Name, m.Version)
	}
	return nil
}
