// Package modules bundles the example modules shipped with kvmod.
//
// Every module lives in its own sub package and exports New, which returns a
// fresh *module.Module. All bundled modules are listed in Registry, which the
// CLI uses to load modules by name.
package modules
