package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/kvmod/cmd/call"
	"github.com/ValentinKolb/kvmod/cmd/perf"
	"github.com/ValentinKolb/kvmod/cmd/run"
	"github.com/ValentinKolb/kvmod/cmd/util"
	"github.com/ValentinKolb/kvmod/lib/host"
	"github.com/ValentinKolb/kvmod/lib/modules"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvmod",
		Short: "embedded key-value store with a module SDK",
		Long: fmt.Sprintf(`kvmod (v%s)

An embedded key-value store that runs extension modules written
against a typed SDK. Modules can call commands, block clients,
schedule timers, scan the keyspace, open keys directly and
subscribe to keyspace notifications.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvmod",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvmod v%s\n", Version)
		},
	}
	modulesCmd = &cobra.Command{
		Use:   "modules",
		Short: "List the bundled modules and debug reply kinds",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range modules.Names() {
				m, _ := modules.Lookup(name)
				fmt.Printf("%-10s v%s\n", m.Name, m.Version)
				for _, c := range m.Commands {
					fmt.Printf("  %-16s %s\n", c.Name, c.Flags)
				}
			}
			fmt.Printf("\nDEBUG PROTOCOL kinds: %v\n", host.DebugProtocolKinds())
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(run.RunCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(modulesCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupHostFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
