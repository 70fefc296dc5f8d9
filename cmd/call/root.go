package call

import (
	"context"
	"fmt"
	"strings"
	"time"

	cmdUtil "github.com/ValentinKolb/kvmod/cmd/util"
	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// CallCmd runs a single command on a fresh host
	CallCmd = &cobra.Command{
		Use:   "call [command] [args...]",
		Short: "Execute a single command on an embedded host",
		Long: `Start an embedded host with the configured modules, execute one command and print its reply. Setup commands can be passed with --setup, separated by semicolons.

Example:
  kvmod call --setup "RPUSH jobs a" BLOCK.POP jobs`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "setup"
	CallCmd.Flags().String(key, "", cmdUtil.WrapString("Semicolon separated commands to run before the command"))

	key = "timeout"
	CallCmd.Flags().Duration(key, 10*time.Second, cmdUtil.WrapString("How long to wait for the reply"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	return cmdUtil.BindCommandFlags(cmd)
}

func run(cmd *cobra.Command, args []string) error {
	h, err := cmdUtil.StartHost()
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()

	c := h.NewClient()
	for _, line := range splitSetup(viper.GetString("setup")) {
		setupArgs, err := cmdUtil.SplitArgs(line)
		if err != nil {
			return fmt.Errorf("invalid setup command %q: %w", line, err)
		}
		if len(setupArgs) == 0 {
			continue
		}
		r, err := c.Do(ctx, setupArgs...)
		if err != nil {
			return err
		}
		if r.Type == raw.ReplyError {
			return fmt.Errorf("setup command %q failed: %s", line, r.Str)
		}
	}

	r, err := c.Do(ctx, args...)
	if err != nil {
		return fmt.Errorf("no reply: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), r.String())
	return nil
}

func splitSetup(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ";")
}
