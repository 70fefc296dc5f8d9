package run

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/kvmod/cmd/util"
	"github.com/ValentinKolb/kvmod/lib/host"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	RunCmd = &cobra.Command{
		Use:   "run [script]",
		Short: "Start an embedded host and execute commands",
		Long: `Start an embedded host with the configured modules and execute commands read from a script file or stdin, one command per line. Lines starting with # are ignored.

The configuration can be set via command line flags or environment variables. The format of the environment variables is KVMOD_<flag> (e.g. KVMOD_LOG_LEVEL=debug)`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "stats"
	RunCmd.Flags().Bool(key, false, cmdUtil.WrapString("Print host statistics when the input is exhausted"))

	key = "metrics"
	RunCmd.Flags().Bool(key, false, cmdUtil.WrapString("Print the host and module metrics when the input is exhausted"))

	key = "prompt"
	RunCmd.Flags().String(key, "kvmod> ", cmdUtil.WrapString("Prompt printed before every command when reading from a terminal"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	return cmdUtil.BindCommandFlags(cmd)
}

func run(cmd *cobra.Command, args []string) error {
	in := io.Reader(os.Stdin)
	interactive := isTerminal(os.Stdin)
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		in = f
		interactive = false
	}

	h, err := cmdUtil.StartHost()
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompt := ""
	if interactive {
		prompt = viper.GetString("prompt")
	}
	if err := Execute(ctx, h.NewClient(), in, cmd.OutOrStdout(), prompt); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("stats") {
		fmt.Fprintln(out, h.Stats().String())
	}
	if viper.GetBool("metrics") {
		cmdUtil.WriteMetrics(out, h)
	}
	return nil
}

// Execute runs every command read from in and writes the replies to out. It
// stops at the end of the input, on QUIT or when ctx is cancelled.
func Execute(ctx context.Context, c *host.Client, in io.Reader, out io.Writer, prompt string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		args, err := cmdUtil.SplitArgs(line)
		if err != nil {
			fmt.Fprintf(out, "(error) ERR %v\n", err)
			continue
		}
		if strings.EqualFold(args[0], "quit") {
			return nil
		}
		if strings.EqualFold(args[0], "hello") && len(args) == 2 {
			switch args[1] {
			case "2":
				c.SetProtocol(2)
			case "3":
				c.SetProtocol(3)
			}
			fmt.Fprintf(out, "RESP%d\n", c.Protocol())
			continue
		}

		r, err := c.Do(ctx, args...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, r.String())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read commands: %w", err)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
