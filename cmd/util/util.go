package util

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/kvmod/lib/common"
	"github.com/ValentinKolb/kvmod/lib/host"
	"github.com/ValentinKolb/kvmod/lib/module"
	"github.com/ValentinKolb/kvmod/lib/modules"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupHostFlags adds the host configuration flags to a command
func SetupHostFlags(cmd *cobra.Command) {
	defaults := common.DefaultHostConfig()

	key := "modules"
	cmd.PersistentFlags().String(key, strings.Join(modules.Names(), ","), WrapString(fmt.Sprintf("Comma-separated list of bundled modules to load (available: %s)", strings.Join(modules.Names(), ", "))))

	key = "protocol"
	cmd.PersistentFlags().Int(key, defaults.DefaultProtocol, WrapString("Protocol version of the client (2 or 3)"))

	key = "scan-batch"
	cmd.PersistentFlags().Int(key, defaults.ScanBatchSize, WrapString("Number of keys visited by one scan step"))

	key = "timer-idle"
	cmd.PersistentFlags().Duration(key, defaults.TimerIdle, WrapString("Maximum sleep of the timer loop while no timer is pending"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads .env files and binds KVMOD_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("kvmod")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetHostConfig reads the host configuration from viper
func GetHostConfig() (common.HostConfig, error) {
	conf := common.HostConfig{
		ScanBatchSize:   viper.GetInt("scan-batch"),
		DefaultProtocol: viper.GetInt("protocol"),
		TimerIdle:       viper.GetDuration("timer-idle"),
		LogLevel:        viper.GetString("log-level"),
	}

	for _, name := range strings.Split(viper.GetString("modules"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			conf.Modules = append(conf.Modules, name)
		}
	}

	if err := conf.Validate(); err != nil {
		return conf, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

// StartHost creates a host from the viper configuration and loads the
// configured modules
func StartHost() (*host.Host, error) {
	conf, err := GetHostConfig()
	if err != nil {
		return nil, err
	}
	if err := common.InitLoggers(conf); err != nil {
		return nil, err
	}

	h, err := host.New(conf)
	if err != nil {
		return nil, err
	}
	if err := modules.LoadAll(h, conf.Modules); err != nil {
		_ = h.Close()
		return nil, err
	}

	Logger.Debugf("host started:%s", conf.String())
	return h, nil
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// WriteMetrics writes the host metrics registry and the module counters
func WriteMetrics(w io.Writer, h *host.Host) {
	names := make([]string, 0)
	values := make(map[string]string)

	h.Metrics().Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case metrics.Timer:
			s := m.Snapshot()
			values[name] = fmt.Sprintf("count=%d mean=%s p99=%s", s.Count(), time.Duration(s.Mean()), time.Duration(s.Percentile(0.99)))
		case metrics.Counter:
			values[name] = fmt.Sprintf("%d", m.Snapshot().Count())
		default:
			return
		}
		names = append(names, name)
	})
	sort.Strings(names)

	fmt.Fprintln(w, "# host")
	for _, name := range names {
		fmt.Fprintf(w, "%-32s %s\n", name, values[name])
	}

	fmt.Fprintln(w, "# modules")
	module.WritePrometheus(w)
}

// SplitArgs splits a command line into arguments. Double quotes group words,
// a backslash escapes the next character inside quotes.
func SplitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuotes, escaped, hasArg := false, false, false

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuotes && r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
			hasArg = true
		case !inQuotes && (r == ' ' || r == '\t'):
			if hasArg {
				args = append(args, cur.String())
				cur.Reset()
				hasArg = false
			}
		default:
			cur.WriteRune(r)
			hasArg = true
		}
	}

	if inQuotes {
		return nil, fmt.Errorf("unbalanced quotes")
	}
	if hasArg {
		args = append(args, cur.String())
	}
	return args, nil
}
