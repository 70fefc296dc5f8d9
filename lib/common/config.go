package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Host configuration struct
// --------------------------------------------------------------------------

// HostConfig holds all configuration parameters of an embedded host
type HostConfig struct {
	// number of keys visited by one scan step
	ScanBatchSize int

	// protocol version (2 or 3) of clients created by Host.NewClient
	DefaultProtocol int

	// upper bound for the sleep of the timer loop when no timer is pending
	TimerIdle time.Duration

	// names of the bundled modules to load on start
	Modules []string

	// Logging configuration
	LogLevel string
}

// DefaultHostConfig returns the configuration used by tests and the CLI defaults
func DefaultHostConfig() HostConfig {
	return HostConfig{
		ScanBatchSize:   10,
		DefaultProtocol: 3,
		TimerIdle:       100 * time.Millisecond,
		Modules:         nil,
		LogLevel:        "info",
	}
}

// Validate checks the configuration for values the host cannot work with
func (c *HostConfig) Validate() error {
	if c.ScanBatchSize <= 0 {
		return fmt.Errorf("scan batch size must be positive, got %d", c.ScanBatchSize)
	}
	if c.DefaultProtocol != 2 && c.DefaultProtocol != 3 {
		return fmt.Errorf("protocol must be 2 or 3, got %d", c.DefaultProtocol)
	}
	if c.TimerIdle <= 0 {
		return fmt.Errorf("timer idle interval must be positive, got %s", c.TimerIdle)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *HostConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Host")
	addField("Protocol", fmt.Sprintf("RESP%d", c.DefaultProtocol))
	addField("Scan Batch Size", fmt.Sprintf("%d keys", c.ScanBatchSize))
	addField("Timer Idle", c.TimerIdle.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Modules")
	if len(c.Modules) == 0 {
		sb.WriteString("  (none)\n")
	}
	for i, name := range c.Modules {
		addField(fmt.Sprintf("%d", i), name)
	}

	return sb.String()
}
