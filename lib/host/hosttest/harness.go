package hosttest

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/kvmod/lib/common"
	"github.com/ValentinKolb/kvmod/lib/host"
	"github.com/ValentinKolb/kvmod/lib/raw"
)

// DefaultTimeout bounds every wait of the harness
const DefaultTimeout = 5 * time.Second

// Module is a module entry point to load into the harness host
type Module struct {
	Name   string
	OnLoad raw.OnLoadFunc
}

// Harness is a running host with a connected client
type Harness struct {
	T      testing.TB
	Host   *host.Host
	Client *host.Client
}

// New boots a host with the default configuration and loads the modules.
// The host is closed when the test finishes.
func New(t testing.TB, modules ...Module) *Harness {
	t.Helper()
	return NewWithConfig(t, common.DefaultHostConfig(), modules...)
}

// NewWithConfig is New with a custom configuration
func NewWithConfig(t testing.TB, cfg common.HostConfig, modules ...Module) *Harness {
	t.Helper()

	cfg.LogLevel = "error"
	if err := common.InitLoggers(cfg); err != nil {
		t.Fatalf("Failed to init loggers: %v", err)
	}

	h, err := host.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create host: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	for _, m := range modules {
		if err := h.LoadModule(m.Name, m.OnLoad); err != nil {
			t.Fatalf("Failed to load module %s: %v", m.Name, err)
		}
	}

	return &Harness{T: t, Host: h, Client: h.NewClient()}
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Do runs a command on the harness client and waits for the reply
func (hs *Harness) Do(args ...string) *host.Reply {
	hs.T.Helper()
	return hs.DoWith(hs.Client, args...)
}

// DoWith runs a command on the given client and waits for the reply
func (hs *Harness) DoWith(c *host.Client, args ...string) *host.Reply {
	hs.T.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	r, err := c.Do(ctx, args...)
	if err != nil {
		hs.T.Fatalf("Command %v failed: %v", args, err)
	}
	return r
}

// Await waits for an asynchronous reply
func (hs *Harness) Await(ch <-chan *host.Reply) *host.Reply {
	hs.T.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(DefaultTimeout):
		hs.T.Fatalf("Timeout waiting for reply")
		return nil
	}
}

// ExpectPending checks that no reply arrives on ch within d
func (hs *Harness) ExpectPending(ch <-chan *host.Reply, d time.Duration) {
	hs.T.Helper()

	select {
	case r := <-ch:
		hs.T.Fatalf("Expected no reply yet, got %v", r)
	case <-time.After(d):
	}
}

// --------------------------------------------------------------------------
// Assertions
// --------------------------------------------------------------------------

// ExpectType checks the type of a reply
func (hs *Harness) ExpectType(r *host.Reply, want raw.ReplyType) {
	hs.T.Helper()
	if r == nil {
		hs.T.Fatalf("Expected %s reply, got nil", want)
	}
	if r.Type != want {
		hs.T.Fatalf("Expected %s reply, got %s: %v", want, r.Type, r)
	}
}

// ExpectString checks a string reply
func (hs *Harness) ExpectString(r *host.Reply, want string) {
	hs.T.Helper()
	hs.ExpectType(r, raw.ReplyString)
	if string(r.Str) != want {
		hs.T.Errorf("Expected %q, got %q", want, r.Str)
	}
}

// ExpectInteger checks an integer reply
func (hs *Harness) ExpectInteger(r *host.Reply, want int64) {
	hs.T.Helper()
	hs.ExpectType(r, raw.ReplyInteger)
	if r.Int != want {
		hs.T.Errorf("Expected %d, got %d", want, r.Int)
	}
}

// ExpectNull checks a null reply
func (hs *Harness) ExpectNull(r *host.Reply) {
	hs.T.Helper()
	hs.ExpectType(r, raw.ReplyNull)
}

// ExpectError checks that r is an error reply starting with prefix
func (hs *Harness) ExpectError(r *host.Reply, prefix string) {
	hs.T.Helper()
	hs.ExpectType(r, raw.ReplyError)
	if len(r.Str) < len(prefix) || string(r.Str[:len(prefix)]) != prefix {
		hs.T.Errorf("Expected error starting with %q, got %q", prefix, r.Str)
	}
}

// Eventually polls cond until it holds or the timeout expires
func (hs *Harness) Eventually(cond func() bool, msg string) {
	hs.T.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			hs.T.Fatalf("Condition not met: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// AssertClean checks that every root reply was freed exactly once and that
// no promise, blocked client or open key is pending
func (hs *Harness) AssertClean() {
	hs.T.Helper()

	var s host.Stats
	hs.Eventually(func() bool {
		s = hs.Host.Stats()
		return s.LiveRootReplies == 0 && s.BlockedClients == 0 && s.PendingPromises == 0 &&
			s.OpenKeys == 0
	}, "host resources released")

	if s.DoubleFrees != 0 {
		hs.T.Errorf("Expected no double frees, got %d", s.DoubleFrees)
	}
}
