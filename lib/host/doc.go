/*
Package host implements an embedded, in-process data store that exports the
raw.API function table to extension modules.

The host is a reference implementation of the foreign side of the module ABI.
It keeps a small typed keyspace (strings, lists, hashes and sets) and a
handful of commands, enough to produce every reply kind, blocking pops,
keyspace scans and module commands.

# Concurrency

All store state is protected by a single process wide mutex, the GIL. Client
commands, timer callbacks and unblock callbacks run with the GIL held. Module
goroutines acquire it through thread-safe contexts.

Two internal goroutines run for the lifetime of a host:

  - the event loop drains an MPSC queue of unblock requests, waiter timeouts
    and promise completions, handling each one under the GIL
  - the timer loop sleeps until the earliest deadline of a map-heap and fires
    due timers under the GIL

# Keys and Notifications

Keys may carry a time to live and expire lazily on their next access. Every
change raises a keyspace notification, delivered synchronously to the
subscribed modules. Post notification jobs queued by the handlers run right
before the GIL is released.

# Replies

Call returns root reply handles. Children of arrays, maps and sets get their
own handles on first access and are released together with their root.
Freeing a child is a no-op; freeing an unknown handle is counted as a double
free and reported by Stats.

# Usage

	h, err := host.New(common.DefaultHostConfig())
	if err != nil {
		return err
	}
	defer h.Close()

	m := timers.New()
	if err := h.LoadModule(m.Name, m.Load); err != nil {
		return err
	}

	c := h.NewClient()
	r, err := c.Do(context.Background(), "TIMER.SET", "100", "hello")
*/
package host
