package module

import (
	"iter"

	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/ValentinKolb/kvmod/lib/util"
)

// KeysCursor iterates the keyspace. The store pushes keys in batches, the
// cursor buffers them and hands them out one at a time. It must only be used
// while the lock is held by the context it was created from.
type KeysCursor struct {
	c      *Context
	cursor raw.ScanCursorHandle
	buf    *util.Queue[string]
	done   bool
	closed bool
}

// ScanKeys creates a cursor over all keys. Close it when done.
func (c *Context) ScanKeys() *KeysCursor {
	c.require(raw.FeatureScan)
	return &KeysCursor{
		c:      c,
		cursor: c.api.ScanCursorCreate(),
		buf:    util.NewQueue[string](),
	}
}

// Next returns the next key, false once every key was visited
func (k *KeysCursor) Next() (string, bool) {
	if k.closed {
		protocolViolation("keys cursor used after Close")
	}
	for {
		if key, ok := k.buf.Pop(); ok {
			return key, true
		}
		if k.done {
			return "", false
		}
		more := k.c.api.Scan(k.c.ctx, k.cursor, func(_ raw.CtxHandle, key []byte) {
			k.buf.Push(string(key))
		})
		k.done = !more
	}
}

// All iterates the remaining keys
func (k *KeysCursor) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			key, ok := k.Next()
			if !ok || !yield(key) {
				return
			}
		}
	}
}

// Restart starts over with a fresh view of the keyspace
func (k *KeysCursor) Restart() {
	for {
		if _, ok := k.buf.Pop(); !ok {
			break
		}
	}
	k.done = false
	k.c.api.ScanCursorRestart(k.cursor)
}

// Close destroys the cursor, calling it more than once has no effect
func (k *KeysCursor) Close() {
	if k.closed {
		return
	}
	k.closed = true
	k.c.api.ScanCursorDestroy(k.cursor)
}
