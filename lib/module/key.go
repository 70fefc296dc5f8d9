package module

import (
	"iter"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvmod/lib/raw"
	"github.com/ValentinKolb/kvmod/lib/util"
)

// OpenedKey is a key opened for reading. A key that did not exist when it was
// opened reads as empty. It must only be used while the lock is held by the
// context it was opened from, and closed before that context ends.
type OpenedKey struct {
	c      *Context
	name   string
	h      raw.KeyHandle
	closed atomic.Bool
}

// WritableKey is a key opened for reading and writing
type WritableKey struct {
	*OpenedKey
}

// OpenKey opens name for reading
func (c *Context) OpenKey(name string) *OpenedKey {
	return c.openKey(name, raw.KeyRead)
}

// OpenKeyWritable opens name for reading and writing, the key is created by
// the first write
func (c *Context) OpenKeyWritable(name string) *WritableKey {
	return &WritableKey{c.openKey(name, raw.KeyRead|raw.KeyWrite)}
}

func (c *Context) openKey(name string, mode raw.KeyMode) *OpenedKey {
	c.require(raw.FeatureKeys)
	k := &OpenedKey{c: c, name: name, h: c.api.OpenKey(c.ctx, []byte(name), mode)}
	keysOpened.Inc()
	if k.h != 0 {
		runtime.SetFinalizer(k, finalizeKey)
	}
	return k
}

// finalizeKey closes a key that was dropped without Close
func finalizeKey(k *OpenedKey) {
	if !k.closed.CompareAndSwap(false, true) {
		return
	}
	leakedKeys.Inc()
	Logger.Warningf("key %q was garbage collected without Close", k.name)
	k.c.api.CloseKey(k.h)
}

// Close releases the key, calling it more than once has no effect
func (k *OpenedKey) Close() {
	if !k.closed.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(k, nil)
	k.c.api.CloseKey(k.h)
}

func (k *OpenedKey) handle() raw.KeyHandle {
	if k.closed.Load() {
		protocolViolation("key %q used after Close", k.name)
	}
	return k.h
}

// Name returns the name the key was opened with
func (k *OpenedKey) Name() string {
	return k.name
}

// Type returns the kind of value stored at the key
func (k *OpenedKey) Type() raw.KeyType {
	return k.c.api.KeyType(k.handle())
}

// IsEmpty reports whether the key holds no value
func (k *OpenedKey) IsEmpty() bool {
	return k.Type() == raw.KeyTypeEmpty
}

// Len returns the string length or the number of elements
func (k *OpenedKey) Len() int {
	return k.c.api.ValueLength(k.handle())
}

// expect fails with a CodeWrongType error if the key holds a value of another
// type. An empty key passes.
func (k *OpenedKey) expect(want raw.KeyType) error {
	if t := k.Type(); t != raw.KeyTypeEmpty && t != want {
		return NewError(CodeWrongType, "key "+k.name+" holds a "+t.String()+", not a "+want.String())
	}
	return nil
}

// Read returns the string value, ErrNotFound for an empty key
func (k *OpenedKey) Read() (string, error) {
	if err := k.expect(raw.KeyTypeString); err != nil {
		return "", err
	}
	b, status := k.c.api.StringGet(k.handle())
	if status != raw.StatusOK {
		return "", ErrNotFound
	}
	return string(b), nil
}

// HashGet returns a field of a hash, false if it is not set
func (k *OpenedKey) HashGet(field string) (string, bool, error) {
	if err := k.expect(raw.KeyTypeHash); err != nil {
		return "", false, err
	}
	b, ok, status := k.c.api.HashGet(k.handle(), []byte(field))
	if status != raw.StatusOK {
		return "", false, Errorf("HashGet failed on key %s", k.name)
	}
	return string(b), ok, nil
}

// Expire returns the remaining time to live, false if the key has none
func (k *OpenedKey) Expire() (time.Duration, bool) {
	ms := k.c.api.GetExpire(k.handle())
	if ms == raw.NoExpire {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func (k *WritableKey) status(s raw.Status, op string) error {
	if s != raw.StatusOK {
		return Errorf("%s failed on key %s", op, k.name)
	}
	return nil
}

// Write replaces the value with a string, dropping any time to live
func (k *WritableKey) Write(value string) error {
	return k.status(k.c.api.StringSet(k.handle(), []byte(value)), "Write")
}

// Delete removes the key, deleting an empty key is not an error
func (k *WritableKey) Delete() error {
	return k.status(k.c.api.DeleteKey(k.handle()), "Delete")
}

// ListPush adds values to the head or the tail of a list, one at a time
func (k *WritableKey) ListPush(where raw.ListWhere, values ...string) error {
	if err := k.expect(raw.KeyTypeList); err != nil {
		return err
	}
	for _, v := range values {
		if err := k.status(k.c.api.ListPush(k.handle(), where, []byte(v)), "ListPush"); err != nil {
			return err
		}
	}
	return nil
}

// ListPop removes an element from the head or the tail of a list, false if
// the list is empty
func (k *WritableKey) ListPop(where raw.ListWhere) (string, bool, error) {
	if err := k.expect(raw.KeyTypeList); err != nil {
		return "", false, err
	}
	if k.IsEmpty() {
		return "", false, nil
	}
	b, status := k.c.api.ListPop(k.handle(), where)
	if err := k.status(status, "ListPop"); err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// HashSet sets a field of a hash
func (k *WritableKey) HashSet(field, value string) error {
	if err := k.expect(raw.KeyTypeHash); err != nil {
		return err
	}
	return k.status(k.c.api.HashSet(k.handle(), []byte(field), []byte(value)), "HashSet")
}

// HashDel removes a field of a hash, the hash is deleted with its last field
func (k *WritableKey) HashDel(field string) error {
	if err := k.expect(raw.KeyTypeHash); err != nil {
		return err
	}
	return k.status(k.c.api.HashSet(k.handle(), []byte(field), nil), "HashDel")
}

// SetExpire sets the time to live, rounded down to milliseconds. The key
// must exist and d must be positive.
func (k *WritableKey) SetExpire(d time.Duration) error {
	if d < time.Millisecond {
		return Errorf("invalid expire %s", d)
	}
	return k.status(k.c.api.SetExpire(k.handle(), d.Milliseconds()), "SetExpire")
}

// RemoveExpire makes the key persistent
func (k *WritableKey) RemoveExpire() error {
	return k.status(k.c.api.SetExpire(k.handle(), raw.NoExpire), "RemoveExpire")
}

// --------------------------------------------------------------------------
// Field Scan
// --------------------------------------------------------------------------

// Field is a hash field or a set member, Value is empty for set members
type Field struct {
	Name  string
	Value string
}

// FieldsCursor iterates the fields of a hash or the members of a set. It
// follows the rules of KeysCursor and must be closed before its key.
type FieldsCursor struct {
	k      *OpenedKey
	cursor raw.ScanCursorHandle
	buf    *util.Queue[Field]
	done   bool
	closed bool
}

// ScanFields creates a cursor over the fields of the key. Close it when done.
func (k *OpenedKey) ScanFields() *FieldsCursor {
	k.c.require(raw.FeatureScan)
	return &FieldsCursor{
		k:      k,
		cursor: k.c.api.ScanCursorCreate(),
		buf:    util.NewQueue[Field](),
	}
}

// Next returns the next field, false once every field was visited
func (f *FieldsCursor) Next() (Field, bool) {
	if f.closed {
		protocolViolation("fields cursor used after Close")
	}
	for {
		if field, ok := f.buf.Pop(); ok {
			return field, true
		}
		if f.done {
			return Field{}, false
		}
		more := f.k.c.api.ScanKey(f.k.handle(), f.cursor, func(_ raw.KeyHandle, name, value []byte) {
			f.buf.Push(Field{Name: string(name), Value: string(value)})
		})
		f.done = !more
	}
}

// All iterates the remaining fields
func (f *FieldsCursor) All() iter.Seq[Field] {
	return func(yield func(Field) bool) {
		for {
			field, ok := f.Next()
			if !ok || !yield(field) {
				return
			}
		}
	}
}

// Restart starts over with a fresh view of the key
func (f *FieldsCursor) Restart() {
	for {
		if _, ok := f.buf.Pop(); !ok {
			break
		}
	}
	f.done = false
	f.k.c.api.ScanCursorRestart(f.cursor)
}

// Close destroys the cursor, calling it more than once has no effect
func (f *FieldsCursor) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.k.c.api.ScanCursorDestroy(f.cursor)
}
