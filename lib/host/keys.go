package host

import (
	"time"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// openKey is the state behind a raw.KeyHandle. The object is looked up by
// name on every access, so a key deleted while open reads as empty.
type openKey struct {
	name string
	mode raw.KeyMode
	ctx  raw.CtxHandle
}

func (k *openKey) writable() bool {
	return k.mode&raw.KeyWrite != 0
}

func (h *Host) OpenKey(ctx raw.CtxHandle, name []byte, mode raw.KeyMode) raw.KeyHandle {
	h.require(raw.FeatureKeys, "OpenKey")
	h.ctx(ctx)
	if mode&(raw.KeyRead|raw.KeyWrite) == 0 {
		protocolViolation("OpenKey without mode")
	}

	key := string(name)
	if mode&raw.KeyWrite == 0 {
		if _, ok := h.get(key); !ok {
			h.notify(raw.NotifyKeyMiss, "keymiss", key)
			return 0
		}
	}

	id := raw.KeyHandle(h.newHandle())
	h.keys.Store(id, &openKey{name: key, mode: mode, ctx: ctx})
	return id
}

func (h *Host) CloseKey(key raw.KeyHandle) {
	if key == 0 {
		return
	}
	if _, ok := h.keys.LoadAndDelete(key); !ok {
		protocolViolation("close of unknown key %d", key)
	}
}

// key resolves an open key, nil for the zero handle
func (h *Host) key(id raw.KeyHandle) *openKey {
	h.require(raw.FeatureKeys, "key access")
	if id == 0 {
		return nil
	}
	k, ok := h.keys.Load(id)
	if !ok {
		protocolViolation("unknown key handle %d", id)
	}
	return k
}

// object returns the live object behind an open key
func (h *Host) object(id raw.KeyHandle) (*openKey, *object) {
	k := h.key(id)
	if k == nil {
		return nil, nil
	}
	obj, _ := h.get(k.name)
	return k, obj
}

func kindToKeyType(kind objKind) raw.KeyType {
	switch kind {
	case objString:
		return raw.KeyTypeString
	case objList:
		return raw.KeyTypeList
	case objHash:
		return raw.KeyTypeHash
	case objSet:
		return raw.KeyTypeSet
	default:
		return raw.KeyTypeEmpty
	}
}

func (h *Host) KeyType(key raw.KeyHandle) raw.KeyType {
	_, obj := h.object(key)
	if obj == nil {
		return raw.KeyTypeEmpty
	}
	return kindToKeyType(obj.kind)
}

func (h *Host) ValueLength(key raw.KeyHandle) int {
	_, obj := h.object(key)
	if obj == nil {
		return 0
	}
	switch obj.kind {
	case objString:
		return len(obj.str)
	case objList:
		return len(obj.list)
	case objHash:
		return len(obj.fields)
	default:
		return len(obj.members)
	}
}

func (h *Host) DeleteKey(key raw.KeyHandle) raw.Status {
	k, obj := h.object(key)
	if k == nil || !k.writable() {
		return raw.StatusErr
	}
	if obj != nil {
		delete(h.keyspace, k.name)
		h.notify(raw.NotifyGeneric, "del", k.name)
	}
	return raw.StatusOK
}

// --------------------------------------------------------------------------
// Strings and Lists
// --------------------------------------------------------------------------

func (h *Host) StringGet(key raw.KeyHandle) ([]byte, raw.Status) {
	_, obj := h.object(key)
	if obj == nil || obj.kind != objString {
		return nil, raw.StatusErr
	}
	return append([]byte(nil), obj.str...), raw.StatusOK
}

func (h *Host) StringSet(key raw.KeyHandle, value []byte) raw.Status {
	k := h.key(key)
	if k == nil || !k.writable() {
		return raw.StatusErr
	}
	h.keyspace[k.name] = &object{kind: objString, str: append([]byte(nil), value...)}
	h.notify(raw.NotifyString, "set", k.name)
	return raw.StatusOK
}

func (h *Host) ListPush(key raw.KeyHandle, where raw.ListWhere, value []byte) raw.Status {
	k := h.key(key)
	if k == nil || !k.writable() {
		return raw.StatusErr
	}
	obj, errReply := h.lookupOrCreate(k.name, objList)
	if errReply != nil {
		return raw.StatusErr
	}

	obj.push(where, append([]byte(nil), value...))
	event := "rpush"
	if where == raw.ListHead {
		event = "lpush"
	}
	h.notify(raw.NotifyList, event, k.name)
	h.serveWaiters(k.name)
	return raw.StatusOK
}

func (h *Host) ListPop(key raw.KeyHandle, where raw.ListWhere) ([]byte, raw.Status) {
	k, obj := h.object(key)
	if k == nil || !k.writable() || obj == nil || obj.kind != objList {
		return nil, raw.StatusErr
	}
	return h.pop(k.name, obj, where), raw.StatusOK
}

// --------------------------------------------------------------------------
// Hashes
// --------------------------------------------------------------------------

func (h *Host) HashGet(key raw.KeyHandle, field []byte) ([]byte, bool, raw.Status) {
	_, obj := h.object(key)
	if obj == nil {
		return nil, false, raw.StatusOK
	}
	if obj.kind != objHash {
		return nil, false, raw.StatusErr
	}
	v, ok := obj.hash[string(field)]
	if !ok {
		return nil, false, raw.StatusOK
	}
	return append([]byte(nil), v...), true, raw.StatusOK
}

func (h *Host) HashSet(key raw.KeyHandle, field, value []byte) raw.Status {
	k := h.key(key)
	if k == nil || !k.writable() {
		return raw.StatusErr
	}

	if value == nil {
		obj, errReply := h.lookup(k.name, objHash)
		if errReply != nil {
			return raw.StatusErr
		}
		if obj == nil || !obj.deleteField(string(field)) {
			return raw.StatusOK
		}
		if len(obj.fields) == 0 {
			delete(h.keyspace, k.name)
		}
		h.notify(raw.NotifyHash, "hdel", k.name)
		return raw.StatusOK
	}

	obj, errReply := h.lookupOrCreate(k.name, objHash)
	if errReply != nil {
		return raw.StatusErr
	}
	f := string(field)
	if _, ok := obj.hash[f]; !ok {
		obj.fields = append(obj.fields, f)
	}
	obj.hash[f] = append([]byte(nil), value...)
	h.notify(raw.NotifyHash, "hset", k.name)
	return raw.StatusOK
}

// deleteField removes a hash field, keeping the order of the others
func (o *object) deleteField(field string) bool {
	if _, ok := o.hash[field]; !ok {
		return false
	}
	delete(o.hash, field)
	for i, f := range o.fields {
		if f == field {
			o.fields = append(o.fields[:i], o.fields[i+1:]...)
			break
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Expire
// --------------------------------------------------------------------------

func (h *Host) GetExpire(key raw.KeyHandle) int64 {
	_, obj := h.object(key)
	if obj == nil {
		return raw.NoExpire
	}
	return remainingMs(obj)
}

func (h *Host) SetExpire(key raw.KeyHandle, ms int64) raw.Status {
	k, obj := h.object(key)
	if k == nil || !k.writable() || obj == nil {
		return raw.StatusErr
	}

	switch {
	case ms == raw.NoExpire:
		obj.expireAt = 0
	case ms < 0:
		return raw.StatusErr
	default:
		obj.expireAt = time.Now().Add(time.Duration(ms) * time.Millisecond).UnixNano()
		h.notify(raw.NotifyGeneric, "expire", k.name)
	}
	return raw.StatusOK
}

// --------------------------------------------------------------------------
// Key Scan
// --------------------------------------------------------------------------

// ScanKey walks a snapshot of the hash fields or set members taken at the
// first step. Elements removed since are skipped.
func (h *Host) ScanKey(key raw.KeyHandle, cursor raw.ScanCursorHandle, fn raw.ScanKeyFunc) bool {
	cur := h.cursor(cursor)
	_, obj := h.object(key)
	if obj == nil || (obj.kind != objHash && obj.kind != objSet) {
		return false
	}

	if !cur.started {
		if obj.kind == objHash {
			cur.keys = append([]string(nil), obj.fields...)
		} else {
			cur.keys = append([]string(nil), obj.members...)
		}
		cur.started = true
	}

	end := min(cur.pos+h.cfg.ScanBatchSize, len(cur.keys))
	for _, e := range cur.keys[cur.pos:end] {
		if obj.kind == objHash {
			if v, ok := obj.hash[e]; ok {
				fn(key, []byte(e), v)
			}
		} else if _, ok := obj.set[e]; ok {
			fn(key, []byte(e), nil)
		}
	}
	cur.pos = end
	return cur.pos < len(cur.keys)
}

// openKeys returns the number of keys not closed yet
func (h *Host) openKeys() int {
	return h.keys.Size()
}
