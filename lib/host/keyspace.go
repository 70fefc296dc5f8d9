package host

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

const (
	errWrongType = "WRONGTYPE Operation against a key holding the wrong kind of value"
	errNotInt    = "ERR value is not an integer or out of range"
	errSyntax    = "ERR syntax error"
	errTimeout   = "ERR timeout is not a float or out of range"
)

// --------------------------------------------------------------------------
// Objects
// --------------------------------------------------------------------------

type objKind int

const (
	objString objKind = iota
	objList
	objHash
	objSet
)

func (k objKind) String() string {
	switch k {
	case objString:
		return "string"
	case objList:
		return "list"
	case objHash:
		return "hash"
	case objSet:
		return "set"
	default:
		return "none"
	}
}

// object is a value of the keyspace. Hash fields and set members keep their
// insertion order.
type object struct {
	kind objKind

	str  []byte
	list [][]byte

	fields []string
	hash   map[string][]byte

	members []string
	set     map[string]struct{}

	// unix nanoseconds after which the key is gone, 0 without ttl
	expireAt int64
}

func (o *object) expired(now int64) bool {
	return o.expireAt != 0 && now >= o.expireAt
}

// get returns the live object at key. Expired keys are removed on access.
func (h *Host) get(key string) (*object, bool) {
	obj, ok := h.keyspace[key]
	if !ok {
		return nil, false
	}
	if obj.expired(time.Now().UnixNano()) {
		delete(h.keyspace, key)
		h.notify(raw.NotifyExpired, "expired", key)
		return nil, false
	}
	return obj, true
}

// newObject creates an empty object of kind
func newObject(kind objKind) *object {
	obj := &object{kind: kind}
	switch kind {
	case objHash:
		obj.hash = make(map[string][]byte)
	case objSet:
		obj.set = make(map[string]struct{})
	}
	return obj
}

// lookup returns the object at key if it has the wanted kind. An object of a
// different kind yields a WRONGTYPE error reply.
func (h *Host) lookup(key string, kind objKind) (*object, *Reply) {
	obj, ok := h.get(key)
	if !ok {
		return nil, nil
	}
	if obj.kind != kind {
		return nil, NewErrorReply(errWrongType)
	}
	return obj, nil
}

// lookupOrCreate is lookup that creates a missing object
func (h *Host) lookupOrCreate(key string, kind objKind) (*object, *Reply) {
	obj, errReply := h.lookup(key, kind)
	if errReply != nil || obj != nil {
		return obj, errReply
	}

	obj = newObject(kind)
	h.keyspace[key] = obj
	return obj, nil
}

// --------------------------------------------------------------------------
// Builtin Commands
// --------------------------------------------------------------------------

func (h *Host) registerBuiltins() {
	builtins := []struct {
		name  string
		arity int
		write bool
		fn    builtinFunc
	}{
		{"ping", -1, false, cmdPing},
		{"echo", 2, false, cmdEcho},
		{"set", -3, true, cmdSet},
		{"get", 2, false, cmdGet},
		{"del", -2, true, cmdDel},
		{"exists", -2, false, cmdExists},
		{"type", 2, false, cmdType},
		{"pexpire", 3, true, cmdPExpire},
		{"pttl", 2, false, cmdPTTL},
		{"incr", 2, true, cmdIncr},
		{"incrby", 3, true, cmdIncrBy},
		{"lpush", -3, true, cmdPush},
		{"rpush", -3, true, cmdPush},
		{"lpop", 2, true, cmdLPop},
		{"llen", 2, false, cmdLLen},
		{"lrange", 4, false, cmdLRange},
		{"blpop", -3, true, cmdBLPop},
		{"hset", -4, true, cmdHSet},
		{"hget", 3, false, cmdHGet},
		{"hgetall", 2, false, cmdHGetAll},
		{"sadd", -3, true, cmdSAdd},
		{"smembers", 2, false, cmdSMembers},
		{"dbsize", 1, false, cmdDBSize},
		{"flushall", 1, true, cmdFlushAll},
		{"debug", -2, false, cmdDebug},
	}

	for _, b := range builtins {
		h.addCommand(&command{name: b.name, arity: b.arity, write: b.write, builtin: b.fn})
	}
}

func cmdPing(_ *Host, inv *invocation) *Reply {
	switch len(inv.args) {
	case 1:
		return NewString("PONG")
	case 2:
		return NewBytes(inv.args[1])
	default:
		return NewErrorReply(wrongArityMsg("ping"))
	}
}

func cmdEcho(_ *Host, inv *invocation) *Reply {
	return NewBytes(inv.args[1])
}

func cmdSet(h *Host, inv *invocation) *Reply {
	key := inv.arg(1)
	nx, xx := false, false
	for _, opt := range inv.args[3:] {
		switch strings.ToUpper(string(opt)) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return NewErrorReply(errSyntax)
		}
	}
	if nx && xx {
		return NewErrorReply(errSyntax)
	}

	_, exists := h.get(key)
	if (nx && exists) || (xx && !exists) {
		return NewNull()
	}

	h.keyspace[key] = &object{kind: objString, str: append([]byte(nil), inv.args[2]...)}
	h.notify(raw.NotifyString, "set", key)
	return NewString("OK")
}

func cmdGet(h *Host, inv *invocation) *Reply {
	obj, errReply := h.lookup(inv.arg(1), objString)
	if errReply != nil {
		return errReply
	}
	if obj == nil {
		h.notify(raw.NotifyKeyMiss, "keymiss", inv.arg(1))
		return NewNull()
	}
	return NewBytes(obj.str)
}

func cmdDel(h *Host, inv *invocation) *Reply {
	var n int64
	for _, k := range inv.args[1:] {
		key := string(k)
		if _, ok := h.get(key); ok {
			delete(h.keyspace, key)
			h.notify(raw.NotifyGeneric, "del", key)
			n++
		}
	}
	return NewInteger(n)
}

func cmdExists(h *Host, inv *invocation) *Reply {
	var n int64
	for _, k := range inv.args[1:] {
		if _, ok := h.get(string(k)); ok {
			n++
		}
	}
	return NewInteger(n)
}

func cmdType(h *Host, inv *invocation) *Reply {
	obj, ok := h.get(inv.arg(1))
	if !ok {
		return NewString("none")
	}
	return NewString(obj.kind.String())
}

func cmdPExpire(h *Host, inv *invocation) *Reply {
	ms, err := strconv.ParseInt(inv.arg(2), 10, 64)
	if err != nil {
		return NewErrorReply(errNotInt)
	}

	key := inv.arg(1)
	obj, ok := h.get(key)
	if !ok {
		return NewInteger(0)
	}
	if ms <= 0 {
		delete(h.keyspace, key)
		h.notify(raw.NotifyGeneric, "del", key)
		return NewInteger(1)
	}
	obj.expireAt = time.Now().Add(time.Duration(ms) * time.Millisecond).UnixNano()
	h.notify(raw.NotifyGeneric, "expire", key)
	return NewInteger(1)
}

// cmdPTTL replies -2 for a missing key, -1 without ttl
func cmdPTTL(h *Host, inv *invocation) *Reply {
	obj, ok := h.get(inv.arg(1))
	if !ok {
		return NewInteger(-2)
	}
	return NewInteger(remainingMs(obj))
}

// remainingMs is the ttl of obj rounded up, raw.NoExpire without one
func remainingMs(obj *object) int64 {
	if obj.expireAt == 0 {
		return raw.NoExpire
	}
	left := time.Duration(obj.expireAt - time.Now().UnixNano())
	return max(int64((left+time.Millisecond-1)/time.Millisecond), 1)
}

func cmdIncr(h *Host, inv *invocation) *Reply {
	return h.incrBy(inv.arg(1), 1)
}

func cmdIncrBy(h *Host, inv *invocation) *Reply {
	delta, err := strconv.ParseInt(inv.arg(2), 10, 64)
	if err != nil {
		return NewErrorReply(errNotInt)
	}
	return h.incrBy(inv.arg(1), delta)
}

func (h *Host) incrBy(key string, delta int64) *Reply {
	obj, errReply := h.lookupOrCreate(key, objString)
	if errReply != nil {
		return errReply
	}

	var cur int64
	if len(obj.str) > 0 {
		v, err := strconv.ParseInt(string(obj.str), 10, 64)
		if err != nil {
			return NewErrorReply(errNotInt)
		}
		cur = v
	}
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return NewErrorReply("ERR increment or decrement would overflow")
	}

	cur += delta
	obj.str = []byte(strconv.FormatInt(cur, 10))
	h.notify(raw.NotifyString, "incrby", key)
	return NewInteger(cur)
}

func cmdPush(h *Host, inv *invocation) *Reply {
	key := inv.arg(1)
	obj, errReply := h.lookupOrCreate(key, objList)
	if errReply != nil {
		return errReply
	}

	where := raw.ListTail
	if inv.name() == "lpush" {
		where = raw.ListHead
	}
	for _, v := range inv.args[2:] {
		obj.push(where, append([]byte(nil), v...))
	}

	n := int64(len(obj.list))
	h.notify(raw.NotifyList, inv.name(), key)
	h.serveWaiters(key)
	return NewInteger(n)
}

func (o *object) push(where raw.ListWhere, elem []byte) {
	if where == raw.ListHead {
		o.list = append([][]byte{elem}, o.list...)
	} else {
		o.list = append(o.list, elem)
	}
}

// pop removes an element of a non-empty list, deleting empty lists
func (h *Host) pop(key string, obj *object, where raw.ListWhere) []byte {
	var elem []byte
	event := "lpop"
	if where == raw.ListHead {
		elem = obj.list[0]
		obj.list = obj.list[1:]
	} else {
		event = "rpop"
		elem = obj.list[len(obj.list)-1]
		obj.list = obj.list[:len(obj.list)-1]
	}
	if len(obj.list) == 0 {
		delete(h.keyspace, key)
	}
	h.notify(raw.NotifyList, event, key)
	return elem
}

// popFront removes the first element of a list
func (h *Host) popFront(key string, obj *object) []byte {
	return h.pop(key, obj, raw.ListHead)
}

func cmdLPop(h *Host, inv *invocation) *Reply {
	key := inv.arg(1)
	obj, errReply := h.lookup(key, objList)
	if errReply != nil {
		return errReply
	}
	if obj == nil {
		return NewNull()
	}
	return NewBytes(h.popFront(key, obj))
}

func cmdLLen(h *Host, inv *invocation) *Reply {
	obj, errReply := h.lookup(inv.arg(1), objList)
	if errReply != nil {
		return errReply
	}
	if obj == nil {
		return NewInteger(0)
	}
	return NewInteger(int64(len(obj.list)))
}

func cmdLRange(h *Host, inv *invocation) *Reply {
	start, err1 := strconv.Atoi(inv.arg(2))
	stop, err2 := strconv.Atoi(inv.arg(3))
	if err1 != nil || err2 != nil {
		return NewErrorReply(errNotInt)
	}

	obj, errReply := h.lookup(inv.arg(1), objList)
	if errReply != nil {
		return errReply
	}
	if obj == nil {
		return NewArray()
	}

	n := len(obj.list)
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	stop = min(stop, n-1)

	elems := make([]*Reply, 0)
	for i := start; i <= stop; i++ {
		elems = append(elems, NewBytes(obj.list[i]))
	}
	return NewArray(elems...)
}

// cmdBLPop pops from the first non-empty list. Otherwise a client blocks, a
// call with CallBlocking gets a promise and any other call gets null.
func cmdBLPop(h *Host, inv *invocation) *Reply {
	secs, err := strconv.ParseFloat(inv.arg(len(inv.args)-1), 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return NewErrorReply(errTimeout)
	}
	if secs < 0 {
		return NewErrorReply("ERR timeout is negative")
	}

	keys := make([]string, 0, len(inv.args)-2)
	for _, k := range inv.args[1 : len(inv.args)-1] {
		key := string(k)
		obj, errReply := h.lookup(key, objList)
		if errReply != nil {
			return errReply
		}
		if obj != nil {
			return NewArray(NewString(key), NewBytes(h.popFront(key, obj)))
		}
		keys = append(keys, key)
	}

	w := &waiter{keys: keys}
	switch {
	case inv.client != nil:
		inv.blocked = true
		ch, protocol := inv.client, inv.protocol
		w.finish = func(r *Reply) { ch <- shape(r, protocol) }
	case inv.blocking:
		p := h.newPromise(inv.protocol, inv.module)
		p.waiter = w
		inv.promise = p
		w.finish = func(r *Reply) { h.completePromise(p, r) }
	default:
		return NewNull()
	}

	h.addWaiter(w, time.Duration(secs*float64(time.Second)))
	return nil
}

func cmdHSet(h *Host, inv *invocation) *Reply {
	if len(inv.args)%2 != 0 {
		return NewErrorReply(wrongArityMsg("hset"))
	}

	obj, errReply := h.lookupOrCreate(inv.arg(1), objHash)
	if errReply != nil {
		return errReply
	}

	var added int64
	for i := 2; i < len(inv.args); i += 2 {
		field := inv.arg(i)
		if _, ok := obj.hash[field]; !ok {
			obj.fields = append(obj.fields, field)
			added++
		}
		obj.hash[field] = append([]byte(nil), inv.args[i+1]...)
	}
	h.notify(raw.NotifyHash, "hset", inv.arg(1))
	return NewInteger(added)
}

func cmdHGet(h *Host, inv *invocation) *Reply {
	obj, errReply := h.lookup(inv.arg(1), objHash)
	if errReply != nil {
		return errReply
	}
	if obj == nil {
		return NewNull()
	}
	v, ok := obj.hash[inv.arg(2)]
	if !ok {
		return NewNull()
	}
	return NewBytes(v)
}

func cmdHGetAll(h *Host, inv *invocation) *Reply {
	obj, errReply := h.lookup(inv.arg(1), objHash)
	if errReply != nil {
		return errReply
	}
	if obj == nil {
		return NewMap()
	}

	pairs := make([]Pair, 0, len(obj.fields))
	for _, f := range obj.fields {
		pairs = append(pairs, Pair{Key: NewString(f), Value: NewBytes(obj.hash[f])})
	}
	return NewMap(pairs...)
}

func cmdSAdd(h *Host, inv *invocation) *Reply {
	obj, errReply := h.lookupOrCreate(inv.arg(1), objSet)
	if errReply != nil {
		return errReply
	}

	var added int64
	for _, m := range inv.args[2:] {
		member := string(m)
		if _, ok := obj.set[member]; ok {
			continue
		}
		obj.set[member] = struct{}{}
		obj.members = append(obj.members, member)
		added++
	}
	if added > 0 {
		h.notify(raw.NotifySet, "sadd", inv.arg(1))
	}
	return NewInteger(added)
}

func cmdSMembers(h *Host, inv *invocation) *Reply {
	obj, errReply := h.lookup(inv.arg(1), objSet)
	if errReply != nil {
		return errReply
	}
	if obj == nil {
		return NewSet()
	}

	elems := make([]*Reply, 0, len(obj.members))
	for _, m := range obj.members {
		elems = append(elems, NewString(m))
	}
	return NewSet(elems...)
}

func cmdDBSize(h *Host, _ *invocation) *Reply {
	var n int64
	for key := range h.keyspace {
		if _, ok := h.get(key); ok {
			n++
		}
	}
	return NewInteger(n)
}

func cmdFlushAll(h *Host, _ *invocation) *Reply {
	h.fireServerEvent(raw.ServerEventFlush, raw.FlushStarted)
	h.keyspace = make(map[string]*object)
	h.fireServerEvent(raw.ServerEventFlush, raw.FlushEnded)
	return NewString("OK")
}

// cmdDebug implements DEBUG PROTOCOL <kind>, replying with a fixed value of
// the requested reply kind
func cmdDebug(_ *Host, inv *invocation) *Reply {
	if len(inv.args) != 3 || !strings.EqualFold(inv.arg(1), "protocol") {
		return NewErrorReply("ERR DEBUG subcommand must be PROTOCOL <kind>")
	}

	r, ok := debugReplies()[strings.ToLower(inv.arg(2))]
	if !ok {
		return NewErrorReply("ERR unknown protocol kind, try one of " + strings.Join(DebugProtocolKinds(), ", "))
	}
	return r
}

func debugReplies() map[string]*Reply {
	return map[string]*Reply{
		"string":   NewString("Hello World"),
		"integer":  NewInteger(12345),
		"double":   NewDouble(3.141),
		"bignum":   NewBigNumber("1234567999999999999999999999999999999"),
		"null":     NewNull(),
		"array":    NewArray(NewInteger(0), NewInteger(1), NewInteger(2)),
		"set":      NewSet(NewInteger(0), NewInteger(1), NewInteger(2)),
		"true":     NewBool(true),
		"false":    NewBool(false),
		"verbatim": NewVerbatim("txt", []byte("This is a verbatim\nstring")),
		"error":    NewErrorReply("ERR this is an error"),
		"map": NewMap(
			Pair{Key: NewInteger(0), Value: NewBool(false)},
			Pair{Key: NewInteger(1), Value: NewBool(true)},
			Pair{Key: NewInteger(2), Value: NewBool(false)},
		),
		"nested": NewArray(
			NewInteger(1),
			NewString("two"),
			NewNull(),
			NewMap(Pair{Key: NewString("k"), Value: NewArray(NewInteger(1), NewInteger(2))}),
			NewSet(NewString("a")),
			NewBool(true),
			NewDouble(1.5),
			NewErrorReply("ERR inner"),
		),
		"doublekey": NewMap(Pair{Key: NewDouble(1.5), Value: NewString("x")}),
		"arraykey":  NewSet(NewArray(NewInteger(1))),
	}
}

// DebugProtocolKinds returns the kinds accepted by DEBUG PROTOCOL
func DebugProtocolKinds() []string {
	kinds := make([]string, 0)
	for k := range debugReplies() {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
