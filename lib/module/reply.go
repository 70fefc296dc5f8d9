package module

import (
	"iter"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/kvmod/lib/raw"
)

// --------------------------------------------------------------------------
// Root Scope
// --------------------------------------------------------------------------

// scope is shared by a root reply and every reply decoded from it
type scope struct {
	api   raw.API
	root  raw.ReplyHandle
	freed atomic.Bool
}

// check panics if the root of the reply was freed
func (s *scope) check() {
	if s.freed.Load() {
		protocolViolation("reply used after its root was freed")
	}
}

// RootReply owns the handle returned by a call. Every Reply obtained from it,
// including children of aggregates, is valid until Free. Use it as:
//
//	root := ctx.CallExt(opts, "HGETALL", "key")
//	defer root.Free()
type RootReply struct {
	s     *scope
	reply Reply
}

func newRootReply(api raw.API, h raw.ReplyHandle) *RootReply {
	s := &scope{api: api, root: h}
	return &RootReply{s: s, reply: decodeReply(s, h)}
}

// Reply returns the decoded reply
func (r *RootReply) Reply() Reply {
	r.s.check()
	return r.reply
}

// Err returns the error of an error reply, nil otherwise
func (r *RootReply) Err() error {
	if e, ok := r.Reply().(ErrorReply); ok {
		return e.Err()
	}
	return nil
}

// Value projects the reply into the owned value model. A top level error
// reply is returned as error.
func (r *RootReply) Value() (Value, error) {
	reply := r.Reply()
	if e, ok := reply.(ErrorReply); ok {
		return nil, e.Err()
	}
	return Project(reply)
}

// Free releases the handle and with it the whole reply tree. Calling Free
// more than once has no effect.
func (r *RootReply) Free() {
	if !r.s.freed.CompareAndSwap(false, true) {
		return
	}
	if r.s.root != 0 {
		r.s.api.FreeCallReply(r.s.root)
	}
}

func (r *RootReply) String() string {
	return r.Reply().String()
}

// --------------------------------------------------------------------------
// Typed Replies
// --------------------------------------------------------------------------

// Reply is a decoded call reply. The set of implementations is closed:
// IntegerReply, StringReply, ErrorReply, ArrayReply, NullReply, MapReply,
// SetReply, BoolReply, DoubleReply, BigNumberReply, VerbatimStringReply and
// UnknownReply.
type Reply interface {
	Type() raw.ReplyType
	String() string
	isReply()
}

// node is the handle of a reply together with the scope of its root
type node struct {
	s *scope
	h raw.ReplyHandle
}

func (n node) api() raw.API {
	n.s.check()
	return n.s.api
}

func (node) isReply() {}

type (
	IntegerReply        struct{ node }
	StringReply         struct{ node }
	ErrorReply          struct{ node }
	ArrayReply          struct{ node }
	NullReply           struct{ node }
	MapReply            struct{ node }
	SetReply            struct{ node }
	BoolReply           struct{ node }
	DoubleReply         struct{ node }
	BigNumberReply      struct{ node }
	VerbatimStringReply struct{ node }
)

// UnknownReply means no object was returned; it owns nothing
type UnknownReply struct{}

func (UnknownReply) isReply()            {}
func (UnknownReply) Type() raw.ReplyType { return raw.ReplyUnknown }
func (UnknownReply) String() string      { return "unknown" }

func (IntegerReply) Type() raw.ReplyType        { return raw.ReplyInteger }
func (StringReply) Type() raw.ReplyType         { return raw.ReplyString }
func (ErrorReply) Type() raw.ReplyType          { return raw.ReplyError }
func (ArrayReply) Type() raw.ReplyType          { return raw.ReplyArray }
func (NullReply) Type() raw.ReplyType           { return raw.ReplyNull }
func (MapReply) Type() raw.ReplyType            { return raw.ReplyMap }
func (SetReply) Type() raw.ReplyType            { return raw.ReplySet }
func (BoolReply) Type() raw.ReplyType           { return raw.ReplyBool }
func (DoubleReply) Type() raw.ReplyType         { return raw.ReplyDouble }
func (BigNumberReply) Type() raw.ReplyType      { return raw.ReplyBigNumber }
func (VerbatimStringReply) Type() raw.ReplyType { return raw.ReplyVerbatimString }

// Int returns the integer value
func (r IntegerReply) Int() int64 { return r.api().CallReplyInteger(r.h) }

func (r IntegerReply) String() string { return strconv.FormatInt(r.Int(), 10) }

// Bytes returns a copy of the string
func (r StringReply) Bytes() []byte {
	return append([]byte(nil), r.api().CallReplyStringPtr(r.h)...)
}

func (r StringReply) String() string { return string(r.api().CallReplyStringPtr(r.h)) }

// Bytes returns a copy of the error message
func (r ErrorReply) Bytes() []byte {
	return append([]byte(nil), r.api().CallReplyStringPtr(r.h)...)
}

func (r ErrorReply) String() string { return string(r.api().CallReplyStringPtr(r.h)) }

// Err converts the error reply to an *Error
func (r ErrorReply) Err() error { return errorFromReply(r.String()) }

func (NullReply) String() string { return "null" }

// Bool returns the boolean value
func (r BoolReply) Bool() bool { return r.api().CallReplyBool(r.h) }

func (r BoolReply) String() string { return strconv.FormatBool(r.Bool()) }

// Float returns the double value
func (r DoubleReply) Float() float64 { return r.api().CallReplyDouble(r.h) }

func (r DoubleReply) String() string { return strconv.FormatFloat(r.Float(), 'g', -1, 64) }

// Number returns the decimal digits of the big number
func (r BigNumberReply) Number() string { return string(r.api().CallReplyBigNumber(r.h)) }

func (r BigNumberReply) String() string { return r.Number() }

// Parts returns the format tag and a copy of the data
func (r VerbatimStringReply) Parts() (format string, data []byte) {
	d, f := r.api().CallReplyVerbatim(r.h)
	return f, append([]byte(nil), d...)
}

func (r VerbatimStringReply) String() string {
	f, d := r.Parts()
	return f + ":" + string(d)
}

// --------------------------------------------------------------------------
// Aggregates
// --------------------------------------------------------------------------

// Len returns the number of elements
func (r ArrayReply) Len() int { return r.api().CallReplyLength(r.h) }

// Get decodes the element at i, UnknownReply if i is out of range
func (r ArrayReply) Get(i int) Reply {
	return decodeReply(r.s, r.api().CallReplyArrayElement(r.h, i))
}

// All iterates the elements
func (r ArrayReply) All() iter.Seq2[int, Reply] {
	return func(yield func(int, Reply) bool) {
		for i, n := 0, r.Len(); i < n; i++ {
			if !yield(i, r.Get(i)) {
				return
			}
		}
	}
}

func (r ArrayReply) String() string {
	parts := make([]string, 0, r.Len())
	for _, e := range r.All() {
		parts = append(parts, e.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Len returns the number of pairs
func (r MapReply) Len() int { return r.api().CallReplyLength(r.h) }

// Get decodes the pair at i
func (r MapReply) Get(i int) (key, value Reply) {
	k, v := r.api().CallReplyMapElement(r.h, i)
	return decodeReply(r.s, k), decodeReply(r.s, v)
}

// All iterates the pairs in the order of the store
func (r MapReply) All() iter.Seq2[Reply, Reply] {
	return func(yield func(Reply, Reply) bool) {
		for i, n := 0, r.Len(); i < n; i++ {
			if !yield(r.Get(i)) {
				return
			}
		}
	}
}

func (r MapReply) String() string {
	parts := make([]string, 0, r.Len())
	for k, v := range r.All() {
		parts = append(parts, k.String()+": "+v.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Len returns the number of members
func (r SetReply) Len() int { return r.api().CallReplyLength(r.h) }

// Get decodes the member at i
func (r SetReply) Get(i int) Reply {
	return decodeReply(r.s, r.api().CallReplySetElement(r.h, i))
}

// All iterates the members in the order of the store
func (r SetReply) All() iter.Seq2[int, Reply] {
	return func(yield func(int, Reply) bool) {
		for i, n := 0, r.Len(); i < n; i++ {
			if !yield(i, r.Get(i)) {
				return
			}
		}
	}
}

func (r SetReply) String() string {
	parts := make([]string, 0, r.Len())
	for _, m := range r.All() {
		parts = append(parts, m.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// decodeReply classifies a handle by its type tag. Children are not decoded
// until accessed.
func decodeReply(s *scope, h raw.ReplyHandle) Reply {
	if h == 0 {
		return UnknownReply{}
	}

	n := node{s: s, h: h}
	switch t := n.api().CallReplyType(h); t {
	case raw.ReplyUnknown:
		return UnknownReply{}
	case raw.ReplyInteger:
		return IntegerReply{n}
	case raw.ReplyString:
		return StringReply{n}
	case raw.ReplyError:
		return ErrorReply{n}
	case raw.ReplyArray:
		return ArrayReply{n}
	case raw.ReplyNull:
		return NullReply{n}
	case raw.ReplyMap:
		return MapReply{n}
	case raw.ReplySet:
		return SetReply{n}
	case raw.ReplyBool:
		return BoolReply{n}
	case raw.ReplyDouble:
		return DoubleReply{n}
	case raw.ReplyBigNumber:
		return BigNumberReply{n}
	case raw.ReplyVerbatimString:
		return VerbatimStringReply{n}
	default:
		protocolViolation("unexpected reply type %s (%d)", t, int(t))
		return nil
	}
}
